// Package command implements C8's shared primitives: the command
// envelope, concurrent validation fan-out, and the generic pipeline
// wiring steps 2-5 for every mutating entrypoint.
package command

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torratdev/grace/internal/platform/eventbus"
)

// Metadata is the envelope accompanying every command: a required
// correlation-id, a timestamp, and a property bag enriched with
// resolved identifiers on reply.
type Metadata struct {
	CorrelationID string
	Timestamp     time.Time
	Properties    map[string]string
}

// ToEventMetadata converts Metadata to the wire shape
// eventbus.Envelope carries.
func (m Metadata) ToEventMetadata() eventbus.Metadata {
	return eventbus.Metadata{
		CorrelationID: m.CorrelationID,
		Timestamp:     m.Timestamp.UTC().Format(time.RFC3339Nano),
		Properties:    m.Properties,
	}
}

// WithProperty returns a copy of m with key=value merged into
// Properties, used to enrich the reply with resolved ancestor ids.
func (m Metadata) WithProperty(key, value string) Metadata {
	props := make(map[string]string, len(m.Properties)+1)
	for k, v := range m.Properties {
		props[k] = v
	}

	props[key] = value

	return Metadata{CorrelationID: m.CorrelationID, Timestamp: m.Timestamp, Properties: props}
}

// Validation is a single rule over typed parameters, run concurrently
// alongside its siblings.
type Validation func(ctx context.Context, params any) error

// AllPass runs validations concurrently against params and returns the
// first-in-submission-order error (not merely the first to finish),
// or nil if every validation passed. Concurrency via
// golang.org/x/sync/errgroup.
func AllPass(ctx context.Context, params any, validations ...Validation) error {
	errs := make([]error, len(validations))

	g, gctx := errgroup.WithContext(ctx)

	for i, v := range validations {
		i, v := i, v

		g.Go(func() error {
			errs[i] = v(gctx, params)
			return nil
		})
	}

	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// Result is the shape returned by a Pipeline invocation on success.
type Result[R any] struct {
	Return   R
	Metadata Metadata
}

// Pipeline generically wires steps 2-5 of the command pipeline for one
// entity kind: validate, resolve, dispatch, enrich.
type Pipeline[P any, R any] struct {
	Validations []Validation
	Resolve     func(ctx context.Context, params P) (P, error)
	Dispatch    func(ctx context.Context, params P, meta Metadata) (R, error)
	Enrich      func(ctx context.Context, params P, result R, meta Metadata) (R, Metadata)
}

// Run executes the pipeline: AllPass, then Resolve, then Dispatch,
// then Enrich.
func (p Pipeline[P, R]) Run(ctx context.Context, params P, meta Metadata) (Result[R], error) {
	var zero Result[R]

	if len(p.Validations) > 0 {
		if err := AllPass(ctx, params, p.Validations...); err != nil {
			return zero, err
		}
	}

	if p.Resolve != nil {
		resolved, err := p.Resolve(ctx, params)
		if err != nil {
			return zero, err
		}

		params = resolved
	}

	result, err := p.Dispatch(ctx, params, meta)
	if err != nil {
		return zero, err
	}

	if p.Enrich != nil {
		result, meta = p.Enrich(ctx, params, result, meta)
	}

	return Result[R]{Return: result, Metadata: meta}, nil
}
