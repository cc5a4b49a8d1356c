// Package telemetry carries an OpenTelemetry tracer through
// context.Context, adapted from the teacher's common/context.go
// NewTracerFromContext/ContextWithTracer pair.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracerContextKey struct{}

// ContextWithTracer returns a context carrying tracer, retrievable via
// TracerFromContext.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerContextKey{}, tracer)
}

// TracerFromContext extracts the tracer placed by ContextWithTracer, or
// falls back to the global "grace" tracer.
//
//nolint:ireturn
func TracerFromContext(ctx context.Context) trace.Tracer {
	if tracer, ok := ctx.Value(tracerContextKey{}).(trace.Tracer); ok && tracer != nil {
		return tracer
	}

	return otel.Tracer("grace")
}

// RecordError marks span as errored and records err, returning err
// unchanged so callers can chain it in a return statement.
func RecordError(span trace.Span, err error) error {
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
