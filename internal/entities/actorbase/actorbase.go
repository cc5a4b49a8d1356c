// Package actorbase factors the skeleton every entity actor shares:
// dto + events state, Activate-time fold, the idempotency guard,
// apply-persist-publish, and poison-on-failure. Concrete entities
// (Owner, Organization, Repository, Branch, Reference, DirectoryVersion,
// RepositoryName) embed a Base[D] and supply their own dto type and
// fold function, mirroring how the teacher factors UseCase structs
// that aggregate repositories rather than duplicating logic per
// entity.
package actorbase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/platform/eventbus"
	"github.com/torratdev/grace/internal/platform/statestore"
)

// StoredEvent is the persisted, replayable representation of one past
// event: its discriminant tag, its JSON payload, and the metadata it
// was applied with (needed for the idempotency guard and for Activate
// to rebuild the seen-correlation-id set).
type StoredEvent struct {
	Tag           string          `json:"tag"`
	Event         json.RawMessage `json:"event"`
	CorrelationID string          `json:"correlationId"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Decoder turns a stored event's raw JSON back into the entity's
// concrete event value, keyed by Tag.
type Decoder func(tag string, raw json.RawMessage) (any, error)

// Fold is the entity's pure updateDto function.
type Fold[D any] func(dto D, tag string, event any) D

// Base is the generic skeleton embedded by every concrete entity
// actor. D is the entity's dto (read-model) type.
type Base[D any] struct {
	ActorKind string
	ActorID   string

	Store  statestore.Store
	Bus    eventbus.Bus
	Logger mlog.Logger

	decode Decoder
	fold   Fold[D]

	Dto    D
	events []StoredEvent
	seen   map[string]struct{}
}

// New builds a Base bound to one actor instance.
func New[D any](actorKind, actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger, decode Decoder, fold Fold[D]) *Base[D] {
	return &Base[D]{
		ActorKind: actorKind,
		ActorID:   actorID,
		Store:     store,
		Bus:       bus,
		Logger:    logger,
		decode:    decode,
		fold:      fold,
		seen:      make(map[string]struct{}),
	}
}

// Activate retrieves the persisted event list and folds it onto the
// zero value of D, rebuilding both Dto and the seen-correlation-id set.
func (b *Base[D]) Activate(ctx context.Context) error {
	var zero D

	b.Dto = zero
	b.events = nil
	b.seen = make(map[string]struct{})

	raw, found, err := b.Store.Retrieve(ctx, b.ActorID, statestore.EventsKey)
	if err != nil {
		return errs.WrapDependency(b.ActorKind, err)
	}

	if !found {
		return nil
	}

	var stored []StoredEvent
	if err := json.Unmarshal(raw, &stored); err != nil {
		return errs.WrapInternal(b.ActorKind, fmt.Errorf("decode event log: %w", err))
	}

	for _, se := range stored {
		event, err := b.decode(se.Tag, se.Event)
		if err != nil {
			return errs.WrapInternal(b.ActorKind, fmt.Errorf("decode event %s: %w", se.Tag, err))
		}

		b.Dto = b.fold(b.Dto, se.Tag, event)

		if se.CorrelationID != "" {
			b.seen[se.CorrelationID] = struct{}{}
		}
	}

	b.events = stored

	return nil
}

// CheckCorrelation enforces invariant 8: a correlation-id may not be
// reused against the same entity. Call once per Handle before any
// state mutation.
func (b *Base[D]) CheckCorrelation(correlationID string) error {
	if correlationID == "" {
		return errs.Wrap(errs.ErrMissingCorrelationID, b.ActorKind)
	}

	if _, ok := b.seen[correlationID]; ok {
		return errs.Wrap(errs.ErrDuplicateCorrelationID, b.ActorKind)
	}

	return nil
}

// EventCount reports how many events are currently persisted, useful
// for tests asserting fold correctness against a fresh replay.
func (b *Base[D]) EventCount() int { return len(b.events) }

// Apply folds event into the dto, appends it to the event log,
// persists the whole list, and publishes it. On a state-store or
// event-bus failure it returns a DependencyFailureError; the caller
// (the entity's Handle) must propagate it unchanged so the actor host
// poisons the actor, per the mark-disposed-then-reactivate recovery
// rule.
func (b *Base[D]) Apply(ctx context.Context, topic, tag string, event any, meta eventbus.Metadata) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errs.WrapInternal(b.ActorKind, fmt.Errorf("encode event %s: %w", tag, err))
	}

	ts := time.Now().UTC()
	if meta.Timestamp == "" {
		meta.Timestamp = ts.Format(time.RFC3339Nano)
	}

	stored := StoredEvent{Tag: tag, Event: raw, CorrelationID: meta.CorrelationID, Timestamp: ts}

	newEvents := append(append([]StoredEvent{}, b.events...), stored)

	encoded, err := json.Marshal(newEvents)
	if err != nil {
		return errs.WrapInternal(b.ActorKind, fmt.Errorf("encode event log: %w", err))
	}

	if err := b.Store.Save(ctx, b.ActorID, statestore.EventsKey, encoded); err != nil {
		return errs.WrapDependency(b.ActorKind, fmt.Errorf("persist event %s: %w", tag, err))
	}

	if err := b.Bus.Publish(ctx, topic, eventbus.Envelope{Tag: tag, Event: raw, Metadata: meta}); err != nil {
		return errs.WrapDependency(b.ActorKind, fmt.Errorf("publish event %s: %w", tag, err))
	}

	b.Dto = b.fold(b.Dto, tag, event)
	b.events = newEvents
	b.seen[meta.CorrelationID] = struct{}{}

	return nil
}

// ApplyInMemoryOnly folds event into the dto without persisting or
// publishing it — used for Branch's "pointer-update" events, which
// exist only to keep the branch's in-memory read-model in sync after
// the authoritative Reference actor has already published its own
// event.
func (b *Base[D]) ApplyInMemoryOnly(tag string, event any) {
	b.Dto = b.fold(b.Dto, tag, event)
}

// WipeDurableState deletes the actor's persisted event log and resets
// in-memory state to the zero value, used by the physical-deletion
// reminder handler.
func (b *Base[D]) WipeDurableState(ctx context.Context) error {
	if _, err := b.Store.Delete(ctx, b.ActorID, statestore.EventsKey); err != nil {
		return errs.WrapDependency(b.ActorKind, fmt.Errorf("delete event log: %w", err))
	}

	var zero D

	b.Dto = zero
	b.events = nil
	b.seen = make(map[string]struct{})

	return nil
}
