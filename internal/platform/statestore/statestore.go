// Package statestore defines C1, the durable per-actor key/value
// contract entity actors use to persist their ordered event list.
package statestore

import "context"

// EventsKey is the reserved state-store key under which every entity
// actor persists its full ordered event list.
const EventsKey = "events"

// RemindersKey is the reserved state-store key under which the timer
// service mirrors pending reminder registrations so a process restart
// can recover them.
const RemindersKey = "__reminders__"

// Store is the C1 contract: Save/Retrieve/Delete keyed by
// (actorID, key), expected to offer single-key linearizability and
// durability per actor-id.
type Store interface {
	Save(ctx context.Context, actorID, key string, value []byte) error
	Retrieve(ctx context.Context, actorID, key string) (value []byte, found bool, err error)
	Delete(ctx context.Context, actorID, key string) (existed bool, err error)
}
