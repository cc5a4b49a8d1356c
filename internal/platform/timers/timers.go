// Package timers implements C3: named, per-actor reminders that fire
// after a delay and re-enter the owning actor's mailbox.
package timers

import (
	"context"
	"time"
)

// Delivery is how a fired reminder re-enters its actor — implemented
// by actorhost.ActorRef.Deliver. Kept as a narrow interface here so
// this package does not import actorhost.
type Delivery interface {
	Deliver(ctx context.Context, actorKind, actorID, name string, payload []byte, dueTime time.Time, period time.Duration) error
}

// Service is the C3 contract.
type Service interface {
	RegisterReminder(ctx context.Context, actorKind, actorID, name string, payload []byte, dueIn, period time.Duration) error
	UnregisterReminder(ctx context.Context, actorKind, actorID, name string) error
	// Recover replays any reminder registrations whose due time has not
	// yet elapsed, mirroring crash recovery from the state-store mirror.
	Recover(ctx context.Context) error
}

// ReminderPayload is the single canonical, versioned schema every
// scheduling site and decode site in this repository uses for the
// "PhysicalDeletion" reminder family — resolving the spec's reminder
// payload ambiguity (see DESIGN.md, Open Questions (b)) by replacing a
// bare positional tuple with one tagged record.
type ReminderPayload struct {
	Version       int               `msgpack:"version"`
	ParentIDs     map[string]string `msgpack:"parentIds"`
	DeleteReason  string            `msgpack:"deleteReason"`
	CorrelationID string            `msgpack:"correlationId"`
}

// CurrentReminderPayloadVersion is incremented whenever ReminderPayload
// gains a field that changes decode semantics for older payloads.
const CurrentReminderPayloadVersion = 1

// PhysicalDeletionReminder is the reserved reminder name every
// logical-delete, Save-creation and Checkpoint-creation path schedules.
const PhysicalDeletionReminder = "PhysicalDeletion"
