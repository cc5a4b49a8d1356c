// Package reference implements the Reference entity actor (C7): an
// immutable (apart from deletion) pointer to a DirectoryVersion, minted
// by a Branch command. A reference's Type is fixed at creation per
// invariant 4. A reference created with RetentionDays > 0 (Branch
// passes the repository's save days for Save and Assign, and its
// checkpoint days for Checkpoint) schedules its own physical-deletion
// reminder; DeleteLogical schedules one for any type, and a
// DeletePhysical cascade from the owning Branch removes it directly.
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/deletion"
	"github.com/torratdev/grace/internal/entities/actorbase"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	"github.com/torratdev/grace/internal/platform/eventbus"
	"github.com/torratdev/grace/internal/platform/statestore"
	"github.com/torratdev/grace/internal/platform/timers"
)

// Kind is the actor kind string for Reference actors.
const Kind = "Reference"

// Topic is the event bus topic every Reference event publishes to.
const Topic = "grace.reference"

type dto struct {
	Exists             bool
	ID                 string
	RepositoryID       string
	BranchID           string
	DirectoryVersionID string
	Sha256             string
	Type               mmodel.ReferenceType
	Text               string
	CreatedAt          time.Time
	DeletedAt          *time.Time
	DeleteReason       string
}

func (d dto) toModel() mmodel.Reference {
	return mmodel.Reference{
		ID:                 d.ID,
		RepositoryID:       d.RepositoryID,
		BranchID:           d.BranchID,
		DirectoryVersionID: d.DirectoryVersionID,
		Sha256:             d.Sha256,
		Type:               d.Type,
		Text:               d.Text,
		CreatedAt:          d.CreatedAt,
		DeletedAt:          d.DeletedAt,
		DeleteReason:       d.DeleteReason,
	}
}

// Event tags.
const (
	TagCreated           = "ReferenceCreated"
	TagDeletedLogically  = "ReferenceDeletedLogically"
	TagDeletedPhysically = "ReferenceDeletedPhysically"
	TagUndeleted         = "ReferenceUndeleted"
)

type createdEvent struct {
	ID                 string               `json:"id"`
	RepositoryID       string               `json:"repositoryId"`
	BranchID           string               `json:"branchId"`
	DirectoryVersionID string               `json:"directoryVersionId"`
	Sha256             string               `json:"sha256"`
	Type               mmodel.ReferenceType `json:"type"`
	Text               string               `json:"text"`
	Timestamp          time.Time            `json:"timestamp"`
}

type deletedLogicallyEvent struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type deletedPhysicallyEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

type undeletedEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func decode(tag string, raw json.RawMessage) (any, error) {
	switch tag {
	case TagCreated:
		var e createdEvent
		return e, json.Unmarshal(raw, &e)
	case TagDeletedLogically:
		var e deletedLogicallyEvent
		return e, json.Unmarshal(raw, &e)
	case TagDeletedPhysically:
		var e deletedPhysicallyEvent
		return e, json.Unmarshal(raw, &e)
	case TagUndeleted:
		var e undeletedEvent
		return e, json.Unmarshal(raw, &e)
	default:
		return nil, fmt.Errorf("reference: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.ID = e.ID
		d.RepositoryID = e.RepositoryID
		d.BranchID = e.BranchID
		d.DirectoryVersionID = e.DirectoryVersionID
		d.Sha256 = e.Sha256
		d.Type = e.Type
		d.Text = e.Text
		d.CreatedAt = e.Timestamp
	case TagDeletedLogically:
		e := event.(deletedLogicallyEvent) //nolint:forcetypeassert
		t := e.Timestamp
		d.DeletedAt = &t
		d.DeleteReason = e.Reason
	case TagDeletedPhysically:
		d.Exists = false
	case TagUndeleted:
		d.DeletedAt = nil
		d.DeleteReason = ""
	}

	return d
}

// Commands.
type (
	// CreateCommand mints the reference. RetentionDays > 0 schedules a
	// one-shot physical-deletion reminder (used for Save/Checkpoint);
	// RetentionDays == 0 leaves the reference to be deleted only by
	// cascade from its owning Branch.
	CreateCommand struct {
		RepositoryID       string
		BranchID           string
		DirectoryVersionID string
		Sha256             string
		Type               mmodel.ReferenceType
		Text               string
		RetentionDays      int
	}
	DeleteLogicalCommand struct {
		Reason            string
		LogicalDeleteDays int
	}
	DeletePhysicalCommand struct{}
	UndeleteCommand       struct{}
	GetCommand            struct{}
)

// Actor is the Reference entity actor.
type Actor struct {
	base   *actorbase.Base[dto]
	timers timers.Service
}

// New constructs a Reference actor bound to actorID.
func New(actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger, svc timers.Service) *Actor {
	return &Actor{base: actorbase.New[dto](Kind, actorID, store, bus, logger, decode, fold), timers: svc}
}

// Activate replays the event log and restores any pending reminder.
func (a *Actor) Activate(ctx context.Context) error {
	if err := a.base.Activate(ctx); err != nil {
		return err
	}

	if recoverer, ok := a.timers.(interface {
		RecoverActor(ctx context.Context, actorKind, actorID string) error
	}); ok {
		return recoverer.RecoverActor(ctx, Kind, a.base.ActorID)
	}

	return nil
}

// Handle dispatches cmd to the matching transition.
func (a *Actor) Handle(ctx context.Context, cmd any, meta command.Metadata) (any, error) {
	switch c := cmd.(type) {
	case GetCommand:
		return a.get()
	default:
		if err := a.base.CheckCorrelation(meta.CorrelationID); err != nil {
			return nil, err
		}

		switch c := c.(type) {
		case CreateCommand:
			return a.create(ctx, c, meta)
		case DeleteLogicalCommand:
			return a.deleteLogical(ctx, c, meta)
		case DeletePhysicalCommand:
			return a.deletePhysical(ctx)
		case UndeleteCommand:
			return a.undelete(ctx, meta)
		default:
			return nil, errs.WrapInternal(Kind, fmt.Errorf("unrecognized command %T", c))
		}
	}
}

func (a *Actor) get() (mmodel.Reference, error) {
	if !a.base.Dto.Exists {
		return mmodel.Reference{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (mmodel.Reference, error) {
	if a.base.Dto.Exists {
		return mmodel.Reference{}, errs.Wrap(errs.ErrAlreadyExists, Kind)
	}

	event := createdEvent{
		ID: a.base.ActorID, RepositoryID: c.RepositoryID, BranchID: c.BranchID,
		DirectoryVersionID: c.DirectoryVersionID, Sha256: c.Sha256, Type: c.Type,
		Text: c.Text, Timestamp: time.Now().UTC(),
	}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Reference{}, err
	}

	if c.RetentionDays > 0 {
		payload, err := deletion.EncodeReminderPayload(timers.ReminderPayload{
			Version:       timers.CurrentReminderPayloadVersion,
			DeleteReason:  "retention-expired",
			CorrelationID: meta.CorrelationID,
		})
		if err != nil {
			return mmodel.Reference{}, errs.WrapInternal(Kind, err)
		}

		if err := a.timers.RegisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder, payload,
			time.Duration(c.RetentionDays)*24*time.Hour, 0); err != nil {
			return mmodel.Reference{}, errs.WrapDependency(Kind, err)
		}
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deleteLogical(ctx context.Context, c DeleteLogicalCommand, meta command.Metadata) (mmodel.Reference, error) {
	if !a.base.Dto.Exists {
		return mmodel.Reference{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt != nil {
		return mmodel.Reference{}, errs.Wrap(errs.ErrAlreadyDeleted, Kind)
	}

	event := deletedLogicallyEvent{Reason: c.Reason, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDeletedLogically, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Reference{}, err
	}

	days := c.LogicalDeleteDays
	if days < 0 {
		days = 0
	}

	payload, err := deletion.EncodeReminderPayload(timers.ReminderPayload{
		Version:       timers.CurrentReminderPayloadVersion,
		DeleteReason:  c.Reason,
		CorrelationID: meta.CorrelationID,
	})
	if err != nil {
		return mmodel.Reference{}, errs.WrapInternal(Kind, err)
	}

	if err := a.timers.RegisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder, payload,
		time.Duration(days)*24*time.Hour, 0); err != nil {
		return mmodel.Reference{}, errs.WrapDependency(Kind, err)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deletePhysical(ctx context.Context) (mmodel.Reference, error) {
	if !a.base.Dto.Exists {
		return mmodel.Reference{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	result := a.base.Dto.toModel()

	if err := a.base.WipeDurableState(ctx); err != nil {
		return mmodel.Reference{}, err
	}

	return result, nil
}

func (a *Actor) undelete(ctx context.Context, meta command.Metadata) (mmodel.Reference, error) {
	if !a.base.Dto.Exists {
		return mmodel.Reference{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt == nil {
		return mmodel.Reference{}, errs.Wrap(errs.ErrNotDeleted, Kind)
	}

	event := undeletedEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagUndeleted, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Reference{}, err
	}

	if err := a.timers.UnregisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder); err != nil {
		a.base.Logger.Warnf("reference %s: unregister physical-deletion reminder after undelete: %v", a.base.ActorID, err)
	}

	return a.base.Dto.toModel(), nil
}

// ReceiveReminder implements actorhost.Reminderable.
func (a *Actor) ReceiveReminder(ctx context.Context, name string, payload []byte, _ time.Time, _ time.Duration) error {
	if name != timers.PhysicalDeletionReminder {
		return fmt.Errorf("reference: unknown reminder %q", name)
	}

	if _, err := deletion.DecodeReminderPayload(payload); err != nil {
		return errs.WrapInternal(Kind, err)
	}

	_, err := a.deletePhysical(ctx)

	return err
}
