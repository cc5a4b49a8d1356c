// Package organization implements the Organization entity actor (C7):
// the same Create/Rename/SetVisibility/DeleteLogical/DeletePhysical/
// Undelete shape as Owner, scoped under an owner and additionally
// exposing GetOwnerID.
package organization

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/deletion"
	"github.com/torratdev/grace/internal/entities/actorbase"
	"github.com/torratdev/grace/internal/entities/owner"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	"github.com/torratdev/grace/internal/platform/eventbus"
	"github.com/torratdev/grace/internal/platform/statestore"
	"github.com/torratdev/grace/internal/platform/timers"
)

// Kind is the actor kind string for Organization actors.
const Kind = "Organization"

// Topic is the event bus topic every Organization event publishes to.
const Topic = "grace.organization"

type dto struct {
	Exists     bool
	ID         string
	OwnerID    string
	Name       string
	Type       mmodel.OwnerType
	Visibility mmodel.Visibility
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

func (d dto) toModel() mmodel.Organization {
	return mmodel.Organization{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		Name:       d.Name,
		Type:       d.Type,
		Visibility: d.Visibility,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		DeletedAt:  d.DeletedAt,
	}
}

// Event tags.
const (
	TagCreated           = "OrganizationCreated"
	TagRenamed           = "OrganizationRenamed"
	TagVisibilitySet     = "OrganizationVisibilitySet"
	TagDeletedLogically  = "OrganizationDeletedLogically"
	TagDeletedPhysically = "OrganizationDeletedPhysically"
	TagUndeleted         = "OrganizationUndeleted"
)

type createdEvent struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"ownerId"`
	Name      string           `json:"name"`
	Type      mmodel.OwnerType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
}

type renamedEvent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

type visibilitySetEvent struct {
	Visibility mmodel.Visibility `json:"visibility"`
	Timestamp  time.Time         `json:"timestamp"`
}

type deletedLogicallyEvent struct {
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
	case TagRenamed:
		var e renamedEvent
		return e, json.Unmarshal(raw, &e)
	case TagVisibilitySet:
		var e visibilitySetEvent
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
		return nil, fmt.Errorf("organization: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.ID = e.ID
		d.OwnerID = e.OwnerID
		d.Name = e.Name
		d.Type = e.Type
		d.CreatedAt = e.Timestamp
		d.UpdatedAt = e.Timestamp
	case TagRenamed:
		e := event.(renamedEvent) //nolint:forcetypeassert
		d.Name = e.Name
		d.UpdatedAt = e.Timestamp
	case TagVisibilitySet:
		e := event.(visibilitySetEvent) //nolint:forcetypeassert
		d.Visibility = e.Visibility
		d.UpdatedAt = e.Timestamp
	case TagDeletedLogically:
		e := event.(deletedLogicallyEvent) //nolint:forcetypeassert
		t := e.Timestamp
		d.DeletedAt = &t
		d.UpdatedAt = e.Timestamp
	case TagDeletedPhysically:
		e := event.(deletedPhysicallyEvent) //nolint:forcetypeassert
		d.Exists = false
		d.UpdatedAt = e.Timestamp
	case TagUndeleted:
		e := event.(undeletedEvent) //nolint:forcetypeassert
		d.DeletedAt = nil
		d.UpdatedAt = e.Timestamp
	}

	return d
}

// Commands.
type (
	// CreateCommand creates the organization under ownerID.
	CreateCommand struct {
		OwnerID    string
		Name       string
		Type       mmodel.OwnerType
		Visibility mmodel.Visibility
	}
	SetNameCommand             struct{ Name string }
	SetVisibilityCommand       struct{ Visibility mmodel.Visibility }
	DeleteLogicalCommand       struct {
		Reason            string
		LogicalDeleteDays int
	}
	DeletePhysicalCommand struct{}
	UndeleteCommand       struct{}
	GetCommand            struct{}
	GetOwnerIDCommand     struct{}
)

// Actor is the Organization entity actor.
type Actor struct {
	base   *actorbase.Base[dto]
	timers timers.Service
}

// New constructs an Organization actor bound to actorID.
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
	case GetOwnerIDCommand:
		return a.getOwnerID()
	default:
		if err := a.base.CheckCorrelation(meta.CorrelationID); err != nil {
			return nil, err
		}

		switch c := c.(type) {
		case CreateCommand:
			return a.create(ctx, c, meta)
		case SetNameCommand:
			return a.setName(ctx, c, meta)
		case SetVisibilityCommand:
			return a.setVisibility(ctx, c, meta)
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

func (a *Actor) get() (mmodel.Organization, error) {
	if !a.base.Dto.Exists {
		return mmodel.Organization{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) getOwnerID() (string, error) {
	if !a.base.Dto.Exists {
		return "", errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.OwnerID, nil
}

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (mmodel.Organization, error) {
	if a.base.Dto.Exists {
		return mmodel.Organization{}, errs.Wrap(errs.ErrAlreadyExists, Kind)
	}

	if err := owner.ValidateName(c.Name); err != nil {
		return mmodel.Organization{}, err
	}

	event := createdEvent{ID: a.base.ActorID, OwnerID: c.OwnerID, Name: c.Name, Type: c.Type, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Organization{}, err
	}

	if c.Visibility != "" {
		if _, err := a.setVisibility(ctx, SetVisibilityCommand{Visibility: c.Visibility}, meta); err != nil {
			return mmodel.Organization{}, err
		}
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) requireActive() error {
	if !a.base.Dto.Exists {
		return errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt != nil {
		return errs.Wrap(errs.ErrAlreadyDeleted, Kind)
	}

	return nil
}

func (a *Actor) setName(ctx context.Context, c SetNameCommand, meta command.Metadata) (mmodel.Organization, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Organization{}, err
	}

	if err := owner.ValidateName(c.Name); err != nil {
		return mmodel.Organization{}, err
	}

	event := renamedEvent{Name: c.Name, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagRenamed, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Organization{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setVisibility(ctx context.Context, c SetVisibilityCommand, meta command.Metadata) (mmodel.Organization, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Organization{}, err
	}

	event := visibilitySetEvent{Visibility: c.Visibility, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagVisibilitySet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Organization{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deleteLogical(ctx context.Context, c DeleteLogicalCommand, meta command.Metadata) (mmodel.Organization, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Organization{}, err
	}

	event := deletedLogicallyEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDeletedLogically, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Organization{}, err
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
		return mmodel.Organization{}, errs.WrapInternal(Kind, err)
	}

	if err := a.timers.RegisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder, payload,
		time.Duration(days)*24*time.Hour, 0); err != nil {
		return mmodel.Organization{}, errs.WrapDependency(Kind, err)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deletePhysical(ctx context.Context) (mmodel.Organization, error) {
	if !a.base.Dto.Exists {
		return mmodel.Organization{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	result := a.base.Dto.toModel()

	if err := a.base.WipeDurableState(ctx); err != nil {
		return mmodel.Organization{}, err
	}

	return result, nil
}

func (a *Actor) undelete(ctx context.Context, meta command.Metadata) (mmodel.Organization, error) {
	if !a.base.Dto.Exists {
		return mmodel.Organization{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt == nil {
		return mmodel.Organization{}, errs.Wrap(errs.ErrNotDeleted, Kind)
	}

	event := undeletedEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagUndeleted, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Organization{}, err
	}

	if err := a.timers.UnregisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder); err != nil {
		a.base.Logger.Warnf("organization %s: unregister physical-deletion reminder after undelete: %v", a.base.ActorID, err)
	}

	return a.base.Dto.toModel(), nil
}

// ReceiveReminder implements actorhost.Reminderable.
func (a *Actor) ReceiveReminder(ctx context.Context, name string, payload []byte, _ time.Time, _ time.Duration) error {
	if name != timers.PhysicalDeletionReminder {
		return fmt.Errorf("organization: unknown reminder %q", name)
	}

	if _, err := deletion.DecodeReminderPayload(payload); err != nil {
		return errs.WrapInternal(Kind, err)
	}

	_, err := a.deletePhysical(ctx)

	return err
}
