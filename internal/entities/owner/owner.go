// Package owner implements the Owner entity actor (C7): the root of
// the Owner -> Organization -> Repository -> Branch hierarchy, with the
// Create/Rename/SetDescription/SetSearchVisibility/DeleteLogical/
// DeletePhysical/Undelete shape shared by every first-class entity.
package owner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
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

// Kind is the actor kind string used to address Owner actors through
// the actor host and in persisted/published event envelopes.
const Kind = "Owner"

// Topic is the event bus topic every Owner event publishes to.
const Topic = "grace.owner"

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]{1,63}$`)

// ValidateName enforces the shared naming rule.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return errs.Wrap(errs.ErrInvalidName, Kind)
	}

	return nil
}

type dto struct {
	Exists        bool
	ID            string
	Name          string
	Type          mmodel.OwnerType
	Description   string
	SearchVisible bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	DeleteReason  string
}

func (d dto) toModel() mmodel.Owner {
	return mmodel.Owner{
		ID:            d.ID,
		Name:          d.Name,
		Type:          d.Type,
		Description:   d.Description,
		SearchVisible: d.SearchVisible,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DeletedAt:     d.DeletedAt,
		DeleteReason:  d.DeleteReason,
	}
}

// Event tags, one per persisted state transition.
const (
	TagCreated             = "OwnerCreated"
	TagRenamed             = "OwnerRenamed"
	TagDescriptionSet      = "OwnerDescriptionSet"
	TagSearchVisibilitySet = "OwnerSearchVisibilitySet"
	TagDeletedLogically    = "OwnerDeletedLogically"
	TagDeletedPhysically   = "OwnerDeletedPhysically"
	TagUndeleted           = "OwnerUndeleted"
)

type createdEvent struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      mmodel.OwnerType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
}

type renamedEvent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

type descriptionSetEvent struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type searchVisibilitySetEvent struct {
	SearchVisible bool      `json:"searchVisible"`
	Timestamp     time.Time `json:"timestamp"`
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
	case TagRenamed:
		var e renamedEvent
		return e, json.Unmarshal(raw, &e)
	case TagDescriptionSet:
		var e descriptionSetEvent
		return e, json.Unmarshal(raw, &e)
	case TagSearchVisibilitySet:
		var e searchVisibilitySetEvent
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
		return nil, fmt.Errorf("owner: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.ID = e.ID
		d.Name = e.Name
		d.Type = e.Type
		d.CreatedAt = e.Timestamp
		d.UpdatedAt = e.Timestamp
	case TagRenamed:
		e := event.(renamedEvent) //nolint:forcetypeassert
		d.Name = e.Name
		d.UpdatedAt = e.Timestamp
	case TagDescriptionSet:
		e := event.(descriptionSetEvent) //nolint:forcetypeassert
		d.Description = e.Description
		d.UpdatedAt = e.Timestamp
	case TagSearchVisibilitySet:
		e := event.(searchVisibilitySetEvent) //nolint:forcetypeassert
		d.SearchVisible = e.SearchVisible
		d.UpdatedAt = e.Timestamp
	case TagDeletedLogically:
		e := event.(deletedLogicallyEvent) //nolint:forcetypeassert
		t := e.Timestamp
		d.DeletedAt = &t
		d.DeleteReason = e.Reason
		d.UpdatedAt = e.Timestamp
	case TagDeletedPhysically:
		e := event.(deletedPhysicallyEvent) //nolint:forcetypeassert
		d.Exists = false
		d.UpdatedAt = e.Timestamp
	case TagUndeleted:
		e := event.(undeletedEvent) //nolint:forcetypeassert
		d.DeletedAt = nil
		d.DeleteReason = ""
		d.UpdatedAt = e.Timestamp
	}

	return d
}

// Commands, dispatched through Handle via a type switch.
type (
	// CreateCommand creates the owner, identified by the actor's own id.
	CreateCommand struct {
		Name          string
		Type          mmodel.OwnerType
		Description   string
		SearchVisible bool
	}
	// SetNameCommand renames the owner.
	SetNameCommand struct{ Name string }
	// SetDescriptionCommand updates the free-text description.
	SetDescriptionCommand struct{ Description string }
	// SetSearchVisibilityCommand toggles directory-search visibility.
	SetSearchVisibilityCommand struct{ SearchVisible bool }
	// DeleteLogicalCommand marks the owner deleted and schedules the
	// physical-deletion reminder after LogicalDeleteDays.
	DeleteLogicalCommand struct {
		Reason            string
		LogicalDeleteDays int
		Force             bool
	}
	// DeletePhysicalCommand wipes the owner's persisted event log; the
	// PhysicalDeletion reminder performs the same wipe.
	DeletePhysicalCommand struct{}
	// UndeleteCommand reverses a logical deletion before the physical
	// timer fires.
	UndeleteCommand struct{}
	// GetCommand returns the current read-model.
	GetCommand struct{}
)

// Actor is the Owner entity actor.
type Actor struct {
	base   *actorbase.Base[dto]
	timers timers.Service
}

// New constructs an Owner actor bound to actorID.
func New(actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger, svc timers.Service) *Actor {
	return &Actor{
		base:   actorbase.New[dto](Kind, actorID, store, bus, logger, decode, fold),
		timers: svc,
	}
}

// Activate replays the event log and, via RecoverActor on svc where
// supported, restores any pending physical-deletion reminder.
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
	if err := a.base.CheckCorrelation(meta.CorrelationID); err != nil {
		if _, ok := cmd.(GetCommand); !ok {
			return nil, err
		}
	}

	switch c := cmd.(type) {
	case CreateCommand:
		return a.create(ctx, c, meta)
	case SetNameCommand:
		return a.setName(ctx, c, meta)
	case SetDescriptionCommand:
		return a.setDescription(ctx, c, meta)
	case SetSearchVisibilityCommand:
		return a.setSearchVisibility(ctx, c, meta)
	case DeleteLogicalCommand:
		return a.deleteLogical(ctx, c, meta)
	case DeletePhysicalCommand:
		return a.deletePhysical(ctx)
	case UndeleteCommand:
		return a.undelete(ctx, meta)
	case GetCommand:
		return a.get()
	default:
		return nil, errs.WrapInternal(Kind, fmt.Errorf("unrecognized command %T", cmd))
	}
}

func (a *Actor) get() (mmodel.Owner, error) {
	if !a.base.Dto.Exists {
		return mmodel.Owner{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (mmodel.Owner, error) {
	if a.base.Dto.Exists {
		return mmodel.Owner{}, errs.Wrap(errs.ErrAlreadyExists, Kind)
	}

	if err := ValidateName(c.Name); err != nil {
		return mmodel.Owner{}, err
	}

	event := createdEvent{ID: a.base.ActorID, Name: c.Name, Type: c.Type, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Owner{}, err
	}

	if c.Description != "" {
		if _, err := a.setDescription(ctx, SetDescriptionCommand{Description: c.Description}, meta); err != nil {
			return mmodel.Owner{}, err
		}
	}

	if c.SearchVisible {
		if _, err := a.setSearchVisibility(ctx, SetSearchVisibilityCommand{SearchVisible: true}, meta); err != nil {
			return mmodel.Owner{}, err
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

func (a *Actor) setName(ctx context.Context, c SetNameCommand, meta command.Metadata) (mmodel.Owner, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Owner{}, err
	}

	if err := ValidateName(c.Name); err != nil {
		return mmodel.Owner{}, err
	}

	event := renamedEvent{Name: c.Name, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagRenamed, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Owner{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setDescription(ctx context.Context, c SetDescriptionCommand, meta command.Metadata) (mmodel.Owner, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Owner{}, err
	}

	event := descriptionSetEvent{Description: c.Description, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDescriptionSet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Owner{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setSearchVisibility(ctx context.Context, c SetSearchVisibilityCommand, meta command.Metadata) (mmodel.Owner, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Owner{}, err
	}

	event := searchVisibilitySetEvent{SearchVisible: c.SearchVisible, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagSearchVisibilitySet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Owner{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deleteLogical(ctx context.Context, c DeleteLogicalCommand, meta command.Metadata) (mmodel.Owner, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Owner{}, err
	}

	event := deletedLogicallyEvent{Reason: c.Reason, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDeletedLogically, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Owner{}, err
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
		return mmodel.Owner{}, errs.WrapInternal(Kind, err)
	}

	if err := a.timers.RegisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder, payload,
		time.Duration(days)*24*time.Hour, 0); err != nil {
		return mmodel.Owner{}, errs.WrapDependency(Kind, err)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deletePhysical(ctx context.Context) (mmodel.Owner, error) {
	if !a.base.Dto.Exists {
		return mmodel.Owner{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	result := a.base.Dto.toModel()

	if err := a.base.WipeDurableState(ctx); err != nil {
		return mmodel.Owner{}, err
	}

	return result, nil
}

func (a *Actor) undelete(ctx context.Context, meta command.Metadata) (mmodel.Owner, error) {
	if !a.base.Dto.Exists {
		return mmodel.Owner{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt == nil {
		return mmodel.Owner{}, errs.Wrap(errs.ErrNotDeleted, Kind)
	}

	event := undeletedEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagUndeleted, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Owner{}, err
	}

	if err := a.timers.UnregisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder); err != nil {
		a.base.Logger.Warnf("owner %s: unregister physical-deletion reminder after undelete: %v", a.base.ActorID, err)
	}

	return a.base.Dto.toModel(), nil
}

// ReceiveReminder implements actorhost.Reminderable: the only reminder
// an Owner schedules is its own physical deletion.
func (a *Actor) ReceiveReminder(ctx context.Context, name string, payload []byte, _ time.Time, _ time.Duration) error {
	if name != timers.PhysicalDeletionReminder {
		return fmt.Errorf("owner: unknown reminder %q", name)
	}

	if _, err := deletion.DecodeReminderPayload(payload); err != nil {
		return errs.WrapInternal(Kind, err)
	}

	_, err := a.deletePhysical(ctx)

	return err
}
