// Package repository implements the Repository entity actor (C7):
// Create/Rename/SetVisibility/SetStatus/individual retention setters/
// DeleteLogical (cascading to Branches)/DeletePhysical/Undelete, scoped
// under an owner and organization.
package repository

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

// Kind is the actor kind string for Repository actors.
const Kind = "Repository"

// Topic is the event bus topic every Repository event publishes to.
const Topic = "grace.repository"

// DefaultRetention matches a freshly-created repository's retention
// policy absent an explicit override.
var DefaultRetention = mmodel.RetentionPolicy{
	SaveDays:                  7,
	CheckpointDays:            30,
	DiffCacheDays:             30,
	DirectoryVersionCacheDays: 30,
	LogicalDeleteDays:         30,
}

type dto struct {
	Exists                  bool
	ID                      string
	OwnerID                 string
	OrganizationID          string
	Name                    string
	Visibility              mmodel.Visibility
	Status                  mmodel.RepositoryStatus
	DefaultServerAPIVersion string
	RecordSaves             bool
	Retention               mmodel.RetentionPolicy
	CreatedAt               time.Time
	UpdatedAt               time.Time
	DeletedAt               *time.Time
	BranchIDs               map[string]struct{}
}

func (d dto) toModel() mmodel.Repository {
	return mmodel.Repository{
		ID:                      d.ID,
		OwnerID:                 d.OwnerID,
		OrganizationID:          d.OrganizationID,
		Name:                    d.Name,
		Visibility:              d.Visibility,
		Status:                  d.Status,
		DefaultServerAPIVersion: d.DefaultServerAPIVersion,
		RecordSaves:             d.RecordSaves,
		Retention:               d.Retention,
		CreatedAt:               d.CreatedAt,
		UpdatedAt:               d.UpdatedAt,
		DeletedAt:               d.DeletedAt,
	}
}

// Event tags.
const (
	TagCreated                     = "RepositoryCreated"
	TagRenamed                     = "RepositoryRenamed"
	TagVisibilitySet               = "RepositoryVisibilitySet"
	TagStatusSet                   = "RepositoryStatusSet"
	TagDefaultServerAPIVersionSet  = "RepositoryDefaultServerAPIVersionSet"
	TagRecordSavesSet              = "RepositoryRecordSavesSet"
	TagSaveDaysSet                 = "RepositorySaveDaysSet"
	TagCheckpointDaysSet           = "RepositoryCheckpointDaysSet"
	TagDiffCacheDaysSet            = "RepositoryDiffCacheDaysSet"
	TagDirectoryVersionCacheDaysSet = "RepositoryDirectoryVersionCacheDaysSet"
	TagLogicalDeleteDaysSet        = "RepositoryLogicalDeleteDaysSet"
	TagBranchRegistered            = "RepositoryBranchRegistered"
	TagDeletedLogically            = "RepositoryDeletedLogically"
	TagDeletedPhysically           = "RepositoryDeletedPhysically"
	TagUndeleted                   = "RepositoryUndeleted"
)

type createdEvent struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Timestamp      time.Time `json:"timestamp"`
}
type renamedEvent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}
type visibilitySetEvent struct {
	Visibility mmodel.Visibility `json:"visibility"`
	Timestamp  time.Time         `json:"timestamp"`
}
type statusSetEvent struct {
	Status    mmodel.RepositoryStatus `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
}
type defaultServerAPIVersionSetEvent struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}
type recordSavesSetEvent struct {
	RecordSaves bool      `json:"recordSaves"`
	Timestamp   time.Time `json:"timestamp"`
}
type intDaysSetEvent struct {
	Days      int       `json:"days"`
	Timestamp time.Time `json:"timestamp"`
}
type branchRegisteredEvent struct {
	BranchID  string    `json:"branchId"`
	Timestamp time.Time `json:"timestamp"`
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
	case TagStatusSet:
		var e statusSetEvent
		return e, json.Unmarshal(raw, &e)
	case TagDefaultServerAPIVersionSet:
		var e defaultServerAPIVersionSetEvent
		return e, json.Unmarshal(raw, &e)
	case TagRecordSavesSet:
		var e recordSavesSetEvent
		return e, json.Unmarshal(raw, &e)
	case TagSaveDaysSet, TagCheckpointDaysSet, TagDiffCacheDaysSet, TagDirectoryVersionCacheDaysSet, TagLogicalDeleteDaysSet:
		var e intDaysSetEvent
		return e, json.Unmarshal(raw, &e)
	case TagBranchRegistered:
		var e branchRegisteredEvent
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
		return nil, fmt.Errorf("repository: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	if d.BranchIDs == nil {
		d.BranchIDs = make(map[string]struct{})
	}

	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.ID = e.ID
		d.OwnerID = e.OwnerID
		d.OrganizationID = e.OrganizationID
		d.Name = e.Name
		d.Status = mmodel.RepositoryStatusActive
		d.Retention = DefaultRetention
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
	case TagStatusSet:
		e := event.(statusSetEvent) //nolint:forcetypeassert
		d.Status = e.Status
		d.UpdatedAt = e.Timestamp
	case TagDefaultServerAPIVersionSet:
		e := event.(defaultServerAPIVersionSetEvent) //nolint:forcetypeassert
		d.DefaultServerAPIVersion = e.Version
		d.UpdatedAt = e.Timestamp
	case TagRecordSavesSet:
		e := event.(recordSavesSetEvent) //nolint:forcetypeassert
		d.RecordSaves = e.RecordSaves
		d.UpdatedAt = e.Timestamp
	case TagSaveDaysSet:
		e := event.(intDaysSetEvent) //nolint:forcetypeassert
		d.Retention.SaveDays = e.Days
		d.UpdatedAt = e.Timestamp
	case TagCheckpointDaysSet:
		e := event.(intDaysSetEvent) //nolint:forcetypeassert
		d.Retention.CheckpointDays = e.Days
		d.UpdatedAt = e.Timestamp
	case TagDiffCacheDaysSet:
		e := event.(intDaysSetEvent) //nolint:forcetypeassert
		d.Retention.DiffCacheDays = e.Days
		d.UpdatedAt = e.Timestamp
	case TagDirectoryVersionCacheDaysSet:
		e := event.(intDaysSetEvent) //nolint:forcetypeassert
		d.Retention.DirectoryVersionCacheDays = e.Days
		d.UpdatedAt = e.Timestamp
	case TagLogicalDeleteDaysSet:
		e := event.(intDaysSetEvent) //nolint:forcetypeassert
		d.Retention.LogicalDeleteDays = e.Days
		d.UpdatedAt = e.Timestamp
	case TagBranchRegistered:
		e := event.(branchRegisteredEvent) //nolint:forcetypeassert
		d.BranchIDs[e.BranchID] = struct{}{}
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
	CreateCommand struct {
		OwnerID        string
		OrganizationID string
		Name           string
		Visibility     mmodel.Visibility
	}
	SetNameCommand                     struct{ Name string }
	SetVisibilityCommand               struct{ Visibility mmodel.Visibility }
	SetStatusCommand                   struct{ Status mmodel.RepositoryStatus }
	SetDefaultServerAPIVersionCommand  struct{ Version string }
	SetRecordSavesCommand              struct{ RecordSaves bool }
	SetSaveDaysCommand                 struct{ Days int }
	SetCheckpointDaysCommand           struct{ Days int }
	SetDiffCacheDaysCommand            struct{ Days int }
	SetDirectoryVersionCacheDaysCommand struct{ Days int }
	SetLogicalDeleteDaysCommand        struct{ Days int }
	// RegisterBranchCommand records that branchID belongs to this
	// repository, called by Branch's Create after it successfully
	// persists itself.
	RegisterBranchCommand struct{ BranchID string }
	// DeleteLogicalCommand marks the repository deleted; Force skips the
	// "no active branches" guard.
	DeleteLogicalCommand struct {
		Reason string
		Force  bool
	}
	DeletePhysicalCommand struct{}
	UndeleteCommand       struct{}
	GetCommand            struct{}
	// ListBranchIDsCommand returns the set of registered branch ids, used
	// by the deletion cascade.
	ListBranchIDsCommand struct{}
)

// Actor is the Repository entity actor.
type Actor struct {
	base   *actorbase.Base[dto]
	timers timers.Service
	// cascade, when set, is invoked by DeletePhysical, and by
	// DeleteLogical when Force is set, to physically delete every
	// registered branch. It is
	// injected rather than imported directly to avoid repository <->
	// branch package cycles.
	cascade func(ctx context.Context, branchIDs []string) error
}

// New constructs a Repository actor bound to actorID. cascade may be
// nil in tests that do not exercise the delete path.
func New(actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger, svc timers.Service, cascade func(ctx context.Context, branchIDs []string) error) *Actor {
	return &Actor{
		base:    actorbase.New[dto](Kind, actorID, store, bus, logger, decode, fold),
		timers:  svc,
		cascade: cascade,
	}
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
	case ListBranchIDsCommand:
		return a.listBranchIDs(), nil
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
		case SetStatusCommand:
			return a.setStatus(ctx, c, meta)
		case SetDefaultServerAPIVersionCommand:
			return a.setDefaultServerAPIVersion(ctx, c, meta)
		case SetRecordSavesCommand:
			return a.setRecordSaves(ctx, c, meta)
		case SetSaveDaysCommand:
			return a.setIntDays(ctx, TagSaveDaysSet, c.Days, meta)
		case SetCheckpointDaysCommand:
			return a.setIntDays(ctx, TagCheckpointDaysSet, c.Days, meta)
		case SetDiffCacheDaysCommand:
			return a.setIntDays(ctx, TagDiffCacheDaysSet, c.Days, meta)
		case SetDirectoryVersionCacheDaysCommand:
			return a.setIntDays(ctx, TagDirectoryVersionCacheDaysSet, c.Days, meta)
		case SetLogicalDeleteDaysCommand:
			return a.setIntDays(ctx, TagLogicalDeleteDaysSet, c.Days, meta)
		case RegisterBranchCommand:
			return a.registerBranch(ctx, c, meta)
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

func (a *Actor) get() (mmodel.Repository, error) {
	if !a.base.Dto.Exists {
		return mmodel.Repository{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) listBranchIDs() []string {
	ids := make([]string, 0, len(a.base.Dto.BranchIDs))
	for id := range a.base.Dto.BranchIDs {
		ids = append(ids, id)
	}

	return ids
}

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (mmodel.Repository, error) {
	if a.base.Dto.Exists {
		return mmodel.Repository{}, errs.Wrap(errs.ErrAlreadyExists, Kind)
	}

	if err := owner.ValidateName(c.Name); err != nil {
		return mmodel.Repository{}, err
	}

	event := createdEvent{
		ID: a.base.ActorID, OwnerID: c.OwnerID, OrganizationID: c.OrganizationID,
		Name: c.Name, Timestamp: time.Now().UTC(),
	}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	if c.Visibility != "" {
		if _, err := a.setVisibility(ctx, SetVisibilityCommand{Visibility: c.Visibility}, meta); err != nil {
			return mmodel.Repository{}, err
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

func (a *Actor) setName(ctx context.Context, c SetNameCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	if err := owner.ValidateName(c.Name); err != nil {
		return mmodel.Repository{}, err
	}

	event := renamedEvent{Name: c.Name, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagRenamed, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setVisibility(ctx context.Context, c SetVisibilityCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	event := visibilitySetEvent{Visibility: c.Visibility, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagVisibilitySet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setStatus(ctx context.Context, c SetStatusCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	event := statusSetEvent{Status: c.Status, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagStatusSet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setDefaultServerAPIVersion(ctx context.Context, c SetDefaultServerAPIVersionCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	event := defaultServerAPIVersionSetEvent{Version: c.Version, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDefaultServerAPIVersionSet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setRecordSaves(ctx context.Context, c SetRecordSavesCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	event := recordSavesSetEvent{RecordSaves: c.RecordSaves, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagRecordSavesSet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setIntDays(ctx context.Context, tag string, days int, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	if days < 0 {
		return mmodel.Repository{}, errs.Wrap(errs.ErrInvalidEnumValue, Kind)
	}

	event := intDaysSetEvent{Days: days, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, tag, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) registerBranch(ctx context.Context, c RegisterBranchCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	event := branchRegisteredEvent{BranchID: c.BranchID, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagBranchRegistered, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deleteLogical(ctx context.Context, c DeleteLogicalCommand, meta command.Metadata) (mmodel.Repository, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Repository{}, err
	}

	if !c.Force && len(a.base.Dto.BranchIDs) > 0 {
		return mmodel.Repository{}, errs.Wrap(errs.ErrRepositoryNotEmpty, Kind)
	}

	branchIDs := a.listBranchIDs()

	event := deletedLogicallyEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDeletedLogically, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	days := a.base.Dto.Retention.LogicalDeleteDays
	if days < 0 {
		days = 0
	}

	payload, err := deletion.EncodeReminderPayload(timers.ReminderPayload{
		Version:       timers.CurrentReminderPayloadVersion,
		DeleteReason:  c.Reason,
		CorrelationID: meta.CorrelationID,
	})
	if err != nil {
		return mmodel.Repository{}, errs.WrapInternal(Kind, err)
	}

	if err := a.timers.RegisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder, payload,
		time.Duration(days)*24*time.Hour, 0); err != nil {
		return mmodel.Repository{}, errs.WrapDependency(Kind, err)
	}

	if c.Force && a.cascade != nil && len(branchIDs) > 0 {
		if err := a.cascade(ctx, branchIDs); err != nil {
			a.base.Logger.Warnf("repository %s: cascade delete to branches: %v", a.base.ActorID, err)
		}
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deletePhysical(ctx context.Context) (mmodel.Repository, error) {
	if !a.base.Dto.Exists {
		return mmodel.Repository{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	result := a.base.Dto.toModel()
	branchIDs := a.listBranchIDs()

	if err := a.base.WipeDurableState(ctx); err != nil {
		return mmodel.Repository{}, err
	}

	if a.cascade != nil && len(branchIDs) > 0 {
		if err := a.cascade(ctx, branchIDs); err != nil {
			a.base.Logger.Warnf("repository %s: cascade physical delete to branches: %v", a.base.ActorID, err)
		}
	}

	return result, nil
}

func (a *Actor) undelete(ctx context.Context, meta command.Metadata) (mmodel.Repository, error) {
	if !a.base.Dto.Exists {
		return mmodel.Repository{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt == nil {
		return mmodel.Repository{}, errs.Wrap(errs.ErrNotDeleted, Kind)
	}

	event := undeletedEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagUndeleted, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Repository{}, err
	}

	if err := a.timers.UnregisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder); err != nil {
		a.base.Logger.Warnf("repository %s: unregister physical-deletion reminder after undelete: %v", a.base.ActorID, err)
	}

	return a.base.Dto.toModel(), nil
}

// ReceiveReminder implements actorhost.Reminderable.
func (a *Actor) ReceiveReminder(ctx context.Context, name string, payload []byte, _ time.Time, _ time.Duration) error {
	if name != timers.PhysicalDeletionReminder {
		return fmt.Errorf("repository: unknown reminder %q", name)
	}

	if _, err := deletion.DecodeReminderPayload(payload); err != nil {
		return errs.WrapInternal(Kind, err)
	}

	_, err := a.deletePhysical(ctx)

	return err
}
