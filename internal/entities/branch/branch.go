// Package branch implements the Branch entity actor (C7), the most
// involved of the entities: it mints Reference actors on every
// reference-producing command (Assign, Promote, Commit, Checkpoint,
// Save, Tag, CreateExternal), applies the resulting pointer-update
// in-memory only (never persisted or republished — the Reference
// actor's own Created event is the durable record), reconciles its
// Latest* pointers from the read-model on Activate, and cascades
// physical deletion to every Reference it minted.
package branch

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

// Kind is the actor kind string for Branch actors.
const Kind = "Branch"

// Topic is the event bus topic every Branch event publishes to.
const Topic = "grace.branch"

type dto struct {
	Exists           bool
	ID               string
	RepositoryID     string
	ParentBranchID   *string
	Name             string
	BasedOn          string
	LatestPromotion  string
	LatestCommit     string
	LatestCheckpoint string
	LatestSave       string
	Enabled          mmodel.ReferenceTypeFlags
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
	ReferenceIDs     map[string]struct{}
}

func (d dto) toModel() mmodel.Branch {
	return mmodel.Branch{
		ID:               d.ID,
		RepositoryID:     d.RepositoryID,
		ParentBranchID:   d.ParentBranchID,
		Name:             d.Name,
		BasedOn:          d.BasedOn,
		LatestPromotion:  d.LatestPromotion,
		LatestCommit:     d.LatestCommit,
		LatestCheckpoint: d.LatestCheckpoint,
		LatestSave:       d.LatestSave,
		Enabled:          d.Enabled,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		DeletedAt:        d.DeletedAt,
	}
}

// Event tags. Pointer-update tags (TagAssigned..TagExternalCreated) are
// applied through ApplyInMemoryOnly and never persisted/published by
// this actor directly — they exist so fold has one pure function
// covering every transition a read of the event log (e.g. in a test)
// might replay against a reconstructed dto.
const (
	TagCreated           = "BranchCreated"
	TagRenamed           = "BranchRenamed"
	TagEnabledSet        = "BranchEnabledSet"
	TagReferenceMinted   = "BranchReferenceMinted"
	TagReferenceRemoved  = "BranchReferenceRemoved"
	TagDeletedLogically  = "BranchDeletedLogically"
	TagDeletedPhysically = "BranchDeletedPhysically"
	TagUndeleted         = "BranchUndeleted"

	TagAssigned        = "BranchAssigned"
	TagPromoted        = "BranchPromoted"
	TagCommitted       = "BranchCommitted"
	TagCheckpointed    = "BranchCheckpointed"
	TagSaved           = "BranchSaved"
	TagTagged          = "BranchTagged"
	TagExternalCreated = "BranchExternalCreated"
	TagRebased         = "BranchRebased"
)

type createdEvent struct {
	ID             string    `json:"id"`
	RepositoryID   string    `json:"repositoryId"`
	ParentBranchID *string   `json:"parentBranchId,omitempty"`
	Name           string    `json:"name"`
	BasedOn        string    `json:"basedOn,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type renamedEvent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

type enabledSetEvent struct {
	Enabled   mmodel.ReferenceTypeFlags `json:"enabled"`
	Timestamp time.Time                 `json:"timestamp"`
}

// referenceMintedEvent records that referenceID was minted, for the
// Branch's own event-count bookkeeping (not pointer state — pointer
// state is carried only by the in-memory-only events below).
type referenceMintedEvent struct {
	ReferenceID string    `json:"referenceId"`
	Timestamp   time.Time `json:"timestamp"`
}

type referenceRemovedEvent struct {
	ReferenceID string    `json:"referenceId"`
	Timestamp   time.Time `json:"timestamp"`
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

// pointerUpdateEvent is the shape shared by every in-memory-only
// reference-producing transition: it says "referenceID is now the
// latest pointer of this kind."
type pointerUpdateEvent struct {
	ReferenceID string    `json:"referenceId"`
	Timestamp   time.Time `json:"timestamp"`
}

func decode(tag string, raw json.RawMessage) (any, error) {
	switch tag {
	case TagCreated:
		var e createdEvent
		return e, json.Unmarshal(raw, &e)
	case TagRenamed:
		var e renamedEvent
		return e, json.Unmarshal(raw, &e)
	case TagEnabledSet:
		var e enabledSetEvent
		return e, json.Unmarshal(raw, &e)
	case TagReferenceMinted:
		var e referenceMintedEvent
		return e, json.Unmarshal(raw, &e)
	case TagReferenceRemoved:
		var e referenceRemovedEvent
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
	case TagAssigned, TagPromoted, TagCommitted, TagCheckpointed, TagSaved, TagTagged, TagExternalCreated, TagRebased:
		var e pointerUpdateEvent
		return e, json.Unmarshal(raw, &e)
	default:
		return nil, fmt.Errorf("branch: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	if d.ReferenceIDs == nil {
		d.ReferenceIDs = make(map[string]struct{})
	}

	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.ID = e.ID
		d.RepositoryID = e.RepositoryID
		d.ParentBranchID = e.ParentBranchID
		d.Name = e.Name
		d.BasedOn = e.BasedOn
		d.CreatedAt = e.Timestamp
		d.UpdatedAt = e.Timestamp
	case TagRenamed:
		e := event.(renamedEvent) //nolint:forcetypeassert
		d.Name = e.Name
		d.UpdatedAt = e.Timestamp
	case TagEnabledSet:
		e := event.(enabledSetEvent) //nolint:forcetypeassert
		d.Enabled = e.Enabled
		d.UpdatedAt = e.Timestamp
	case TagReferenceMinted:
		e := event.(referenceMintedEvent) //nolint:forcetypeassert
		d.ReferenceIDs[e.ReferenceID] = struct{}{}
		d.UpdatedAt = e.Timestamp
	case TagReferenceRemoved:
		e := event.(referenceRemovedEvent) //nolint:forcetypeassert
		delete(d.ReferenceIDs, e.ReferenceID)
		pruneLatest(&d, e.ReferenceID)
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
	case TagAssigned:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.UpdatedAt = e.Timestamp
	case TagPromoted:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.LatestPromotion = e.ReferenceID
		d.UpdatedAt = e.Timestamp
	case TagCommitted:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.LatestCommit = e.ReferenceID
		d.UpdatedAt = e.Timestamp
	case TagCheckpointed:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.LatestCheckpoint = e.ReferenceID
		d.UpdatedAt = e.Timestamp
	case TagSaved:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.LatestSave = e.ReferenceID
		d.UpdatedAt = e.Timestamp
	case TagTagged, TagExternalCreated:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.UpdatedAt = e.Timestamp
	case TagRebased:
		e := event.(pointerUpdateEvent) //nolint:forcetypeassert
		d.BasedOn = e.ReferenceID
		d.UpdatedAt = e.Timestamp
	}

	return d
}

func pruneLatest(d *dto, referenceID string) {
	if d.LatestPromotion == referenceID {
		d.LatestPromotion = ""
	}

	if d.LatestCommit == referenceID {
		d.LatestCommit = ""
	}

	if d.LatestCheckpoint == referenceID {
		d.LatestCheckpoint = ""
	}

	if d.LatestSave == referenceID {
		d.LatestSave = ""
	}

	if d.BasedOn == referenceID {
		d.BasedOn = ""
	}
}

// ReferenceMinter is how Branch mints a child Reference actor without
// importing the reference package directly (avoiding a cycle, since the
// reference package has no need to import branch but the wiring still
// benefits from keeping the boundary explicit and test-injectable).
type ReferenceMinter interface {
	// Mint sends a Create command to a fresh Reference actor and returns
	// its id on success. retentionDays > 0 requests a self-scheduled
	// physical-deletion reminder (Save, Checkpoint, Assign).
	Mint(ctx context.Context, repositoryID, branchID, directoryVersionID, sha256 string, refType mmodel.ReferenceType, text string, retentionDays int, meta command.Metadata) (referenceID string, err error)
	// DeleteLogical cascades a logical delete to referenceID.
	DeleteLogical(ctx context.Context, referenceID, reason string, logicalDeleteDays int, meta command.Metadata) error
	// DeletePhysical cascades a physical delete to referenceID.
	DeletePhysical(ctx context.Context, referenceID string, meta command.Metadata) error
	// Get reads referenceID's current read-model, used both by Rebase
	// (to copy the parent reference's directory-version-id/sha/text) and
	// by Activate (to reconcile Latest* from the references this branch
	// minted).
	Get(ctx context.Context, referenceID string) (mmodel.Reference, error)
}

// Commands.
type (
	CreateCommand struct {
		RepositoryID   string
		ParentBranchID *string
		Name           string
		BasedOn        string
	}
	SetNameCommand struct{ Name string }
	// RebaseCommand re-points BasedOn at referenceID, which must be the
	// parent branch's current LatestPromotion.
	RebaseCommand struct {
		ReferenceID           string
		ParentLatestPromotion string
	}
	SetEnabledCommand struct{ Enabled mmodel.ReferenceTypeFlags }
	// AssignCommand, PromoteCommand, ... each mint a Reference of the
	// matching type, gated by Enabled and by RepositoryRetention for the
	// reminder duration.
	AssignCommand struct {
		DirectoryVersionID string
		Sha256             string
		RepositorySaveDays int
	}
	PromoteCommand struct {
		DirectoryVersionID string
		Sha256             string
	}
	CommitCommand struct {
		DirectoryVersionID string
		Sha256             string
		Text               string
	}
	CheckpointCommand struct {
		DirectoryVersionID      string
		Sha256                  string
		RepositoryCheckpointDays int
	}
	SaveCommand struct {
		DirectoryVersionID string
		Sha256             string
		RepositorySaveDays int
	}
	TagCommand struct {
		DirectoryVersionID string
		Sha256             string
		Text               string
	}
	CreateExternalCommand struct {
		DirectoryVersionID string
		Sha256             string
		Text               string
	}
	// RemoveReferenceCommand tombstones referenceID: it drops it from
	// ReferenceIDs, prunes whichever Latest* slot (or BasedOn) currently
	// holds it (Open Question (a)) without deleting the Reference actor
	// itself.
	RemoveReferenceCommand struct{ ReferenceID string }
	DeleteLogicalCommand   struct {
		Reason            string
		LogicalDeleteDays int
		Force             bool
	}
	DeletePhysicalCommand struct{}
	UndeleteCommand       struct{}
	GetCommand            struct{}
	ListReferenceIDsCommand struct{}
)

// RepositoryRegistrar lets Branch tell its owning Repository actor about
// its own id right after Create, so Repository's BranchIDs membership
// (used by the non-empty-repository delete guard) stays in sync without
// Branch importing the repository package.
type RepositoryRegistrar interface {
	RegisterBranch(ctx context.Context, repositoryID, branchID string, meta command.Metadata) error
}

// Actor is the Branch entity actor.
type Actor struct {
	base     *actorbase.Base[dto]
	timers   timers.Service
	minter   ReferenceMinter
	registry RepositoryRegistrar
}

// New constructs a Branch actor bound to actorID.
func New(actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger, svc timers.Service, minter ReferenceMinter, registry RepositoryRegistrar) *Actor {
	return &Actor{base: actorbase.New[dto](Kind, actorID, store, bus, logger, decode, fold), timers: svc, minter: minter, registry: registry}
}

// Activate replays the event log, reconciles Latest* against the
// references this branch minted, and restores any pending reminder.
func (a *Actor) Activate(ctx context.Context) error {
	if err := a.base.Activate(ctx); err != nil {
		return err
	}

	if a.minter != nil {
		a.reconcileLatest(ctx)
	}

	if recoverer, ok := a.timers.(interface {
		RecoverActor(ctx context.Context, actorKind, actorID string) error
	}); ok {
		return recoverer.RecoverActor(ctx, Kind, a.base.ActorID)
	}

	return nil
}

// reconcileLatest patches LatestPromotion/LatestCommit/LatestCheckpoint/
// LatestSave from the most recently created reference of each type this
// branch minted. It is load-bearing: TagReferenceMinted's fold only
// restores ReferenceIDs, never Latest*, since the pointer-update events
// (TagPromoted/TagCommitted/TagCheckpointed/TagSaved/...) are applied
// in-memory only and never persisted. Without this, Latest* would
// silently revert to "" on every reactivation after idle eviction.
// References this branch minted but can no longer fetch (physically
// deleted) are skipped rather than treated as an error.
func (a *Actor) reconcileLatest(ctx context.Context) {
	var latestPromotion, latestCommit, latestCheckpoint, latestSave mmodel.Reference

	for referenceID := range a.base.Dto.ReferenceIDs {
		ref, err := a.minter.Get(ctx, referenceID)
		if err != nil {
			continue
		}

		switch ref.Type {
		case mmodel.ReferenceTypePromotion:
			if ref.CreatedAt.After(latestPromotion.CreatedAt) {
				latestPromotion = ref
			}
		case mmodel.ReferenceTypeCommit:
			if ref.CreatedAt.After(latestCommit.CreatedAt) {
				latestCommit = ref
			}
		case mmodel.ReferenceTypeCheckpoint:
			if ref.CreatedAt.After(latestCheckpoint.CreatedAt) {
				latestCheckpoint = ref
			}
		case mmodel.ReferenceTypeSave:
			if ref.CreatedAt.After(latestSave.CreatedAt) {
				latestSave = ref
			}
		}
	}

	if latestPromotion.ID != "" {
		a.base.Dto.LatestPromotion = latestPromotion.ID
	}

	if latestCommit.ID != "" {
		a.base.Dto.LatestCommit = latestCommit.ID
	}

	if latestCheckpoint.ID != "" {
		a.base.Dto.LatestCheckpoint = latestCheckpoint.ID
	}

	if latestSave.ID != "" {
		a.base.Dto.LatestSave = latestSave.ID
	}
}

// Handle dispatches cmd to the matching transition.
func (a *Actor) Handle(ctx context.Context, cmd any, meta command.Metadata) (any, error) {
	switch c := cmd.(type) {
	case GetCommand:
		return a.get()
	case ListReferenceIDsCommand:
		return a.listReferenceIDs(), nil
	default:
		if err := a.base.CheckCorrelation(meta.CorrelationID); err != nil {
			return nil, err
		}

		switch c := c.(type) {
		case CreateCommand:
			return a.create(ctx, c, meta)
		case SetNameCommand:
			return a.setName(ctx, c, meta)
		case RebaseCommand:
			return a.rebase(ctx, c, meta)
		case SetEnabledCommand:
			return a.setEnabled(ctx, c, meta)
		case AssignCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypeAssign, c.DirectoryVersionID, c.Sha256, "", a.assignGate, TagAssigned, c.RepositorySaveDays, meta)
		case PromoteCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypePromotion, c.DirectoryVersionID, c.Sha256, "", a.promoteGate, TagPromoted, 0, meta)
		case CommitCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypeCommit, c.DirectoryVersionID, c.Sha256, c.Text, a.commitGate, TagCommitted, 0, meta)
		case CheckpointCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypeCheckpoint, c.DirectoryVersionID, c.Sha256, "", a.checkpointGate, TagCheckpointed, c.RepositoryCheckpointDays, meta)
		case SaveCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypeSave, c.DirectoryVersionID, c.Sha256, "", a.saveGate, TagSaved, c.RepositorySaveDays, meta)
		case TagCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypeTag, c.DirectoryVersionID, c.Sha256, c.Text, a.tagGate, TagTagged, 0, meta)
		case CreateExternalCommand:
			return a.mintPointer(ctx, mmodel.ReferenceTypeExternal, c.DirectoryVersionID, c.Sha256, c.Text, a.externalGate, TagExternalCreated, 0, meta)
		case RemoveReferenceCommand:
			return a.removeReference(ctx, c, meta)
		case DeleteLogicalCommand:
			return a.deleteLogical(ctx, c, meta)
		case DeletePhysicalCommand:
			return a.deletePhysical(ctx, meta)
		case UndeleteCommand:
			return a.undelete(ctx, meta)
		default:
			return nil, errs.WrapInternal(Kind, fmt.Errorf("unrecognized command %T", c))
		}
	}
}

func (a *Actor) get() (mmodel.Branch, error) {
	if !a.base.Dto.Exists {
		return mmodel.Branch{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) listReferenceIDs() []string {
	ids := make([]string, 0, len(a.base.Dto.ReferenceIDs))
	for id := range a.base.Dto.ReferenceIDs {
		ids = append(ids, id)
	}

	return ids
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

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (mmodel.Branch, error) {
	if a.base.Dto.Exists {
		return mmodel.Branch{}, errs.Wrap(errs.ErrAlreadyExists, Kind)
	}

	if err := owner.ValidateName(c.Name); err != nil {
		return mmodel.Branch{}, err
	}

	event := createdEvent{
		ID: a.base.ActorID, RepositoryID: c.RepositoryID, ParentBranchID: c.ParentBranchID,
		Name: c.Name, BasedOn: c.BasedOn, Timestamp: time.Now().UTC(),
	}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	if a.registry != nil {
		if err := a.registry.RegisterBranch(ctx, c.RepositoryID, a.base.ActorID, meta); err != nil {
			a.base.Logger.Warnf("branch %s: register with repository %s: %v", a.base.ActorID, c.RepositoryID, err)
		}
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setName(ctx context.Context, c SetNameCommand, meta command.Metadata) (mmodel.Branch, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Branch{}, err
	}

	if err := owner.ValidateName(c.Name); err != nil {
		return mmodel.Branch{}, err
	}

	event := renamedEvent{Name: c.Name, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagRenamed, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	return a.base.Dto.toModel(), nil
}

// rebase re-points BasedOn at p (c.ReferenceID, the parent branch's
// current promotion), and mints a Rebase-type Reference carrying p's
// own directory-version-id/sha/text as the durable record of the
// rebase. BasedOn becomes p's id, not the newly minted reference's id,
// and Latest* is left untouched — Rebase is not one of the types
// reconcileLatest tracks.
func (a *Actor) rebase(ctx context.Context, c RebaseCommand, meta command.Metadata) (mmodel.Branch, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Branch{}, err
	}

	if c.ReferenceID != c.ParentLatestPromotion {
		return mmodel.Branch{}, errs.Wrap(errs.ErrNotBasedOnLatest, Kind)
	}

	if a.minter == nil {
		return mmodel.Branch{}, errs.WrapInternal(Kind, fmt.Errorf("no reference minter configured"))
	}

	parent, err := a.minter.Get(ctx, c.ReferenceID)
	if err != nil {
		return mmodel.Branch{}, err
	}

	referenceID, err := a.minter.Mint(ctx, a.base.Dto.RepositoryID, a.base.ActorID, parent.DirectoryVersionID, parent.Sha256, mmodel.ReferenceTypeRebase, parent.Text, 0, meta)
	if err != nil {
		return mmodel.Branch{}, err
	}

	mintedEvent := referenceMintedEvent{ReferenceID: referenceID, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagReferenceMinted, mintedEvent, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	event := pointerUpdateEvent{ReferenceID: c.ReferenceID, Timestamp: time.Now().UTC()}
	a.base.ApplyInMemoryOnly(TagRebased, event)

	return a.base.Dto.toModel(), nil
}

func (a *Actor) setEnabled(ctx context.Context, c SetEnabledCommand, meta command.Metadata) (mmodel.Branch, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Branch{}, err
	}

	event := enabledSetEvent{Enabled: c.Enabled, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagEnabledSet, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) assignGate() error {
	if !a.base.Dto.Enabled.Assign {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

func (a *Actor) promoteGate() error {
	if !a.base.Dto.Enabled.Promotion {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

func (a *Actor) commitGate() error {
	if !a.base.Dto.Enabled.Commit {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

func (a *Actor) checkpointGate() error {
	if !a.base.Dto.Enabled.Checkpoint {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

func (a *Actor) saveGate() error {
	if !a.base.Dto.Enabled.Save {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

func (a *Actor) tagGate() error {
	if !a.base.Dto.Enabled.Tag {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

func (a *Actor) externalGate() error {
	if !a.base.Dto.Enabled.External {
		return errs.Wrap(errs.ErrReferenceTypeDisabled, Kind)
	}

	return nil
}

// mintPointer is the shared shape of every reference-producing command:
// check the branch is active and the reference type is enabled, mint a
// Reference actor, and on success apply the pointer-update event
// in-memory only.
func (a *Actor) mintPointer(ctx context.Context, refType mmodel.ReferenceType, directoryVersionID, sha256, text string, gate func() error, tag string, retentionDays int, meta command.Metadata) (mmodel.Branch, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Branch{}, err
	}

	if err := gate(); err != nil {
		return mmodel.Branch{}, err
	}

	if a.minter == nil {
		return mmodel.Branch{}, errs.WrapInternal(Kind, fmt.Errorf("no reference minter configured"))
	}

	referenceID, err := a.minter.Mint(ctx, a.base.Dto.RepositoryID, a.base.ActorID, directoryVersionID, sha256, refType, text, retentionDays, meta)
	if err != nil {
		return mmodel.Branch{}, err
	}

	mintedEvent := referenceMintedEvent{ReferenceID: referenceID, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagReferenceMinted, mintedEvent, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	pointerEvent := pointerUpdateEvent{ReferenceID: referenceID, Timestamp: time.Now().UTC()}
	a.base.ApplyInMemoryOnly(tag, pointerEvent)

	return a.base.Dto.toModel(), nil
}

func (a *Actor) removeReference(ctx context.Context, c RemoveReferenceCommand, meta command.Metadata) (mmodel.Branch, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Branch{}, err
	}

	if _, ok := a.base.Dto.ReferenceIDs[c.ReferenceID]; !ok {
		return mmodel.Branch{}, errs.Wrap(errs.ErrEntityNotFound, "Reference")
	}

	event := referenceRemovedEvent{ReferenceID: c.ReferenceID, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagReferenceRemoved, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deleteLogical(ctx context.Context, c DeleteLogicalCommand, meta command.Metadata) (mmodel.Branch, error) {
	if err := a.requireActive(); err != nil {
		return mmodel.Branch{}, err
	}

	referenceIDs := a.listReferenceIDs()

	event := deletedLogicallyEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagDeletedLogically, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	days := c.LogicalDeleteDays
	if days < 0 {
		days = 0
	}

	payload, err := deletion.EncodeReminderPayload(timers.ReminderPayload{
		Version:       timers.CurrentReminderPayloadVersion,
		ParentIDs:     map[string]string{"repositoryId": a.base.Dto.RepositoryID},
		DeleteReason:  c.Reason,
		CorrelationID: meta.CorrelationID,
	})
	if err != nil {
		return mmodel.Branch{}, errs.WrapInternal(Kind, err)
	}

	if err := a.timers.RegisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder, payload,
		time.Duration(days)*24*time.Hour, 0); err != nil {
		return mmodel.Branch{}, errs.WrapDependency(Kind, err)
	}

	if c.Force && a.minter != nil {
		deletion.CascadePhysical(ctx, childrenOf(referenceIDs), func(ctx context.Context, child deletion.Child) error {
			return a.minter.DeletePhysical(ctx, child.ID, meta)
		})
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) deletePhysical(ctx context.Context, meta command.Metadata) (mmodel.Branch, error) {
	if !a.base.Dto.Exists {
		return mmodel.Branch{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	result := a.base.Dto.toModel()
	referenceIDs := a.listReferenceIDs()

	if err := a.base.WipeDurableState(ctx); err != nil {
		return mmodel.Branch{}, err
	}

	if a.minter != nil {
		_ = deletion.CascadePhysical(ctx, childrenOf(referenceIDs), func(ctx context.Context, child deletion.Child) error {
			return a.minter.DeletePhysical(ctx, child.ID, meta)
		})
	}

	return result, nil
}

func childrenOf(referenceIDs []string) []deletion.Child {
	children := make([]deletion.Child, 0, len(referenceIDs))
	for _, id := range referenceIDs {
		children = append(children, deletion.Child{Kind: "Reference", ID: id})
	}

	return children
}

func (a *Actor) undelete(ctx context.Context, meta command.Metadata) (mmodel.Branch, error) {
	if !a.base.Dto.Exists {
		return mmodel.Branch{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	if a.base.Dto.DeletedAt == nil {
		return mmodel.Branch{}, errs.Wrap(errs.ErrNotDeleted, Kind)
	}

	event := undeletedEvent{Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagUndeleted, event, meta.ToEventMetadata()); err != nil {
		return mmodel.Branch{}, err
	}

	if err := a.timers.UnregisterReminder(ctx, Kind, a.base.ActorID, timers.PhysicalDeletionReminder); err != nil {
		a.base.Logger.Warnf("branch %s: unregister physical-deletion reminder after undelete: %v", a.base.ActorID, err)
	}

	return a.base.Dto.toModel(), nil
}

// ReceiveReminder implements actorhost.Reminderable.
func (a *Actor) ReceiveReminder(ctx context.Context, name string, payload []byte, _ time.Time, _ time.Duration) error {
	if name != timers.PhysicalDeletionReminder {
		return fmt.Errorf("branch: unknown reminder %q", name)
	}

	if _, err := deletion.DecodeReminderPayload(payload); err != nil {
		return errs.WrapInternal(Kind, err)
	}

	_, err := a.deletePhysical(ctx, command.Metadata{})

	return err
}
