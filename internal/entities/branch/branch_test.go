package branch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/branch"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
)

type fakeTimers struct{}

func (fakeTimers) RegisterReminder(context.Context, string, string, string, []byte, time.Duration, time.Duration) error {
	return nil
}
func (fakeTimers) UnregisterReminder(context.Context, string, string, string) error { return nil }
func (fakeTimers) Recover(context.Context) error                                    { return nil }

type fakeMinter struct {
	nextID      int
	refs        map[string]mmodel.Reference
	deleted     []string
	deleteFails bool
}

func (m *fakeMinter) Mint(_ context.Context, repositoryID, branchID, directoryVersionID, sha256 string, refType mmodel.ReferenceType, text string, _ int, _ command.Metadata) (string, error) {
	m.nextID++
	id := fmt.Sprintf("ref-%d", m.nextID)

	if m.refs == nil {
		m.refs = map[string]mmodel.Reference{}
	}

	m.refs[id] = mmodel.Reference{
		ID:                 id,
		RepositoryID:       repositoryID,
		BranchID:           branchID,
		DirectoryVersionID: directoryVersionID,
		Sha256:             sha256,
		Type:               refType,
		Text:               text,
		CreatedAt:          time.Unix(int64(m.nextID), 0).UTC(),
	}

	return id, nil
}

func (m *fakeMinter) DeleteLogical(context.Context, string, string, int, command.Metadata) error {
	return nil
}

func (m *fakeMinter) DeletePhysical(_ context.Context, referenceID string, _ command.Metadata) error {
	if m.deleteFails {
		return fmt.Errorf("boom")
	}

	m.deleted = append(m.deleted, referenceID)

	return nil
}

func (m *fakeMinter) Get(_ context.Context, referenceID string) (mmodel.Reference, error) {
	ref, ok := m.refs[referenceID]
	if !ok {
		return mmodel.Reference{}, errs.Wrap(errs.ErrEntityNotFound, "Reference")
	}

	return ref, nil
}

type fakeRegistrar struct {
	registered map[string]string
}

func (r *fakeRegistrar) RegisterBranch(_ context.Context, repositoryID, branchID string, _ command.Metadata) error {
	if r.registered == nil {
		r.registered = map[string]string{}
	}

	r.registered[branchID] = repositoryID

	return nil
}

func newBranch(t *testing.T, minter *fakeMinter, registrar *fakeRegistrar) *branch.Actor {
	t.Helper()

	store := storememory.New()
	bus := busmemory.New()

	var m branch.ReferenceMinter
	if minter != nil {
		m = minter
	}

	var r branch.RepositoryRegistrar
	if registrar != nil {
		r = registrar
	}

	a := branch.New("branch-1", store, bus, mlog.NoneLogger{}, fakeTimers{}, m, r)
	require.NoError(t, a.Activate(context.Background()))

	return a
}

func create(t *testing.T, a *branch.Actor) {
	t.Helper()

	_, err := a.Handle(context.Background(), branch.CreateCommand{RepositoryID: "repo-1", Name: "main"}, command.Metadata{CorrelationID: "corr-create"})
	require.NoError(t, err)
}

func TestBranchCreateRegistersWithRepository(t *testing.T) {
	registrar := &fakeRegistrar{}
	a := newBranch(t, &fakeMinter{}, registrar)

	create(t, a)

	require.Equal(t, "repo-1", registrar.registered["branch-1"])
}

func TestBranchCommitRejectedWhenDisabled(t *testing.T) {
	a := newBranch(t, &fakeMinter{}, nil)
	create(t, a)

	_, err := a.Handle(context.Background(), branch.CommitCommand{DirectoryVersionID: "dv1", Sha256: "abc"}, command.Metadata{CorrelationID: "corr-1"})
	require.Error(t, err)

	var precondition errs.PreconditionFailedError
	require.ErrorAs(t, err, &precondition)
}

func TestBranchCommitMintsReferenceAndUpdatesLatest(t *testing.T) {
	minter := &fakeMinter{}
	a := newBranch(t, minter, nil)
	create(t, a)

	_, err := a.Handle(context.Background(), branch.SetEnabledCommand{Enabled: mmodel.ReferenceTypeFlags{Commit: true}}, command.Metadata{CorrelationID: "corr-enable"})
	require.NoError(t, err)

	got, err := a.Handle(context.Background(), branch.CommitCommand{DirectoryVersionID: "dv1", Sha256: "abc", Text: "msg"}, command.Metadata{CorrelationID: "corr-commit"})
	require.NoError(t, err)
	require.Equal(t, "ref-1", got.(mmodel.Branch).LatestCommit)
}

func TestBranchRebaseRequiresMatchingParentLatestPromotion(t *testing.T) {
	minter := &fakeMinter{}
	a := newBranch(t, minter, nil)
	create(t, a)

	_, err := a.Handle(context.Background(), branch.SetEnabledCommand{Enabled: mmodel.ReferenceTypeFlags{Promotion: true}}, command.Metadata{CorrelationID: "corr-enable"})
	require.NoError(t, err)

	got, err := a.Handle(context.Background(), branch.PromoteCommand{DirectoryVersionID: "dv1", Sha256: "abc"}, command.Metadata{CorrelationID: "corr-promote"})
	require.NoError(t, err)
	promotionID := got.(mmodel.Branch).LatestPromotion
	require.NotEmpty(t, promotionID)

	_, err = a.Handle(context.Background(), branch.RebaseCommand{ReferenceID: "ref-mismatch", ParentLatestPromotion: promotionID}, command.Metadata{CorrelationID: "corr-1"})
	require.Error(t, err)

	var precondition errs.PreconditionFailedError
	require.ErrorAs(t, err, &precondition)

	got, err = a.Handle(context.Background(), branch.RebaseCommand{ReferenceID: promotionID, ParentLatestPromotion: promotionID}, command.Metadata{CorrelationID: "corr-2"})
	require.NoError(t, err)
	require.Equal(t, promotionID, got.(mmodel.Branch).BasedOn)
}

func TestBranchRebaseMintsRebaseReferenceCopyingParentFields(t *testing.T) {
	minter := &fakeMinter{}
	a := newBranch(t, minter, nil)
	create(t, a)

	_, err := a.Handle(context.Background(), branch.SetEnabledCommand{Enabled: mmodel.ReferenceTypeFlags{Promotion: true}}, command.Metadata{CorrelationID: "corr-enable"})
	require.NoError(t, err)

	got, err := a.Handle(context.Background(), branch.PromoteCommand{DirectoryVersionID: "dv1", Sha256: "abc"}, command.Metadata{CorrelationID: "corr-promote"})
	require.NoError(t, err)
	promotionID := got.(mmodel.Branch).LatestPromotion

	got, err = a.Handle(context.Background(), branch.RebaseCommand{ReferenceID: promotionID, ParentLatestPromotion: promotionID}, command.Metadata{CorrelationID: "corr-rebase"})
	require.NoError(t, err)
	require.Equal(t, promotionID, got.(mmodel.Branch).BasedOn)
	require.Equal(t, promotionID, got.(mmodel.Branch).LatestPromotion, "Rebase must leave Latest* untouched")

	var rebased mmodel.Reference

	found := false

	for _, ref := range minter.refs {
		if ref.Type == mmodel.ReferenceTypeRebase {
			rebased = ref
			found = true
		}
	}

	require.True(t, found, "Rebase must mint a Reference of type Rebase")
	require.Equal(t, "dv1", rebased.DirectoryVersionID)
	require.Equal(t, "abc", rebased.Sha256)
}

func TestBranchActivateReconcilesLatestAfterReactivation(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	minter := &fakeMinter{}

	a := branch.New("branch-1", store, bus, mlog.NoneLogger{}, fakeTimers{}, minter, nil)
	require.NoError(t, a.Activate(context.Background()))
	create(t, a)

	_, err := a.Handle(context.Background(), branch.SetEnabledCommand{Enabled: mmodel.ReferenceTypeFlags{Save: true}}, command.Metadata{CorrelationID: "corr-enable"})
	require.NoError(t, err)

	got, err := a.Handle(context.Background(), branch.SaveCommand{DirectoryVersionID: "dv1", Sha256: "abc"}, command.Metadata{CorrelationID: "corr-save"})
	require.NoError(t, err)
	savedID := got.(mmodel.Branch).LatestSave
	require.NotEmpty(t, savedID)

	// A fresh Actor against the same store only has the persisted event
	// log to fold from; TagSaved was never persisted, so LatestSave
	// would silently revert to "" here without Activate's reconciliation.
	replay := branch.New("branch-1", store, bus, mlog.NoneLogger{}, fakeTimers{}, minter, nil)
	require.NoError(t, replay.Activate(context.Background()))

	got, err = replay.Handle(context.Background(), branch.GetCommand{}, command.Metadata{})
	require.NoError(t, err)
	require.Equal(t, savedID, got.(mmodel.Branch).LatestSave)
}

func TestBranchRemoveReferencePrunesLatestSlot(t *testing.T) {
	minter := &fakeMinter{}
	a := newBranch(t, minter, nil)
	create(t, a)

	_, err := a.Handle(context.Background(), branch.SetEnabledCommand{Enabled: mmodel.ReferenceTypeFlags{Save: true}}, command.Metadata{CorrelationID: "corr-enable"})
	require.NoError(t, err)

	got, err := a.Handle(context.Background(), branch.SaveCommand{DirectoryVersionID: "dv1", Sha256: "abc"}, command.Metadata{CorrelationID: "corr-save"})
	require.NoError(t, err)
	savedID := got.(mmodel.Branch).LatestSave
	require.NotEmpty(t, savedID)

	got, err = a.Handle(context.Background(), branch.RemoveReferenceCommand{ReferenceID: savedID}, command.Metadata{CorrelationID: "corr-remove"})
	require.NoError(t, err)
	require.Empty(t, got.(mmodel.Branch).LatestSave)
}

func TestBranchDeletePhysicalCascadesToMintedReferences(t *testing.T) {
	minter := &fakeMinter{}
	a := newBranch(t, minter, nil)
	create(t, a)

	_, err := a.Handle(context.Background(), branch.SetEnabledCommand{Enabled: mmodel.ReferenceTypeFlags{Save: true}}, command.Metadata{CorrelationID: "corr-enable"})
	require.NoError(t, err)

	_, err = a.Handle(context.Background(), branch.SaveCommand{DirectoryVersionID: "dv1", Sha256: "abc"}, command.Metadata{CorrelationID: "corr-save"})
	require.NoError(t, err)

	_, err = a.Handle(context.Background(), branch.DeletePhysicalCommand{}, command.Metadata{CorrelationID: "corr-delete"})
	require.NoError(t, err)
	require.Equal(t, []string{"ref-1"}, minter.deleted)

	_, err = a.Handle(context.Background(), branch.GetCommand{}, command.Metadata{})
	require.Error(t, err)
}
