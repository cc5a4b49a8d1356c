package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/repository"
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

func newRepository(t *testing.T, cascade func(ctx context.Context, branchIDs []string) error) *repository.Actor {
	t.Helper()

	store := storememory.New()
	bus := busmemory.New()
	a := repository.New("repo-1", store, bus, mlog.NoneLogger{}, fakeTimers{}, cascade)
	require.NoError(t, a.Activate(context.Background()))

	return a
}

func TestRepositoryCreateAppliesDefaultRetention(t *testing.T) {
	a := newRepository(t, nil)
	ctx := context.Background()

	got, err := a.Handle(ctx, repository.CreateCommand{OwnerID: "o1", OrganizationID: "org1", Name: "widgets"}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	repo := got.(mmodel.Repository)
	require.Equal(t, repository.DefaultRetention, repo.Retention)
	require.Equal(t, mmodel.RepositoryStatusActive, repo.Status)
}

func TestRepositoryDeleteLogicalRejectsNonEmptyWithoutForce(t *testing.T) {
	a := newRepository(t, nil)
	ctx := context.Background()

	_, err := a.Handle(ctx, repository.CreateCommand{OwnerID: "o1", OrganizationID: "org1", Name: "widgets"}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, repository.RegisterBranchCommand{BranchID: "b1"}, command.Metadata{CorrelationID: "corr-2"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, repository.DeleteLogicalCommand{Reason: "cleanup"}, command.Metadata{CorrelationID: "corr-3"})
	require.Error(t, err)

	var preconditionFailed errs.PreconditionFailedError
	require.ErrorAs(t, err, &preconditionFailed)
}

func TestRepositoryDeleteLogicalForceCascadesToBranches(t *testing.T) {
	var cascaded []string
	cascade := func(_ context.Context, branchIDs []string) error {
		cascaded = append(cascaded, branchIDs...)
		return nil
	}

	a := newRepository(t, cascade)
	ctx := context.Background()

	_, err := a.Handle(ctx, repository.CreateCommand{OwnerID: "o1", OrganizationID: "org1", Name: "widgets"}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, repository.RegisterBranchCommand{BranchID: "b1"}, command.Metadata{CorrelationID: "corr-2"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, repository.DeleteLogicalCommand{Reason: "cleanup", Force: true}, command.Metadata{CorrelationID: "corr-3"})
	require.NoError(t, err)
	require.Equal(t, []string{"b1"}, cascaded)
}

func TestRepositorySetSaveDaysRejectsNegative(t *testing.T) {
	a := newRepository(t, nil)
	ctx := context.Background()

	_, err := a.Handle(ctx, repository.CreateCommand{OwnerID: "o1", OrganizationID: "org1", Name: "widgets"}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, repository.SetSaveDaysCommand{Days: -1}, command.Metadata{CorrelationID: "corr-2"})
	require.Error(t, err)
}
