package reference_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/reference"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
)

type fakeTimers struct {
	registered map[string]bool
}

func (f *fakeTimers) RegisterReminder(_ context.Context, kind, id, name string, _ []byte, _, _ time.Duration) error {
	if f.registered == nil {
		f.registered = map[string]bool{}
	}

	f.registered[kind+"/"+id+"/"+name] = true

	return nil
}

func (f *fakeTimers) UnregisterReminder(_ context.Context, kind, id, name string) error {
	if f.registered != nil {
		delete(f.registered, kind+"/"+id+"/"+name)
	}

	return nil
}

func (f *fakeTimers) Recover(context.Context) error { return nil }

func TestReferenceCreateWithRetentionSchedulesReminder(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	ft := &fakeTimers{}
	a := reference.New("ref-1", store, bus, mlog.NoneLogger{}, ft)
	require.NoError(t, a.Activate(context.Background()))

	ctx := context.Background()
	_, err := a.Handle(ctx, reference.CreateCommand{
		RepositoryID: "repo-1", BranchID: "branch-1", DirectoryVersionID: "dv-1",
		Sha256: "abc", Type: mmodel.ReferenceTypeSave, RetentionDays: 7,
	}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	require.True(t, ft.registered["Reference/ref-1/PhysicalDeletion"])
}

func TestReferenceCreateWithoutRetentionSkipsReminder(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	ft := &fakeTimers{}
	a := reference.New("ref-1", store, bus, mlog.NoneLogger{}, ft)
	require.NoError(t, a.Activate(context.Background()))

	ctx := context.Background()
	_, err := a.Handle(ctx, reference.CreateCommand{
		RepositoryID: "repo-1", BranchID: "branch-1", DirectoryVersionID: "dv-1",
		Sha256: "abc", Type: mmodel.ReferenceTypeCommit,
	}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	require.False(t, ft.registered["Reference/ref-1/PhysicalDeletion"])
}

func TestReferenceTypeIsImmutableAcrossReplay(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	ft := &fakeTimers{}
	a := reference.New("ref-1", store, bus, mlog.NoneLogger{}, ft)
	require.NoError(t, a.Activate(context.Background()))

	ctx := context.Background()
	_, err := a.Handle(ctx, reference.CreateCommand{
		RepositoryID: "repo-1", BranchID: "branch-1", DirectoryVersionID: "dv-1",
		Sha256: "abc", Type: mmodel.ReferenceTypeTag, Text: "v1",
	}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	replay := reference.New("ref-1", store, bus, mlog.NoneLogger{}, ft)
	require.NoError(t, replay.Activate(ctx))

	got, err := replay.Handle(ctx, reference.GetCommand{}, command.Metadata{})
	require.NoError(t, err)
	require.Equal(t, mmodel.ReferenceTypeTag, got.(mmodel.Reference).Type)
}
