package owner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/owner"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
)

type fakeTimers struct {
	registered   map[string]bool
	unregistered map[string]bool
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{registered: map[string]bool{}, unregistered: map[string]bool{}}
}

func (f *fakeTimers) key(kind, id, name string) string { return kind + "/" + id + "/" + name }

func (f *fakeTimers) RegisterReminder(_ context.Context, kind, id, name string, _ []byte, _, _ time.Duration) error {
	f.registered[f.key(kind, id, name)] = true
	return nil
}

func (f *fakeTimers) UnregisterReminder(_ context.Context, kind, id, name string) error {
	f.unregistered[f.key(kind, id, name)] = true
	delete(f.registered, f.key(kind, id, name))
	return nil
}

func (f *fakeTimers) Recover(_ context.Context) error { return nil }

func newOwner(t *testing.T) (*owner.Actor, *fakeTimers) {
	t.Helper()

	store := storememory.New()
	bus := busmemory.New()
	ft := newFakeTimers()
	a := owner.New("owner-1", store, bus, mlog.NoneLogger{}, ft)
	require.NoError(t, a.Activate(context.Background()))

	return a, ft
}

func TestOwnerCreateThenGet(t *testing.T) {
	a, _ := newOwner(t)
	ctx := context.Background()
	meta := command.Metadata{CorrelationID: "corr-1"}

	_, err := a.Handle(ctx, owner.CreateCommand{Name: "acme", Type: mmodel.OwnerTypeUser}, meta)
	require.NoError(t, err)

	got, err := a.Handle(ctx, owner.GetCommand{}, command.Metadata{})
	require.NoError(t, err)
	require.Equal(t, "acme", got.(mmodel.Owner).Name)
}

func TestOwnerRejectsDuplicateCorrelationID(t *testing.T) {
	a, _ := newOwner(t)
	ctx := context.Background()
	meta := command.Metadata{CorrelationID: "corr-1"}

	_, err := a.Handle(ctx, owner.CreateCommand{Name: "acme", Type: mmodel.OwnerTypeUser}, meta)
	require.NoError(t, err)

	_, err = a.Handle(ctx, owner.SetDescriptionCommand{Description: "x"}, meta)
	require.Error(t, err)

	var conflict errs.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestOwnerRejectsInvalidName(t *testing.T) {
	a, _ := newOwner(t)
	ctx := context.Background()

	_, err := a.Handle(ctx, owner.CreateCommand{Name: "1-bad", Type: mmodel.OwnerTypeUser}, command.Metadata{CorrelationID: "corr-1"})
	require.Error(t, err)

	var validation errs.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestOwnerDeleteLogicalThenUndelete(t *testing.T) {
	a, ft := newOwner(t)
	ctx := context.Background()

	_, err := a.Handle(ctx, owner.CreateCommand{Name: "acme", Type: mmodel.OwnerTypeUser}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, owner.DeleteLogicalCommand{Reason: "r", LogicalDeleteDays: 30}, command.Metadata{CorrelationID: "corr-2"})
	require.NoError(t, err)
	require.True(t, ft.registered["Owner/owner-1/PhysicalDeletion"])

	_, err = a.Handle(ctx, owner.UndeleteCommand{}, command.Metadata{CorrelationID: "corr-3"})
	require.NoError(t, err)
	require.True(t, ft.unregistered["Owner/owner-1/PhysicalDeletion"])

	got, err := a.Handle(ctx, owner.GetCommand{}, command.Metadata{})
	require.NoError(t, err)
	require.Nil(t, got.(mmodel.Owner).DeletedAt)
}

func TestOwnerDeletePhysicalWipesState(t *testing.T) {
	a, _ := newOwner(t)
	ctx := context.Background()

	_, err := a.Handle(ctx, owner.CreateCommand{Name: "acme", Type: mmodel.OwnerTypeUser}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, owner.DeletePhysicalCommand{}, command.Metadata{CorrelationID: "corr-2"})
	require.NoError(t, err)

	_, err = a.Handle(ctx, owner.GetCommand{}, command.Metadata{})
	require.Error(t, err)

	var notFound errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
