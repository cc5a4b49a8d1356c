package organization_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/organization"
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

func TestOrganizationGetOwnerID(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	a := organization.New("org-1", store, bus, mlog.NoneLogger{}, fakeTimers{})
	require.NoError(t, a.Activate(context.Background()))

	ctx := context.Background()
	_, err := a.Handle(ctx, organization.CreateCommand{OwnerID: "owner-1", Name: "acme", Type: mmodel.OwnerTypeOrg}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	got, err := a.Handle(ctx, organization.GetOwnerIDCommand{}, command.Metadata{})
	require.NoError(t, err)
	require.Equal(t, "owner-1", got.(string))
}

func TestOrganizationGetOwnerIDBeforeCreateFails(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	a := organization.New("org-1", store, bus, mlog.NoneLogger{}, fakeTimers{})
	require.NoError(t, a.Activate(context.Background()))

	_, err := a.Handle(context.Background(), organization.GetOwnerIDCommand{}, command.Metadata{})
	require.Error(t, err)
}
