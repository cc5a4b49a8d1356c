package actorbase_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/entities/actorbase"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/platform/eventbus"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
)

type counterDto struct {
	Value int
}

type incrementedEvent struct {
	By int `json:"by"`
}

const tagIncremented = "Incremented"

func decode(tag string, raw json.RawMessage) (any, error) {
	var e incrementedEvent
	return e, json.Unmarshal(raw, &e)
}

func fold(d counterDto, tag string, event any) counterDto {
	e := event.(incrementedEvent) //nolint:forcetypeassert
	d.Value += e.By

	return d
}

func newBase(t *testing.T, store *storememory.Store, bus eventbus.Bus) *actorbase.Base[counterDto] {
	t.Helper()

	return actorbase.New[counterDto]("Counter", "c1", store, bus, mlog.NoneLogger{}, decode, fold)
}

func TestApplyFoldsAndPersists(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	base := newBase(t, store, bus)

	require.NoError(t, base.Activate(context.Background()))
	require.Equal(t, 0, base.Dto.Value)

	require.NoError(t, base.Apply(context.Background(), "topic", tagIncremented, incrementedEvent{By: 3}, eventbus.Metadata{CorrelationID: "corr-1"}))
	require.Equal(t, 3, base.Dto.Value)
	require.Equal(t, 1, base.EventCount())

	replay := newBase(t, store, bus)
	require.NoError(t, replay.Activate(context.Background()))
	require.Equal(t, 3, replay.Dto.Value)
	require.Equal(t, 1, replay.EventCount())
}

func TestCheckCorrelationRejectsDuplicateAndEmpty(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	base := newBase(t, store, bus)

	require.NoError(t, base.Activate(context.Background()))

	require.Error(t, base.CheckCorrelation(""))

	require.NoError(t, base.CheckCorrelation("corr-1"))
	require.NoError(t, base.Apply(context.Background(), "topic", tagIncremented, incrementedEvent{By: 1}, eventbus.Metadata{CorrelationID: "corr-1"}))

	err := base.CheckCorrelation("corr-1")
	require.Error(t, err)

	var conflict errs.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestApplyInMemoryOnlyDoesNotPersist(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	base := newBase(t, store, bus)

	require.NoError(t, base.Activate(context.Background()))
	base.ApplyInMemoryOnly(tagIncremented, incrementedEvent{By: 5})
	require.Equal(t, 5, base.Dto.Value)
	require.Equal(t, 0, base.EventCount())

	replay := newBase(t, store, bus)
	require.NoError(t, replay.Activate(context.Background()))
	require.Equal(t, 0, replay.Dto.Value)
}

func TestWipeDurableStateResetsAndDeletes(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	base := newBase(t, store, bus)

	require.NoError(t, base.Activate(context.Background()))
	require.NoError(t, base.Apply(context.Background(), "topic", tagIncremented, incrementedEvent{By: 9}, eventbus.Metadata{CorrelationID: "corr-1"}))

	require.NoError(t, base.WipeDurableState(context.Background()))
	require.Equal(t, 0, base.Dto.Value)
	require.Equal(t, 0, base.EventCount())

	replay := newBase(t, store, bus)
	require.NoError(t, replay.Activate(context.Background()))
	require.Equal(t, 0, replay.Dto.Value)
}
