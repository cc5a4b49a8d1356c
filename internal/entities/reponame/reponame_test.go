package reponame_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/reponame"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
)

func TestReponameKeyIsStableAndDistinct(t *testing.T) {
	require.Equal(t, "widgets|o1|org1", reponame.Key("widgets", "o1", "org1"))
	require.NotEqual(t, reponame.Key("widgets", "o1", "org1"), reponame.Key("widgets", "o2", "org1"))
}

func TestReponameCreateThenSetRepositoryID(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	key := reponame.Key("widgets", "o1", "org1")
	a := reponame.New(key, store, bus, mlog.NoneLogger{})
	require.NoError(t, a.Activate(context.Background()))

	ctx := context.Background()

	got, err := a.Handle(ctx, reponame.CreateCommand{RepositoryID: "repo-1"}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)
	require.Equal(t, "repo-1", got.(string))

	_, err = a.Handle(ctx, reponame.CreateCommand{RepositoryID: "repo-2"}, command.Metadata{CorrelationID: "corr-2"})
	require.Error(t, err)

	var conflict errs.ConflictError
	require.ErrorAs(t, err, &conflict)

	got, err = a.Handle(ctx, reponame.SetRepositoryIDCommand{RepositoryID: "repo-3"}, command.Metadata{CorrelationID: "corr-3"})
	require.NoError(t, err)
	require.Equal(t, "repo-3", got.(string))

	got, err = a.Handle(ctx, reponame.GetRepositoryIDCommand{}, command.Metadata{})
	require.NoError(t, err)
	require.Equal(t, "repo-3", got.(string))
}
