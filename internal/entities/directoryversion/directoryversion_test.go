package directoryversion_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/directoryversion"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
)

func TestComputeSha256IsOrderIndependent(t *testing.T) {
	files := []mmodel.FileEntry{
		{RelativePath: "b.txt", Sha256: "bb", Size: 2},
		{RelativePath: "a.txt", Sha256: "aa", Size: 1},
	}
	reordered := []mmodel.FileEntry{files[1], files[0]}

	require.Equal(t, directoryversion.ComputeSha256("/dir", files, nil), directoryversion.ComputeSha256("/dir", reordered, nil))
}

func TestDirectoryVersionCreateRejectsHashMismatch(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	a := directoryversion.New("dv-1", store, bus, mlog.NoneLogger{})
	require.NoError(t, a.Activate(context.Background()))

	files := []mmodel.FileEntry{{RelativePath: "a.txt", Sha256: "aa", Size: 1}}

	_, err := a.Handle(context.Background(), directoryversion.CreateCommand{
		RepositoryID: "repo-1", Sha256: "not-the-real-hash", RelativePath: "/dir", Files: files,
	}, command.Metadata{CorrelationID: "corr-1"})
	require.Error(t, err)

	var integrity errs.IntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestDirectoryVersionCreateIsIdempotentOnExistingID(t *testing.T) {
	store := storememory.New()
	bus := busmemory.New()
	a := directoryversion.New("dv-1", store, bus, mlog.NoneLogger{})
	require.NoError(t, a.Activate(context.Background()))

	files := []mmodel.FileEntry{{RelativePath: "a.txt", Sha256: "aa", Size: 1}}
	hash := directoryversion.ComputeSha256("/dir", files, nil)

	ctx := context.Background()
	first, err := a.Handle(ctx, directoryversion.CreateCommand{
		RepositoryID: "repo-1", Sha256: hash, RelativePath: "/dir", Files: files,
	}, command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)

	second, err := a.Handle(ctx, directoryversion.CreateCommand{
		RepositoryID: "repo-1", Sha256: hash, RelativePath: "/dir", Files: files,
	}, command.Metadata{CorrelationID: "corr-2"})
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int64(1), first.(mmodel.DirectoryVersion).AggregateSize)
}
