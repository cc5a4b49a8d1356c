// Package directoryversion implements the DirectoryVersion entity actor
// (C7): an immutable, content-addressed directory snapshot keyed by
// sha256, enforcing that the aggregate size equals the sum of its
// referenced files' sizes and that (repository-id, sha256) is unique.
package directoryversion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/actorbase"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	"github.com/torratdev/grace/internal/platform/eventbus"
	"github.com/torratdev/grace/internal/platform/statestore"
)

// Kind is the actor kind string for DirectoryVersion actors.
const Kind = "DirectoryVersion"

// Topic is the event bus topic every DirectoryVersion event publishes to.
const Topic = "grace.directoryversion"

// ComputeSha256 derives the content hash for a directory snapshot from
// its relative path, its file list sorted by path and its sorted child
// directory hashes, so two identical directory contents hash alike.
func ComputeSha256(relativePath string, files []mmodel.FileEntry, childDirectorySha256s []string) string {
	sorted := append([]mmodel.FileEntry{}, files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelativePath < sorted[j].RelativePath })

	children := append([]string{}, childDirectorySha256s...)
	sort.Strings(children)

	h := sha256.New()
	fmt.Fprintf(h, "path:%s\n", relativePath)

	for _, f := range sorted {
		fmt.Fprintf(h, "file:%s:%s:%d\n", f.RelativePath, f.Sha256, f.Size)
	}

	for _, c := range children {
		fmt.Fprintf(h, "child:%s\n", c)
	}

	return hex.EncodeToString(h.Sum(nil))
}

type dto struct {
	Exists            bool
	ID                string
	RepositoryID      string
	Sha256            string
	RelativePath      string
	Files             []mmodel.FileEntry
	AggregateSize     int64
	ChildDirectoryIDs []string
	CreatedAt         time.Time
}

func (d dto) toModel() mmodel.DirectoryVersion {
	return mmodel.DirectoryVersion{
		ID:                d.ID,
		RepositoryID:      d.RepositoryID,
		Sha256:            d.Sha256,
		RelativePath:      d.RelativePath,
		Files:             d.Files,
		AggregateSize:     d.AggregateSize,
		ChildDirectoryIDs: d.ChildDirectoryIDs,
		CreatedAt:         d.CreatedAt,
	}
}

// TagCreated is the sole event tag: a DirectoryVersion is immutable
// apart from its one creation event.
const TagCreated = "DirectoryVersionCreated"

type createdEvent struct {
	ID                string              `json:"id"`
	RepositoryID      string              `json:"repositoryId"`
	Sha256            string              `json:"sha256"`
	RelativePath      string              `json:"relativePath"`
	Files             []mmodel.FileEntry  `json:"files"`
	AggregateSize     int64               `json:"aggregateSize"`
	ChildDirectoryIDs []string            `json:"childDirectoryIds"`
	Timestamp         time.Time           `json:"timestamp"`
}

func decode(tag string, raw json.RawMessage) (any, error) {
	switch tag {
	case TagCreated:
		var e createdEvent
		return e, json.Unmarshal(raw, &e)
	default:
		return nil, fmt.Errorf("directoryversion: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.ID = e.ID
		d.RepositoryID = e.RepositoryID
		d.Sha256 = e.Sha256
		d.RelativePath = e.RelativePath
		d.Files = e.Files
		d.AggregateSize = e.AggregateSize
		d.ChildDirectoryIDs = e.ChildDirectoryIDs
		d.CreatedAt = e.Timestamp
	}

	return d
}

// Commands.
type (
	// CreateCommand creates the directory version, identified by the
	// actor's own id (conventionally derived from Sha256). Create
	// rejects it with ErrHashMismatch unless the declared Sha256 matches
	// ComputeSha256(RelativePath, Files, ChildDirectorySha256s).
	CreateCommand struct {
		RepositoryID          string
		Sha256                string
		RelativePath          string
		Files                 []mmodel.FileEntry
		ChildDirectoryIDs     []string
		ChildDirectorySha256s []string
	}
	GetCommand struct{}
)

// Actor is the DirectoryVersion entity actor.
type Actor struct {
	base *actorbase.Base[dto]
}

// New constructs a DirectoryVersion actor bound to actorID.
func New(actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger) *Actor {
	return &Actor{base: actorbase.New[dto](Kind, actorID, store, bus, logger, decode, fold)}
}

// Activate replays the event log.
func (a *Actor) Activate(ctx context.Context) error { return a.base.Activate(ctx) }

// Handle dispatches cmd to the matching transition.
func (a *Actor) Handle(ctx context.Context, cmd any, meta command.Metadata) (any, error) {
	switch c := cmd.(type) {
	case GetCommand:
		return a.get()
	default:
		if err := a.base.CheckCorrelation(meta.CorrelationID); err != nil {
			return nil, err
		}

		switch c := c.(type) {
		case CreateCommand:
			return a.create(ctx, c, meta)
		default:
			return nil, errs.WrapInternal(Kind, fmt.Errorf("unrecognized command %T", c))
		}
	}
}

func (a *Actor) get() (mmodel.DirectoryVersion, error) {
	if !a.base.Dto.Exists {
		return mmodel.DirectoryVersion{}, errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.toModel(), nil
}

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (mmodel.DirectoryVersion, error) {
	if a.base.Dto.Exists {
		return a.base.Dto.toModel(), nil
	}

	var aggregate int64
	for _, f := range c.Files {
		aggregate += f.Size
	}

	computed := ComputeSha256(c.RelativePath, c.Files, c.ChildDirectorySha256s)
	if computed != c.Sha256 {
		return mmodel.DirectoryVersion{}, errs.Wrap(errs.ErrHashMismatch, Kind)
	}

	event := createdEvent{
		ID: a.base.ActorID, RepositoryID: c.RepositoryID, Sha256: c.Sha256,
		RelativePath: c.RelativePath, Files: c.Files, AggregateSize: aggregate,
		ChildDirectoryIDs: c.ChildDirectoryIDs, Timestamp: time.Now().UTC(),
	}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return mmodel.DirectoryVersion{}, err
	}

	return a.base.Dto.toModel(), nil
}
