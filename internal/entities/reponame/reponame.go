// Package reponame implements the RepositoryName index actor (C7): a
// tiny actor keyed by "{repo-name}|{owner-id}|{organization-id}" that
// maps a repository's name to its current id, letting Rename re-key
// the index without the Name Resolver ever scanning repositories by
// name directly. Concurrent commands to one slot are serialized by the
// actor mailbox; no distributed lock is taken.
package reponame

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/entities/actorbase"
	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/platform/eventbus"
	"github.com/torratdev/grace/internal/platform/statestore"
)

// Kind is the actor kind string for RepositoryName index actors.
const Kind = "RepositoryName"

// Topic is the event bus topic every RepositoryName event publishes to.
const Topic = "grace.reponame"

// Key builds the actor id for a (name, owner, organization) triple.
func Key(repoName, ownerID, organizationID string) string {
	return repoName + "|" + ownerID + "|" + organizationID
}

type dto struct {
	Exists       bool
	RepositoryID string
	UpdatedAt    time.Time
}

const (
	TagCreated         = "RepositoryNameCreated"
	TagRepositoryIDSet = "RepositoryNameRepositoryIDSet"
)

type createdEvent struct {
	RepositoryID string    `json:"repositoryId"`
	Timestamp    time.Time `json:"timestamp"`
}

type repositoryIDSetEvent struct {
	RepositoryID string    `json:"repositoryId"`
	Timestamp    time.Time `json:"timestamp"`
}

func decode(tag string, raw json.RawMessage) (any, error) {
	switch tag {
	case TagCreated:
		var e createdEvent
		return e, json.Unmarshal(raw, &e)
	case TagRepositoryIDSet:
		var e repositoryIDSetEvent
		return e, json.Unmarshal(raw, &e)
	default:
		return nil, fmt.Errorf("reponame: unknown event tag %q", tag)
	}
}

func fold(d dto, tag string, event any) dto {
	switch tag {
	case TagCreated:
		e := event.(createdEvent) //nolint:forcetypeassert
		d.Exists = true
		d.RepositoryID = e.RepositoryID
		d.UpdatedAt = e.Timestamp
	case TagRepositoryIDSet:
		e := event.(repositoryIDSetEvent) //nolint:forcetypeassert
		d.RepositoryID = e.RepositoryID
		d.UpdatedAt = e.Timestamp
	}

	return d
}

// Commands.
type (
	// CreateCommand claims this name slot for repositoryID.
	CreateCommand struct{ RepositoryID string }
	// SetRepositoryIDCommand re-points an existing slot at a different
	// repository id.
	SetRepositoryIDCommand struct{ RepositoryID string }
	// GetRepositoryIDCommand returns the id currently claiming this slot.
	GetRepositoryIDCommand struct{}
)

// Actor is the RepositoryName index actor.
type Actor struct {
	base *actorbase.Base[dto]
}

// New constructs a RepositoryName actor bound to actorID (the slot key
// built by Key).
func New(actorID string, store statestore.Store, bus eventbus.Bus, logger mlog.Logger) *Actor {
	return &Actor{base: actorbase.New[dto](Kind, actorID, store, bus, logger, decode, fold)}
}

// Activate replays the event log.
func (a *Actor) Activate(ctx context.Context) error { return a.base.Activate(ctx) }

// Handle dispatches cmd to the matching transition.
func (a *Actor) Handle(ctx context.Context, cmd any, meta command.Metadata) (any, error) {
	switch c := cmd.(type) {
	case GetRepositoryIDCommand:
		return a.getRepositoryID()
	default:
		if err := a.base.CheckCorrelation(meta.CorrelationID); err != nil {
			return nil, err
		}

		switch c := c.(type) {
		case CreateCommand:
			return a.create(ctx, c, meta)
		case SetRepositoryIDCommand:
			return a.setRepositoryID(ctx, c, meta)
		default:
			return nil, errs.WrapInternal(Kind, fmt.Errorf("unrecognized command %T", c))
		}
	}
}

func (a *Actor) getRepositoryID() (string, error) {
	if !a.base.Dto.Exists {
		return "", errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	return a.base.Dto.RepositoryID, nil
}

func (a *Actor) create(ctx context.Context, c CreateCommand, meta command.Metadata) (string, error) {
	if a.base.Dto.Exists {
		return "", errs.Wrap(errs.ErrNameAlreadyInUse, Kind)
	}

	event := createdEvent{RepositoryID: c.RepositoryID, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagCreated, event, meta.ToEventMetadata()); err != nil {
		return "", err
	}

	return a.base.Dto.RepositoryID, nil
}

func (a *Actor) setRepositoryID(ctx context.Context, c SetRepositoryIDCommand, meta command.Metadata) (string, error) {
	if !a.base.Dto.Exists {
		return "", errs.Wrap(errs.ErrEntityNotFound, Kind)
	}

	event := repositoryIDSetEvent{RepositoryID: c.RepositoryID, Timestamp: time.Now().UTC()}
	if err := a.base.Apply(ctx, Topic, TagRepositoryIDSet, event, meta.ToEventMetadata()); err != nil {
		return "", err
	}

	return a.base.Dto.RepositoryID, nil
}
