// Command server boots the grace process: it wires the platform layer
// (state store, event bus, cache, timers, actor host) and every entity
// actor factory, then serves a minimal health/version HTTP surface.
// The full command-pipeline HTTP route table is out of scope (see
// spec.md's Non-goals); this entrypoint exists to prove the wiring
// compiles and runs end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/torratdev/grace/internal/command"
	"github.com/torratdev/grace/internal/config"
	"github.com/torratdev/grace/internal/entities/branch"
	"github.com/torratdev/grace/internal/entities/directoryversion"
	"github.com/torratdev/grace/internal/entities/organization"
	"github.com/torratdev/grace/internal/entities/owner"
	"github.com/torratdev/grace/internal/entities/reference"
	"github.com/torratdev/grace/internal/entities/reponame"
	"github.com/torratdev/grace/internal/entities/repository"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/mmodel"
	"github.com/torratdev/grace/internal/platform/actorhost"
	"github.com/torratdev/grace/internal/platform/cache"
	"github.com/torratdev/grace/internal/platform/eventbus"
	busmemory "github.com/torratdev/grace/internal/platform/eventbus/memory"
	"github.com/torratdev/grace/internal/platform/eventbus/rabbitmq"
	"github.com/torratdev/grace/internal/platform/statestore"
	storememory "github.com/torratdev/grace/internal/platform/statestore/memory"
	"github.com/torratdev/grace/internal/platform/statestore/postgres"
	"github.com/torratdev/grace/internal/platform/timers"
	"github.com/torratdev/grace/internal/platform/timers/inproc"
	"github.com/torratdev/grace/internal/resolve"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := mlog.NewZapLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build state store: %w", err)
	}

	bus, err := buildBus(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build event bus: %w", err)
	}

	existenceCache := cache.New(ctx, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger)

	// host is captured by the timer resolver and entity factories below;
	// it is safe to close over before New returns since neither runs
	// until the reaper/first Invoke starts.
	var host *actorhost.Host

	timerSvc := inproc.New(store, func(actorKind, actorID string) (timers.Delivery, error) {
		ref := host.Proxy(actorKind, actorID)
		return ref, nil
	}, logger)

	factory := buildActorFactory(store, bus, logger, timerSvc, &host)

	host = actorhost.New(factory, time.Duration(cfg.ActorIdleEvictionMinutes)*time.Minute, logger)
	host.StartReaper(ctx)

	// resolver is wired and ready for a future command-pipeline HTTP
	// surface; the route table itself is out of scope here (see
	// spec.md's Non-goals).
	resolver := resolve.New(existenceCache, lookupAdapter{host: host})
	_ = resolver

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(cfg.Version))
	})

	server := &http.Server{Addr: cfg.ServerAddress, Handler: mux}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
	}()

	logger.Infof("grace server listening on %s", cfg.ServerAddress)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

func buildStore(ctx context.Context, cfg *config.Config, logger mlog.Logger) (statestore.Store, error) {
	switch cfg.StateStoreBackend {
	case "postgres":
		conn := &postgres.Connection{
			ConnectionString: cfg.PostgresPrimaryDSN,
			DatabaseName:     "grace",
			MigrationsDir:    cfg.PostgresMigrationsDir,
			Logger:           logger,
		}

		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}

		return postgres.New(conn), nil
	default:
		return storememory.New(), nil
	}
}

func buildBus(ctx context.Context, cfg *config.Config, logger mlog.Logger) (eventbus.Bus, error) {
	switch cfg.EventBusBackend {
	case "rabbitmq":
		conn := &rabbitmq.Connection{
			ConnectionString: cfg.RabbitMQURI,
			Exchange:         cfg.RabbitMQExchange,
			Logger:           logger,
		}

		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}

		return rabbitmq.New(conn), nil
	default:
		return busmemory.New(), nil
	}
}

// buildActorFactory returns the actorhost.Factory dispatching on
// Address.Kind to the right entity constructor. hostRef points at the
// run()-local host variable, which is only assigned after this factory
// is constructed; every closure below dereferences hostRef at Invoke
// time (never at construction time), by which point wiring in run()
// has completed.
func buildActorFactory(store statestore.Store, bus eventbus.Bus, logger mlog.Logger, timerSvc timers.Service, hostRef **actorhost.Host) actorhost.Factory {
	return func(addr actorhost.Address) (actorhost.Actor, error) {
		switch addr.Kind {
		case owner.Kind:
			return owner.New(addr.ID, store, bus, logger, timerSvc), nil
		case organization.Kind:
			return organization.New(addr.ID, store, bus, logger, timerSvc), nil
		case repository.Kind:
			cascade := func(ctx context.Context, branchIDs []string) error {
				var firstErr error

				for _, id := range branchIDs {
					ref := (*hostRef).Proxy(branch.Kind, id)

					_, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
						b, ok := a.(*branch.Actor)
						if !ok {
							return nil, fmt.Errorf("unexpected actor type %T for branch", a)
						}

						return b.Handle(ctx, branch.DeletePhysicalCommand{}, command.Metadata{CorrelationID: "cascade:" + id})
					})
					if err != nil && firstErr == nil {
						firstErr = err
					}
				}

				return firstErr
			}

			return repository.New(addr.ID, store, bus, logger, timerSvc, cascade), nil
		case reponame.Kind:
			return reponame.New(addr.ID, store, bus, logger), nil
		case directoryversion.Kind:
			return directoryversion.New(addr.ID, store, bus, logger), nil
		case reference.Kind:
			return reference.New(addr.ID, store, bus, logger, timerSvc), nil
		case branch.Kind:
			return branch.New(addr.ID, store, bus, logger, timerSvc, referenceMinter{hostRef: hostRef}, repositoryRegistrar{hostRef: hostRef}), nil
		default:
			return nil, fmt.Errorf("unknown actor kind %q", addr.Kind)
		}
	}
}

// referenceMinter adapts the actor host into branch.ReferenceMinter,
// letting Branch mint and cascade-delete Reference actors without
// importing the reference package's concrete Actor type.
type referenceMinter struct {
	hostRef **actorhost.Host
}

// Mint creates a fresh Reference actor keyed by a new random id and
// sends it Create, returning its id on success.
func (m referenceMinter) Mint(ctx context.Context, repositoryID, branchID, directoryVersionID, sha256 string, refType mmodel.ReferenceType, text string, retentionDays int, meta command.Metadata) (string, error) {
	referenceID := uuid.NewString()

	ref := (*m.hostRef).Proxy(reference.Kind, referenceID)

	_, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
		r, ok := a.(*reference.Actor)
		if !ok {
			return nil, fmt.Errorf("unexpected actor type %T for reference", a)
		}

		return r.Handle(ctx, reference.CreateCommand{
			RepositoryID:       repositoryID,
			BranchID:           branchID,
			DirectoryVersionID: directoryVersionID,
			Sha256:             sha256,
			Type:               refType,
			Text:               text,
			RetentionDays:      retentionDays,
		}, meta)
	})
	if err != nil {
		return "", err
	}

	return referenceID, nil
}

// DeleteLogical cascades a logical delete to a Reference actor.
func (m referenceMinter) DeleteLogical(ctx context.Context, referenceID, reason string, logicalDeleteDays int, meta command.Metadata) error {
	ref := (*m.hostRef).Proxy(reference.Kind, referenceID)

	_, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
		r, ok := a.(*reference.Actor)
		if !ok {
			return nil, fmt.Errorf("unexpected actor type %T for reference", a)
		}

		return r.Handle(ctx, reference.DeleteLogicalCommand{Reason: reason, LogicalDeleteDays: logicalDeleteDays}, meta)
	})

	return err
}

func (m referenceMinter) DeletePhysical(ctx context.Context, referenceID string, meta command.Metadata) error {
	ref := (*m.hostRef).Proxy(reference.Kind, referenceID)

	_, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
		r, ok := a.(*reference.Actor)
		if !ok {
			return nil, fmt.Errorf("unexpected actor type %T for reference", a)
		}

		return r.Handle(ctx, reference.DeletePhysicalCommand{}, meta)
	})

	return err
}

// Get reads a Reference actor's current read-model, used by Branch's
// Rebase (to copy the parent reference's directory-version-id/sha/text)
// and Activate (to reconcile Latest* from minted references).
func (m referenceMinter) Get(ctx context.Context, referenceID string) (mmodel.Reference, error) {
	ref := (*m.hostRef).Proxy(reference.Kind, referenceID)

	result, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
		r, ok := a.(*reference.Actor)
		if !ok {
			return nil, fmt.Errorf("unexpected actor type %T for reference", a)
		}

		return r.Handle(ctx, reference.GetCommand{}, command.Metadata{})
	})
	if err != nil {
		return mmodel.Reference{}, err
	}

	got, ok := result.(mmodel.Reference)
	if !ok {
		return mmodel.Reference{}, fmt.Errorf("unexpected result type %T for reference get", result)
	}

	return got, nil
}

// repositoryRegistrar adapts the actor host into branch.RepositoryRegistrar,
// letting Branch tell its owning Repository about itself right after
// Create without importing the repository package.
type repositoryRegistrar struct {
	hostRef **actorhost.Host
}

func (r repositoryRegistrar) RegisterBranch(ctx context.Context, repositoryID, branchID string, meta command.Metadata) error {
	ref := (*r.hostRef).Proxy(repository.Kind, repositoryID)

	_, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
		repo, ok := a.(*repository.Actor)
		if !ok {
			return nil, fmt.Errorf("unexpected actor type %T for repository", a)
		}

		return repo.Handle(ctx, repository.RegisterBranchCommand{BranchID: branchID}, meta)
	})

	return err
}

// lookupAdapter implements resolve.Lookup. Only the RepositoryName
// index actor backs a real name lookup; Owner, Organization and Branch
// name resolution would need their own index actors, which SPEC_FULL.md
// does not call for beyond the repository level, so those three always
// report not-found and callers are expected to supply ids for those
// levels (see DESIGN.md).
type lookupAdapter struct {
	host *actorhost.Host
}

func (l lookupAdapter) OwnerIDByName(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (l lookupAdapter) OrganizationIDByName(_ context.Context, _, _ string) (string, bool, error) {
	return "", false, nil
}

func (l lookupAdapter) RepositoryIDByName(ctx context.Context, repoName, ownerID, organizationID string) (string, bool, error) {
	ref := l.host.Proxy(reponame.Kind, reponame.Key(repoName, ownerID, organizationID))

	val, err := ref.Invoke(ctx, func(a actorhost.Actor) (any, error) {
		idx, ok := a.(*reponame.Actor)
		if !ok {
			return nil, fmt.Errorf("unexpected actor type %T for reponame", a)
		}

		return idx.Handle(ctx, reponame.GetRepositoryIDCommand{}, command.Metadata{})
	})
	if err != nil {
		return "", false, nil //nolint:nilerr
	}

	id, _ := val.(string)
	if id == "" {
		return "", false, nil
	}

	return id, true, nil
}

func (l lookupAdapter) BranchIDByName(_ context.Context, _, _ string) (string, bool, error) {
	return "", false, nil
}
