// Package actorhost provides the single-process substitute for C4's
// virtual-actor placement/turn-dispatch contract: one goroutine per
// (kind, id) address running a mailbox loop gives the
// single-active-instance and strict turn-serialization guarantees for
// free within a process. A future distributed backend can satisfy the
// same Host-shaped API behind a different implementation.
package actorhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/telemetry"
)

// Address identifies a virtual actor.
type Address struct {
	Kind string
	ID   string
}

func (a Address) String() string { return a.Kind + "/" + a.ID }

// Actor is the minimal contract every entity actor implements. Each
// concrete entity additionally implements whatever command/getter
// methods its Handle closures invoke through type assertion.
type Actor interface {
	Activate(ctx context.Context) error
}

// Reminderable is implemented by actors that accept reminder deliveries.
type Reminderable interface {
	ReceiveReminder(ctx context.Context, name string, payload []byte, dueTime time.Time, period time.Duration) error
}

// Factory constructs a fresh Actor instance for address; the host calls
// Activate on it before running any closure.
type Factory func(addr Address) (Actor, error)

type correlationIDKey struct{}

// ContextWithCorrelationID attaches a correlation-id for the Pre/Post
// hooks to log and trace.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext extracts the correlation-id set by
// ContextWithCorrelationID, or "" if none.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

type mailbox struct {
	addr     Address
	actor    Actor
	disposed bool
	inbox    chan func()
	done     chan struct{}

	mu         sync.Mutex
	lastActive time.Time
}

// Host owns every mailbox and reaps idle ones.
type Host struct {
	factory Factory
	idleTTL time.Duration
	logger  mlog.Logger

	mu        sync.Mutex
	mailboxes map[Address]*mailbox
}

// New builds a Host. idleTTL <= 0 defaults to 10 minutes, matching the
// spec's "retained until idle eviction."
func New(factory Factory, idleTTL time.Duration, logger mlog.Logger) *Host {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	return &Host{
		factory:   factory,
		idleTTL:   idleTTL,
		logger:    logger,
		mailboxes: make(map[Address]*mailbox),
	}
}

// StartReaper launches the idle-eviction goroutine, bound to ctx.
func (h *Host) StartReaper(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Errorf("actorhost reaper recovered from panic: %v", r)
			}
		}()

		ticker := time.NewTicker(h.idleTTL / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.reap()
			}
		}
	}()
}

func (h *Host) reap() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()

	for addr, mb := range h.mailboxes {
		mb.mu.Lock()
		idle := now.Sub(mb.lastActive) > h.idleTTL
		mb.mu.Unlock()

		if idle {
			close(mb.done)
			delete(h.mailboxes, addr)
		}
	}
}

func (h *Host) mailboxFor(addr Address) *mailbox {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mb, ok := h.mailboxes[addr]; ok {
		return mb
	}

	mb := &mailbox{
		addr:       addr,
		disposed:   true, // forces Activate on first Invoke
		inbox:      make(chan func(), 32),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}

	h.mailboxes[addr] = mb

	go mb.run()

	return mb
}

func (mb *mailbox) run() {
	for {
		select {
		case <-mb.done:
			return
		case task := <-mb.inbox:
			task()
		}
	}
}

// Proxy returns a handle for (kind, id), creating its mailbox
// goroutine on first use.
func (h *Host) Proxy(kind, id string) ActorRef {
	return ActorRef{host: h, addr: Address{Kind: kind, ID: id}}
}

// ActorRef is a typed invocation handle standing in for
// CreateActorProxy.
type ActorRef struct {
	host *Host
	addr Address
}

// Addr returns the actor address this ref targets.
func (r ActorRef) Addr() Address { return r.addr }

// Invoke schedules fn onto the actor's mailbox and waits for its
// result, activating the actor first if necessary. Every call is
// bracketed by Pre/Post hooks: correlation-id capture, an
// OpenTelemetry span, and duration logging.
func (r ActorRef) Invoke(ctx context.Context, fn func(Actor) (any, error)) (any, error) {
	mb := r.host.mailboxFor(r.addr)

	type result struct {
		val any
		err error
	}

	resultCh := make(chan result, 1)

	task := func() {
		start := time.Now()

		ctx, span := telemetry.TracerFromContext(ctx).Start(ctx, "actor.invoke", trace.WithAttributes(
			attribute.String("actor.kind", r.addr.Kind),
			attribute.String("actor.id", r.addr.ID),
		))
		defer span.End()

		correlationID := CorrelationIDFromContext(ctx)
		logger := mlog.FromContext(ctx).WithFields("actor", r.addr.String(), "correlationId", correlationID)

		if mb.disposed {
			actor, err := r.host.factory(r.addr)
			if err != nil {
				logger.Errorf("activate factory failed: %v", err)
				resultCh <- result{nil, fmt.Errorf("actorhost: construct %s: %w", r.addr, err)}

				return
			}

			if err := actor.Activate(ctx); err != nil {
				logger.Errorf("activate failed: %v", err)
				resultCh <- result{nil, fmt.Errorf("actorhost: activate %s: %w", r.addr, err)}

				return
			}

			mb.actor = actor
			mb.disposed = false
		}

		val, err := fn(mb.actor)
		if err != nil {
			_ = telemetry.RecordError(span, err)
		}

		if errs.IsDependencyFailure(err) {
			mb.disposed = true
			logger.Errorf("actor %s poisoned: %v", r.addr, err)
		}

		mb.mu.Lock()
		mb.lastActive = time.Now()
		mb.mu.Unlock()

		logger.Debugf("actor %s turn completed in %s", r.addr, time.Since(start))

		resultCh <- result{val, err}
	}

	select {
	case mb.inbox <- task:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver re-enters the actor through its mailbox to handle a fired
// reminder, satisfying timers.Delivery without this package importing
// timers.
func (r ActorRef) Deliver(ctx context.Context, _, _, name string, payload []byte, dueTime time.Time, period time.Duration) error {
	_, err := r.Invoke(ctx, func(a Actor) (any, error) {
		reminderable, ok := a.(Reminderable)
		if !ok {
			return nil, fmt.Errorf("actor %s does not accept reminders", r.addr)
		}

		return nil, reminderable.ReceiveReminder(ctx, name, payload, dueTime, period)
	})

	return err
}
