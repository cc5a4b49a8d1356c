// Package inproc implements timers.Service with time.AfterFunc,
// mirroring registrations into the state store under the reserved
// "__reminders__" key so RecoverActor can replay an actor's pending
// reminders after a process restart (one already past due fires at once).
package inproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/platform/statestore"
	"github.com/torratdev/grace/internal/platform/timers"
)

// Resolver looks up the Delivery target for an actor address,
// decoupling this package from actorhost and avoiding an import cycle
// (actors schedule reminders through this service; this service
// delivers back into actors).
type Resolver func(actorKind, actorID string) (timers.Delivery, error)

type registration struct {
	ActorKind string        `json:"actorKind"`
	ActorID   string        `json:"actorId"`
	Name      string        `json:"name"`
	Payload   []byte        `json:"payload"`
	DueAt     time.Time     `json:"dueAt"`
	Period    time.Duration `json:"period"`
}

type regKey struct {
	actorKind string
	actorID   string
	name      string
}

// Service is an in-process timers.Service.
type Service struct {
	store    statestore.Store
	resolve  Resolver
	logger   mlog.Logger
	mu       sync.Mutex
	timers   map[regKey]*time.Timer
}

// New builds a Service. resolve is consulted each time a reminder
// fires to find the actor to deliver it to.
func New(store statestore.Store, resolve Resolver, logger mlog.Logger) *Service {
	return &Service{
		store:   store,
		resolve: resolve,
		logger:  logger,
		timers:  make(map[regKey]*time.Timer),
	}
}

func (s *Service) RegisterReminder(ctx context.Context, actorKind, actorID, name string, payload []byte, dueIn, period time.Duration) error {
	reg := registration{
		ActorKind: actorKind,
		ActorID:   actorID,
		Name:      name,
		Payload:   payload,
		DueAt:     time.Now().Add(dueIn),
		Period:    period,
	}

	if err := s.mirror(ctx, reg); err != nil {
		return err
	}

	s.schedule(reg)

	return nil
}

func (s *Service) UnregisterReminder(ctx context.Context, actorKind, actorID, name string) error {
	key := regKey{actorKind, actorID, name}

	s.mu.Lock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	return s.unmirror(ctx, actorKind, actorID, name)
}

// Recover does nothing in this backend. Since the state store is keyed
// per actor-id, recovery happens per-actor on Activate (RecoverActor)
// rather than globally; Recover here is a no-op hook kept for
// interface symmetry with a future durable timer backend that can
// enumerate all pending reminders directly.
func (s *Service) Recover(_ context.Context) error {
	return nil
}

// RecoverActor replays any reminder mirrored for this specific actor,
// called from the actor's Activate hook (the in-process equivalent of
// a durable timer service restoring its schedule on restart).
func (s *Service) RecoverActor(ctx context.Context, actorKind, actorID string) error {
	raw, found, err := s.store.Retrieve(ctx, actorID, statestore.RemindersKey)
	if err != nil {
		return fmt.Errorf("retrieve reminders for %s/%s: %w", actorKind, actorID, err)
	}

	if !found {
		return nil
	}

	var regs []registration
	if err := json.Unmarshal(raw, &regs); err != nil {
		return fmt.Errorf("decode reminders for %s/%s: %w", actorKind, actorID, err)
	}

	for _, reg := range regs {
		s.schedule(reg)
	}

	return nil
}

func (s *Service) schedule(reg registration) {
	key := regKey{reg.ActorKind, reg.ActorID, reg.Name}

	dueIn := time.Until(reg.DueAt)
	if dueIn < 0 {
		dueIn = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}

	s.timers[key] = time.AfterFunc(dueIn, func() { s.fire(reg) })
}

func (s *Service) fire(reg registration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("reminder %s/%s/%s recovered from panic: %v", reg.ActorKind, reg.ActorID, reg.Name, r)
		}
	}()

	ctx := context.Background()

	target, err := s.resolve(reg.ActorKind, reg.ActorID)
	if err != nil {
		s.logger.Errorf("reminder %s/%s/%s: resolve failed: %v", reg.ActorKind, reg.ActorID, reg.Name, err)
		return
	}

	if err := target.Deliver(ctx, reg.ActorKind, reg.ActorID, reg.Name, reg.Payload, reg.DueAt, reg.Period); err != nil {
		s.logger.Errorf("reminder %s/%s/%s: delivery failed: %v", reg.ActorKind, reg.ActorID, reg.Name, err)
	}

	if reg.Period > 0 {
		reg.DueAt = time.Now().Add(reg.Period)
		s.schedule(reg)
	} else {
		_ = s.unmirror(ctx, reg.ActorKind, reg.ActorID, reg.Name)
	}
}

func (s *Service) mirror(ctx context.Context, reg registration) error {
	existing, err := s.loadMirror(ctx, reg.ActorID)
	if err != nil {
		return err
	}

	replaced := false

	for i, r := range existing {
		if r.Name == reg.Name {
			existing[i] = reg
			replaced = true

			break
		}
	}

	if !replaced {
		existing = append(existing, reg)
	}

	return s.saveMirror(ctx, reg.ActorID, existing)
}

func (s *Service) unmirror(ctx context.Context, actorKind, actorID, name string) error {
	existing, err := s.loadMirror(ctx, actorID)
	if err != nil {
		return err
	}

	kept := existing[:0]

	for _, r := range existing {
		if r.Name != name {
			kept = append(kept, r)
		}
	}

	_ = actorKind

	return s.saveMirror(ctx, actorID, kept)
}

func (s *Service) loadMirror(ctx context.Context, actorID string) ([]registration, error) {
	raw, found, err := s.store.Retrieve(ctx, actorID, statestore.RemindersKey)
	if err != nil {
		return nil, fmt.Errorf("retrieve reminders for %s: %w", actorID, err)
	}

	if !found {
		return nil, nil
	}

	var regs []registration
	if err := json.Unmarshal(raw, &regs); err != nil {
		return nil, fmt.Errorf("decode reminders for %s: %w", actorID, err)
	}

	return regs, nil
}

func (s *Service) saveMirror(ctx context.Context, actorID string, regs []registration) error {
	raw, err := json.Marshal(regs)
	if err != nil {
		return fmt.Errorf("encode reminders for %s: %w", actorID, err)
	}

	return s.store.Save(ctx, actorID, statestore.RemindersKey, raw)
}
