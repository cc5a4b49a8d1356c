// Package memory is an in-process eventbus.Bus that fans published
// envelopes out to registered subscriber channels — used by tests and
// by the in-process read-model updater.
package memory

import (
	"context"
	"sync"

	"github.com/torratdev/grace/internal/platform/eventbus"
)

// Bus is an in-process fan-out eventbus.Bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan eventbus.Envelope
}

// New returns an empty in-process Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan eventbus.Envelope)}
}

// Subscribe registers a buffered channel receiving envelopes published
// to topic from this point forward. Publish does not block: an envelope
// is dropped for a subscriber whose buffer is full.
func (b *Bus) Subscribe(topic string, buffer int) <-chan eventbus.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan eventbus.Envelope, buffer)
	b.subscribers[topic] = append(b.subscribers[topic], ch)

	return ch
}

func (b *Bus) Publish(_ context.Context, topic string, envelope eventbus.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- envelope:
		default:
		}
	}

	return nil
}
