// Package eventbus defines C2, the at-least-once best-effort-ordered
// domain event publisher every entity actor uses after persisting an
// event.
package eventbus

import (
	"context"
	"encoding/json"
)

// Metadata travels with every command and, re-serialized, with every
// published event.
type Metadata struct {
	CorrelationID string            `json:"correlationId"`
	Timestamp     string            `json:"timestamp"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// Envelope is the tagged wire record published for every domain event:
// {tag, event, metadata} per the external interfaces design.
type Envelope struct {
	Tag      string          `json:"tag"`
	Event    json.RawMessage `json:"event"`
	Metadata Metadata        `json:"metadata"`
}

// Bus is the C2 contract. Publish is fire-and-forget: the core never
// awaits acknowledgement and tolerates duplicate delivery downstream.
type Bus interface {
	Publish(ctx context.Context, topic string, envelope Envelope) error
}
