// Package deletion factors C9's shared pieces: encoding the canonical
// reminder payload and fanning a physical delete out to an entity's
// children (Branch over its References).
package deletion

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/torratdev/grace/internal/platform/timers"
)

// EncodeReminderPayload msgpack-encodes p, the wire format every
// reminder registration and delivery site uses.
func EncodeReminderPayload(p timers.ReminderPayload) ([]byte, error) {
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("deletion: encode reminder payload: %w", err)
	}

	return raw, nil
}

// DecodeReminderPayload is the inverse of EncodeReminderPayload.
func DecodeReminderPayload(raw []byte) (timers.ReminderPayload, error) {
	var p timers.ReminderPayload

	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("deletion: decode reminder payload: %w", err)
	}

	return p, nil
}

// Child identifies one descendant actor a cascading delete must reach.
type Child struct {
	Kind string
	ID   string
}

// Dispatch sends whatever command the caller's closure encodes to one
// child, returning its error.
type Dispatch func(ctx context.Context, child Child) error

// CascadePhysical invokes dispatch against every child, attempting all
// of them even if one fails, and returns the first error encountered
// (in enumeration order) if any — used by Branch to cascade
// DeletePhysical to its References.
func CascadePhysical(ctx context.Context, children []Child, dispatch Dispatch) error {
	var firstErr error

	for _, child := range children {
		if err := dispatch(ctx, child); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("deletion: cascade to %s/%s: %w", child.Kind, child.ID, err)
			}
		}
	}

	return firstErr
}
