package deletion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/deletion"
	"github.com/torratdev/grace/internal/platform/timers"
)

func TestEncodeDecodeReminderPayloadRoundTrips(t *testing.T) {
	p := timers.ReminderPayload{
		Version:       timers.CurrentReminderPayloadVersion,
		ParentIDs:     map[string]string{"repositoryId": "repo-1"},
		DeleteReason:  "retention-expired",
		CorrelationID: "corr-1",
	}

	raw, err := deletion.EncodeReminderPayload(p)
	require.NoError(t, err)

	decoded, err := deletion.DecodeReminderPayload(raw)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestCascadePhysicalDispatchesToEveryChildAndReturnsFirstError(t *testing.T) {
	children := []deletion.Child{{Kind: "Reference", ID: "r1"}, {Kind: "Reference", ID: "r2"}, {Kind: "Reference", ID: "r3"}}

	var visited []string

	err := deletion.CascadePhysical(context.Background(), children, func(_ context.Context, child deletion.Child) error {
		visited = append(visited, child.ID)

		if child.ID == "r2" {
			return errors.New("boom")
		}

		return nil
	})

	require.Error(t, err)
	require.Equal(t, []string{"r1", "r2", "r3"}, visited)
}

func TestCascadePhysicalSucceedsWhenAllChildrenSucceed(t *testing.T) {
	children := []deletion.Child{{Kind: "Reference", ID: "r1"}}

	err := deletion.CascadePhysical(context.Background(), children, func(context.Context, deletion.Child) error {
		return nil
	})

	require.NoError(t, err)
}
