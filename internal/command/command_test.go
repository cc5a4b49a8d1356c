package command_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torratdev/grace/internal/command"
)

func TestAllPassReturnsFirstInSubmissionOrder(t *testing.T) {
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	validations := []command.Validation{
		func(context.Context, any) error {
			time.Sleep(20 * time.Millisecond)
			return errFirst
		},
		func(context.Context, any) error { return errSecond },
	}

	err := command.AllPass(context.Background(), nil, validations...)
	require.ErrorIs(t, err, errFirst)
}

func TestAllPassPassesWhenAllValidationsPass(t *testing.T) {
	validations := []command.Validation{
		func(context.Context, any) error { return nil },
		func(context.Context, any) error { return nil },
	}

	require.NoError(t, command.AllPass(context.Background(), nil, validations...))
}

func TestMetadataWithPropertyDoesNotMutateOriginal(t *testing.T) {
	base := command.Metadata{CorrelationID: "corr-1", Properties: map[string]string{"a": "1"}}
	enriched := base.WithProperty("b", "2")

	require.Len(t, base.Properties, 1)
	require.Len(t, enriched.Properties, 2)
	require.Equal(t, "2", enriched.Properties["b"])
}

func TestMetadataToEventMetadataFormatsTimestamp(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	m := command.Metadata{CorrelationID: "corr-1", Timestamp: ts}

	em := m.ToEventMetadata()
	require.Equal(t, "corr-1", em.CorrelationID)
	require.Equal(t, ts.Format(time.RFC3339Nano), em.Timestamp)
}

func TestPipelineRunChainsValidateResolveDispatchEnrich(t *testing.T) {
	var resolved bool

	p := command.Pipeline[string, int]{
		Validations: []command.Validation{
			func(_ context.Context, params any) error {
				if params.(string) == "" {
					return errors.New("empty")
				}
				return nil
			},
		},
		Resolve: func(_ context.Context, params string) (string, error) {
			resolved = true
			return params + "-resolved", nil
		},
		Dispatch: func(_ context.Context, params string, _ command.Metadata) (int, error) {
			return len(params), nil
		},
		Enrich: func(_ context.Context, _ string, result int, meta command.Metadata) (int, command.Metadata) {
			return result + 1, meta.WithProperty("enriched", "true")
		},
	}

	result, err := p.Run(context.Background(), "abc", command.Metadata{CorrelationID: "corr-1"})
	require.NoError(t, err)
	require.True(t, resolved)
	require.Equal(t, len("abc-resolved")+1, result.Return)
	require.Equal(t, "true", result.Metadata.Properties["enriched"])
}

func TestPipelineRunStopsAtFailedValidation(t *testing.T) {
	p := command.Pipeline[string, int]{
		Validations: []command.Validation{
			func(context.Context, any) error { return errors.New("nope") },
		},
		Dispatch: func(context.Context, string, command.Metadata) (int, error) {
			t.Fatal("dispatch should not run after a failed validation")
			return 0, nil
		},
	}

	_, err := p.Run(context.Background(), "abc", command.Metadata{})
	require.Error(t, err)
}
