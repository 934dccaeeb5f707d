package fault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aureus-sentinel/bridge/audit"
	"github.com/aureus-sentinel/bridge/internal/clock"
)

func withRoll(t *testing.T, values ...float64) {
	t.Helper()
	i := 0
	orig := roll
	roll = func() float64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
	t.Cleanup(func() { roll = orig })
}

func TestExecute_DisabledInjectorPassesThrough(t *testing.T) {
	inj := New()
	inj.SetRules("kms.sign", []Rule{{Seam: "kms.sign", Type: ToolFailure, Probability: 1}})

	called := false
	out, err := Execute(context.Background(), inj, "kms.sign", func(ctx context.Context) (int, error) {
		called = true
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.True(t, called)
}

func TestExecute_ToolFailureShortCircuits(t *testing.T) {
	inj := New()
	inj.Enable(true)
	inj.SetRules("kms.sign", []Rule{{Seam: "kms.sign", Type: ToolFailure, Probability: 1}})
	withRoll(t, 0)

	called := false
	_, err := Execute(context.Background(), inj, "kms.sign", func(ctx context.Context) (int, error) {
		called = true
		return 42, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInjected))
	assert.False(t, called)
}

func TestExecute_ProbabilityMissCallsThrough(t *testing.T) {
	inj := New()
	inj.Enable(true)
	inj.SetRules("kms.sign", []Rule{{Seam: "kms.sign", Type: ToolFailure, Probability: 0.1}})
	withRoll(t, 0.99)

	out, err := Execute(context.Background(), inj, "kms.sign", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestExecute_LatencySpikeStillCallsThrough(t *testing.T) {
	inj := New()
	inj.Enable(true)
	inj.SetRules("db.query", []Rule{{
		Seam: "db.query", Type: LatencySpike, Probability: 1,
		Config: map[string]any{"latency": 5 * time.Millisecond},
	}})
	withRoll(t, 0)

	start := time.Now()
	out, err := Execute(context.Background(), inj, "db.query", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestExecute_LatencySpikeRespectsContextCancellation(t *testing.T) {
	inj := New()
	inj.Enable(true)
	inj.SetRules("db.query", []Rule{{
		Seam: "db.query", Type: LatencySpike, Probability: 1,
		Config: map[string]any{"latency": time.Hour},
	}})
	withRoll(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := Execute(ctx, inj, "db.query", func(ctx context.Context) (int, error) {
		return 0, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_NilInjectorPassesThrough(t *testing.T) {
	var inj *Injector
	out, err := Execute(context.Background(), inj, "kms.sign", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out)
}

func TestExecute_TriggerIsRecordedToAudit(t *testing.T) {
	store := audit.NewMemoryStore()
	chain := audit.New(store, clock.Real{})

	inj := New().WithAudit(chain)
	inj.Enable(true)
	inj.SetRules("kms.sign", []Rule{{Seam: "kms.sign", Type: ToolFailure, Probability: 1}})
	withRoll(t, 0)

	_, err := Execute(context.Background(), inj, "kms.sign", func(ctx context.Context) (int, error) {
		return 0, nil
	})
	require.Error(t, err)

	entry, ok, err := store.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auditEventFaultInjected, entry.Action)
	assert.Equal(t, "kms.sign", entry.Payload["seam"])
}
