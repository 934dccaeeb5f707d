package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aureus-sentinel/bridge/internal/clock"
)

func TestChain_AppendLinksHashes(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, clock.Fixed{At: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	e1, err := c.Append(ctx, "intent.received", map[string]any{"intentId": "i-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Sequence)
	assert.Equal(t, ZeroHash, e1.PreviousHash)
	assert.NotEmpty(t, e1.Hash)

	e2, err := c.Append(ctx, "plan.generated", map[string]any{"planId": "p-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.Sequence)
	assert.Equal(t, e1.Hash, e2.PreviousHash)
}

func TestChain_VerifyOKOnUntamperedChain(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, clock.Real{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Append(ctx, "event", map[string]any{"n": i}, nil)
		require.NoError(t, err)
	}

	result, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.EqualValues(t, 5, result.EntriesChecked)
}

func TestChain_VerifyDetectsTamperedPayload(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, clock.Real{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := c.Append(ctx, "event", map[string]any{"n": i}, nil)
		require.NoError(t, err)
	}

	store.TamperPayload(17, "n", 9999)

	result, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.EqualValues(t, 17, result.FirstBrokenSeq)
}

func TestChain_ReloadsTailFromExistingStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := New(store, clock.Real{})
	last, err := first.Append(ctx, "event", map[string]any{"n": 1}, nil)
	require.NoError(t, err)

	second := New(store, clock.Real{})
	appended, err := second.Append(ctx, "event", map[string]any{"n": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), appended.Sequence)
	assert.Equal(t, last.Hash, appended.PreviousHash)
}
