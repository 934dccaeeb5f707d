package eventstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aureus-sentinel/bridge/internal/clock"
)

func TestMemoryStore_AppendAssignsOrderedSeq(t *testing.T) {
	store := NewMemoryStore(clock.Real{})
	ctx := context.Background()

	e1, err := store.Append(ctx, "intent.received", map[string]any{"intentId": "i-1"})
	require.NoError(t, err)
	e2, err := store.Append(ctx, "plan.generated", map[string]any{"intentId": "i-1", "planId": "p-1"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
}

func TestMemoryStore_QueryByIntentID(t *testing.T) {
	store := NewMemoryStore(clock.Real{})
	ctx := context.Background()

	_, err := store.Append(ctx, "intent.received", map[string]any{"intentId": "i-1"})
	require.NoError(t, err)
	_, err = store.Append(ctx, "intent.received", map[string]any{"intentId": "i-2"})
	require.NoError(t, err)

	results, err := store.Query(ctx, Query{IntentID: "i-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "i-1", results[0].Body["intentId"])
}

func TestMemoryStore_QueryRespectsFromSeq(t *testing.T) {
	store := NewMemoryStore(clock.Real{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "event", map[string]any{"n": i})
		require.NoError(t, err)
	}

	results, err := store.Query(ctx, Query{FromSeq: 4})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(4), results[0].Seq)
}
