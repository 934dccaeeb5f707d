package eventstore

import (
	"context"
	"sync"

	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/types"
)

// MemoryStore is an in-process Store for tests and single-process
// deployments.
type MemoryStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	events []types.Event
	lastSeq uint64
}

// NewMemoryStore returns an empty in-memory event store.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryStore{clock: c}
}

// Append assigns the next sequence number and stores the event.
func (m *MemoryStore) Append(ctx context.Context, eventType string, body map[string]any) (types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeq++
	event := types.Event{Seq: m.lastSeq, Type: eventType, Timestamp: m.clock.Now().UTC(), Body: body}
	m.events = append(m.events, event)
	return event, nil
}

// Query filters the in-memory event slice by q, returning at most
// clampLimit(q.Limit) results in ascending Seq order.
func (m *MemoryStore) Query(ctx context.Context, q Query) ([]types.Event, error) {
	m.mu.Lock()
	snapshot := make([]types.Event, len(m.events))
	copy(snapshot, m.events)
	m.mu.Unlock()

	limit := clampLimit(q.Limit)
	var out []types.Event
	for _, e := range snapshot {
		if matches(e, q) {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
