package audit

import (
	"context"
	"sync"

	"github.com/aureus-sentinel/bridge/types"
)

// MemoryStore is an in-process Store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.AuditEntry
}

// NewMemoryStore returns an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append appends entry to the in-memory slice.
func (m *MemoryStore) Append(ctx context.Context, entry types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Last returns the most recently appended entry.
func (m *MemoryStore) Last(ctx context.Context) (types.AuditEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return types.AuditEntry{}, false, nil
	}
	return m.entries[len(m.entries)-1], true, nil
}

// Walk calls fn for every entry with Sequence >= from, in order.
func (m *MemoryStore) Walk(ctx context.Context, from uint64, fn func(types.AuditEntry) error) error {
	m.mu.RLock()
	snapshot := make([]types.AuditEntry, len(m.entries))
	copy(snapshot, m.entries)
	m.mu.RUnlock()

	for _, e := range snapshot {
		if e.Sequence < from {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// TamperPayload mutates the payload of the entry at the given sequence,
// for exercising Verify's tamper-detection path in tests.
func (m *MemoryStore) TamperPayload(seq uint64, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].Sequence == seq {
			if m.entries[i].Payload == nil {
				m.entries[i].Payload = map[string]any{}
			}
			m.entries[i].Payload[key] = value
			return
		}
	}
}
