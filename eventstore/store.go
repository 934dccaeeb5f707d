// Package eventstore is the ordered, queryable, immutable log of state
// transitions used to drive the replay harness. It is distinct from the
// audit chain: events are operational history that may be compacted, but
// never reordered, whereas audit entries are security-critical and
// hash-linked.
package eventstore

import (
	"context"
	"errors"

	"github.com/aureus-sentinel/bridge/types"
)

// DefaultQueryLimit and MaxQueryLimit bound unbounded Query calls the
// same way the request store bounds its List operations.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// ErrSeqExists reports a duplicate sequence number. Neither MemoryStore
// nor PostgresStore returns it: both assign Seq themselves on Append.
var ErrSeqExists = errors.New("eventstore: sequence already exists")

// Query selects events from the store. Zero-value fields mean
// "unconstrained" except Limit, which defaults to DefaultQueryLimit when
// zero and is capped at MaxQueryLimit.
type Query struct {
	FromSeq  uint64
	Type     string
	IntentID string
	PlanID   string
	Limit    int
}

// Store defines ordered, append-only event persistence. Append is
// linearizable per store: two concurrent Appends never assign the same
// Seq. Implementations must be safe for concurrent use.
type Store interface {
	// Append assigns the next sequence number to event and persists it,
	// returning the assigned event.
	Append(ctx context.Context, eventType string, body map[string]any) (types.Event, error)
	// Query returns events matching q, ordered by ascending Seq.
	Query(ctx context.Context, q Query) ([]types.Event, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

func matches(e types.Event, q Query) bool {
	if e.Seq < q.FromSeq {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.IntentID != "" {
		if v, ok := e.Body["intentId"].(string); !ok || v != q.IntentID {
			return false
		}
	}
	if q.PlanID != "" {
		if v, ok := e.Body["planId"].(string); !ok || v != q.PlanID {
			return false
		}
	}
	return true
}
