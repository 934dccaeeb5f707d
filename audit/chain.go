// Package audit implements the append-only, hash-linked audit chain.
// Entries are not signed: each carries the SHA-256 of its own canonical
// form (with the Hash field cleared) and its predecessor's hash, and
// integrity rests on that linkage and the earliest-break-detection walk:
// the entry graph is a singly-linked hash chain, not a session log.
//
// The chain has a single writer, enforced by an internal mutex. A failed
// append is fatal to the operation that triggered it: callers must treat
// Append's error as a reason to abort before any downstream side effect
// (spec.md's durability boundary for the Bridge).
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/aureus-sentinel/bridge/canon"
	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/types"
)

// ZeroHash is the previousHash value used by the chain's first entry.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Store persists and retrieves audit entries. Implementations must
// guarantee that Append is visible to Last/Walk before Append returns,
// and that entries already returned by Walk are never mutated.
type Store interface {
	// Append durably writes entry, returning an error if and only if the
	// entry was not durably persisted.
	Append(ctx context.Context, entry types.AuditEntry) error
	// Last returns the most recently appended entry, or ok=false if the
	// chain is empty.
	Last(ctx context.Context) (entry types.AuditEntry, ok bool, err error)
	// Walk calls fn for every entry in sequence order starting at
	// sequence >= from. Walk stops and returns fn's error if fn returns
	// one.
	Walk(ctx context.Context, from uint64, fn func(types.AuditEntry) error) error
}

// Chain is the single-writer handle the Bridge owns and injects into
// every component that must record audit entries.
type Chain struct {
	mu       sync.Mutex
	store    Store
	clock    clock.Clock
	lastHash string
	lastSeq  uint64
	loaded   bool
}

// New constructs a Chain over store. The chain lazily loads its tail
// state (lastSeq/lastHash) from store on first Append or Verify call so
// construction never fails due to a store that isn't ready yet.
func New(store Store, c clock.Clock) *Chain {
	if c == nil {
		c = clock.Real{}
	}
	return &Chain{store: store, clock: c}
}

func (c *Chain) ensureLoaded(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	last, ok, err := c.store.Last(ctx)
	if err != nil {
		return fmt.Errorf("audit: load chain tail: %w", err)
	}
	if ok {
		c.lastSeq = last.Sequence
		c.lastHash = last.Hash
	} else {
		c.lastSeq = 0
		c.lastHash = ZeroHash
	}
	c.loaded = true
	return nil
}

// Append assigns the next sequence number, links the entry to the prior
// entry's hash, computes this entry's own hash, and durably persists it.
// On any error the in-memory tail is left unchanged so a retried Append
// (by a caller that aborts and does not retry silently, per the
// surrounding operation's own failure policy) reassigns the same
// sequence number rather than skipping one.
func (c *Chain) Append(ctx context.Context, action string, payload map[string]any, metadata map[string]string) (types.AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return types.AuditEntry{}, err
	}

	entry := types.AuditEntry{
		Sequence:     c.lastSeq + 1,
		Timestamp:    c.clock.Now().UTC(),
		Action:       action,
		Payload:      payload,
		Metadata:     metadata,
		PreviousHash: c.lastHash,
	}
	hash, err := computeHash(entry)
	if err != nil {
		return types.AuditEntry{}, fmt.Errorf("audit: compute hash: %w", err)
	}
	entry.Hash = hash

	if err := c.store.Append(ctx, entry); err != nil {
		return types.AuditEntry{}, fmt.Errorf("audit: persist entry seq=%d: %w", entry.Sequence, err)
	}

	c.lastSeq = entry.Sequence
	c.lastHash = entry.Hash
	return entry, nil
}

// computeHash returns the hex SHA-256 digest of the canonical serialization
// of entry with its Hash field cleared. Canonicalization is the only
// serialization used for hashing, matching the signer's canonicalization
// of approvals.
func computeHash(entry types.AuditEntry) (string, error) {
	raw, err := canon.Marshal(entry.WithoutHash())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyResult is the outcome of walking the chain.
type VerifyResult struct {
	OK             bool
	FirstBrokenSeq uint64 // valid only when !OK
	EntriesChecked uint64
}

// Verify walks the chain from sequence 1, recomputing each entry's hash
// and checking linkage against the previous entry. The first mismatch —
// whether from a tampered payload, a tampered previousHash, or a
// discontinuous sequence — is reported as FirstBrokenSeq and is fatal to
// trusting the chain beyond that point.
func (c *Chain) Verify(ctx context.Context) (VerifyResult, error) {
	result := VerifyResult{OK: true}
	expectedSeq := uint64(1)
	prevHash := ZeroHash

	err := c.store.Walk(ctx, 1, func(entry types.AuditEntry) error {
		result.EntriesChecked++
		if entry.Sequence != expectedSeq {
			result.OK = false
			result.FirstBrokenSeq = expectedSeq
			return errStopWalk
		}
		if entry.PreviousHash != prevHash {
			result.OK = false
			result.FirstBrokenSeq = entry.Sequence
			return errStopWalk
		}
		wantHash, err := computeHash(entry)
		if err != nil {
			return err
		}
		if wantHash != entry.Hash {
			result.OK = false
			result.FirstBrokenSeq = entry.Sequence
			return errStopWalk
		}
		prevHash = entry.Hash
		expectedSeq++
		return nil
	})
	if err != nil && err != errStopWalk {
		return VerifyResult{}, fmt.Errorf("audit: verify walk: %w", err)
	}
	return result, nil
}

var errStopWalk = fmt.Errorf("audit: stop walk")

// LastSequence returns the sequence number of the most recently appended
// entry, or 0 if the chain is empty. Intended for diagnostics and health
// checks; it does not trigger a fresh load from the store.
func (c *Chain) LastSequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}
