package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aureus-sentinel/bridge/types"
)

// FileStore persists audit entries as one JSON object per line in an
// append-only file, fsync'd after every write, matching spec.md's
// on-disk audit entry format. It is its own single-process writer lock;
// Chain's own mutex additionally serializes Append calls above it.
type FileStore struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileStore opens (creating if necessary) the audit log at path for
// appending. The file is never truncated: truncation or out-of-order
// writes made outside this process are exactly what Verify is meant to
// catch.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileStore{file: f}, nil
}

// Close releases the underlying file handle.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// Append writes entry as one JSON line and fsyncs before returning. A
// failure at any stage (marshal, write, sync) is returned, wrapped with
// the name of the failing stage, so the
// caller aborts rather than believing the entry is durable.
func (f *FileStore) Append(ctx context.Context, entry types.AuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	raw = append(raw, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.file.Write(raw); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("audit: fsync entry: %w", err)
	}
	return nil
}

// Last reads the file from the beginning and returns its final entry.
// Audit append is rare relative to application traffic, so a full scan
// on each Append's first call (cached by Chain.loaded thereafter) is an
// acceptable startup cost.
func (f *FileStore) Last(ctx context.Context) (types.AuditEntry, bool, error) {
	var last types.AuditEntry
	found := false
	err := f.Walk(ctx, 0, func(e types.AuditEntry) error {
		last = e
		found = true
		return nil
	})
	if err != nil {
		return types.AuditEntry{}, false, err
	}
	return last, found, nil
}

// Walk reads the file from the start and calls fn for every entry with
// Sequence >= from, in file order.
func (f *FileStore) Walk(ctx context.Context, from uint64, fn func(types.AuditEntry) error) error {
	f.mu.Lock()
	if _, err := f.file.Seek(0, 0); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("audit: seek: %w", err)
	}
	scanner := bufio.NewScanner(f.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var lines [][]byte
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	scanErr := scanner.Err()
	f.mu.Unlock()
	if scanErr != nil {
		return fmt.Errorf("audit: scan: %w", scanErr)
	}

	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var entry types.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("audit: decode entry: %w", err)
		}
		if entry.Sequence < from {
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}
