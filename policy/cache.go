// Package policy provides hot-reloadable tool profile registry loading
// for Sentinel. This file implements a generation-counted, copy-on-write
// cache around a Loader so in-flight decisions can pin the exact registry
// snapshot they observed.
package policy

import (
	"context"
	"sync"
	"time"
)

// Loader loads a Registry from a source, identified by a source-specific
// name (an SSM parameter path, a file path, and so on).
type Loader interface {
	Load(ctx context.Context, source string) (*Registry, error)
}

// generation bundles a compiled index with the monotonically increasing
// counter identifying it. Decisions pin the generation they observed so
// the Plan can be replayed against the exact policy snapshot later.
type generation struct {
	gen      uint64
	registry *Registry
	index    byTool
	expiry   time.Time
}

// CachedLoader wraps a Loader with TTL-based caching and a generation
// counter that increments every time a fresh Registry is fetched,
// whether or not its content changed. The cache is copy-on-write:
// readers always observe a complete, internally consistent generation
// and never see a partially-updated Registry. Safe for concurrent use.
type CachedLoader struct {
	loader Loader
	source string
	ttl    time.Duration

	mu      sync.RWMutex
	current *generation

	onGeneration func(ctx context.Context, gen uint64, registry *Registry)
}

// NewCachedLoader wraps loader, caching the Registry fetched from source
// for ttl before refreshing.
func NewCachedLoader(loader Loader, source string, ttl time.Duration) *CachedLoader {
	return &CachedLoader{loader: loader, source: source, ttl: ttl}
}

// OnGeneration registers a callback invoked synchronously every time a
// fresh Registry is loaded and assigned a new generation number, while
// the loader's write lock is held. The replay harness needs the exact
// registry a past Plan was decided against, and CachedLoader itself only
// ever retains the current generation; a caller that needs replayable
// history (for example by persisting each generation to the Event Store)
// wires itself in here.
func (c *CachedLoader) OnGeneration(fn func(ctx context.Context, gen uint64, registry *Registry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onGeneration = fn
}

// Current returns the cached (registry, index, generation), refreshing
// from the underlying Loader if the cache is empty or expired.
func (c *CachedLoader) Current(ctx context.Context) (*Registry, byTool, uint64, error) {
	c.mu.RLock()
	if c.current != nil && time.Now().Before(c.current.expiry) {
		g := c.current
		c.mu.RUnlock()
		return g.registry, g.index, g.gen, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock: another goroutine may
	// have already refreshed while we were waiting.
	if c.current != nil && time.Now().Before(c.current.expiry) {
		return c.current.registry, c.current.index, c.current.gen, nil
	}

	registry, err := c.loader.Load(ctx, c.source)
	if err != nil {
		return nil, nil, 0, err
	}

	nextGen := uint64(1)
	if c.current != nil {
		nextGen = c.current.gen + 1
	}
	c.current = &generation{
		gen:      nextGen,
		registry: registry,
		index:    Compile(registry),
		expiry:   time.Now().Add(c.ttl),
	}
	if c.onGeneration != nil {
		c.onGeneration(ctx, c.current.gen, c.current.registry)
	}
	return c.current.registry, c.current.index, c.current.gen, nil
}

// Generation returns the currently cached generation counter without
// triggering a refresh, or 0 if nothing has been loaded yet.
func (c *CachedLoader) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return 0
	}
	return c.current.gen
}
