package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EngineCache memoizes one query engine per room and option set. Concurrent
// first use of a key shares a single in-flight build; failed builds are not cached.
type EngineCache struct {
	factory EngineFactory
	group   singleflight.Group
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	logger  *zap.Logger
}

type cacheKey struct {
	roomID string
	opts   EngineOptions
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s|rulebooks=%t", k.roomID, k.opts.Rulebooks)
}

type cacheEntry struct {
	engine QueryEngine
	refs   int
}

// Handle is a reference-counted lease on a room's engine
type Handle struct {
	QueryEngine
	once    sync.Once
	release func()
}

// Release gives the lease back. Further calls are no-ops.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

// NewEngineCache creates an empty cache backed by factory
func NewEngineCache(factory EngineFactory, logger *zap.Logger) *EngineCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineCache{
		factory: factory,
		entries: make(map[cacheKey]*cacheEntry),
		logger:  logger.Named("llm.cache"),
	}
}

// Acquire returns a lease on the room's engine for opts, building it on first use
func (c *EngineCache) Acquire(ctx context.Context, roomID string, opts EngineOptions) (*Handle, error) {
	key := cacheKey{roomID: roomID, opts: opts}
	if entry := c.lease(key); entry != nil {
		return c.handle(entry), nil
	}

	_, err, shared := c.group.Do(key.String(), func() (any, error) {
		c.mu.Lock()
		_, exists := c.entries[key]
		c.mu.Unlock()
		if exists {
			return nil, nil
		}

		// One caller's cancellation must not fail every waiter on the build
		engine, err := c.factory(context.WithoutCancel(ctx), roomID, opts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if _, exists := c.entries[key]; !exists {
			c.entries[key] = &cacheEntry{engine: engine}
		}
		c.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		c.logger.Error("Acquire failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}

	entry := c.lease(key)
	if entry == nil {
		// Evicted between build and lease; build again
		return c.Acquire(ctx, roomID, opts)
	}

	c.logger.Debug("Acquire completed", zap.String("room_id", roomID),
		zap.Bool("rulebooks", opts.Rulebooks), zap.Bool("shared", shared))
	return c.handle(entry), nil
}

func (c *EngineCache) lease(key cacheKey) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	entry.refs++
	return entry
}

func (c *EngineCache) handle(entry *cacheEntry) *Handle {
	return &Handle{
		QueryEngine: entry.engine,
		release: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.refs--
		},
	}
}

// Evict drops every engine cached for the room. Outstanding leases keep
// their engine until released; the next Acquire builds a fresh one.
func (c *EngineCache) Evict(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if key.roomID != roomID {
			continue
		}
		delete(c.entries, key)
		evicted++
		c.logger.Info("Engine evicted", zap.String("room_id", roomID),
			zap.Bool("rulebooks", key.opts.Rulebooks), zap.Int("refs", entry.refs))
	}
	return evicted > 0
}

// Refs returns the number of outstanding leases on the room's cached engines
func (c *EngineCache) Refs(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs := 0
	for key, entry := range c.entries {
		if key.roomID == roomID {
			refs += entry.refs
		}
	}
	return refs
}

// Len returns the number of cached engines
func (c *EngineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
