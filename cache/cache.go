// Package cache provides the string cache in front of the SystemConfig table.
//
// Two layers are available, mirroring a classic L1/L2 setup:
//   - Memory: per-process map with TTL (L1)
//   - Redis:  shared across API instances (L2)
//
// Layered combines them: reads try L1, then L2 (back-filling L1); writes and
// deletes go to both.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache stores string values by key.
type Cache interface {
	// Get returns the value and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// =============================================================================
// MEMORY - L1
// =============================================================================

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process TTL cache. A zero TTL never expires.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{items: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}

// =============================================================================
// LAYERED - L1 + L2
// =============================================================================

// Layered reads through l1 then l2. L2 failures degrade to a miss so a Redis
// outage never blocks a request; they are logged.
type Layered struct {
	l1     Cache
	l2     Cache
	logger *zap.Logger
}

func NewLayered(l1, l2 Cache, logger *zap.Logger) *Layered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layered{l1: l1, l2: l2, logger: logger.Named("cache.layered")}
}

func (c *Layered) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := c.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		c.logger.Warn("l2 get failed", zap.String("key", key), zap.Error(err))
		return "", false, nil
	}
	if ok {
		_ = c.l1.Set(ctx, key, v)
	}
	return v, ok, nil
}

func (c *Layered) Set(ctx context.Context, key, value string) error {
	_ = c.l1.Set(ctx, key, value)
	if err := c.l2.Set(ctx, key, value); err != nil {
		c.logger.Warn("l2 set failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (c *Layered) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}
