package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	portidem "github.com/alanyang/call-dispatch/internal/port/idempotency"
)

var ErrNotFound = errors.New("cache: not found")

// DefaultIdempotencyTTL bounds how long an upload result can be replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

type cacheEntry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is a TTL byte cache. It doubles as the in-process idempotency store.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ portidem.Store = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     DefaultIdempotencyTTL,
		now:     time.Now,
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// tenantKey scopes an idempotency key to its tenant.
func tenantKey(tenantID uuid.UUID, key string) string {
	return tenantID.String() + ":" + key
}

// Check implements port/idempotency.Store.
func (c *Cache) Check(ctx context.Context, tenantID uuid.UUID, key string) ([]byte, bool, error) {
	v, err := c.Get(ctx, tenantKey(tenantID, key))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Store implements port/idempotency.Store. The first result for a
// (tenant, key) pair wins.
func (c *Cache) Store(ctx context.Context, tenantID uuid.UUID, key string, _ string, resultJSON []byte) error {
	k := tenantKey(tenantID, key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok && !now.After(e.expiresAt) {
		return nil
	}
	c.entries[k] = cacheEntry{value: resultJSON, storedAt: now, expiresAt: now.Add(c.ttl)}
	return nil
}

// Invalidate implements port/idempotency.Store.
func (c *Cache) Invalidate(ctx context.Context, tenantID uuid.UUID, key string) error {
	c.Delete(ctx, tenantKey(tenantID, key))
	return nil
}

// Purge drops entries stored before cutoff or already expired.
func (c *Cache) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	now := c.now()
	var n int64

	c.mu.Lock()
	for k, e := range c.entries {
		if e.storedAt.Before(cutoff) || now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.mu.Unlock()
	return n, nil
}
