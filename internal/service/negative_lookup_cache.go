package service

import (
	"context"
	"sync"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/security"
)

// NegativeLookupCache remembers bearer tokens known not to exist so repeated lookups with
// unknown tokens skip the database. Only absence is cached; an existing but revoked token is
// always read from the store.
type NegativeLookupCache interface {
	IsKnownMissing(ctx context.Context, token string) (bool, error)
	RememberMissing(ctx context.Context, token string, ttl time.Duration) error
	Forget(ctx context.Context) error
}

type NoopNegativeLookupCache struct{}

func NewNoopNegativeLookupCache() *NoopNegativeLookupCache { return &NoopNegativeLookupCache{} }

func (NoopNegativeLookupCache) IsKnownMissing(context.Context, string) (bool, error) {
	return false, nil
}

func (NoopNegativeLookupCache) RememberMissing(context.Context, string, time.Duration) error {
	return nil
}

func (NoopNegativeLookupCache) Forget(context.Context) error { return nil }

const defaultNegativeLookupEntries = 50_000

// InMemoryNegativeLookupCache holds at most maxEntries fingerprints. Expired entries are swept
// when the cache fills; if it is still full the whole cache is dropped, which only costs a few
// extra database lookups.
type InMemoryNegativeLookupCache struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	now        func() time.Time
	maxEntries int
}

func NewInMemoryNegativeLookupCache() *InMemoryNegativeLookupCache {
	return &InMemoryNegativeLookupCache{
		entries:    make(map[string]time.Time),
		now:        time.Now,
		maxEntries: defaultNegativeLookupEntries,
	}
}

func (c *InMemoryNegativeLookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *InMemoryNegativeLookupCache) IsKnownMissing(_ context.Context, token string) (bool, error) {
	key := security.Fingerprint(token)
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if !c.now().Before(expiresAt) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

func (c *InMemoryNegativeLookupCache) RememberMissing(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := security.Fingerprint(token)
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		for k, expiresAt := range c.entries {
			if !now.Before(expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxEntries {
			c.entries = make(map[string]time.Time)
		}
	}
	c.entries[key] = now.Add(ttl)
	return nil
}

func (c *InMemoryNegativeLookupCache) Forget(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]time.Time)
	return nil
}
