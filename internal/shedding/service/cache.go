// Package service provides the in-process policy cache used by load shedding
// evaluation.
package service

import (
	"sync"
	"time"

	"github.com/allisson/auditpipe/internal/shedding/domain"
)

// PolicyCache is a TTL-bounded cache of per-tenant shedding policies, keyed by
// tenant and indexed by event type. Reads are concurrent; invalidation is
// explicit by tenant or global. Expired entries read as misses so callers fall
// back to the store (or the fail-open default).
type PolicyCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is swappable for expiry tests.
	now func() time.Time
}

type cacheEntry struct {
	policies  map[string]*domain.Policy
	expiresAt time.Time
}

// NewPolicyCache creates a policy cache with the given TTL.
func NewPolicyCache(ttl time.Duration) *PolicyCache {
	return &PolicyCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached policies for a tenant, indexed by event type. The
// second return value reports a fresh hit; expired entries are misses.
func (c *PolicyCache) Get(tenantID string) (map[string]*domain.Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tenantID]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.policies, true
}

// Set stores a tenant's policies, resetting the entry's TTL.
func (c *PolicyCache) Set(tenantID string, policies []*domain.Policy) {
	indexed := make(map[string]*domain.Policy, len(policies))
	for _, policy := range policies {
		indexed[policy.EventType] = policy
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = cacheEntry{
		policies:  indexed,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes a single tenant's entry.
func (c *PolicyCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

// InvalidateAll removes every entry.
func (c *PolicyCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of cached tenants, expired entries included.
func (c *PolicyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
