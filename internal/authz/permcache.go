package authz

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PermissionSource is the narrow read interface Resolver needs from the
// RBAC repository.
type PermissionSource interface {
	PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type cacheEntry struct {
	permissions map[string]struct{}
	cachedAt    time.Time
}

// PermissionCache is a per-user, TTL-bounded permission set cache (§3: "cached
// per user for <=30s"). Shape mirrors the teacher's MarketService active-market
// cache (sync.RWMutex + cached timestamp), generalized to a per-key map.
type PermissionCache struct {
	source PermissionSource
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry
}

// NewPermissionCache constructs a PermissionCache with the given TTL.
func NewPermissionCache(source PermissionSource, ttl time.Duration) *PermissionCache {
	return &PermissionCache{source: source, ttl: ttl, entries: make(map[uuid.UUID]cacheEntry)}
}

// Get returns userID's permission set, refreshing from source if the
// cached entry is missing or older than ttl.
func (c *PermissionCache) Get(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	fresh := ok && time.Since(entry.cachedAt) <= c.ttl
	c.mu.RUnlock()

	if fresh {
		return entry.permissions, nil
	}

	names, err := c.source.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	c.mu.Lock()
	c.entries[userID] = cacheEntry{permissions: set, cachedAt: time.Now()}
	c.mu.Unlock()

	return set, nil
}

// Invalidate drops userID's cached entry, called explicitly on role changes
// (§4.2) so the next Get reflects the new grant set immediately rather than
// waiting out the TTL.
func (c *PermissionCache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
