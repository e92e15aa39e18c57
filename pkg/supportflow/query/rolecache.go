package query

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Cache sizing defaults for role lookups.
const (
	DefaultRoleCacheSize = 1024
	DefaultRoleCacheTTL  = 5 * time.Minute
)

type roleEntry struct {
	role    Role
	expires time.Time
}

// RoleCache is a bounded, TTL-limited cache of role lookups keyed by
// user id. When full it evicts expired entries first, then the entry
// closest to expiry.
type RoleCache struct {
	mu      sync.Mutex
	entries map[int64]roleEntry
	size    int
	ttl     time.Duration
	now     func() time.Time
}

// NewRoleCache creates a cache with the given capacity and entry TTL.
// Non-positive values fall back to the defaults.
func NewRoleCache(size int, ttl time.Duration) *RoleCache {
	if size <= 0 {
		size = DefaultRoleCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultRoleCacheTTL
	}
	return &RoleCache{
		entries: make(map[int64]roleEntry),
		size:    size,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached role for a user if present and fresh.
func (c *RoleCache) Get(userID int64) (Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, userID)
		return RoleCustomer, false
	}
	return e.role, true
}

// Put stores a role lookup, evicting if the cache is full.
func (c *RoleCache) Put(userID int64, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[userID]; !ok && len(c.entries) >= c.size {
		c.evictLocked()
	}
	c.entries[userID] = roleEntry{role: role, expires: c.now().Add(c.ttl)}
}

// Len returns the number of cached entries, including expired ones
// not yet evicted.
func (c *RoleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RoleCache) evictLocked() {
	now := c.now()
	var victim int64
	var victimExpiry time.Time
	found := false
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
			return
		}
		if !found || e.expires.Before(victimExpiry) {
			victim, victimExpiry, found = id, e.expires, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

// RoleResolver looks up a caller's role from the users table, backed
// by the bounded cache.
type RoleResolver struct {
	db    *sql.DB
	cache *RoleCache
}

// NewRoleResolver creates a resolver over an open database handle.
func NewRoleResolver(db *sql.DB, cache *RoleCache) *RoleResolver {
	if cache == nil {
		cache = NewRoleCache(0, 0)
	}
	return &RoleResolver{db: db, cache: cache}
}

// Resolve returns the role for a user id. Unknown users resolve to
// customer, the least privileged role.
func (r *RoleResolver) Resolve(ctx context.Context, userID int64) (Role, error) {
	if role, ok := r.cache.Get(userID); ok {
		return role, nil
	}

	var userType int
	err := r.db.QueryRowContext(ctx, "SELECT user_type FROM users WHERE id = ?", userID).Scan(&userType)
	switch {
	case err == sql.ErrNoRows:
		return RoleCustomer, nil
	case err != nil:
		return RoleCustomer, &Error{Op: "resolve role", Err: err}
	}

	role := RoleFromUserType(userType)
	r.cache.Put(userID, role)
	return role, nil
}
