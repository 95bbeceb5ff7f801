package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// Role definitions change rarely relative to read volume.
	roleCacheTTL = time.Hour
	// Per-identity permission computations are invalidated explicitly on role
	// change; the TTL only bounds staleness after missed invalidations.
	permCacheTTL = 30 * time.Minute

	roleCacheSize = 256
	permCacheSize = 4096
)

// Caches holds the bounded, explicitly-invalidated lookup caches. They are an
// injected handle, not ambient state: every mutation path that can change an
// effective permission set goes through an invalidation method here. Cache
// availability is never a correctness dependency; a miss falls through to the
// store.
type Caches struct {
	roles *expirable.LRU[string, *Role]
	perms *expirable.LRU[string, Effective]
}

// Effective is one identity's resolved role names and the normalized union of
// their permission lists.
type Effective struct {
	Roles       []string
	Permissions []string
}

func NewCaches() *Caches {
	return &Caches{
		roles: expirable.NewLRU[string, *Role](roleCacheSize, nil, roleCacheTTL),
		perms: expirable.NewLRU[string, Effective](permCacheSize, nil, permCacheTTL),
	}
}

func (c *Caches) role(name string) (*Role, bool) {
	if c == nil {
		return nil, false
	}
	return c.roles.Get(name)
}

func (c *Caches) storeRole(r *Role) {
	if c == nil || r == nil {
		return
	}
	c.roles.Add(r.Name, r)
}

func (c *Caches) effective(identityID string) (Effective, bool) {
	if c == nil {
		return Effective{}, false
	}
	return c.perms.Get(identityID)
}

func (c *Caches) storeEffective(identityID string, eff Effective) {
	if c == nil {
		return
	}
	c.perms.Add(identityID, eff)
}

// InvalidateRoles drops every cached role lookup and every cached
// user-permission computation. A single role mutation can change the
// effective permissions of an unbounded number of identities, so both caches
// go together.
func (c *Caches) InvalidateRoles() {
	if c == nil {
		return
	}
	c.roles.Purge()
	c.perms.Purge()
}

// InvalidateIdentity drops one identity's cached permission computation,
// used when that identity's role assignments change.
func (c *Caches) InvalidateIdentity(identityID string) {
	if c == nil {
		return
	}
	c.perms.Remove(identityID)
}
