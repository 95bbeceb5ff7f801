package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"clinicore.org/internal/ids"
	"clinicore.org/internal/perm"
)

// Directory is the role catalog with cached lookups. Every permission list
// entering the catalog is validated and normalized first; every mutation
// invalidates the caches before returning, so a permission check that starts
// after a mutation returns can only observe the new role version.
type Directory struct {
	store  RoleStore
	caches *Caches
}

func NewDirectory(store RoleStore, caches *Caches) *Directory {
	return &Directory{store: store, caches: caches}
}

// FindByName is cache-first; a miss falls through to the store and populates
// the cache.
func (d *Directory) FindByName(ctx context.Context, name string) (*Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrNotFound
	}
	if role, ok := d.caches.role(name); ok {
		return role, nil
	}
	role, err := d.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	d.caches.storeRole(role)
	return role, nil
}

// FindByIDs loads roles uncached; it backs the per-identity effective
// computation which has its own cache.
func (d *Directory) FindByIDs(ctx context.Context, roleIDs []string) ([]*Role, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return d.store.FindByIDs(ctx, roleIDs)
}

// Create validates and normalizes the permission list, persists the role and
// invalidates the caches.
func (d *Directory) Create(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrConflict)
	}
	normalized, err := perm.Normalize(permissions)
	if err != nil {
		return nil, err
	}
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: normalized,
	}
	if err := d.store.Create(ctx, role); err != nil {
		return nil, err
	}
	d.caches.InvalidateRoles()
	return role, nil
}

// RoleUpdate mutates a role; nil fields keep the stored value.
type RoleUpdate struct {
	Description *string
	Permissions []string
}

// Update rewrites a role and invalidates every cached role lookup and every
// cached user-permission computation before returning.
func (d *Directory) Update(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	found, err := d.store.FindByIDs(ctx, []string{roleID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	role := found[0]
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		normalized, err := perm.Normalize(upd.Permissions)
		if err != nil {
			return nil, err
		}
		role.Permissions = normalized
	}
	if err := d.store.Update(ctx, role); err != nil {
		return nil, err
	}
	d.caches.InvalidateRoles()
	return role, nil
}

// Resolve computes the identity's effective role names and the normalized
// union of their permission lists, cached per identity with a shorter TTL
// than the role cache.
func (d *Directory) Resolve(ctx context.Context, identity *Identity) (Effective, error) {
	if eff, ok := d.caches.effective(identity.ID); ok {
		return eff, nil
	}
	roles, err := d.store.FindByIDs(ctx, identity.RoleIDs)
	if err != nil {
		return Effective{}, err
	}
	names := make([]string, 0, len(roles))
	seen := make(map[string]struct{})
	union := make([]string, 0, len(roles)*4)
	for _, r := range roles {
		names = append(names, r.Name)
		for _, p := range r.Permissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			union = append(union, p)
		}
	}
	// Stored lists were validated at role write time; only dedupe here so the
	// read path stays total.
	sort.Strings(union)
	eff := Effective{Roles: names, Permissions: union}
	d.caches.storeEffective(identity.ID, eff)
	return eff, nil
}

// InvalidateIdentity drops one identity's cached effective set, used when its
// role assignments change.
func (d *Directory) InvalidateIdentity(identityID string) {
	d.caches.InvalidateIdentity(identityID)
}
