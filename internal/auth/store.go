package auth

import (
	"context"
	"time"
)

// IdentityStore describes identity persistence the core relies on.
// FindByEmail with an empty organizationID searches across tenants; the
// credential verifier only takes that path for elevated-role holders.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email, organizationID string) (*Identity, error)
	UpdateOrganization(ctx context.Context, id, organizationID string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkLastLogin(ctx context.Context, id string) error
	// IsMember reports whether the identity has an established relationship
	// to the organization (its home org or a recorded membership).
	IsMember(ctx context.Context, identityID, organizationID string) (bool, error)
}

// RoleStore is the durable role catalog.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	FindByName(ctx context.Context, name string) (*Role, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Role, error)
}

// RefreshTokenStore manages refresh token lifecycle. MarkRevoked is the
// rotation linchpin: it must flip revoked=false to true conditionally and
// report whether this call won, so concurrent redemptions of the same value
// succeed at most once.
type RefreshTokenStore interface {
	Insert(ctx context.Context, tok *RefreshToken) error
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) (bool, error)
	MarkAllRevokedForIdentity(ctx context.Context, identityID string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
