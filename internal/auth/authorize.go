package auth

import (
	"context"
	"strings"

	"clinicore.org/internal/obs"
	"clinicore.org/internal/perm"
)

// AuthorizeRequest declares what the target operation demands.
type AuthorizeRequest struct {
	AccessToken string
	// RequiredRoles: the identity must hold at least one. Empty skips the
	// role stage.
	RequiredRoles []string
	// RequiredPermissions: every entry must be granted. Empty skips the
	// permission stage.
	RequiredPermissions []string
	// RequestedOrganizationID: explicit target tenant from header/path/body/
	// query, resolved by the transport layer. Empty defaults to the
	// identity's own organization.
	RequestedOrganizationID string
	// Public marks the operation as requiring no credentials at all.
	Public bool
}

// Decision is a granted authorization: the resolved tenant plus identity
// context for downstream handlers.
type Decision struct {
	Identity       *Identity
	Claims         *Claims
	OrganizationID string
	Roles          []string
	Permissions    []string
}

// Authorize runs the ordered guard stages. Cheap checks (signature,
// blacklist) run before store round-trips, and identity liveness precedes
// any tenant evaluation. Every rejection is a typed error; infrastructure
// failures propagate and never fail open.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (Decision, error) {
	// Stage 1: public bypass.
	if req.Public {
		return Decision{}, nil
	}

	// Stage 2a: signature and expiry.
	claims, err := s.VerifyAccessToken(req.AccessToken)
	if err != nil {
		obs.ObserveDenial("token")
		return Decision{}, ErrUnauthenticated
	}

	// Stage 2b: early revocation. A sliding session refresh must never
	// resurrect a blacklisted token, so this check is unconditional.
	if s.sessions != nil {
		blocked, err := s.sessions.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			return Decision{}, err
		}
		if blocked {
			obs.ObserveDenial("blacklist")
			return Decision{}, ErrUnauthenticated
		}
	}

	// Stage 2c: identity must still exist and be active.
	identity, err := s.identities.FindByID(ctx, claims.Subject)
	if err != nil {
		obs.ObserveDenial("identity")
		return Decision{}, ErrUnauthenticated
	}
	if !identity.Active {
		obs.ObserveDenial("identity")
		return Decision{}, ErrUnauthenticated
	}

	// Stage 2d: organization scope in the claims must match the recorded
	// scope; a mismatch is a token issued before an organization switch.
	if claims.OrganizationID != identity.OrganizationID {
		obs.ObserveDenial("scope")
		return Decision{}, ErrStaleScope
	}

	elevated := ElevatedIn(claims.Roles)

	// Stage 3: role check. An elevated role satisfies any role requirement.
	if len(req.RequiredRoles) > 0 && !elevated && !holdsAnyRole(claims.Roles, req.RequiredRoles) {
		obs.ObserveDenial("role")
		return Decision{}, ErrForbidden
	}

	// Stage 4: organization access. Elevated roles bypass membership.
	resolvedOrg := strings.TrimSpace(req.RequestedOrganizationID)
	if resolvedOrg == "" {
		resolvedOrg = identity.OrganizationID
	}
	if !elevated && resolvedOrg != identity.OrganizationID {
		obs.ObserveDenial("organization")
		return Decision{}, ErrForbidden
	}

	// Stage 5: fine-grained permissions.
	if len(req.RequiredPermissions) > 0 && !elevated {
		if missing := perm.FirstUnmet(claims.Permissions, req.RequiredPermissions); missing != "" {
			obs.ObserveDenial("permission")
			return Decision{}, &ForbiddenPermissionError{Permission: missing}
		}
	}

	return Decision{
		Identity:       identity,
		Claims:         claims,
		OrganizationID: resolvedOrg,
		Roles:          claims.Roles,
		Permissions:    claims.Permissions,
	}, nil
}

func holdsAnyRole(held, required []string) bool {
	for _, want := range required {
		want = strings.ToUpper(strings.TrimSpace(want))
		for _, have := range held {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}
