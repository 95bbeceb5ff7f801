package auth

import (
	"context"
	"fmt"
	"strings"
)

// SwitchOrganization re-scopes an authenticated identity to another
// organization it belongs to and issues a pair bound to the new scope.
// An identity may never switch into an organization it has no relationship
// to; elevated cross-tenant roles may switch anywhere. The membership check
// runs before any write, so a Forbidden outcome leaves no partial state.
func (s *Service) SwitchOrganization(ctx context.Context, identityID, targetOrganizationID string, device DeviceMeta) (TokenPair, error) {
	targetOrganizationID = strings.TrimSpace(targetOrganizationID)
	if targetOrganizationID == "" {
		return TokenPair{}, fmt.Errorf("%w: target organization is required", ErrForbidden)
	}

	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return TokenPair{}, err
	}
	if !identity.Active {
		return TokenPair{}, ErrUnauthenticated
	}
	if identity.OrganizationID == targetOrganizationID {
		// Already in scope; re-issue so the caller still gets fresh tokens.
		return s.issue(ctx, identity, device)
	}

	eff, err := s.directory.Resolve(ctx, identity)
	if err != nil {
		return TokenPair{}, err
	}
	if !ElevatedIn(eff.Roles) {
		member, err := s.identities.IsMember(ctx, identityID, targetOrganizationID)
		if err != nil {
			return TokenPair{}, err
		}
		if !member {
			return TokenPair{}, ErrForbidden
		}
	}

	if err := s.identities.UpdateOrganization(ctx, identityID, targetOrganizationID); err != nil {
		return TokenPair{}, err
	}
	identity.OrganizationID = targetOrganizationID

	pair, err := s.issue(ctx, identity, device)
	if err != nil {
		return TokenPair{}, err
	}

	if s.sessions != nil {
		if err := s.sessions.UpdateOrganization(ctx, identityID, targetOrganizationID); err != nil {
			return TokenPair{}, err
		}
	}
	return pair, nil
}
