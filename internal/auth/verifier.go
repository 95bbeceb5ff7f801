package auth

import (
	"context"
	"strings"
)

// verifyCredentials checks an (email, password, optional organization) triple
// against stored identities. Lookup is scoped by organization when provided;
// without one the search is restricted to elevated cross-tenant identities.
// Every lookup or comparison failure collapses to ErrInvalidCredentials so a
// caller cannot enumerate accounts. Read-only: login side effects belong to
// the caller.
func (s *Service) verifyCredentials(ctx context.Context, email, password, organizationID string) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	organizationID = strings.TrimSpace(organizationID)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	identity, err := s.identities.FindByEmail(ctx, email, organizationID)
	if err != nil || identity == nil {
		return nil, ErrInvalidCredentials
	}

	if organizationID == "" {
		// Cross-organization lookup is only permitted for elevated identities.
		eff, err := s.directory.Resolve(ctx, identity)
		if err != nil || !ElevatedIn(eff.Roles) {
			return nil, ErrInvalidCredentials
		}
	}

	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	// Only a correct password reveals the inactive state; a guessing client
	// still sees the generic failure.
	if !identity.Active {
		return nil, ErrAccountInactive
	}
	return identity, nil
}
