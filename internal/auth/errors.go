package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers every login failure. It never distinguishes
	// "no such email" from "wrong password".
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountInactive is returned only after a correct password matched a
	// deactivated identity, so it leaks nothing to a guessing client.
	ErrAccountInactive = errors.New("auth: account inactive")

	// ErrConflict covers duplicate email within an organization and duplicate
	// unique identifiers.
	ErrConflict = errors.New("auth: already exists")

	// ErrInvalidInput covers malformed registration input rejected before any
	// store write.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrInvalidOrExpiredToken covers refresh-token rotation failures: absent,
	// revoked, expired or replayed values.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired token")

	// ErrUnauthenticated covers missing/invalid/expired/blacklisted access
	// tokens. Maps to 401: the client should re-authenticate.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden covers role, tenant-membership and permission failures.
	// Maps to 403: re-authentication will not help.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrNotFound is the generic store miss.
	ErrNotFound = errors.New("auth: not found")
)

// ErrStaleScope is the stale-organization-scope case of ErrUnauthenticated:
// the token was issued before an organization switch. Distinguished so a
// client knows to re-authenticate rather than simply retry.
var ErrStaleScope = fmt.Errorf("%w: stale organization scope", ErrUnauthenticated)

// ForbiddenPermissionError names the first unmet permission of a rejected
// request. It unwraps to ErrForbidden.
type ForbiddenPermissionError struct {
	Permission string
}

func (e *ForbiddenPermissionError) Error() string {
	return fmt.Sprintf("auth: forbidden: missing permission %s", e.Permission)
}

func (e *ForbiddenPermissionError) Unwrap() error { return ErrForbidden }
