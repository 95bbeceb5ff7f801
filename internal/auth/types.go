package auth

import "time"

// Organization is the tenant boundary. Most data and access checks are scoped
// to exactly one organization.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is a human account. Identities are deactivated, never hard-deleted.
type Identity struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Active         bool       `json:"active"`
	RoleIDs        []string   `json:"role_ids"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Role is an organization-independent catalog entry bundling permissions.
// The permission list is stored normalized (see internal/perm).
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RefreshToken is the durable record behind an opaque refresh token value.
// The secret half of the value is stored as a sha256 hash, never verbatim.
type RefreshToken struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	SessionID  string    `json:"session_id,omitempty"`
	TokenHash  string    `json:"-"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// DeviceMeta carries client network/device metadata recorded on token
// issuance and session creation.
type DeviceMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// TokenPair is the credential pair returned by login, refresh and
// organization switch.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// NewIdentity is the input for registration.
type NewIdentity struct {
	OrganizationID string   `json:"organization_id"`
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	RoleNames      []string `json:"roles,omitempty"`
}
