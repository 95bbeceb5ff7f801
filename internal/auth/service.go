package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicore.org/internal/ids"
	"clinicore.org/internal/obs"
	"clinicore.org/internal/session"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "clinicore"
)

// SessionRegistry is the slice of the ephemeral store the core drives.
// *session.Registry satisfies it; a nil registry disables the session layer
// without affecting token correctness.
type SessionRegistry interface {
	Create(ctx context.Context, s *session.Session) error
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAll(ctx context.Context, identityID string) error
	UpdateOrganization(ctx context.Context, identityID, organizationID string) error
	Blacklist(ctx context.Context, jti string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Service issues and rotates credentials, backed by the durable stores and
// the session registry.
type Service struct {
	identities IdentityStore
	tokens     RefreshTokenStore
	directory  *Directory
	sessions   SessionRegistry

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithSessions wires the session registry.
func WithSessions(reg SessionRegistry) ServiceOption {
	return func(s *Service) error {
		s.sessions = reg
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the auth core. The signing secret is mandatory.
func NewService(identities IdentityStore, roles RoleStore, tokens RefreshTokenStore, secret string, opts ...ServiceOption) (*Service, error) {
	if identities == nil || roles == nil || tokens == nil {
		return nil, errors.New("auth: all stores are required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		identities: identities,
		tokens:     tokens,
		directory:  NewDirectory(roles, NewCaches()),
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Directory exposes the role catalog for admin surfaces.
func (s *Service) Directory() *Directory { return s.directory }

// Login verifies credentials and issues a fresh token pair plus a session.
func (s *Service) Login(ctx context.Context, email, password, organizationID string, device DeviceMeta) (TokenPair, *Identity, error) {
	identity, err := s.verifyCredentials(ctx, email, password, organizationID)
	if err != nil {
		obs.ObserveLogin("denied")
		return TokenPair{}, nil, err
	}
	pair, err := s.issue(ctx, identity, device)
	if err != nil {
		return TokenPair{}, nil, err
	}
	_ = s.identities.MarkLastLogin(ctx, identity.ID)
	obs.ObserveLogin("ok")
	return pair, identity, nil
}

// Register creates an identity through the public self-service flow and logs
// it in. Only clinical staff roles may be self-assigned; ADMIN and SUPER_ADMIN
// are granted exclusively through CreateIdentity behind an authorized surface.
// Duplicate email within the organization surfaces as ErrConflict.
func (s *Service) Register(ctx context.Context, in NewIdentity, device DeviceMeta) (TokenPair, *Identity, error) {
	for _, name := range in.RoleNames {
		if !SelfServeRole(name) {
			return TokenPair{}, nil, fmt.Errorf("%w: role %s cannot be self-assigned", ErrForbidden, name)
		}
	}
	identity, err := s.CreateIdentity(ctx, in)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.issue(ctx, identity, device)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, identity, nil
}

// CreateIdentity creates an identity without issuing credentials. Unlike
// Register it places no restriction on role names; callers gate it behind an
// identities:write authorization check.
func (s *Service) CreateIdentity(ctx context.Context, in NewIdentity) (*Identity, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	roleNames := in.RoleNames
	if len(roleNames) == 0 {
		roleNames = []string{DefaultRoleName}
	}
	roleIDs := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.directory.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, role.ID)
	}

	identity := &Identity{
		ID:             ids.New(),
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		Email:          email,
		PasswordHash:   hash,
		Active:         true,
		RoleIDs:        roleIDs,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// EnsureAdmin creates the SUPER_ADMIN identity with the given email if it does
// not exist yet, and returns the existing one otherwise. It backs the startup
// bootstrap so a fresh deployment has an operator account.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, organizationID string) (*Identity, error) {
	existing, err := s.identities.FindByEmail(ctx, strings.TrimSpace(strings.ToLower(email)), organizationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateIdentity(ctx, NewIdentity{
		OrganizationID: organizationID,
		Email:          email,
		Password:       password,
		RoleNames:      []string{RoleNameSuperAdmin},
	})
}

// Refresh redeems a refresh token for a new pair. Rotation is single-use: the
// old record is revoked before the new pair exists, and a concurrent
// redemption of the same value observes the revoked record.
func (s *Service) Refresh(ctx context.Context, refreshValue string, device DeviceMeta) (TokenPair, error) {
	tokenID, secret, err := splitRefreshValue(refreshValue)
	if err != nil {
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}
	record, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		// Wrong secret for a live record id: burn the record.
		_, _ = s.tokens.MarkRevoked(ctx, record.ID)
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}

	identity, err := s.identities.FindByID(ctx, record.IdentityID)
	if err != nil {
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}
	if !identity.Active {
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}

	// The conditional update decides the race: exactly one concurrent
	// redemption flips revoked and proceeds.
	rotated, err := s.tokens.MarkRevoked(ctx, record.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		obs.ObserveRefresh("rejected")
		return TokenPair{}, ErrInvalidOrExpiredToken
	}

	// Rotation keeps the caller on the session it started with; only the
	// credentials change hands.
	pair, err := s.issueSession(ctx, identity, device, record.SessionID)
	if err != nil {
		return TokenPair{}, err
	}
	obs.ObserveRefresh("ok")
	return pair, nil
}

// Logout revokes one refresh token and drops the session it belongs to.
// Unknown values are ignored; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshValue string) error {
	tokenID, _, err := splitRefreshValue(refreshValue)
	if err != nil {
		return nil
	}
	record, err := s.tokens.FindByID(ctx, tokenID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.tokens.MarkRevoked(ctx, record.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if s.sessions != nil && record.SessionID != "" {
		return s.sessions.Invalidate(ctx, record.SessionID)
	}
	return nil
}

// LogoutAll revokes every live refresh token of the identity and tears down
// its sessions.
func (s *Service) LogoutAll(ctx context.Context, identityID string) error {
	if err := s.tokens.MarkAllRevokedForIdentity(ctx, identityID); err != nil {
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.InvalidateAll(ctx, identityID); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword verifies the old password, stores the new hash and revokes
// every outstanding credential of the identity.
func (s *Service) ChangePassword(ctx context.Context, identityID, oldPassword, newPassword string) error {
	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(identity.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.identities.UpdatePassword(ctx, identityID, hash); err != nil {
		return err
	}
	return s.LogoutAll(ctx, identityID)
}

// RevokeAccess blacklists the access token's jti for its remaining lifetime
// and drops the matching session, so the token dies before natural expiry.
func (s *Service) RevokeAccess(ctx context.Context, claims *Claims) error {
	if s.sessions == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.sessions.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time)
}

// issue starts a new session for the identity and hands out a token pair.
// Login, Register and SwitchOrganization go through here; Refresh reuses the
// session the chain started with via issueSession.
func (s *Service) issue(ctx context.Context, identity *Identity, device DeviceMeta) (TokenPair, error) {
	return s.issueSession(ctx, identity, device, "")
}

// issueSession resolves effective permissions, signs the access token,
// persists a refresh record and writes the session. A non-empty sessionID
// rewrites the existing session in place instead of creating another one, so
// each rotation chain maps to exactly one session.
func (s *Service) issueSession(ctx context.Context, identity *Identity, device DeviceMeta, sessionID string) (TokenPair, error) {
	eff, err := s.directory.Resolve(ctx, identity)
	if err != nil {
		return TokenPair{}, err
	}
	now := s.now().UTC()

	accessToken, _, err := s.signAccessToken(identity, eff.Roles, eff.Permissions, now)
	if err != nil {
		return TokenPair{}, err
	}

	if s.sessions != nil {
		sess := &session.Session{
			ID:             sessionID,
			IdentityID:     identity.ID,
			OrganizationID: identity.OrganizationID,
			Roles:          eff.Roles,
			Permissions:    eff.Permissions,
			IP:             device.IP,
			UserAgent:      device.UserAgent,
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return TokenPair{}, err
		}
		sessionID = sess.ID
	}

	refreshValue, record, err := s.generateRefreshToken(identity.ID, device, now)
	if err != nil {
		return TokenPair{}, err
	}
	record.SessionID = sessionID
	if err := s.tokens.Insert(ctx, record); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) generateRefreshToken(identityID string, device DeviceMeta, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))

	record := &RefreshToken{
		ID:         ids.New(),
		IdentityID: identityID,
		TokenHash:  hex.EncodeToString(sum[:]),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
		IP:         device.IP,
		UserAgent:  device.UserAgent,
	}
	return record.ID + "." + secret, record, nil
}

func splitRefreshValue(raw string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return id, secret, nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
