package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"clinicore.org/internal/ids"
	"clinicore.org/internal/session"
)

// In-memory stores backing the service tests.

type memIdentities struct {
	mu       sync.Mutex
	byID     map[string]*Identity
	members  map[string]map[string]bool
	elevated map[string]bool
}

func newMemIdentities() *memIdentities {
	return &memIdentities{
		byID:     map[string]*Identity{},
		members:  map[string]map[string]bool{},
		elevated: map[string]bool{},
	}
}

// markElevatedRole mirrors the SQL store: cross-tenant email lookup only
// matches identities holding an elevated role.
func (m *memIdentities) markElevatedRole(roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elevated[roleID] = true
}

func (m *memIdentities) holdsElevatedLocked(identity *Identity) bool {
	for _, roleID := range identity.RoleIDs {
		if m.elevated[roleID] {
			return true
		}
	}
	return false
}

func (m *memIdentities) Create(_ context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == identity.Email && existing.OrganizationID == identity.OrganizationID {
			return ErrConflict
		}
	}
	cp := *identity
	m.byID[identity.ID] = &cp
	return nil
}

func (m *memIdentities) FindByID(_ context.Context, id string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (m *memIdentities) FindByEmail(_ context.Context, email, organizationID string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email != email {
			continue
		}
		if organizationID == "" {
			if !m.holdsElevatedLocked(identity) {
				continue
			}
		} else if identity.OrganizationID != organizationID {
			continue
		}
		cp := *identity
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memIdentities) UpdateOrganization(_ context.Context, id, organizationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.OrganizationID = organizationID
	return nil
}

func (m *memIdentities) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.PasswordHash = passwordHash
	return nil
}

func (m *memIdentities) MarkLastLogin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[id]; ok {
		now := time.Now().UTC()
		identity.LastLoginAt = &now
	}
	return nil
}

func (m *memIdentities) IsMember(_ context.Context, identityID, organizationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[identityID]; ok && identity.OrganizationID == organizationID {
		return true, nil
	}
	return m.members[identityID][organizationID], nil
}

func (m *memIdentities) addMembership(identityID, organizationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[identityID] == nil {
		m.members[identityID] = map[string]bool{}
	}
	m.members[identityID][organizationID] = true
}

type memRoles struct {
	mu   sync.Mutex
	byID map[string]*Role
}

func newMemRoles() *memRoles { return &memRoles{byID: map[string]*Role{}} }

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Name == role.Name {
			return ErrConflict
		}
	}
	cp := *role
	m.byID[role.ID] = &cp
	return nil
}

func (m *memRoles) Update(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[role.ID]; !ok {
		return ErrNotFound
	}
	cp := *role
	m.byID[role.ID] = &cp
	return nil
}

func (m *memRoles) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.byID {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRoles) FindByIDs(_ context.Context, roleIDs []string) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		if role, ok := m.byID[id]; ok {
			cp := *role
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memTokens struct {
	mu   sync.Mutex
	byID map[string]*RefreshToken
}

func newMemTokens() *memTokens { return &memTokens{byID: map[string]*RefreshToken{}} }

func (m *memTokens) Insert(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.byID[tok.ID] = &cp
	return nil
}

func (m *memTokens) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memTokens) MarkRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if tok.Revoked {
		return false, nil
	}
	tok.Revoked = true
	return true, nil
}

func (m *memTokens) MarkAllRevokedForIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.byID {
		if tok.IdentityID == identityID {
			tok.Revoked = true
		}
	}
	return nil
}

func (m *memTokens) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, tok := range m.byID {
		if tok.ExpiresAt.Before(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

type memSessions struct {
	mu          sync.Mutex
	byID        map[string]*session.Session
	blacklist   map[string]time.Time
	invalidated []string
	orgRewrites []string
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*session.Session{}, blacklist: map[string]time.Time{}}
}

func (m *memSessions) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = ids.New()
	}
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) Invalidate(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, sessionID)
	return nil
}

func (m *memSessions) InvalidateAll(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.byID {
		if s.IdentityID == identityID {
			delete(m.byID, id)
		}
	}
	m.invalidated = append(m.invalidated, identityID)
	return nil
}

func (m *memSessions) UpdateOrganization(_ context.Context, identityID, organizationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.IdentityID == identityID {
			s.OrganizationID = organizationID
		}
	}
	m.orgRewrites = append(m.orgRewrites, identityID+":"+organizationID)
	return nil
}

func (m *memSessions) Blacklist(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Until(expiresAt) <= 0 {
		return nil
	}
	m.blacklist[jti] = expiresAt
	return nil
}

func (m *memSessions) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[jti]
	return ok, nil
}

// fixture wires a service with seeded roles and one doctor identity.

type fixture struct {
	svc        *Service
	identities *memIdentities
	roles      *memRoles
	tokens     *memTokens
	sessions   *memSessions
	doctor     *Identity
	roleIDs    map[string]string
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()

	identities := newMemIdentities()
	roles := newMemRoles()
	tokens := newMemTokens()
	sessions := newMemSessions()

	opts = append([]ServiceOption{WithSessions(sessions)}, opts...)
	svc, err := NewService(identities, roles, tokens, "test-secret", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	roleIDs := map[string]string{}
	for _, seed := range SeedRoles() {
		role, err := svc.Directory().Create(context.Background(), seed.Name, seed.Description, seed.Permissions)
		if err != nil {
			t.Fatalf("seed role %s: %v", seed.Name, err)
		}
		roleIDs[role.Name] = role.ID
	}
	identities.markElevatedRole(roleIDs[RoleNameSuperAdmin])

	hash, err := HashPassword("s3cret-pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	doctor := &Identity{
		ID:             ids.New(),
		OrganizationID: "org-a",
		Email:          "doctor@clinic.example",
		PasswordHash:   hash,
		Active:         true,
		RoleIDs:        []string{roleIDs[RoleNameDoctor]},
	}
	if err := identities.Create(context.Background(), doctor); err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	return &fixture{
		svc:        svc,
		identities: identities,
		roles:      roles,
		tokens:     tokens,
		sessions:   sessions,
		doctor:     doctor,
		roleIDs:    roleIDs,
	}
}

func (f *fixture) addSuperAdmin(t *testing.T) *Identity {
	t.Helper()
	hash, err := HashPassword("root-pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &Identity{
		ID:             ids.New(),
		OrganizationID: "org-a",
		Email:          "root@clinicore.example",
		PasswordHash:   hash,
		Active:         true,
		RoleIDs:        []string{f.roleIDs[RoleNameSuperAdmin]},
	}
	if err := f.identities.Create(context.Background(), admin); err != nil {
		t.Fatalf("create super admin: %v", err)
	}
	return admin
}

func TestLoginIssuesDecodableClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, identity, err := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{IP: "10.0.0.9"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if identity.ID != f.doctor.ID {
		t.Fatalf("unexpected identity: %s", identity.ID)
	}
	if pair.ExpiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", pair.ExpiresIn)
	}

	claims, err := f.svc.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.Subject != f.doctor.ID {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.OrganizationID != "org-a" {
		t.Fatalf("unexpected org: %s", claims.OrganizationID)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != RoleNameDoctor {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	// Normalized union of the doctor's role permissions.
	want := "appointments:read appointments:write patients:read patients:write prescriptions:read prescriptions:write records:read records:write"
	if got := strings.Join(claims.Permissions, " "); got != want {
		t.Fatalf("unexpected permissions: %s", got)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Login(context.Background(), "doctor@clinic.example", "wrong", "org-a", DeviceMeta{})
	if err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown email yields the identical error.
	_, _, err = f.svc.Login(context.Background(), "nobody@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	if err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.identities.byID[f.doctor.ID].Active = false

	_, _, err := f.svc.Login(context.Background(), "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	if err != ErrAccountInactive {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestLoginWithoutOrgRequiresElevatedRole(t *testing.T) {
	f := newFixture(t)

	// A doctor cannot be found via cross-organization lookup.
	_, _, err := f.svc.Login(context.Background(), "doctor@clinic.example", "s3cret-pw", "", DeviceMeta{})
	if err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	f.addSuperAdmin(t)
	_, _, err = f.svc.Login(context.Background(), "root@clinicore.example", "root-pw", "", DeviceMeta{})
	if err != nil {
		t.Fatalf("elevated cross-org login: %v", err)
	}
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, err := f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{})
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("rotation returned the same refresh value")
	}

	if _, err := f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{}); err != ErrInvalidOrExpiredToken {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	// The rotated descendant still works.
	if _, err := f.svc.Refresh(ctx, next.RefreshToken, DeviceMeta{}); err != nil {
		t.Fatalf("descendant Refresh: %v", err)
	}
}

func TestConcurrentRefreshRedeemsAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if err != ErrInvalidOrExpiredToken {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", successes)
	}
}

func TestRefreshRejectsExpiredRecord(t *testing.T) {
	current := time.Now()
	f := newFixture(t, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	current = current.Add(8 * 24 * time.Hour)
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{}); err != ErrInvalidOrExpiredToken {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestLogoutAllKillsEarlierRefreshTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, _ := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	second, _, _ := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})

	if err := f.svc.LogoutAll(ctx, f.doctor.ID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}

	for _, pair := range []TokenPair{first, second} {
		if _, err := f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{}); err != ErrInvalidOrExpiredToken {
			t.Fatalf("expected revoked rejection, got %v", err)
		}
	}
	if len(f.sessions.invalidated) == 0 {
		t.Fatalf("expected session teardown on LogoutAll")
	}
}

func TestChangePasswordRevokesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, _ := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})

	if err := f.svc.ChangePassword(ctx, f.doctor.ID, "wrong", "new-pw-123"); err != ErrInvalidCredentials {
		t.Fatalf("expected old-password check, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, f.doctor.ID, "s3cret-pw", "new-pw-123"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{}); err != ErrInvalidOrExpiredToken {
		t.Fatalf("expected revoked rejection after password change, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "doctor@clinic.example", "new-pw-123", "org-a", DeviceMeta{}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRegisterConflictOnDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Register(ctx, NewIdentity{
		OrganizationID: "org-a",
		Email:          "doctor@clinic.example",
		Password:       "another-pw",
	}, DeviceMeta{})
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Same email in a different organization is fine.
	pair, identity, err := f.svc.Register(ctx, NewIdentity{
		OrganizationID: "org-b",
		Email:          "doctor@clinic.example",
		Password:       "another-pw",
	}, DeviceMeta{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if pair.AccessToken == "" || identity.OrganizationID != "org-b" {
		t.Fatalf("unexpected registration result")
	}
}

func TestRegisterRejectsElevatedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{RoleNameSuperAdmin, RoleNameAdmin} {
		_, _, err := f.svc.Register(ctx, NewIdentity{
			OrganizationID: "org-evil",
			Email:          "intruder@clinic.example",
			Password:       "pw-123456",
			RoleNames:      []string{name},
		}, DeviceMeta{})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("self-assigning %s: expected ErrForbidden, got %v", name, err)
		}
	}

	// Clinical roles remain self-serve.
	_, identity, err := f.svc.Register(ctx, NewIdentity{
		OrganizationID: "org-a",
		Email:          "nurse@clinic.example",
		Password:       "pw-123456",
		RoleNames:      []string{RoleNameNurse},
	}, DeviceMeta{})
	if err != nil {
		t.Fatalf("Register nurse: %v", err)
	}
	if len(identity.RoleIDs) != 1 || identity.RoleIDs[0] != f.roleIDs[RoleNameNurse] {
		t.Fatalf("unexpected role ids: %v", identity.RoleIDs)
	}
}

func TestCreateIdentityAllowsAdminRoles(t *testing.T) {
	f := newFixture(t)

	identity, err := f.svc.CreateIdentity(context.Background(), NewIdentity{
		OrganizationID: "org-a",
		Email:          "ops@clinic.example",
		Password:       "pw-123456",
		RoleNames:      []string{RoleNameAdmin},
	})
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if len(identity.RoleIDs) != 1 || identity.RoleIDs[0] != f.roleIDs[RoleNameAdmin] {
		t.Fatalf("unexpected role ids: %v", identity.RoleIDs)
	}
	f.tokens.mu.Lock()
	outstanding := len(f.tokens.byID)
	f.tokens.mu.Unlock()
	if outstanding != 0 {
		t.Fatalf("CreateIdentity must not issue credentials, found %d refresh records", outstanding)
	}
}

func TestRefreshKeepsOneSessionPerDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, identity, err := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	for i := 0; i < 3; i++ {
		pair, err = f.svc.Refresh(ctx, pair.RefreshToken, DeviceMeta{IP: "10.0.0.1"})
		if err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
	}

	f.sessions.mu.Lock()
	var live int
	for _, s := range f.sessions.byID {
		if s.IdentityID == identity.ID {
			live++
		}
	}
	f.sessions.mu.Unlock()
	if live != 1 {
		t.Fatalf("expected 1 live session after rotations, got %d", live)
	}
}

func TestLogoutDropsTheSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, identity, err := f.svc.Login(ctx, "doctor@clinic.example", "s3cret-pw", "org-a", DeviceMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	f.sessions.mu.Lock()
	for _, s := range f.sessions.byID {
		if s.IdentityID == identity.ID {
			f.sessions.mu.Unlock()
			t.Fatalf("session survived logout")
		}
	}
	f.sessions.mu.Unlock()
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnsureAdmin(ctx, "root@clinicore.example", "root-pw", "org-root")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	second, err := f.svc.EnsureAdmin(ctx, "root@clinicore.example", "other-pw", "org-root")
	if err != nil {
		t.Fatalf("EnsureAdmin second call: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("EnsureAdmin created a second account: %s vs %s", first.ID, second.ID)
	}

	// The ensured account logs in without an organization scope.
	if _, _, err := f.svc.Login(ctx, "root@clinicore.example", "root-pw", "", DeviceMeta{}); err != nil {
		t.Fatalf("cross-org login as ensured admin: %v", err)
	}
}

func TestCrossTenantLookupSkipsShadowingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An older non-elevated account shares the operator's email in another
	// tenant. The scopeless lookup must still resolve the elevated one.
	hash, err := HashPassword("doctor-pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	shadow := &Identity{
		ID:             ids.New(),
		OrganizationID: "org-b",
		Email:          "shared@clinic.example",
		PasswordHash:   hash,
		Active:         true,
		RoleIDs:        []string{f.roleIDs[RoleNameDoctor]},
	}
	if err := f.identities.Create(ctx, shadow); err != nil {
		t.Fatalf("create shadow: %v", err)
	}

	adminHash, err := HashPassword("root-pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &Identity{
		ID:             ids.New(),
		OrganizationID: "org-a",
		Email:          "shared@clinic.example",
		PasswordHash:   adminHash,
		Active:         true,
		RoleIDs:        []string{f.roleIDs[RoleNameSuperAdmin]},
	}
	if err := f.identities.Create(ctx, admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	_, identity, err := f.svc.Login(ctx, "shared@clinic.example", "root-pw", "", DeviceMeta{})
	if err != nil {
		t.Fatalf("cross-org login: %v", err)
	}
	if identity.ID != admin.ID {
		t.Fatalf("lookup resolved %s, want the elevated identity %s", identity.ID, admin.ID)
	}
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]time.Duration{
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"7d":  7 * 24 * time.Hour,
		"30s": 30 * time.Second,
		"":    fallbackTTL,
		"7w":  fallbackTTL,
		"abc": fallbackTTL,
		"-5m": fallbackTTL,
		"0h":  fallbackTTL,
	}
	for in, want := range cases {
		if got := ParseExpiry(in); got != want {
			t.Fatalf("ParseExpiry(%q) = %v, want %v", in, got, want)
		}
	}
}
