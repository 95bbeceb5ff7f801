package pg

import (
	"context"
	"database/sql"

	"clinicore.org/internal/auth"
)

var _ auth.IdentityStore = (*IdentityStore)(nil)

// IdentityStore persists identities, their role assignments and their
// organization memberships.
type IdentityStore struct {
	db *sql.DB
}

func (s *IdentityStore) Create(ctx context.Context, identity *auth.Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into identities(id, organization_id, email, password_hash, active)
		 values($1,$2,$3,$4,$5)`,
		identity.ID, identity.OrganizationID, identity.Email, identity.PasswordHash, identity.Active,
	)
	if err != nil {
		return mapError(err)
	}
	for _, roleID := range identity.RoleIDs {
		_, err = tx.ExecContext(ctx,
			`insert into identity_roles(identity_id, role_id) values($1,$2) on conflict do nothing`,
			identity.ID, roleID,
		)
		if err != nil {
			return mapError(err)
		}
	}
	// The home organization is always a membership.
	_, err = tx.ExecContext(ctx,
		`insert into organization_members(identity_id, organization_id) values($1,$2) on conflict do nothing`,
		identity.ID, identity.OrganizationID,
	)
	if err != nil {
		return mapError(err)
	}
	return tx.Commit()
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, organization_id, email, password_hash, active, last_login_at, created_at, updated_at
		 from identities where id=$1`, id)
	return s.scan(ctx, row)
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email, organizationID string) (*auth.Identity, error) {
	var row *sql.Row
	if organizationID == "" {
		// Cross-tenant lookup is reserved for elevated identities, so only
		// rows holding the elevated role can match. Without the filter an
		// older non-elevated account with the same email in another tenant
		// would shadow the operator account.
		row = s.db.QueryRowContext(ctx,
			`select i.id, i.organization_id, i.email, i.password_hash, i.active, i.last_login_at, i.created_at, i.updated_at
			 from identities i
			 where i.email=$1 and exists (
			   select 1 from identity_roles ir
			   join roles r on r.id = ir.role_id
			   where ir.identity_id = i.id and r.name = $2
			 )
			 order by i.created_at limit 1`, email, auth.RoleNameSuperAdmin)
	} else {
		row = s.db.QueryRowContext(ctx,
			`select id, organization_id, email, password_hash, active, last_login_at, created_at, updated_at
			 from identities where email=$1 and organization_id=$2`, email, organizationID)
	}
	return s.scan(ctx, row)
}

func (s *IdentityStore) scan(ctx context.Context, row *sql.Row) (*auth.Identity, error) {
	var (
		identity  auth.Identity
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&identity.ID, &identity.OrganizationID, &identity.Email, &identity.PasswordHash,
		&identity.Active, &lastLogin, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLoginAt = &t
	}

	rows, err := s.db.QueryContext(ctx,
		`select role_id from identity_roles where identity_id=$1 order by role_id`, identity.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, err
		}
		identity.RoleIDs = append(identity.RoleIDs, roleID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *IdentityStore) UpdateOrganization(ctx context.Context, id, organizationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update identities set organization_id=$2, updated_at=now() where id=$1`, id, organizationID)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	_, err = tx.ExecContext(ctx,
		`insert into organization_members(identity_id, organization_id) values($1,$2) on conflict do nothing`,
		id, organizationID,
	)
	if err != nil {
		return mapError(err)
	}
	return tx.Commit()
}

func (s *IdentityStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) MarkLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update identities set last_login_at=now() where id=$1`, id)
	return err
}

func (s *IdentityStore) IsMember(ctx context.Context, identityID, organizationID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
		   select 1 from organization_members where identity_id=$1 and organization_id=$2
		 )`, identityID, organizationID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
