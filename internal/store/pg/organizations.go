package pg

import (
	"context"
	"database/sql"

	"clinicore.org/internal/auth"
)

// OrganizationStore persists tenants. The auth core never writes here; the
// startup bootstrap and admin tooling do.
type OrganizationStore struct {
	db *sql.DB
}

// Ensure creates the organization if it does not exist yet. Existing rows are
// left untouched, so the call is safe to repeat on every startup.
func (s *OrganizationStore) Ensure(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into organizations(id, name) values($1,$2) on conflict (id) do nothing`,
		id, name,
	)
	return mapError(err)
}

// FindByID returns one organization.
func (s *OrganizationStore) FindByID(ctx context.Context, id string) (*auth.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, created_at, updated_at from organizations where id=$1`, id)
	var org auth.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &org, nil
}
