package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"clinicore.org/internal/auth"
)

var _ auth.RoleStore = (*RoleStore)(nil)

// RoleStore persists the organization-independent role catalog. Permission
// lists are stored as jsonb; they arrive normalized from the directory.
type RoleStore struct {
	db *sql.DB
}

func (s *RoleStore) Create(ctx context.Context, role *auth.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into roles(id, name, description, permissions) values($1,$2,$3,$4)`,
		role.ID, role.Name, role.Description, perms,
	)
	return mapError(err)
}

func (s *RoleStore) Update(ctx context.Context, role *auth.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update roles set description=$2, permissions=$3, updated_at=now() where id=$1`,
		role.ID, role.Description, perms,
	)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RoleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, permissions, created_at, updated_at from roles where name=$1`, name)
	return scanRole(row)
}

func (s *RoleStore) FindByIDs(ctx context.Context, ids []string) ([]*auth.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, permissions, created_at, updated_at from roles where id = any($1) order by name`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		var (
			role  auth.Role
			perms []byte
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(perms, &role.Permissions)
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func scanRole(row *sql.Row) (*auth.Role, error) {
	var (
		role  auth.Role
		perms []byte
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	_ = json.Unmarshal(perms, &role.Permissions)
	return &role, nil
}
