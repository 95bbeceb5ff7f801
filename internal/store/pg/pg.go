// Package pg implements the durable auth stores on PostgreSQL.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"clinicore.org/internal/auth"
)

// Store bundles the three durable stores over one connection pool.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool; tests pass a sqlmock handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Identities returns the identity store.
func (s *Store) Identities() *IdentityStore { return &IdentityStore{db: s.db} }

// Roles returns the role catalog store.
func (s *Store) Roles() *RoleStore { return &RoleStore{db: s.db} }

// RefreshTokens returns the refresh-token store.
func (s *Store) RefreshTokens() *RefreshTokenStore { return &RefreshTokenStore{db: s.db} }

// Organizations returns the organization store.
func (s *Store) Organizations() *OrganizationStore { return &OrganizationStore{db: s.db} }

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapError translates driver errors into the auth taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return auth.ErrConflict
		case foreignKeyViolation:
			// A write referenced an organization or role that does not exist.
			return auth.ErrNotFound
		}
	}
	return err
}
