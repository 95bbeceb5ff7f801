package pg

import (
	"context"
	"database/sql"
	"time"

	"clinicore.org/internal/auth"
)

var _ auth.RefreshTokenStore = (*RefreshTokenStore)(nil)

// RefreshTokenStore persists refresh-token records. Revocation is a
// conditional per-row update so rotation races resolve in the database, not
// in process memory.
type RefreshTokenStore struct {
	db *sql.DB
}

func (s *RefreshTokenStore) Insert(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, identity_id, session_id, token_hash, issued_at, expires_at, revoked, ip, user_agent)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tok.ID, tok.IdentityID, tok.SessionID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt, tok.Revoked, tok.IP, tok.UserAgent,
	)
	return mapError(err)
}

func (s *RefreshTokenStore) FindByID(ctx context.Context, id string) (*auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identity_id, session_id, token_hash, issued_at, expires_at, revoked, ip, user_agent
		 from refresh_tokens where id=$1`, id)
	var tok auth.RefreshToken
	err := row.Scan(
		&tok.ID, &tok.IdentityID, &tok.SessionID, &tok.TokenHash, &tok.IssuedAt,
		&tok.ExpiresAt, &tok.Revoked, &tok.IP, &tok.UserAgent,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &tok, nil
}

// MarkRevoked flips revoked exactly once. The revoked=false guard makes
// concurrent redemptions of the same value succeed at most once: every loser
// observes zero affected rows.
func (s *RefreshTokenStore) MarkRevoked(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1 and revoked=false`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RefreshTokenStore) MarkAllRevokedForIdentity(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where identity_id=$1 and revoked=false`, identityID)
	return err
}

// DeleteExpiredBefore removes records whose expiry predates the cutoff.
// Revoked rows inside the window stay for replay detection.
func (s *RefreshTokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
