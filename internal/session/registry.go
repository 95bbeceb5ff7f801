// Package session tracks live login sessions and the access-token blacklist
// in Redis. The durable refresh-token table stays the source of truth for
// "is this login still valid"; the registry is a derived layer serving device
// enumeration, bulk teardown and early access-token revocation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotFound is returned for absent or expired sessions.
var ErrNotFound = errors.New("session: not found")

// DefaultWindow is the session TTL; every successful read slides it forward.
const DefaultWindow = 24 * time.Hour

// Session is the per-login-event record held in the ephemeral store.
type Session struct {
	ID             string    `json:"id"`
	IdentityID     string    `json:"identity_id"`
	OrganizationID string    `json:"organization_id"`
	Roles          []string  `json:"roles"`
	Permissions    []string  `json:"permissions"`
	IP             string    `json:"ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// Registry stores sessions, the identity -> session-id reverse index, and
// blacklist markers. The reverse index is read-modify-write with
// last-writer-wins; it is an enumeration optimization, never the authority on
// a single session's validity.
type Registry struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewRegistry(client *redis.Client, window time.Duration) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Registry{client: client, window: window, now: time.Now}
}

func sessionKey(id string) string       { return "session:" + id }
func indexKey(identityID string) string { return "identity_sessions:" + identityID }
func blacklistKey(jti string) string    { return "blacklist:" + jti }

// Create writes the session record with the full window TTL and appends its
// id to the identity's reverse index. A caller-supplied id that already has a
// live record rewrites it in place, keeping the original creation time; token
// rotation uses this to stay on one session per device.
func (r *Registry) Create(ctx context.Context, s *Session) error {
	now := r.now().UTC()
	s.CreatedAt = now
	s.LastActivity = now
	if s.ID == "" {
		s.ID = uuid.NewString()
	} else if data, err := r.client.Get(ctx, sessionKey(s.ID)).Result(); err == nil {
		var prev Session
		if err := json.Unmarshal([]byte(data), &prev); err == nil && !prev.CreatedAt.IsZero() {
			s.CreatedAt = prev.CreatedAt
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.window).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	ids, err := r.indexIDs(ctx, s.IdentityID)
	if err != nil {
		return err
	}
	ids = appendUnique(ids, s.ID)
	return r.writeIndex(ctx, s.IdentityID, ids)
}

// Get returns the session and slides its TTL, rewriting the record with a
// refreshed last-activity timestamp. An expired session is simply absent.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		// Corrupt record: drop it rather than serve garbage.
		r.client.Del(ctx, sessionKey(sessionID))
		return nil, ErrNotFound
	}

	s.LastActivity = r.now().UTC()
	if refreshed, err := json.Marshal(&s); err == nil {
		_ = r.client.Set(ctx, sessionKey(sessionID), refreshed, r.window).Err()
	}
	return &s, nil
}

// List enumerates the identity's live sessions for device management.
// Ids whose record already expired are skipped.
func (r *Registry) List(ctx context.Context, identityID string) ([]*Session, error) {
	ids, err := r.indexIDs(ctx, identityID)
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, sessionKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		var s Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			continue
		}
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

// Invalidate removes one session and its reverse-index entry. An empty index
// key is deleted outright.
func (r *Registry) Invalidate(ctx context.Context, sessionID string) error {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	var s Session
	identityID := ""
	if err := json.Unmarshal([]byte(data), &s); err == nil {
		identityID = s.IdentityID
	}

	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if identityID == "" {
		return nil
	}

	ids, err := r.indexIDs(ctx, identityID)
	if err != nil {
		return err
	}
	ids = remove(ids, sessionID)
	return r.writeIndex(ctx, identityID, ids)
}

// InvalidateAll tears down every session of the identity and clears the index.
func (r *Registry) InvalidateAll(ctx context.Context, identityID string) error {
	ids, err := r.indexIDs(ctx, identityID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return r.client.Del(ctx, indexKey(identityID)).Err()
}

// UpdateOrganization rewrites the organization scope on every live session of
// the identity, preserving each record's remaining TTL.
func (r *Registry) UpdateOrganization(ctx context.Context, identityID, organizationID string) error {
	ids, err := r.indexIDs(ctx, identityID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		key := sessionKey(id)
		data, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		var s Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			continue
		}
		s.OrganizationID = organizationID

		ttl, err := r.client.PTTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = r.window
		}
		updated, err := json.Marshal(&s)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		if err := r.client.Set(ctx, key, updated, ttl).Err(); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
	}
	return nil
}

// Blacklist writes a revocation marker whose TTL equals the token's remaining
// natural lifetime. A token already past expiry needs no marker; expiry alone
// rejects it.
func (r *Registry) Blacklist(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}

// IsBlacklisted reports whether the jti has a live revocation marker. Errors
// propagate; an unreachable store must not become an implicit grant.
func (r *Registry) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}

func (r *Registry) indexIDs(ctx context.Context, identityID string) ([]string, error) {
	data, err := r.client.Get(ctx, indexKey(identityID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session index: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, nil
	}
	return ids, nil
}

func (r *Registry) writeIndex(ctx context.Context, identityID string, ids []string) error {
	if len(ids) == 0 {
		return r.client.Del(ctx, indexKey(identityID)).Err()
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	return r.client.Set(ctx, indexKey(identityID), data, r.window).Err()
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
