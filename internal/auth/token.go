package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTypeAccess = "access"

// Claims are the self-contained access-token claims. The organization id must
// match the identity's currently-recorded scope for the pipeline to accept
// the token; a mismatch signals a token issued before an organization switch.
type Claims struct {
	Email          string   `json:"email"`
	OrganizationID string   `json:"org"`
	Roles          []string `json:"roles"`
	Permissions    []string `json:"permissions"`
	TokenType      string   `json:"token_type"`
	jwt.RegisteredClaims
}

func (s *Service) signAccessToken(identity *Identity, roleNames, permissions []string, now time.Time) (string, *Claims, error) {
	exp := now.Add(s.accessTTL)
	claims := &Claims{
		Email:          identity.Email,
		OrganizationID: identity.OrganizationID,
		Roles:          roleNames,
		Permissions:    permissions,
		TokenType:      tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyAccessToken checks signature, expiry, issuer and token type. It does
// not consult the blacklist or the identity store; Authorize layers those on.
func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthenticated
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrUnauthenticated
	}
	if claims.TokenType != tokenTypeAccess || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// fallbackTTL is the conservative default for unparseable expiry strings.
// Unknown unit suffixes fail closed rather than yielding an unbounded
// lifetime.
const fallbackTTL = 15 * time.Minute

// ParseExpiry converts expiry strings like "15m", "1h" or "7d" to a duration.
func ParseExpiry(s string) time.Duration {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) < 2 {
		return fallbackTTL
	}
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return fallbackTTL
	}
	switch s[len(s)-1] {
	case 's':
		return time.Duration(value) * time.Second
	case 'm':
		return time.Duration(value) * time.Minute
	case 'h':
		return time.Duration(value) * time.Hour
	case 'd':
		return time.Duration(value) * 24 * time.Hour
	default:
		return fallbackTTL
	}
}
