package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clinicore.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// orgHeader carries an explicit tenant target; absent means the
	// identity's own organization.
	orgHeader = "X-Organization-ID"
)

// authorize runs the guard pipeline for a protected handler and writes the
// rejection itself. On success the returned decision carries the resolved
// tenant scope.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, roles, permissions []string) (auth.Decision, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return auth.Decision{}, false
	}

	d, err := a.svc.Authorize(r.Context(), auth.AuthorizeRequest{
		AccessToken:             token,
		RequiredRoles:           roles,
		RequiredPermissions:     permissions,
		RequestedOrganizationID: requestedOrganization(r),
	})
	if err != nil {
		writeAuthError(w, err)
		return auth.Decision{}, false
	}

	ctx := auth.ContextWithDecision(r.Context(), d)
	ctx = auth.ContextWithToken(ctx, token)
	*r = *r.WithContext(ctx)
	return d, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// requestedOrganization resolves the explicit tenant target: header first,
// then query string.
func requestedOrganization(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(orgHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("organization_id"))
}

func deviceMeta(r *http.Request) auth.DeviceMeta {
	return auth.DeviceMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
