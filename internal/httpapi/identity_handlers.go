package httpapi

import (
	"net/http"
	"strings"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

type createIdentityRequest struct {
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	OrganizationID string   `json:"organization_id"`
	Roles          []string `json:"roles"`
}

type identityResponse struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Email          string   `json:"email"`
	Active         bool     `json:"active"`
	RoleIDs        []string `json:"role_ids"`
}

// handleIdentities creates staff accounts on behalf of an administrator. This
// is the only surface that may hand out ADMIN or SUPER_ADMIN; self-service
// registration cannot. Non-elevated admins stay inside their own tenant.
func (a *API) handleIdentities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	d, ok := a.authorize(w, r, roleAdminRoles, []string{"identities:write"})
	if !ok {
		return
	}
	var req createIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.OrganizationID) == "" {
		writeError(w, http.StatusBadRequest, "email, password and organization_id are required")
		return
	}
	if !auth.ElevatedIn(d.Roles) && strings.TrimSpace(req.OrganizationID) != d.OrganizationID {
		writeError(w, http.StatusForbidden, "cannot create identities outside your organization")
		return
	}

	identity, err := a.svc.CreateIdentity(r.Context(), auth.NewIdentity{
		OrganizationID: req.OrganizationID,
		Email:          req.Email,
		Password:       req.Password,
		RoleNames:      req.Roles,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "identity.created", map[string]any{
		"identity_id":     identity.ID,
		"organization_id": identity.OrganizationID,
		"email":           identity.Email,
		"roles":           req.Roles,
	})
	writeJSON(w, http.StatusCreated, identityResponse{
		ID:             identity.ID,
		OrganizationID: identity.OrganizationID,
		Email:          identity.Email,
		Active:         identity.Active,
		RoleIDs:        identity.RoleIDs,
	})
}
