package httpapi

import (
	"net/http"
	"strings"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

var roleAdminRoles = []string{auth.RoleNameAdmin, auth.RoleNameSuperAdmin}

// handleRoles creates catalog roles. Admin only; malformed permission strings
// are rejected here, never at check time.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := a.authorize(w, r, roleAdminRoles, []string{"roles:write"}); !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	role, err := a.svc.Directory().Create(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "role.created", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", "/v1/roles/"+role.Name)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleByName(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getRole(w, r, name)
	case http.MethodPatch:
		a.updateRole(w, r, name)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := a.authorize(w, r, roleAdminRoles, []string{"roles:read"}); !ok {
		return
	}
	role, err := a.svc.Directory().FindByName(r.Context(), name)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := a.authorize(w, r, roleAdminRoles, []string{"roles:write"}); !ok {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	role, err := a.svc.Directory().FindByName(r.Context(), name)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	updated, err := a.svc.Directory().Update(r.Context(), role.ID, auth.RoleUpdate{
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "role.updated", map[string]any{
		"role_id": updated.ID,
		"name":    updated.Name,
	})
	writeJSON(w, http.StatusOK, updated)
}
