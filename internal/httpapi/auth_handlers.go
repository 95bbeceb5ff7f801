package httpapi

import (
	"net/http"
	"strings"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID string `json:"organization_id"`
}

type registerRequest struct {
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	OrganizationID string   `json:"organization_id"`
	Roles          []string `json:"roles"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type switchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func toTokenResponse(pair auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	pair, identity, err := a.svc.Login(r.Context(), req.Email, req.Password, req.OrganizationID, deviceMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "auth.login", map[string]any{
		"identity_id":     identity.ID,
		"organization_id": identity.OrganizationID,
	})
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.OrganizationID) == "" {
		writeError(w, http.StatusBadRequest, "email, password and organization_id are required")
		return
	}

	pair, identity, err := a.svc.Register(r.Context(), auth.NewIdentity{
		OrganizationID: req.OrganizationID,
		Email:          req.Email,
		Password:       req.Password,
		RoleNames:      req.Roles,
	}, deviceMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "auth.register", map[string]any{
		"identity_id":     identity.ID,
		"organization_id": identity.OrganizationID,
		"email":           identity.Email,
	})
	writeJSON(w, http.StatusCreated, toTokenResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := a.svc.Refresh(r.Context(), req.RefreshToken, deviceMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// handleLogout revokes the presented refresh token. Idempotent: an unknown or
// already-revoked value still answers 204.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	if err := a.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	d, ok := a.authorize(w, r, nil, nil)
	if !ok {
		return
	}
	if err := a.svc.LogoutAll(r.Context(), d.Identity.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "auth.logout_all", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	d, ok := a.authorize(w, r, nil, nil)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "old_password and new_password are required")
		return
	}
	if err := a.svc.ChangePassword(r.Context(), d.Identity.ID, req.OldPassword, req.NewPassword); err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "auth.password_changed", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSwitchOrganization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	d, ok := a.authorize(w, r, nil, nil)
	if !ok {
		return
	}
	var req switchOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.OrganizationID) == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	pair, err := a.svc.SwitchOrganization(r.Context(), d.Identity.ID, req.OrganizationID, deviceMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "auth.organization_switched", map[string]any{
		"target_organization_id": req.OrganizationID,
	})
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// handleRevoke blacklists the presented access token for its remaining
// lifetime.
func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	d, ok := a.authorize(w, r, nil, nil)
	if !ok {
		return
	}
	if err := a.svc.RevokeAccess(r.Context(), d.Claims); err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.Event(r.Context(), "auth.token_revoked", map[string]any{"jti": d.Claims.ID})
	w.WriteHeader(http.StatusNoContent)
}
