package httpapi

import (
	"net/http"
	"strings"
	"time"

	"clinicore.org/internal/audit"
)

type sessionSummary struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	IP             string `json:"ip,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	CreatedAt      string `json:"created_at"`
	LastActivity   string `json:"last_activity"`
}

// handleSessions lists the caller's live sessions, one per device.
func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session registry unavailable")
		return
	}
	d, ok := a.authorize(w, r, nil, nil)
	if !ok {
		return
	}

	list, err := a.sessions.List(r.Context(), d.Identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]sessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, sessionSummary{
			ID:             s.ID,
			OrganizationID: s.OrganizationID,
			IP:             s.IP,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
			LastActivity:   s.LastActivity.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleSessionByID revokes a single session. The session must belong to the
// caller; admins use logout-all for other identities.
func (a *API) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if a.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session registry unavailable")
		return
	}
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	d, ok := a.authorize(w, r, nil, nil)
	if !ok {
		return
	}

	s, err := a.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if s.IdentityID != d.Identity.ID {
		// Do not reveal that the session exists.
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := a.sessions.Invalidate(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.Event(r.Context(), "session.revoked", map[string]any{"session_id": sessionID})
	w.WriteHeader(http.StatusNoContent)
}
