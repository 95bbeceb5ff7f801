// Package audit emits security-relevant events as structured log lines.
// Every login, token rotation, role mutation and organization switch passes
// through here so clinical-access reviews have a single stream to read.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Event writes one audit entry enriched with whatever request and identity
// context is available. Fields must be flat JSON-friendly values.
func Event(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	ev := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event).
		Time("at", time.Now().UTC())
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if d, ok := auth.DecisionFromContext(ctx); ok {
		ev = ev.Str("identity_id", d.Identity.ID).
			Str("organization_id", d.OrganizationID)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(event)
	return nil
}
