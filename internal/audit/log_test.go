package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/obs"
)

func TestEvent(t *testing.T) {
	var buf bytes.Buffer
	obs.SetOutput(&buf)
	defer obs.SetOutput(os.Stdout)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithDecision(ctx, auth.Decision{
		Identity:       &auth.Identity{ID: "id-42"},
		OrganizationID: "org-a",
	})

	if err := Event(ctx, "auth.login", map[string]any{"email": "doctor@clinic.example"}); err != nil {
		t.Fatalf("Event: %v", err)
	}

	line := buf.Bytes()
	if len(line) == 0 {
		t.Fatal("expected log output")
	}
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "auth.login" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["identity_id"] != "id-42" {
		t.Fatalf("unexpected identity id: %v", entry["identity_id"])
	}
	if entry["organization_id"] != "org-a" {
		t.Fatalf("unexpected organization: %v", entry["organization_id"])
	}
	if entry["email"] != "doctor@clinic.example" {
		t.Fatalf("field not carried: %v", entry["email"])
	}
}

func TestEventRequiresName(t *testing.T) {
	if err := Event(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
