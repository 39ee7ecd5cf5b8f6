package audit

import (
	"context"
	"testing"
	"time"
)

func TestAppendFillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	err := svc.LogCallInitiated(context.Background(), "tenant-1", "user-1", "member", "call_abcd1234", "sess-1", "agent-1")
	if err != nil {
		t.Fatalf("LogCallInitiated: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatalf("event ID not assigned")
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Fatalf("CreatedAt = %v, want %v", e.CreatedAt, fixed)
	}
	if e.Type != EventTypeCallInitiated {
		t.Fatalf("Type = %q", e.Type)
	}
	if e.CallID != "call_abcd1234" || e.SessionID != "sess-1" {
		t.Fatalf("target ids not recorded: %+v", e)
	}
}

func TestAppendRejectsMissingTenant(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	err := svc.Append(context.Background(), Event{Type: EventTypeCallTerminated})
	if err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	err = svc.Append(context.Background(), Event{TenantID: "tenant-1"})
	if err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent for missing type, got %v", err)
	}
}
