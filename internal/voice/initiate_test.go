package voice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/telephony"
)

type fakeProvider struct {
	placed    telephony.PlacedCall
	err       error
	lastTo    string
	lastFrom  string
	answerURL string
	statusURL string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) PlaceCall(_ context.Context, to, from, answerURL, statusURL string) (telephony.PlacedCall, error) {
	p.lastTo, p.lastFrom = to, from
	p.answerURL, p.statusURL = answerURL, statusURL
	if p.err != nil {
		return telephony.PlacedCall{}, p.err
	}
	return p.placed, nil
}

func (p *fakeProvider) HealthCheck(context.Context) error { return nil }

func newInitiatorFixture(provider *fakeProvider) (*Initiator, *callsession.MemoryStore, *audit.MemoryRepo) {
	store := callsession.NewMemoryStore()
	auditRepo := audit.NewMemoryRepo()
	init := NewInitiator(
		provider,
		agents.NewMemoryRepo(seedAgent()),
		store,
		audit.NewService(auditRepo),
		"+15550009999",
		"https://voice.example.com",
	)
	return init, store, auditRepo
}

func TestInitiateCallHappyPath(t *testing.T) {
	provider := &fakeProvider{placed: telephony.PlacedCall{ProviderCallSID: "CA0123456789abcdef", Status: "queued"}}
	init, store, auditRepo := newInitiatorFixture(provider)

	res, err := init.InitiateCall(context.Background(), "tenant-1", "user-1", "member", InitiateParams{
		AgentID:  "agent-1",
		ToNumber: "+15550001111",
	})
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if res.CallID != "call_89abcdef" {
		t.Fatalf("CallID = %q", res.CallID)
	}
	if res.ProviderCallSID != "CA0123456789abcdef" {
		t.Fatalf("ProviderCallSID = %q", res.ProviderCallSID)
	}
	if res.Status != "queued" {
		t.Fatalf("Status = %q", res.Status)
	}

	if provider.lastTo != "+15550001111" || provider.lastFrom != "+15550009999" {
		t.Fatalf("numbers: to=%q from=%q", provider.lastTo, provider.lastFrom)
	}
	if !strings.Contains(provider.answerURL, "/webhooks/voice/init?") ||
		!strings.Contains(provider.answerURL, "agentId=agent-1") {
		t.Fatalf("answer URL malformed: %q", provider.answerURL)
	}
	if !strings.Contains(provider.statusURL, "/webhooks/voice/events?") ||
		!strings.Contains(provider.statusURL, "tenantId=tenant-1") {
		t.Fatalf("status URL malformed: %q", provider.statusURL)
	}

	sess, err := store.GetByProviderCallSID(context.Background(), "CA0123456789abcdef")
	if err != nil {
		t.Fatalf("session not pre-created: %v", err)
	}
	if sess.ID != res.SessionID || sess.TenantID != "tenant-1" || sess.AgentID != "agent-1" {
		t.Fatalf("session fields: %+v", sess)
	}

	events := auditRepo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeCallInitiated {
		t.Fatalf("expected initiated audit event, got %+v", events)
	}
	if events[0].ActorUserID != "user-1" || events[0].CallID != res.CallID {
		t.Fatalf("audit fields: %+v", events[0])
	}
}

func TestInitiateCallRejectsBadNumber(t *testing.T) {
	init, _, _ := newInitiatorFixture(&fakeProvider{})
	for _, to := range []string{"", "15550001111", "+1", "555-0001"} {
		_, err := init.InitiateCall(context.Background(), "tenant-1", "user-1", "member", InitiateParams{
			AgentID:  "agent-1",
			ToNumber: to,
		})
		if !errors.Is(err, ErrInvalidNumber) {
			t.Fatalf("to=%q: expected ErrInvalidNumber, got %v", to, err)
		}
	}
}

func TestInitiateCallEnforcesTenantScope(t *testing.T) {
	init, _, _ := newInitiatorFixture(&fakeProvider{})

	_, err := init.InitiateCall(context.Background(), "other-tenant", "user-1", "member", InitiateParams{
		AgentID:  "agent-1",
		ToNumber: "+15550001111",
	})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("cross-tenant agent must be invisible, got %v", err)
	}

	_, err = init.InitiateCall(context.Background(), "tenant-1", "user-1", "member", InitiateParams{
		ToNumber: "+15550001111",
	})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("missing agent id, got %v", err)
	}
}

func TestInitiateCallPropagatesProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream 500")}
	init, store, auditRepo := newInitiatorFixture(provider)

	_, err := init.InitiateCall(context.Background(), "tenant-1", "user-1", "member", InitiateParams{
		AgentID:  "agent-1",
		ToNumber: "+15550001111",
	})
	if err == nil {
		t.Fatalf("expected provider error")
	}

	if _, _, err := store.List(context.Background(), callsession.ListFilter{TenantID: "tenant-1", UserID: "user-1"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if sessions, _, _ := store.List(context.Background(), callsession.ListFilter{TenantID: "tenant-1", UserID: "user-1"}); len(sessions) != 0 {
		t.Fatalf("no session should exist after provider failure")
	}
	if len(auditRepo.Events()) != 0 {
		t.Fatalf("no audit event should exist after provider failure")
	}
}

func TestCallIDFromSID(t *testing.T) {
	if got := CallIDFromSID("CA0123456789abcdef"); got != "call_89abcdef" {
		t.Fatalf("got %q", got)
	}
	if got := CallIDFromSID("short"); got != "call_short" {
		t.Fatalf("got %q", got)
	}
}
