package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/config"
)

type fakeAdapter struct {
	calls      int
	gotSystem  string
	gotHistory []Message
	gotMessage string

	reply   string
	elapsed time.Duration
	err     error
}

func (f *fakeAdapter) Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (Completion, error) {
	f.calls++
	f.gotSystem = systemPrompt
	f.gotHistory = history
	f.gotMessage = userMessage
	if f.err != nil {
		return Completion{}, f.err
	}
	return Completion{ReplyText: f.reply, Elapsed: f.elapsed}, nil
}

func voiceConfig() config.VoiceConfig {
	return config.VoiceConfig{
		ConfidenceThreshold:  0.5,
		ContextWindow:        6,
		ModelTimeout:         10 * time.Second,
		GatherTimeoutSeconds: 10,
	}
}

func testSession(t *testing.T, store callsession.Store) callsession.CallSession {
	t.Helper()
	sess, err := store.GetOrCreate(context.Background(), callsession.CreateParams{
		ProviderCallSID: "CA777", UserID: "u1", AgentID: "a1", TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return sess
}

func TestProcessTurn_LowConfidenceDropsInput(t *testing.T) {
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	adapter := &fakeAdapter{reply: "hi"}
	p := NewProcessor(store, adapter, voiceConfig())

	res, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1"}, "mumble", 0.3)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != TurnRejected {
		t.Fatalf("expected rejected, got %v", res.Outcome)
	}
	if adapter.calls != 0 {
		t.Fatalf("adapter must not be invoked for low confidence")
	}

	got, _ := store.GetByID(context.Background(), sess.ID)
	if len(got.Transcript) != 0 {
		t.Fatalf("transcript must be unchanged, got %d entries", len(got.Transcript))
	}
}

func TestProcessTurn_SuccessAppendsBothEntries(t *testing.T) {
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	adapter := &fakeAdapter{reply: "Happy to help.", elapsed: 1200 * time.Millisecond}
	p := NewProcessor(store, adapter, voiceConfig())

	res, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1", SystemPrompt: "You are a support agent."}, "I need help", 0.92)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != TurnReplied || res.ReplyText != "Happy to help." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if adapter.gotSystem != "You are a support agent." {
		t.Fatalf("unexpected system prompt: %q", adapter.gotSystem)
	}
	if adapter.gotMessage != "I need help" {
		t.Fatalf("unexpected user message: %q", adapter.gotMessage)
	}

	got, _ := store.GetByID(context.Background(), sess.ID)
	if len(got.Transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(got.Transcript))
	}
	if got.Transcript[0].Role != callsession.RoleUser || got.Transcript[0].Content != "I need help" {
		t.Fatalf("unexpected user entry: %+v", got.Transcript[0])
	}
	if got.Transcript[1].Role != callsession.RoleAssistant || got.Transcript[1].Content != "Happy to help." {
		t.Fatalf("unexpected assistant entry: %+v", got.Transcript[1])
	}
	if len(got.ResponseTimes) != 1 || got.ResponseTimes[0].ResponseTimeSeconds != 1.2 {
		t.Fatalf("unexpected response times: %+v", got.ResponseTimes)
	}
}

func TestProcessTurn_DefaultSystemPrompt(t *testing.T) {
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	adapter := &fakeAdapter{reply: "ok"}
	p := NewProcessor(store, adapter, voiceConfig())

	if _, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1"}, "hello", 0.9); err != nil {
		t.Fatalf("process: %v", err)
	}
	if adapter.gotSystem != defaultSystemPrompt {
		t.Fatalf("expected default system prompt, got %q", adapter.gotSystem)
	}
}

func TestProcessTurn_ModelFailureKeepsUserEntry(t *testing.T) {
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	adapter := &fakeAdapter{err: ErrModelInvocation}
	p := NewProcessor(store, adapter, voiceConfig())

	res, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1"}, "question", 0.9)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != TurnModelFailed {
		t.Fatalf("expected model failure outcome, got %v", res.Outcome)
	}

	got, _ := store.GetByID(context.Background(), sess.ID)
	if len(got.Transcript) != 1 || got.Transcript[0].Role != callsession.RoleUser {
		t.Fatalf("expected only the user entry, got %+v", got.Transcript)
	}
	if len(got.ResponseTimes) != 0 {
		t.Fatalf("no response time should be recorded on failure")
	}
}

func TestProcessTurn_ContextWindowBoundedAndPriorOnly(t *testing.T) {
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	adapter := &fakeAdapter{reply: "r"}
	p := NewProcessor(store, adapter, voiceConfig())

	// Seed 8 prior entries; only the last 6 may reach the model.
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, _ = store.AppendTranscript(ctx, sess.ID, callsession.RoleUser, "u", nil)
		_, _ = store.AppendTranscript(ctx, sess.ID, callsession.RoleAssistant, "a", nil)
	}
	sess, _ = store.GetByID(ctx, sess.ID)

	if _, err := p.ProcessTurn(ctx, sess, agents.Agent{ID: "a1"}, "latest", 0.9); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(adapter.gotHistory) != 6 {
		t.Fatalf("expected 6 history entries, got %d", len(adapter.gotHistory))
	}
	for _, m := range adapter.gotHistory {
		if m.Content == "latest" {
			t.Fatalf("new utterance must not appear in history")
		}
	}
	// Chronological: the window over alternating entries starts on a user turn.
	if adapter.gotHistory[0].Role != "user" || adapter.gotHistory[5].Role != "assistant" {
		t.Fatalf("history out of order: %+v", adapter.gotHistory)
	}
}

func TestProcessTurn_WrappedModelErrorDetected(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("boom")}
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	p := NewProcessor(store, adapter, voiceConfig())

	res, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1"}, "q", 0.9)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != TurnModelFailed {
		t.Fatalf("any adapter error must map to model failure, got %v", res.Outcome)
	}
}

func TestNewProcessor_ZeroConfigKeepsGateAndWindow(t *testing.T) {
	adapter := &fakeAdapter{reply: "ok"}
	store := callsession.NewMemoryStore()
	sess := testSession(t, store)
	p := NewProcessor(store, adapter, config.VoiceConfig{})

	// The gate must still reject below the default threshold.
	res, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1"}, "mumble", 0.3)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != TurnRejected || adapter.calls != 0 {
		t.Fatalf("zero config must not disable the confidence gate: %v", res.Outcome)
	}

	// The context window must still be bounded at the default size.
	for i := 0; i < 10; i++ {
		role := callsession.RoleUser
		if i%2 == 1 {
			role = callsession.RoleAssistant
		}
		if _, err := store.AppendTranscript(context.Background(), sess.ID, role, "earlier", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	sess, _ = store.GetByID(context.Background(), sess.ID)
	if _, err := p.ProcessTurn(context.Background(), sess, agents.Agent{ID: "a1"}, "latest", 0.9); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(adapter.gotHistory) != 6 {
		t.Fatalf("expected default window of 6, got %d", len(adapter.gotHistory))
	}
}
