package telephony

import (
	"strings"
	"testing"

	"voice-agent-platform/internal/agents"
)

func testAgent() agents.Agent {
	return agents.Agent{
		ID:        "agent-1",
		Name:      "Ava",
		VoiceType: "female",
	}
}

func TestVoiceFor(t *testing.T) {
	cases := map[string]string{
		"male":    "en-US-Neural2-F",
		"female":  "en-US-Neural2-E",
		"Alloy":   "alloy",
		"shimmer": "shimmer",
		"":        "alloy",
		"robotic": "alloy",
	}
	for in, want := range cases {
		if got := VoiceFor(in); got != want {
			t.Fatalf("VoiceFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGreetingDefaultsToAgentName(t *testing.T) {
	b := NewBuilder(10)
	out := b.Greeting(testAgent(), "/webhooks/voice/process?agentId=agent-1")

	if !strings.HasPrefix(out, "<?xml") {
		t.Fatalf("missing xml declaration: %q", out[:20])
	}
	if !strings.Contains(out, "Hello! This is Ava. How can I help you today?") {
		t.Fatalf("default greeting missing from:\n%s", out)
	}
	if !strings.Contains(out, `voice="en-US-Neural2-E"`) {
		t.Fatalf("voice attribute missing from:\n%s", out)
	}
	if !strings.Contains(out, `input="speech"`) || !strings.Contains(out, `timeout="10"`) {
		t.Fatalf("gather attributes missing from:\n%s", out)
	}
	if !strings.Contains(out, "action=\"/webhooks/voice/process?agentId=agent-1\"") {
		t.Fatalf("gather action missing from:\n%s", out)
	}
}

func TestGreetingPrefersFallbackResponse(t *testing.T) {
	a := testAgent()
	a.FallbackResponse = "Welcome to support."
	out := NewBuilder(10).Greeting(a, "/cb")

	if !strings.Contains(out, "Welcome to support.") {
		t.Fatalf("configured greeting missing from:\n%s", out)
	}
	if strings.Contains(out, "Hello! This is") {
		t.Fatalf("default greeting should be replaced:\n%s", out)
	}
}

func TestTurnReplyEscapesMarkup(t *testing.T) {
	out := NewBuilder(10).TurnReply(testAgent(), `Use <b> & "quotes"`, "/cb")

	if strings.Contains(out, "<b>") {
		t.Fatalf("reply text must be escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;b&gt; &amp;") {
		t.Fatalf("escaped entities missing from:\n%s", out)
	}
	if !strings.Contains(out, "How else can I help you?") {
		t.Fatalf("re-gather prompt missing from:\n%s", out)
	}
}

func TestStaticResponses(t *testing.T) {
	if out := EmptyAck(); !strings.Contains(out, "<Response></Response>") {
		t.Fatalf("empty ack malformed:\n%s", out)
	}
	if out := ErrorResponse(); !strings.Contains(out, "technical difficulties") {
		t.Fatalf("error response malformed:\n%s", out)
	}
	if out := AgentNotFound(); !strings.Contains(out, "couldn't find the agent configuration") {
		t.Fatalf("agent-not-found response malformed:\n%s", out)
	}
	if out := DefaultResponse(); !strings.Contains(out, "Thank you for answering our call.") {
		t.Fatalf("default response malformed:\n%s", out)
	}
	out := NewBuilder(0).Transfer()
	if !strings.Contains(out, "Transferring you to a human agent.") || !strings.Contains(out, `length="2"`) {
		t.Fatalf("transfer response malformed:\n%s", out)
	}
	if !strings.Contains(out, "<Hangup") {
		t.Fatalf("transfer must end the leg:\n%s", out)
	}
}

func TestModelFallbackKeepsGatherOpen(t *testing.T) {
	out := NewBuilder(10).ModelFallback(testAgent(), "/cb")
	if !strings.Contains(out, "having trouble processing your request") {
		t.Fatalf("apology line missing:\n%s", out)
	}
	if !strings.Contains(out, "<Gather") {
		t.Fatalf("fallback must re-open the gather:\n%s", out)
	}
}
