package telephony

import (
	"bytes"
	"encoding/xml"
	"strings"

	"voice-agent-platform/internal/agents"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary: Say, Gather,
// Pause, Redirect, Hangup.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Say           *twimlSay
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func renderTwiML(r twimlResponse) string {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		// Static verb structs cannot fail to marshal; if they somehow do,
		// an empty response is still valid markup and keeps the call alive.
		return xml.Header + "<Response></Response>"
	}
	_ = enc.Flush()
	return buf.String()
}

// VoiceFor maps an agent voice type to a provider TTS voice identifier.
// Unknown or empty types fall back to the provider default.
func VoiceFor(voiceType string) string {
	switch strings.ToLower(strings.TrimSpace(voiceType)) {
	case "male":
		return "en-US-Neural2-F"
	case "female":
		return "en-US-Neural2-E"
	case "alloy", "echo", "fable", "onyx", "nova", "shimmer":
		return strings.ToLower(strings.TrimSpace(voiceType))
	default:
		return "alloy"
	}
}

// Builder renders the voice responses driving a call. All methods are pure;
// errors are impossible by construction so every path yields valid markup.
type Builder struct {
	// GatherTimeoutSeconds is how long the provider listens for speech
	// before falling through to the post-gather verbs.
	GatherTimeoutSeconds int
}

func NewBuilder(gatherTimeoutSeconds int) Builder {
	if gatherTimeoutSeconds <= 0 {
		gatherTimeoutSeconds = 10
	}
	return Builder{GatherTimeoutSeconds: gatherTimeoutSeconds}
}

func (b Builder) gather(actionURL, voice, prompt string) twimlGather {
	return twimlGather{
		Input:         "speech",
		Action:        actionURL,
		Method:        "POST",
		Timeout:       b.GatherTimeoutSeconds,
		SpeechTimeout: "auto",
		Say:           &twimlSay{Voice: voice, Text: prompt},
	}
}

// Greeting speaks the agent's configured greeting (or a default naming the
// agent) and opens the first speech gather.
func (b Builder) Greeting(agent agents.Agent, actionURL string) string {
	voice := VoiceFor(agent.VoiceType)
	greeting := agent.FallbackResponse
	if greeting == "" {
		greeting = "Hello! This is " + agent.Name + ". How can I help you today?"
	}
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Voice: voice, Text: greeting},
		b.gather(actionURL, voice, "Please tell me how I can assist you."),
		twimlSay{Voice: voice, Text: "I didn't hear anything. Please let me know if you need assistance."},
	}})
}

// TurnReply speaks the assistant's reply and re-gathers for the next turn.
func (b Builder) TurnReply(agent agents.Agent, replyText, actionURL string) string {
	voice := VoiceFor(agent.VoiceType)
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Voice: voice, Text: replyText},
		b.gather(actionURL, voice, "How else can I help you?"),
		twimlSay{Voice: voice, Text: "I didn't hear anything. Please let me know if you need anything else."},
	}})
}

// RepeatPrompt asks the caller to repeat after a low-confidence result.
func (b Builder) RepeatPrompt(agent agents.Agent, actionURL string) string {
	voice := VoiceFor(agent.VoiceType)
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Voice: voice, Text: "I didn't catch that clearly. Could you please repeat what you said?"},
		b.gather(actionURL, voice, "Please speak clearly and try again."),
	}})
}

// ModelFallback is spoken when the model call fails; the gather points back
// at the same webhook so the caller's turn can be retried.
func (b Builder) ModelFallback(agent agents.Agent, actionURL string) string {
	voice := VoiceFor(agent.VoiceType)
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Voice: voice, Text: "I'm sorry, but I'm having trouble processing your request right now. Please try again."},
		b.gather(actionURL, voice, "Please try again."),
	}})
}

// Transfer hands the caller off to a human.
func (b Builder) Transfer() string {
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Text: "Transferring you to a human agent. Please hold."},
		twimlPause{Length: 2},
		twimlSay{Text: "Thank you for your patience."},
		twimlHangup{},
	}})
}

// DefaultResponse is the agent-less fallback greeting.
func DefaultResponse() string {
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Text: "Hello! Thank you for answering our call."},
		twimlSay{Text: "An agent will be with you shortly."},
	}})
}

// AgentNotFound is spoken when the referenced agent configuration is missing.
func AgentNotFound() string {
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Text: "I'm sorry, but I couldn't find the agent configuration. Please try again later."},
	}})
}

// ErrorResponse is the boundary catch-all. An unanswered or malformed
// webhook response terminates the live call, so this must always render.
func ErrorResponse() string {
	return renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Text: "I'm sorry, but I'm experiencing technical difficulties. Please try again later."},
	}})
}

// EmptyAck acknowledges terminal or uninteresting events without prompting
// further speech.
func EmptyAck() string {
	return renderTwiML(twimlResponse{})
}
