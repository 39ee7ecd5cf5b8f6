package telephony

import (
	"net/url"
	"strconv"
	"strings"
)

// WebhookEvent is a parsed provider voice webhook. All fields come from the
// form-encoded callback body; absent fields are zero values.
type WebhookEvent struct {
	CallSID    string
	CallStatus string
	From       string
	To         string
	Direction  string

	SpeechResult   string
	Confidence     float64
	SpeechDuration float64
	CallDuration   int
}

// ParseWebhookEvent extracts the fields we act on from a callback form.
// Unknown keys are ignored; malformed numeric fields parse to zero so a
// partially broken payload still dispatches.
func ParseWebhookEvent(form url.Values) WebhookEvent {
	ev := WebhookEvent{
		CallSID:      form.Get("CallSid"),
		CallStatus:   strings.ToLower(form.Get("CallStatus")),
		From:         form.Get("From"),
		To:           form.Get("To"),
		Direction:    strings.ToLower(form.Get("Direction")),
		SpeechResult: form.Get("SpeechResult"),
	}
	if v := form.Get("Confidence"); v != "" {
		ev.Confidence, _ = strconv.ParseFloat(v, 64)
	}
	if v := form.Get("SpeechDuration"); v != "" {
		ev.SpeechDuration, _ = strconv.ParseFloat(v, 64)
	}
	if v := form.Get("CallDuration"); v != "" {
		ev.CallDuration, _ = strconv.Atoi(v)
	}
	return ev
}

// HasSpeech reports whether the event carries a recognized utterance.
func (e WebhookEvent) HasSpeech() bool {
	return strings.TrimSpace(e.SpeechResult) != ""
}

// IsOutbound reports whether the call was placed by us.
func (e WebhookEvent) IsOutbound() bool {
	return strings.HasPrefix(e.Direction, "outbound")
}

// IsTerminalStatus reports whether the event ends the call.
func (e WebhookEvent) IsTerminalStatus() bool {
	switch e.CallStatus {
	case "completed", "failed", "busy", "no-answer", "canceled":
		return true
	}
	return false
}
