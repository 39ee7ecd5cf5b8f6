package agents

import "time"

// Agent is the voice-agent configuration consumed by the call pipeline.
//
// The call pipeline treats this as an immutable snapshot fetched once per
// webhook invocation. Agent CRUD (name, prompt, voice management) lives in
// a separate management surface and is out of scope here.
type Agent struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Name         string `json:"name" db:"name"`
	SystemPrompt string `json:"system_prompt" db:"system_prompt"`
	Language     string `json:"language" db:"language"`

	// VoiceType selects the provider TTS voice (male, female, or a
	// pass-through voice identifier). Empty means provider default.
	VoiceType string `json:"voice_type" db:"voice_type"`

	// FallbackResponse doubles as the greeting line when set.
	FallbackResponse string `json:"fallback_response" db:"fallback_response"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
