package callsession

import "time"

// CallSession is one telephone call between an external caller and a voice
// agent, with its ordered transcript and timing telemetry.
//
// Invariants:
//   - ProviderCallSID uniquely identifies at most one session; concurrent
//     creation for the same SID converges to one row.
//   - Status moves active -> {completed|failed|busy} and never leaves a
//     terminal state.
//   - EndTime and Duration are write-once, set on the first terminal event.
//   - Transcript and ResponseTimes are append-only and never truncated.
type CallSession struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	AgentID  string `json:"agent_id" db:"agent_id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// ProviderCallSID is the telephony provider's call identifier, used as
	// the idempotency key for session resolution.
	ProviderCallSID string `json:"provider_call_sid" db:"provider_call_sid"`

	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	Status Status `json:"status" db:"status"`

	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	// DurationSeconds is derived once as end_time - start_time.
	DurationSeconds int `json:"duration" db:"duration"`

	Transcript    []TranscriptEntry   `json:"transcript" db:"transcript"`
	ResponseTimes []ResponseTimeEntry `json:"response_times" db:"response_times"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBusy      Status = "busy"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy:
		return true
	default:
		return false
	}
}

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one utterance within a call. Entries are never edited
// or removed; timestamps are non-decreasing.
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
}

// ResponseTimeEntry records how long one successful assistant reply took.
type ResponseTimeEntry struct {
	Timestamp           time.Time `json:"timestamp"`
	ResponseTimeSeconds float64   `json:"response_time"`
}

// CreateParams are the immutable fields fixed at session creation.
type CreateParams struct {
	ProviderCallSID string
	UserID          string
	AgentID         string
	TenantID        string
	FromNumber      string
	ToNumber        string
}

// ListFilter narrows read-side session listings. TenantID and UserID are
// mandatory: callers only ever see their own sessions.
type ListFilter struct {
	TenantID string
	UserID   string

	AgentID string
	Status  Status

	Limit  int
	Offset int
}
