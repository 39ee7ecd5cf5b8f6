package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrModelInvocation marks any model adapter failure (transport error,
// timeout, empty reply). Callers on the live call path must degrade to
// scripted fallback markup instead of surfacing it.
var ErrModelInvocation = errors.New("conversation: model invocation failed")

// Message is one prior conversation turn passed to the model as context.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Completion is a successful model reply.
type Completion struct {
	ReplyText string
	Elapsed   time.Duration
}

// ModelAdapter is the boundary to an external text-generation service.
//
// Implementations must signal failure distinctly from success: a nil error
// with an empty ReplyText is not a valid outcome.
type ModelAdapter interface {
	Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (Completion, error)
}
