package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only; records are not exposed to tenant users.
// Callers treat logging as best-effort and never fail a call on it.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallInitiated records an outbound call placed on behalf of a user.
func (s *Service) LogCallInitiated(ctx context.Context, tenantID, actorUserID, actorRole, callID, sessionID, agentID string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeCallInitiated,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		CallID:      callID,
		SessionID:   sessionID,
		AgentID:     agentID,
		Message:     "outbound call placed",
	})
}

// LogCallTerminated records a call reaching a terminal status.
func (s *Service) LogCallTerminated(ctx context.Context, tenantID, sessionID, status string) error {
	return s.Append(ctx, Event{
		TenantID:  tenantID,
		Type:      EventTypeCallTerminated,
		SessionID: sessionID,
		Message:   "call ended with status " + status,
	})
}

// LogCallTransfer records a hand-off to a human agent.
func (s *Service) LogCallTransfer(ctx context.Context, tenantID, sessionID string) error {
	return s.Append(ctx, Event{
		TenantID:  tenantID,
		Type:      EventTypeCallTransfer,
		SessionID: sessionID,
		Message:   "call transferred to human agent",
	})
}
