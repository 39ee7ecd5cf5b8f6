package voice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/pkg/logger"
)

var (
	ErrInvalidNumber = errors.New("voice: destination must be E.164 with leading +")
	ErrAgentNotFound = errors.New("voice: agent not found")
)

// Initiator places outbound calls and eagerly creates their sessions so the
// first webhook already finds state to attach to.
type Initiator struct {
	provider telephony.Provider
	agents   agents.Repository
	store    callsession.Store
	audit    *audit.Service

	fromNumber    string
	publicBaseURL string
}

func NewInitiator(
	provider telephony.Provider,
	agentRepo agents.Repository,
	store callsession.Store,
	auditSvc *audit.Service,
	fromNumber, publicBaseURL string,
) *Initiator {
	return &Initiator{
		provider:      provider,
		agents:        agentRepo,
		store:         store,
		audit:         auditSvc,
		fromNumber:    fromNumber,
		publicBaseURL: publicBaseURL,
	}
}

type InitiateParams struct {
	AgentID  string
	ToNumber string
}

type InitiateResult struct {
	CallID          string
	ProviderCallSID string
	SessionID       string
	Status          string
	ToNumber        string
}

// InitiateCall validates the destination, resolves the agent within the
// caller's tenant, places the call and records the session.
func (s *Initiator) InitiateCall(ctx context.Context, tenantID, userID, role string, p InitiateParams) (InitiateResult, error) {
	to := strings.TrimSpace(p.ToNumber)
	if !strings.HasPrefix(to, "+") || len(to) < 8 {
		return InitiateResult{}, ErrInvalidNumber
	}
	if p.AgentID == "" {
		return InitiateResult{}, ErrAgentNotFound
	}

	agent, err := s.agents.GetByIDForTenant(ctx, tenantID, p.AgentID)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return InitiateResult{}, ErrAgentNotFound
		}
		return InitiateResult{}, fmt.Errorf("resolve agent: %w", err)
	}

	q := url.Values{}
	q.Set("agentId", agent.ID)
	q.Set("tenantId", tenantID)
	q.Set("userId", userID)
	answerURL := s.publicBaseURL + "/webhooks/voice/init?" + q.Encode()
	statusURL := s.publicBaseURL + "/webhooks/voice/events?" + q.Encode()

	placed, err := s.provider.PlaceCall(ctx, to, s.fromNumber, answerURL, statusURL)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("place call: %w", err)
	}

	sess, err := s.store.GetOrCreate(ctx, callsession.CreateParams{
		ProviderCallSID: placed.ProviderCallSID,
		UserID:          userID,
		AgentID:         agent.ID,
		TenantID:        tenantID,
		FromNumber:      s.fromNumber,
		ToNumber:        to,
	})
	if err != nil {
		// The call is already ringing; the webhook path will recreate the
		// session on the first event, so report the call anyway.
		logger.From(ctx).Error("eager session create failed",
			"provider_call_sid", placed.ProviderCallSID, "error", err)
	}

	callID := CallIDFromSID(placed.ProviderCallSID)
	if s.audit != nil {
		if err := s.audit.LogCallInitiated(ctx, tenantID, userID, role, callID, sess.ID, agent.ID); err != nil {
			logger.From(ctx).Warn("audit initiate failed", "error", err)
		}
	}

	return InitiateResult{
		CallID:          callID,
		ProviderCallSID: placed.ProviderCallSID,
		SessionID:       sess.ID,
		Status:          placed.Status,
		ToNumber:        to,
	}, nil
}

// CallIDFromSID derives the public call identifier from a provider SID:
// "call_" plus the SID's last 8 characters.
func CallIDFromSID(sid string) string {
	if len(sid) <= 8 {
		return "call_" + sid
	}
	return "call_" + sid[len(sid)-8:]
}
