package voice

import (
	"context"
	"errors"
	"net/url"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/conversation"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/pkg/logger"
)

// CallbackParams carry the identifiers we encoded into the callback URLs
// handed to the provider at call creation.
type CallbackParams struct {
	AgentID   string
	SessionID string
	TenantID  string
	UserID    string
}

// Dispatcher turns provider webhook events into voice markup. Every entry
// point returns renderable markup no matter what fails internally: a webhook
// response the provider cannot parse drops the live call.
type Dispatcher struct {
	store     callsession.Store
	agents    agents.Repository
	processor *conversation.Processor
	builder   telephony.Builder
	locker    SessionLocker
	audit     *audit.Service

	publicBaseURL string
}

func NewDispatcher(
	store callsession.Store,
	agentRepo agents.Repository,
	processor *conversation.Processor,
	builder telephony.Builder,
	locker SessionLocker,
	auditSvc *audit.Service,
	publicBaseURL string,
) *Dispatcher {
	return &Dispatcher{
		store:         store,
		agents:        agentRepo,
		processor:     processor,
		builder:       builder,
		locker:        locker,
		audit:         auditSvc,
		publicBaseURL: publicBaseURL,
	}
}

// processURL builds the gather action target, round-tripping the callback
// identifiers so the next webhook can resume the same session.
func (d *Dispatcher) processURL(p CallbackParams) string {
	q := url.Values{}
	if p.AgentID != "" {
		q.Set("agentId", p.AgentID)
	}
	if p.SessionID != "" {
		q.Set("sessionId", p.SessionID)
	}
	if p.TenantID != "" {
		q.Set("tenantId", p.TenantID)
	}
	if p.UserID != "" {
		q.Set("userId", p.UserID)
	}
	u := d.publicBaseURL + "/webhooks/voice/process"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// HandleEvent is the status-callback entry point. Precedence:
// speech present beats status handling, lifecycle statuses are acknowledged
// in order (initiated, ringing, in-progress, terminal), anything unknown
// gets the default response.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) (body string) {
	defer d.recoverToError(ctx, ev, &body)

	switch {
	case ev.HasSpeech():
		return d.handleSpeech(ctx, ev, p)
	case ev.CallStatus == "initiated":
		return telephony.EmptyAck()
	case ev.CallStatus == "ringing" && ev.IsOutbound():
		return d.greet(ctx, ev, p)
	case ev.CallStatus == "in-progress":
		return d.greet(ctx, ev, p)
	case ev.IsTerminalStatus():
		d.finish(ctx, ev, p)
		return telephony.EmptyAck()
	default:
		return telephony.DefaultResponse()
	}
}

// HandleAnswer is the answer-URL entry point: the callee just picked up.
func (d *Dispatcher) HandleAnswer(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) (body string) {
	defer d.recoverToError(ctx, ev, &body)
	return d.greet(ctx, ev, p)
}

// HandleProcess is the gather-action entry point carrying a speech result.
func (d *Dispatcher) HandleProcess(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) (body string) {
	defer d.recoverToError(ctx, ev, &body)

	if !ev.HasSpeech() {
		// Gather timed out without speech; ask again rather than hang up.
		agent, err := d.resolveAgent(ctx, p.AgentID)
		if err != nil {
			return telephony.AgentNotFound()
		}
		return d.builder.RepeatPrompt(agent, d.processURL(p))
	}
	return d.handleSpeech(ctx, ev, p)
}

// HandleEnd finalizes a call on the explicit end callback.
func (d *Dispatcher) HandleEnd(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) (body string) {
	defer d.recoverToError(ctx, ev, &body)

	if ev.CallStatus == "" {
		ev.CallStatus = "completed"
	}
	d.finish(ctx, ev, p)
	return telephony.EmptyAck()
}

// HandleTransfer hands the caller to a human and closes the session.
func (d *Dispatcher) HandleTransfer(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) (body string) {
	defer d.recoverToError(ctx, ev, &body)

	if p.TenantID != "" && d.audit != nil {
		if err := d.audit.LogCallTransfer(ctx, p.TenantID, p.SessionID); err != nil {
			logger.ForCall(ctx, ev.CallSID).Warn("audit transfer failed", "error", err)
		}
	}
	return d.builder.Transfer()
}

func (d *Dispatcher) recoverToError(ctx context.Context, ev telephony.WebhookEvent, body *string) {
	if r := recover(); r != nil {
		logger.ForCall(ctx, ev.CallSID).Error("webhook handler panic", "panic", r)
		*body = telephony.ErrorResponse()
	}
}

func (d *Dispatcher) resolveAgent(ctx context.Context, agentID string) (agents.Agent, error) {
	if agentID == "" {
		return agents.Agent{}, agents.ErrNotFound
	}
	return d.agents.GetByID(ctx, agentID)
}

// greet ensures the session exists and speaks the opening prompt.
func (d *Dispatcher) greet(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) string {
	log := logger.ForCall(ctx, ev.CallSID)

	if p.AgentID == "" {
		return telephony.DefaultResponse()
	}
	agent, err := d.agents.GetByID(ctx, p.AgentID)
	if err != nil {
		if !errors.Is(err, agents.ErrNotFound) {
			log.Error("agent lookup failed", "agent_id", p.AgentID, "error", err)
			return telephony.ErrorResponse()
		}
		log.Warn("agent not found for greeting", "agent_id", p.AgentID)
		return telephony.AgentNotFound()
	}

	sess, err := d.ensureSession(ctx, ev, p, agent)
	if err != nil {
		log.Error("session create failed", "error", err)
		return telephony.ErrorResponse()
	}
	p.SessionID = sess.ID
	return d.builder.Greeting(agent, d.processURL(p))
}

func (d *Dispatcher) ensureSession(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams, agent agents.Agent) (callsession.CallSession, error) {
	tenantID := p.TenantID
	if tenantID == "" {
		tenantID = agent.TenantID
	}
	return d.store.GetOrCreate(ctx, callsession.CreateParams{
		ProviderCallSID: ev.CallSID,
		UserID:          p.UserID,
		AgentID:         agent.ID,
		TenantID:        tenantID,
		FromNumber:      ev.From,
		ToNumber:        ev.To,
	})
}

// handleSpeech runs one conversational turn under the per-call lock.
func (d *Dispatcher) handleSpeech(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) string {
	log := logger.ForCall(ctx, ev.CallSID)
	actionURL := d.processURL(p)

	agent, err := d.resolveAgent(ctx, p.AgentID)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return telephony.AgentNotFound()
		}
		log.Error("agent lookup failed", "agent_id", p.AgentID, "error", err)
		return telephony.ErrorResponse()
	}

	token, ok, err := d.locker.Acquire(ctx, ev.CallSID)
	if err != nil {
		log.Error("turn lock acquire failed", "error", err)
		return telephony.ErrorResponse()
	}
	if !ok {
		// A previous turn for this call is still in flight.
		log.Warn("turn already in progress, deferring")
		return d.builder.ModelFallback(agent, actionURL)
	}
	defer func() {
		if err := d.locker.Release(ctx, ev.CallSID, token); err != nil {
			log.Warn("turn lock release failed", "error", err)
		}
	}()

	sess, err := d.ensureSession(ctx, ev, p, agent)
	if err != nil {
		log.Error("session load failed", "error", err)
		return telephony.ErrorResponse()
	}
	if sess.Status.IsTerminal() {
		return telephony.EmptyAck()
	}
	p.SessionID = sess.ID
	actionURL = d.processURL(p)

	result, err := d.processor.ProcessTurn(ctx, sess, agent, ev.SpeechResult, ev.Confidence)
	if err != nil {
		log.Error("turn processing failed", "error", err)
		return telephony.ErrorResponse()
	}

	switch result.Outcome {
	case conversation.TurnRejected:
		return d.builder.RepeatPrompt(agent, actionURL)
	case conversation.TurnModelFailed:
		return d.builder.ModelFallback(agent, actionURL)
	default:
		return d.builder.TurnReply(agent, result.ReplyText, actionURL)
	}
}

// finish transitions the session to its terminal status. Safe to call for
// sessions that were never created or already ended.
func (d *Dispatcher) finish(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) {
	log := logger.ForCall(ctx, ev.CallSID)

	sess, err := d.resolveSession(ctx, ev, p)
	if err != nil {
		if !errors.Is(err, callsession.ErrNotFound) {
			log.Error("session lookup failed", "error", err)
		}
		return
	}
	if sess.Status.IsTerminal() {
		// Duplicate delivery; already closed and audited.
		return
	}

	status := terminalStatusFor(ev.CallStatus)
	final, err := d.store.TransitionToTerminal(ctx, sess.ID, status)
	if err != nil {
		log.Error("terminal transition failed", "status", string(status), "error", err)
		return
	}
	log.Info("call ended",
		"session_id", final.ID,
		"status", string(final.Status),
		"duration_seconds", final.DurationSeconds,
	)

	if d.audit != nil && final.TenantID != "" {
		if err := d.audit.LogCallTerminated(ctx, final.TenantID, final.ID, string(final.Status)); err != nil {
			log.Warn("audit terminate failed", "error", err)
		}
	}
}

// resolveSession looks the session up by its id when the callback carried
// one, falling back to the provider call SID otherwise.
func (d *Dispatcher) resolveSession(ctx context.Context, ev telephony.WebhookEvent, p CallbackParams) (callsession.CallSession, error) {
	if p.SessionID != "" {
		sess, err := d.store.GetByID(ctx, p.SessionID)
		if err == nil || !errors.Is(err, callsession.ErrNotFound) {
			return sess, err
		}
	}
	return d.store.GetByProviderCallSID(ctx, ev.CallSID)
}

// terminalStatusFor maps provider terminal statuses onto session statuses.
// no-answer and canceled are collapsed into failed.
func terminalStatusFor(callStatus string) callsession.Status {
	switch callStatus {
	case "completed":
		return callsession.StatusCompleted
	case "busy":
		return callsession.StatusBusy
	default:
		return callsession.StatusFailed
	}
}
