package conversation

import (
	"context"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/pkg/logger"
)

// defaultSystemPrompt is used for agents configured without one.
const defaultSystemPrompt = "You are a helpful assistant."

type TurnOutcome int

const (
	// TurnRejected: speech confidence below threshold. Nothing persisted,
	// model never invoked. Low-confidence transcriptions are more likely
	// garbage than signal; recording them would pollute the context fed to
	// the model on later turns.
	TurnRejected TurnOutcome = iota

	// TurnReplied: user and assistant entries appended, reply ready to speak.
	TurnReplied

	// TurnModelFailed: the user entry stands but the model call failed or
	// timed out; speak a scripted fallback and offer a retry gather.
	TurnModelFailed
)

// TurnResult is what the dispatcher turns into voice markup.
type TurnResult struct {
	Outcome   TurnOutcome
	ReplyText string

	// Session is the freshest known state; zero-valued for TurnRejected.
	Session callsession.CallSession
}

// Processor runs one conversational turn: confidence gate, context window,
// model invocation under a deadline, transcript and timing mutation.
type Processor struct {
	store   callsession.Store
	adapter ModelAdapter

	confidenceThreshold float64
	contextWindow       int
	modelTimeout        time.Duration
}

func NewProcessor(store callsession.Store, adapter ModelAdapter, cfg config.VoiceConfig) *Processor {
	// Mirror the config defaults so a zero-valued VoiceConfig cannot
	// silently disable the gate or the context window.
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 6
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 10 * time.Second
	}
	return &Processor{
		store:               store,
		adapter:             adapter,
		confidenceThreshold: cfg.ConfidenceThreshold,
		contextWindow:       cfg.ContextWindow,
		modelTimeout:        cfg.ModelTimeout,
	}
}

// ProcessTurn handles one speech result for an active session.
//
// The session argument is the dispatcher's read of current state; the
// returned Session reflects all appends made here.
func (p *Processor) ProcessTurn(ctx context.Context, sess callsession.CallSession, agent agents.Agent, speechText string, confidence float64) (TurnResult, error) {
	log := logger.ForCall(ctx, sess.ProviderCallSID)

	if confidence < p.confidenceThreshold {
		log.Debug("speech below confidence threshold, dropped",
			"confidence", confidence, "threshold", p.confidenceThreshold)
		return TurnResult{Outcome: TurnRejected}, nil
	}

	// History is built from state prior to this utterance.
	history := p.contextFrom(sess.Transcript)

	sess, err := p.store.AppendTranscript(ctx, sess.ID, callsession.RoleUser, speechText, nil)
	if err != nil {
		return TurnResult{}, err
	}

	systemPrompt := agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	modelCtx, cancel := context.WithTimeout(ctx, p.modelTimeout)
	defer cancel()

	completion, err := p.adapter.Complete(modelCtx, systemPrompt, history, speechText)
	if err != nil {
		// The user entry stays; the provider gets fallback markup and the
		// caller can retry on the next gather.
		log.Warn("model invocation failed", "err", err)
		return TurnResult{Outcome: TurnModelFailed, Session: sess}, nil
	}

	rt := completion.Elapsed.Seconds()
	sess, err = p.store.AppendTranscript(ctx, sess.ID, callsession.RoleAssistant, completion.ReplyText, &rt)
	if err != nil {
		return TurnResult{}, err
	}

	log.Debug("turn completed", "response_time_s", rt, "transcript_len", len(sess.Transcript))
	return TurnResult{Outcome: TurnReplied, ReplyText: completion.ReplyText, Session: sess}, nil
}

// contextFrom takes the last contextWindow entries, filtered to user and
// assistant roles, in chronological order.
func (p *Processor) contextFrom(transcript []callsession.TranscriptEntry) []Message {
	start := len(transcript) - p.contextWindow
	if start < 0 {
		start = 0
	}
	var history []Message
	for _, e := range transcript[start:] {
		if e.Role != callsession.RoleUser && e.Role != callsession.RoleAssistant {
			continue
		}
		history = append(history, Message{Role: string(e.Role), Content: e.Content})
	}
	return history
}
