package callsession

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store useful for tests and local development.
// All mutations happen under one mutex, which gives the same per-session
// serialization the Postgres implementation gets from atomic updates.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*CallSession
	bySID map[string]string // provider call sid -> session id

	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*CallSession),
		bySID: make(map[string]string),
		Clock: time.Now,
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, p CreateParams) (CallSession, error) {
	_ = ctx
	if p.ProviderCallSID == "" {
		return CallSession{}, fmt.Errorf("%w: provider call sid required", ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.bySID[p.ProviderCallSID]; ok {
		return m.byID[id].clone(), nil
	}

	now := m.Clock().UTC()
	sess := &CallSession{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		AgentID:         p.AgentID,
		TenantID:        p.TenantID,
		ProviderCallSID: p.ProviderCallSID,
		FromNumber:      p.FromNumber,
		ToNumber:        p.ToNumber,
		Status:          StatusActive,
		StartTime:       now,
		Transcript:      []TranscriptEntry{},
		ResponseTimes:   []ResponseTimeEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.byID[sess.ID] = sess
	m.bySID[sess.ProviderCallSID] = sess.ID
	return sess.clone(), nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (CallSession, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return sess.clone(), nil
}

func (m *MemoryStore) GetByProviderCallSID(ctx context.Context, sid string) (CallSession, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySID[sid]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return m.byID[id].clone(), nil
}

func (m *MemoryStore) AppendTranscript(ctx context.Context, id string, role Role, content string, responseTimeSeconds *float64) (CallSession, error) {
	_ = ctx
	if role != RoleUser && role != RoleAssistant {
		return CallSession{}, fmt.Errorf("%w: role %q", ErrInvalidArgument, role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}

	now := m.Clock().UTC()
	sess.Transcript = append(sess.Transcript, TranscriptEntry{Timestamp: now, Role: role, Content: content})
	if responseTimeSeconds != nil {
		sess.ResponseTimes = append(sess.ResponseTimes, ResponseTimeEntry{Timestamp: now, ResponseTimeSeconds: *responseTimeSeconds})
	}
	sess.UpdatedAt = now
	return sess.clone(), nil
}

func (m *MemoryStore) TransitionToTerminal(ctx context.Context, id string, status Status) (CallSession, error) {
	_ = ctx
	if !status.IsTerminal() {
		return CallSession{}, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidArgument, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	if sess.Status.IsTerminal() {
		return sess.clone(), nil
	}

	now := m.Clock().UTC()
	end := now
	sess.Status = status
	sess.EndTime = &end
	d := int(end.Sub(sess.StartTime).Round(time.Second) / time.Second)
	if d < 0 {
		d = 0
	}
	sess.DurationSeconds = d
	sess.UpdatedAt = now
	return sess.clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter) ([]CallSession, int, error) {
	_ = ctx
	if f.TenantID == "" || f.UserID == "" {
		return nil, 0, fmt.Errorf("%w: tenant and user scope required", ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []CallSession
	for _, sess := range m.byID {
		if sess.TenantID != f.TenantID || sess.UserID != f.UserID {
			continue
		}
		if f.AgentID != "" && sess.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && sess.Status != f.Status {
			continue
		}
		matched = append(matched, sess.clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []CallSession{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *CallSession) clone() CallSession {
	out := *s
	out.Transcript = append([]TranscriptEntry(nil), s.Transcript...)
	out.ResponseTimes = append([]ResponseTimeEntry(nil), s.ResponseTimes...)
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	return out
}
