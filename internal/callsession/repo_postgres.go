package callsession

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists call sessions in the call_sessions table.
//
// Schema assumptions:
// - UNIQUE (provider_call_sid)
// - transcript and response_times are JSONB arrays, NOT NULL DEFAULT '[]'
//
// Appends use jsonb concatenation in a single UPDATE so concurrent webhook
// deliveries for the same call cannot lose entries.
type PostgresStore struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const sessionColumns = `id, user_id, agent_id, tenant_id, provider_call_sid, from_number, to_number,
       status, start_time, end_time, duration, transcript, response_times, created_at, updated_at`

func (s *PostgresStore) GetOrCreate(ctx context.Context, p CreateParams) (CallSession, error) {
	if p.ProviderCallSID == "" {
		return CallSession{}, fmt.Errorf("%w: provider call sid required", ErrInvalidArgument)
	}

	now := s.clock().UTC()
	q := `
INSERT INTO call_sessions (
  id, user_id, agent_id, tenant_id, provider_call_sid, from_number, to_number,
  status, start_time, transcript, response_times, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,'[]'::jsonb,'[]'::jsonb,$10,$10
)
ON CONFLICT (provider_call_sid) DO NOTHING
RETURNING ` + sessionColumns

	row := s.db.QueryRowContext(ctx, q,
		uuid.NewString(),
		p.UserID,
		p.AgentID,
		p.TenantID,
		p.ProviderCallSID,
		p.FromNumber,
		p.ToNumber,
		StatusActive,
		now,
		now,
	)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, err
	}

	// Conflict: another request won the insert race. Read the winner's row.
	return s.GetByProviderCallSID(ctx, p.ProviderCallSID)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	sess, err := scanSession(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, ErrNotFound
	}
	return sess, err
}

func (s *PostgresStore) GetByProviderCallSID(ctx context.Context, sid string) (CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE provider_call_sid = $1`
	sess, err := scanSession(s.db.QueryRowContext(ctx, q, sid))
	if errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, ErrNotFound
	}
	return sess, err
}

func (s *PostgresStore) AppendTranscript(ctx context.Context, id string, role Role, content string, responseTimeSeconds *float64) (CallSession, error) {
	if role != RoleUser && role != RoleAssistant {
		return CallSession{}, fmt.Errorf("%w: role %q", ErrInvalidArgument, role)
	}

	now := s.clock().UTC()
	entryJSON, err := json.Marshal(TranscriptEntry{Timestamp: now, Role: role, Content: content})
	if err != nil {
		return CallSession{}, err
	}

	var rtJSON []byte
	if responseTimeSeconds != nil {
		rtJSON, err = json.Marshal(ResponseTimeEntry{Timestamp: now, ResponseTimeSeconds: *responseTimeSeconds})
		if err != nil {
			return CallSession{}, err
		}
	}

	// One statement appends both arrays; $3 NULL leaves response_times alone.
	q := `
UPDATE call_sessions
SET transcript = transcript || $2::jsonb,
    response_times = CASE WHEN $3::jsonb IS NULL THEN response_times ELSE response_times || $3::jsonb END,
    updated_at = $4
WHERE id = $1
RETURNING ` + sessionColumns

	sess, err := scanSession(s.db.QueryRowContext(ctx, q, id, entryJSON, nullableJSON(rtJSON), now))
	if errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, ErrNotFound
	}
	return sess, err
}

func (s *PostgresStore) TransitionToTerminal(ctx context.Context, id string, status Status) (CallSession, error) {
	if !status.IsTerminal() {
		return CallSession{}, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidArgument, status)
	}

	now := s.clock().UTC()
	// Guarded on status=active: a second terminal event matches zero rows
	// and falls through to the no-op read below.
	q := `
UPDATE call_sessions
SET status = $2,
    end_time = $3,
    duration = GREATEST(0, ROUND(EXTRACT(EPOCH FROM ($3::timestamptz - start_time))))::int,
    updated_at = $3
WHERE id = $1 AND status = $4
RETURNING ` + sessionColumns

	sess, err := scanSession(s.db.QueryRowContext(ctx, q, id, status, now, StatusActive))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]CallSession, int, error) {
	if f.TenantID == "" || f.UserID == "" {
		return nil, 0, fmt.Errorf("%w: tenant and user scope required", ErrInvalidArgument)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"tenant_id = $1", "user_id = $2"}
	args := []any{f.TenantID, f.UserID}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	countQ := `SELECT COUNT(*) FROM call_sessions WHERE ` + cond
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	listQ := fmt.Sprintf(`SELECT `+sessionColumns+` FROM call_sessions WHERE `+cond+`
ORDER BY created_at DESC
LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []CallSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var (
		sess          CallSession
		endTime       sql.NullTime
		duration      sql.NullInt64
		transcript    []byte
		responseTimes []byte
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.AgentID,
		&sess.TenantID,
		&sess.ProviderCallSID,
		&sess.FromNumber,
		&sess.ToNumber,
		&sess.Status,
		&sess.StartTime,
		&endTime,
		&duration,
		&transcript,
		&responseTimes,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return CallSession{}, err
	}
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	if duration.Valid {
		sess.DurationSeconds = int(duration.Int64)
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &sess.Transcript); err != nil {
			return CallSession{}, fmt.Errorf("callsession: corrupt transcript for %s: %w", sess.ID, err)
		}
	}
	if len(responseTimes) > 0 {
		if err := json.Unmarshal(responseTimes, &sess.ResponseTimes); err != nil {
			return CallSession{}, fmt.Errorf("callsession: corrupt response_times for %s: %w", sess.ID, err)
		}
	}
	return sess, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
