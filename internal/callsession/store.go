package callsession

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("callsession: not found")
	ErrInvalidArgument = errors.New("callsession: invalid argument")
)

// Store is the persistence contract for call sessions.
//
// Mutation rules:
//   - Appends and terminal transitions are single atomic statements, never
//     application-level read-modify-write, so concurrent webhook deliveries
//     for the same call cannot lose updates.
//   - No Delete is provided; retention is an external concern.
type Store interface {
	// GetOrCreate returns the session for p.ProviderCallSID, creating it
	// with status=active and an empty transcript if absent. Safe under
	// concurrent invocation: exactly one row is stored, losers read the
	// winner's row.
	GetOrCreate(ctx context.Context, p CreateParams) (CallSession, error)

	GetByID(ctx context.Context, id string) (CallSession, error)
	GetByProviderCallSID(ctx context.Context, sid string) (CallSession, error)

	// AppendTranscript atomically appends one transcript entry and, when
	// responseTimeSeconds is non-nil, one response-time entry in the same
	// write.
	AppendTranscript(ctx context.Context, id string, role Role, content string, responseTimeSeconds *float64) (CallSession, error)

	// TransitionToTerminal sets a terminal status, end_time and duration.
	// Calling it on an already-terminal session is a no-op returning the
	// current state.
	TransitionToTerminal(ctx context.Context, id string, status Status) (CallSession, error)

	// List returns sessions scoped to the filter's tenant and user, newest
	// first, plus the total matching count.
	List(ctx context.Context, f ListFilter) ([]CallSession, int, error)
}
