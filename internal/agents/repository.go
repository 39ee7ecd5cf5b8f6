package agents

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("agents: not found")

// Repository is the read-only persistence contract for agent snapshots.
//
// The call pipeline never writes agent rows. No Create/Update/Delete
// methods are provided by design.
type Repository interface {
	// GetByID resolves an agent regardless of tenant. Used on the webhook
	// path, where tenancy is established by the session, not the caller.
	GetByID(ctx context.Context, id string) (Agent, error)

	// GetByIDForTenant resolves an agent and enforces tenant ownership.
	// Returns ErrNotFound for cross-tenant ids; callers must not be able
	// to distinguish "absent" from "not yours".
	GetByIDForTenant(ctx context.Context, tenantID, id string) (Agent, error)
}
