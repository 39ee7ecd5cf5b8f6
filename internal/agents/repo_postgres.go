package agents

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads agent snapshots from the agents table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const agentColumns = `id, tenant_id, name, system_prompt, language, voice_type, fallback_response, created_at, updated_at`

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Agent, error) {
	const q = `
SELECT ` + agentColumns + `
FROM agents
WHERE id = $1
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByIDForTenant(ctx context.Context, tenantID, id string) (Agent, error) {
	const q = `
SELECT ` + agentColumns + `
FROM agents
WHERE tenant_id = $1 AND id = $2
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, tenantID, id))
}

func (r *PostgresRepo) scanOne(row *sql.Row) (Agent, error) {
	var a Agent
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.SystemPrompt,
		&a.Language,
		&a.VoiceType,
		&a.FallbackResponse,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, err
	}
	return a, nil
}
