package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soasign/backend/internal/soaerr"
)

// AgentRepo resolves agent contact details for countersignature notices.
// Agent accounts live in the surrounding platform; this table is a
// read-only projection of it.
type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

func (r *AgentRepo) GetEmail(ctx context.Context, agentUserID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM agents WHERE id = $1`, agentUserID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", soaerr.ErrNotFound
		}
		return "", err
	}
	return email, nil
}
