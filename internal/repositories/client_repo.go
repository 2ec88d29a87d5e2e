package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/soaerr"
)

type ClientRepo struct {
	pool *pgxpool.Pool
}

func NewClientRepo(pool *pgxpool.Pool) *ClientRepo {
	return &ClientRepo{pool: pool}
}

func (r *ClientRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, agent_user_id, first_name, last_name, created_at
		FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.AgentUserID, &c.FirstName, &c.LastName, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, soaerr.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepo) ListContacts(ctx context.Context, clientID uuid.UUID, kind string) ([]models.ClientContact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, kind, value
		FROM client_contacts WHERE client_id = $1 AND kind = $2
		ORDER BY created_at
	`, clientID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.ClientContact
	for rows.Next() {
		var c models.ClientContact
		if err := rows.Scan(&c.ID, &c.ClientID, &c.Kind, &c.Value); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
