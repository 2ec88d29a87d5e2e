package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soasign/backend/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditInsertSQL = `
	INSERT INTO audit_log (soa_id, action, performed_by, ip_address, user_agent, metadata)
	VALUES ($1, $2, $3, $4, $5, $6)`

// insertAudit appends an entry inside an open transaction, used by SOARepo
// so compliance-critical status changes commit together with their trail.
func insertAudit(ctx context.Context, tx pgx.Tx, entry models.AuditLogEntry) error {
	_, err := tx.Exec(ctx, auditInsertSQL,
		entry.SOAID, entry.Action, entry.PerformedBy, entry.IPAddress, entry.UserAgent, entry.Metadata)
	return err
}

// Record appends one entry. There is intentionally no update or delete
// path anywhere in this repository.
func (r *AuditRepo) Record(ctx context.Context, entry models.AuditLogEntry) error {
	_, err := r.pool.Exec(ctx, auditInsertSQL,
		entry.SOAID, entry.Action, entry.PerformedBy, entry.IPAddress, entry.UserAgent, entry.Metadata)
	return err
}

// ListBySOA returns the trail in ascending creation order, the order a
// reviewer reads it in.
func (r *AuditRepo) ListBySOA(ctx context.Context, soaID uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, soa_id, action, performed_by, ip_address, user_agent, metadata, created_at
		FROM audit_log WHERE soa_id = $1
		ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3
	`, soaID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.SOAID, &e.Action, &e.PerformedBy, &e.IPAddress, &e.UserAgent, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
