package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/soaerr"
)

type SOARepo struct {
	pool *pgxpool.Pool
}

func NewSOARepo(pool *pgxpool.Pool) *SOARepo {
	return &SOARepo{pool: pool}
}

const soaColumns = `
	id, agent_user_id, client_id, status, delivery_method, secure_token, token_expires_at,
	language, products_preselected, products_selected, signer_type,
	client_typed_signature, client_signed_at, client_ip_address, client_user_agent,
	rep_name, rep_relationship,
	agent_name, agent_phone, agent_npn,
	beneficiary_name, beneficiary_phone, beneficiary_address,
	agent_typed_signature, agent_signed_at,
	initial_contact_method, appointment_date, signed_artifact_path,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSOA is the single row-to-domain translation point. Every query that
// selects soaColumns goes through it, so the state-machine code never sees
// raw storage rows.
func scanSOA(row rowScanner) (*models.SOARecord, error) {
	var r models.SOARecord
	err := row.Scan(
		&r.ID, &r.AgentUserID, &r.ClientID, &r.Status, &r.DeliveryMethod, &r.SecureToken, &r.TokenExpiresAt,
		&r.Language, &r.ProductsPreselected, &r.ProductsSelected, &r.SignerType,
		&r.ClientTypedSignature, &r.ClientSignedAt, &r.ClientIPAddress, &r.ClientUserAgent,
		&r.RepName, &r.RepRelationship,
		&r.AgentName, &r.AgentPhone, &r.AgentNPN,
		&r.BeneficiaryName, &r.BeneficiaryPhone, &r.BeneficiaryAddress,
		&r.AgentTypedSignature, &r.AgentSignedAt,
		&r.InitialContactMethod, &r.AppointmentDate, &r.SignedArtifactPath,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, soaerr.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (r *SOARepo) Create(ctx context.Context, rec *models.SOARecord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO soa_records (
			agent_user_id, client_id, status, delivery_method, secure_token, token_expires_at,
			language, products_preselected,
			agent_name, agent_phone, agent_npn,
			beneficiary_name, beneficiary_phone, beneficiary_address,
			initial_contact_method, appointment_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`, rec.AgentUserID, rec.ClientID, rec.Status, rec.DeliveryMethod, rec.SecureToken, rec.TokenExpiresAt,
		rec.Language, rec.ProductsPreselected,
		rec.AgentName, rec.AgentPhone, rec.AgentNPN,
		rec.BeneficiaryName, rec.BeneficiaryPhone, rec.BeneficiaryAddress,
		rec.InitialContactMethod, rec.AppointmentDate,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

func (r *SOARepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SOARecord, error) {
	return scanSOA(r.pool.QueryRow(ctx, `SELECT`+soaColumns+` FROM soa_records WHERE id = $1`, id))
}

func (r *SOARepo) GetByToken(ctx context.Context, token string) (*models.SOARecord, error) {
	return scanSOA(r.pool.QueryRow(ctx, `SELECT`+soaColumns+` FROM soa_records WHERE secure_token = $1`, token))
}

type SOAFilter struct {
	AgentUserID *uuid.UUID
	ClientID    *uuid.UUID
	Status      *string
	Limit       int
	Offset      int
}

func (r *SOARepo) List(ctx context.Context, f SOAFilter) ([]models.SOARecord, error) {
	query := `SELECT` + soaColumns + ` FROM soa_records`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.AgentUserID != nil {
		where = append(where, fmt.Sprintf("agent_user_id = $%d", argIdx))
		args = append(args, *f.AgentUserID)
		argIdx++
	}
	if f.ClientID != nil {
		where = append(where, fmt.Sprintf("client_id = $%d", argIdx))
		args = append(args, *f.ClientID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SOARecord
	for rows.Next() {
		rec, err := scanSOA(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateStatus is the optimistic-concurrency guard: the row only moves to
// the new status if it is still in one of the expected preconditions at
// write time. Returns false when the guard lost the race.
func (r *SOARepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE soa_records SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatusWithAudit performs the guarded transition and the audit
// append in one transaction, so a compliance-critical status change can
// never be committed unaudited.
func (r *SOARepo) UpdateStatusWithAudit(ctx context.Context, id uuid.UUID, from []string, to string, entry models.AuditLogEntry) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE soa_records SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, to, id, from)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ClientSignature is everything a winning submit stamps onto the record.
type ClientSignature struct {
	TypedSignature   string
	ProductsSelected []string
	SignerType       string
	RepName          *string
	RepRelationship  *string
	IPAddress        *string
	UserAgent        *string
	SignedAt         time.Time
}

// MarkClientSigned atomically moves a still-signable record to
// client_signed and stamps the signature fields. Two racing submits hit
// the same guarded UPDATE; exactly one sees an affected row. The audit
// append rides in the same transaction.
func (r *SOARepo) MarkClientSigned(ctx context.Context, id uuid.UUID, sig ClientSignature, entry models.AuditLogEntry) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE soa_records SET
			status = $1,
			client_typed_signature = $2,
			products_selected = $3,
			signer_type = $4,
			rep_name = $5,
			rep_relationship = $6,
			client_ip_address = $7,
			client_user_agent = $8,
			client_signed_at = $9,
			updated_at = now()
		WHERE id = $10 AND status = ANY($11)
	`, models.SOAStatusClientSigned,
		sig.TypedSignature, sig.ProductsSelected, sig.SignerType,
		sig.RepName, sig.RepRelationship, sig.IPAddress, sig.UserAgent, sig.SignedAt,
		id, []string{models.SOAStatusSent, models.SOAStatusOpened})
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// MarkCountersigned finalizes the record: agent signature fields plus the
// client_signed -> completed transition, audited, in one transaction.
func (r *SOARepo) MarkCountersigned(ctx context.Context, id uuid.UUID, typedSignature string, signedAt time.Time, entry models.AuditLogEntry) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE soa_records SET
			status = $1,
			agent_typed_signature = $2,
			agent_signed_at = $3,
			updated_at = now()
		WHERE id = $4 AND status = $5
	`, models.SOAStatusCompleted, typedSignature, signedAt, id, models.SOAStatusClientSigned)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// SetArtifactPath records the freshly rendered artifact location together
// with its pdf_generated audit entry. If the append fails nothing is
// committed and the previous path stays current.
func (r *SOARepo) SetArtifactPath(ctx context.Context, id uuid.UUID, path string, entry models.AuditLogEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE soa_records SET signed_artifact_path = $1, updated_at = now() WHERE id = $2
	`, path, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return soaerr.ErrNotFound
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListExpiredUnsigned returns records whose token elapsed without a
// signature, for the optional sweep that settles them to expired.
func (r *SOARepo) ListExpiredUnsigned(ctx context.Context, limit int) ([]models.SOARecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+soaColumns+`
		FROM soa_records
		WHERE status = ANY($1) AND token_expires_at < now()
		ORDER BY token_expires_at
		LIMIT $2
	`, []string{models.SOAStatusDraft, models.SOAStatusSent, models.SOAStatusOpened}, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SOARecord
	for rows.Next() {
		rec, err := scanSOA(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
