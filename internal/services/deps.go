package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/repositories"
)

// The services take their data dependencies as interfaces so tests can
// substitute in-memory doubles. The pgx repositories satisfy them.

type SOAStore interface {
	Create(ctx context.Context, rec *models.SOARecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SOARecord, error)
	GetByToken(ctx context.Context, token string) (*models.SOARecord, error)
	List(ctx context.Context, f repositories.SOAFilter) ([]models.SOARecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
	UpdateStatusWithAudit(ctx context.Context, id uuid.UUID, from []string, to string, entry models.AuditLogEntry) (bool, error)
	MarkClientSigned(ctx context.Context, id uuid.UUID, sig repositories.ClientSignature, entry models.AuditLogEntry) (bool, error)
	MarkCountersigned(ctx context.Context, id uuid.UUID, typedSignature string, signedAt time.Time, entry models.AuditLogEntry) (bool, error)
	SetArtifactPath(ctx context.Context, id uuid.UUID, path string, entry models.AuditLogEntry) error
	ListExpiredUnsigned(ctx context.Context, limit int) ([]models.SOARecord, error)
}

type AuditStore interface {
	Record(ctx context.Context, entry models.AuditLogEntry) error
	ListBySOA(ctx context.Context, soaID uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error)
}

type ClientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	ListContacts(ctx context.Context, clientID uuid.UUID, kind string) ([]models.ClientContact, error)
}

// AgentDirectory resolves where the countersignature notice goes.
type AgentDirectory interface {
	GetEmail(ctx context.Context, agentUserID uuid.UUID) (string, error)
}

// Renderer produces the final document bytes for a finalized record.
type Renderer interface {
	Render(rec *models.SOARecord) ([]byte, error)
}
