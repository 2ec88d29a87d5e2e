package models

import (
	"time"

	"github.com/google/uuid"
)

// PerformedBySystem is the actor sentinel for actions taken by the
// service itself (expiry sweeps, artifact generation).
const PerformedBySystem = "system"

// Audit actions
const (
	AuditActionCreated      = "created"
	AuditActionSent         = "sent"
	AuditActionResent       = "resent"
	AuditActionOpened       = "opened"
	AuditActionClientSigned = "client_signed"
	AuditActionCompleted    = "completed"
	AuditActionPDFGenerated = "pdf_generated"
	AuditActionExpired      = "expired"
	AuditActionVoided       = "voided"
)

// IsCriticalAuditAction reports whether a failed append must fail the
// triggering operation. An unaudited signature is not defensible.
func IsCriticalAuditAction(action string) bool {
	switch action {
	case AuditActionClientSigned, AuditActionPDFGenerated, AuditActionVoided:
		return true
	}
	return false
}

// AuditLogEntry is append-only: never updated, never deleted.
type AuditLogEntry struct {
	ID          uuid.UUID      `json:"id"`
	SOAID       uuid.UUID      `json:"soa_id"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"` // actor user id or "system"
	IPAddress   *string        `json:"ip_address,omitempty"`
	UserAgent   *string        `json:"user_agent,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
