package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soasign/backend/internal/events"
	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/repositories"
	"github.com/soasign/backend/internal/soaerr"
)

// PerformedByClient is the audit actor for the unauthenticated signer. The
// client has no account; identity evidence is the ip/user-agent metadata
// captured alongside the typed signature.
const PerformedByClient = "client"

// agentNoticeTimeout bounds the fire-and-forget countersignature notice.
const agentNoticeTimeout = 30 * time.Second

// SigningService drives the unauthenticated token-gated flow:
// verify -> present -> capture -> submit.
type SigningService struct {
	soaRepo    SOAStore
	auditRepo  AuditStore
	agents     AgentDirectory
	dispatcher *Dispatcher
	publisher  events.Publisher
	log        *zap.Logger
}

func NewSigningService(
	soaRepo SOAStore,
	auditRepo AuditStore,
	agents AgentDirectory,
	dispatcher *Dispatcher,
	publisher events.Publisher,
	log *zap.Logger,
) *SigningService {
	return &SigningService{
		soaRepo:    soaRepo,
		auditRepo:  auditRepo,
		agents:     agents,
		dispatcher: dispatcher,
		publisher:  publisher,
		log:        log,
	}
}

// Verify resolves a token to its record, or one of ErrNotFound,
// ErrTokenExpired, ErrAlreadyUsed. It never mutates, so the signing page
// can reload it unboundedly.
func (s *SigningService) Verify(ctx context.Context, token string) (*models.SOARecord, error) {
	if token == "" {
		return nil, soaerr.ErrNotFound
	}
	rec, err := s.soaRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.TokenExpired(time.Now()) {
		return nil, soaerr.ErrTokenExpired
	}
	if models.IsUsedStatus(rec.Status) {
		return nil, soaerr.ErrAlreadyUsed
	}
	return rec, nil
}

// MarkOpened records that the client loaded the signing page. Best-effort:
// it is fired asynchronously after a successful Verify, only moves
// sent -> opened once, and all failures degrade to logs.
func (s *SigningService) MarkOpened(ctx context.Context, token string, ip, userAgent *string) {
	rec, err := s.soaRepo.GetByToken(ctx, token)
	if err != nil || rec.Status != models.SOAStatusSent {
		return
	}

	ok, err := s.soaRepo.UpdateStatus(ctx, rec.ID,
		[]string{models.SOAStatusSent}, models.SOAStatusOpened)
	if err != nil || !ok {
		return
	}

	if auditErr := s.auditRepo.Record(ctx, models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      models.AuditActionOpened,
		PerformedBy: PerformedByClient,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}); auditErr != nil {
		s.log.Warn("audit append failed", zap.String("soa_id", rec.ID.String()), zap.Error(auditErr))
	}
}

type SubmitInput struct {
	TypedSignature   string
	ProductsSelected []string
	SignerType       string
	RepName          *string
	RepRelationship  *string
	IPAddress        *string
	UserAgent        *string
}

func validateSubmitInput(input SubmitInput) error {
	fields := map[string]string{}

	if strings.TrimSpace(input.TypedSignature) == "" {
		fields["typed_signature"] = "is required"
	}
	if len(input.ProductsSelected) == 0 {
		fields["products_selected"] = "select at least one product"
	} else {
		seen := map[string]bool{}
		for _, p := range input.ProductsSelected {
			if !models.IsValidProduct(p) {
				fields["products_selected"] = "unknown product: " + p
				break
			}
			if seen[p] {
				fields["products_selected"] = "duplicate product: " + p
				break
			}
			seen[p] = true
		}
	}

	switch input.SignerType {
	case models.SignerTypeBeneficiary:
	case models.SignerTypeRepresentative:
		if input.RepName == nil || strings.TrimSpace(*input.RepName) == "" {
			fields["rep_name"] = "is required for representative signers"
		}
		if input.RepRelationship == nil || strings.TrimSpace(*input.RepRelationship) == "" {
			fields["rep_relationship"] = "is required for representative signers"
		}
	default:
		fields["signer_type"] = "must be one of: beneficiary, representative"
	}

	if len(fields) > 0 {
		return &soaerr.ValidationError{Fields: fields}
	}
	return nil
}

// Submit accepts the client's typed signature. Exactly one submit per
// token can ever win: the guarded write re-checks status at the row, and a
// losing race comes back as ErrAlreadyUsed with no duplicate audit entry
// or notification.
func (s *SigningService) Submit(ctx context.Context, token string, input SubmitInput) (*models.SOARecord, error) {
	rec, err := s.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := validateSubmitInput(input); err != nil {
		return nil, err
	}

	signedAt := time.Now().UTC()
	sig := repositories.ClientSignature{
		TypedSignature:   strings.TrimSpace(input.TypedSignature),
		ProductsSelected: input.ProductsSelected,
		SignerType:       input.SignerType,
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		SignedAt:         signedAt,
	}
	if input.SignerType == models.SignerTypeRepresentative {
		sig.RepName = trimmed(input.RepName)
		sig.RepRelationship = trimmed(input.RepRelationship)
	}

	entry := models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      models.AuditActionClientSigned,
		PerformedBy: PerformedByClient,
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
		Metadata: map[string]any{
			"signer_type":       input.SignerType,
			"products_selected": input.ProductsSelected,
		},
	}

	ok, err := s.soaRepo.MarkClientSigned(ctx, rec.ID, sig, entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race: report what the row looks like now.
		current, readErr := s.soaRepo.GetByID(ctx, rec.ID)
		if readErr == nil && models.IsUsedStatus(current.Status) {
			return nil, soaerr.ErrAlreadyUsed
		}
		return nil, soaerr.ErrInvalidTransition
	}

	oldStatus := rec.Status
	rec.Status = models.SOAStatusClientSigned
	rec.ClientTypedSignature = &sig.TypedSignature
	rec.ClientSignedAt = &signedAt
	rec.ClientIPAddress = input.IPAddress
	rec.ClientUserAgent = input.UserAgent
	rec.ProductsSelected = input.ProductsSelected
	rec.SignerType = &input.SignerType
	rec.RepName = sig.RepName
	rec.RepRelationship = sig.RepRelationship

	if err := s.publisher.Publish(ctx, events.StreamSOA, events.Event{
		Type: events.EventSOAStatusChanged,
		Payload: map[string]any{
			"soa_id":        rec.ID.String(),
			"agent_user_id": rec.AgentUserID.String(),
			"old_status":    oldStatus,
			"new_status":    rec.Status,
		},
	}); err != nil {
		s.log.Warn("publish status event failed", zap.String("soa_id", rec.ID.String()), zap.Error(err))
	}

	// The agent notice must not delay the client-facing response and must
	// never roll back the signature on failure.
	go s.notifyAgent(rec)

	return rec, nil
}

func (s *SigningService) notifyAgent(rec *models.SOARecord) {
	ctx, cancel := context.WithTimeout(context.Background(), agentNoticeTimeout)
	defer cancel()

	email, err := s.agents.GetEmail(ctx, rec.AgentUserID)
	if err != nil {
		s.log.Warn("agent email lookup failed",
			zap.String("soa_id", rec.ID.String()),
			zap.String("agent_user_id", rec.AgentUserID.String()),
			zap.Error(err),
		)
		return
	}
	if err := s.dispatcher.SendCountersignNotice(ctx, rec, email); err != nil {
		s.log.Warn("countersign notice delivery failed",
			zap.String("soa_id", rec.ID.String()),
			zap.Error(err),
		)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
