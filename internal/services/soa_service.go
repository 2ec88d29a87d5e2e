package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/events"
	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/repositories"
	"github.com/soasign/backend/internal/soaerr"
)

// SOAService is the lifecycle manager: the sole writer of record status.
type SOAService struct {
	soaRepo    SOAStore
	auditRepo  AuditStore
	clientRepo ClientStore
	tokens     *TokenService
	dispatcher *Dispatcher
	publisher  events.Publisher
	log        *zap.Logger
}

func NewSOAService(
	soaRepo SOAStore,
	auditRepo AuditStore,
	clientRepo ClientStore,
	tokens *TokenService,
	dispatcher *Dispatcher,
	publisher events.Publisher,
	log *zap.Logger,
) *SOAService {
	return &SOAService{
		soaRepo:    soaRepo,
		auditRepo:  auditRepo,
		clientRepo: clientRepo,
		tokens:     tokens,
		dispatcher: dispatcher,
		publisher:  publisher,
		log:        log,
	}
}

var statusAuditActions = map[string]string{
	models.SOAStatusSent:         models.AuditActionSent,
	models.SOAStatusOpened:       models.AuditActionOpened,
	models.SOAStatusClientSigned: models.AuditActionClientSigned,
	models.SOAStatusCompleted:    models.AuditActionCompleted,
	models.SOAStatusExpired:      models.AuditActionExpired,
	models.SOAStatusVoided:       models.AuditActionVoided,
}

// transition performs an optimistic-concurrency-guarded status change with
// its audit entry. The precondition is re-checked at write time by the
// guarded UPDATE; a lost race surfaces as ErrInvalidTransition with no
// mutation. Compliance-critical actions commit the audit entry in the same
// transaction; for the rest a failed append degrades to a logged warning.
func (s *SOAService) transition(ctx context.Context, rec *models.SOARecord, newStatus, performedBy string, meta map[string]any) error {
	if !models.IsValidTransition(rec.Status, newStatus) {
		return soaerr.ErrInvalidTransition
	}

	if meta == nil {
		meta = map[string]any{}
	}
	oldStatus := rec.Status
	meta["old_status"] = oldStatus
	meta["new_status"] = newStatus

	entry := models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      statusAuditActions[newStatus],
		PerformedBy: performedBy,
		Metadata:    meta,
	}

	var ok bool
	var err error
	if models.IsCriticalAuditAction(entry.Action) {
		ok, err = s.soaRepo.UpdateStatusWithAudit(ctx, rec.ID, []string{oldStatus}, newStatus, entry)
	} else {
		ok, err = s.soaRepo.UpdateStatus(ctx, rec.ID, []string{oldStatus}, newStatus)
		if err == nil && ok {
			if auditErr := s.auditRepo.Record(ctx, entry); auditErr != nil {
				s.log.Warn("audit append failed",
					zap.String("soa_id", rec.ID.String()),
					zap.String("action", entry.Action),
					zap.Error(auditErr),
				)
			}
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		return soaerr.ErrInvalidTransition
	}
	rec.Status = newStatus

	s.publishStatusChange(ctx, rec, oldStatus)
	return nil
}

func (s *SOAService) publishStatusChange(ctx context.Context, rec *models.SOARecord, oldStatus string) {
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
}

type CreateSOAInput struct {
	ClientID             uuid.UUID
	BeneficiaryName      string
	AgentName            string
	AgentPhone           *string
	AgentNPN             *string
	Language             string
	ProductsPreselected  []string
	BeneficiaryPhone     *string
	BeneficiaryAddress   *string
	InitialContactMethod *string
	AppointmentDate      *time.Time
	DeliveryMethod       string
	DeliveryAddress      *string
}

func validateCreateInput(input CreateSOAInput) error {
	fields := map[string]string{}

	if strings.TrimSpace(input.BeneficiaryName) == "" {
		fields["beneficiary_name"] = "is required"
	}
	if strings.TrimSpace(input.AgentName) == "" {
		fields["agent_name"] = "is required"
	}
	if !models.IsValidLanguage(input.Language) {
		fields["language"] = "must be one of: en, es"
	}
	for _, p := range input.ProductsPreselected {
		if !models.IsValidProduct(p) {
			fields["products_preselected"] = "unknown product: " + p
			break
		}
	}
	switch input.DeliveryMethod {
	case models.DeliveryMethodEmail:
	case models.DeliveryMethodSMS, models.DeliveryMethodMail:
		fields["delivery_method"] = input.DeliveryMethod + " delivery is not supported yet"
	default:
		fields["delivery_method"] = "must be one of: email, sms, mail"
	}

	if len(fields) > 0 {
		return &soaerr.ValidationError{Fields: fields}
	}
	return nil
}

// Create issues a new record for one of the agent's clients and sends the
// signing link. The record only moves to sent once delivery succeeded; on
// delivery failure it stays draft and can be re-sent.
func (s *SOAService) Create(ctx context.Context, agentUserID uuid.UUID, input CreateSOAInput) (*models.SOARecord, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	client, err := s.clientRepo.GetByID(ctx, input.ClientID)
	if err != nil {
		return nil, err
	}
	if client.AgentUserID != agentUserID {
		return nil, soaerr.ErrUnauthorized
	}

	to, err := s.resolveDeliveryAddress(ctx, input)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue()
	if err != nil {
		return nil, err
	}

	rec := &models.SOARecord{
		AgentUserID:          agentUserID,
		ClientID:             input.ClientID,
		Status:               models.SOAStatusDraft,
		DeliveryMethod:       input.DeliveryMethod,
		SecureToken:          token,
		TokenExpiresAt:       expiresAt,
		Language:             input.Language,
		ProductsPreselected:  input.ProductsPreselected,
		AgentName:            strings.TrimSpace(input.AgentName),
		AgentPhone:           input.AgentPhone,
		AgentNPN:             input.AgentNPN,
		BeneficiaryName:      strings.TrimSpace(input.BeneficiaryName),
		BeneficiaryPhone:     input.BeneficiaryPhone,
		BeneficiaryAddress:   input.BeneficiaryAddress,
		InitialContactMethod: input.InitialContactMethod,
		AppointmentDate:      input.AppointmentDate,
	}

	if err := s.soaRepo.Create(ctx, rec); err != nil {
		return nil, err
	}

	if auditErr := s.auditRepo.Record(ctx, models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      models.AuditActionCreated,
		PerformedBy: agentUserID.String(),
		Metadata:    map[string]any{"delivery_method": rec.DeliveryMethod},
	}); auditErr != nil {
		s.log.Warn("audit append failed", zap.String("soa_id", rec.ID.String()), zap.Error(auditErr))
	}

	if err := s.dispatcher.SendSignRequest(ctx, rec, to); err != nil {
		s.log.Error("sign request delivery failed",
			zap.String("soa_id", rec.ID.String()),
			zap.Error(err),
		)
		return rec, err
	}

	if err := s.transition(ctx, rec, models.SOAStatusSent, agentUserID.String(),
		map[string]any{"delivery_method": rec.DeliveryMethod}); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *SOAService) resolveDeliveryAddress(ctx context.Context, input CreateSOAInput) (string, error) {
	contacts, err := s.clientRepo.ListContacts(ctx, input.ClientID, models.ContactKindEmail)
	if err != nil {
		return "", err
	}
	if len(contacts) == 0 {
		return "", soaerr.Validation("client_id", "client has no email address on file")
	}
	if input.DeliveryAddress == nil || *input.DeliveryAddress == "" {
		return contacts[0].Value, nil
	}
	want := strings.TrimSpace(*input.DeliveryAddress)
	for _, c := range contacts {
		if strings.EqualFold(c.Value, want) {
			return c.Value, nil
		}
	}
	return "", soaerr.Validation("delivery_address", "address is not on file for this client")
}

// Resend re-delivers the signing link for a record that is still signable,
// reusing the token issued at creation.
func (s *SOAService) Resend(ctx context.Context, agentUserID, id uuid.UUID) error {
	rec, err := s.GetForAgent(ctx, agentUserID, id)
	if err != nil {
		return err
	}

	switch rec.Status {
	case models.SOAStatusDraft, models.SOAStatusSent, models.SOAStatusOpened:
	case models.SOAStatusExpired:
		return soaerr.ErrTokenExpired
	default:
		return soaerr.ErrAlreadyUsed
	}

	input := CreateSOAInput{ClientID: rec.ClientID}
	to, err := s.resolveDeliveryAddress(ctx, input)
	if err != nil {
		return err
	}

	if err := s.dispatcher.SendSignRequest(ctx, rec, to); err != nil {
		return err
	}

	if rec.Status == models.SOAStatusDraft {
		return s.transition(ctx, rec, models.SOAStatusSent, agentUserID.String(),
			map[string]any{"delivery_method": rec.DeliveryMethod})
	}

	if auditErr := s.auditRepo.Record(ctx, models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      models.AuditActionResent,
		PerformedBy: agentUserID.String(),
	}); auditErr != nil {
		s.log.Warn("audit append failed", zap.String("soa_id", rec.ID.String()), zap.Error(auditErr))
	}
	return nil
}

// Void cancels a record explicitly. The record itself is retained forever.
func (s *SOAService) Void(ctx context.Context, agentUserID, id uuid.UUID, reason *string) error {
	rec, err := s.getOwned(ctx, agentUserID, id)
	if err != nil {
		return err
	}

	meta := map[string]any{}
	if reason != nil && *reason != "" {
		meta["reason"] = *reason
	}
	return s.transition(ctx, rec, models.SOAStatusVoided, agentUserID.String(), meta)
}

// Countersign records the agent's typed signature and finalizes the
// document. Rendering is triggered by the caller afterwards so a render
// failure leaves a completed record in the needs-re-render state rather
// than rolling back the countersignature.
func (s *SOAService) Countersign(ctx context.Context, agentUserID, id uuid.UUID, typedSignature string) (*models.SOARecord, error) {
	typedSignature = strings.TrimSpace(typedSignature)
	if typedSignature == "" {
		return nil, soaerr.Validation("typed_signature", "is required")
	}

	rec, err := s.getOwned(ctx, agentUserID, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.SOAStatusClientSigned {
		return nil, soaerr.ErrInvalidTransition
	}

	signedAt := time.Now().UTC()
	ok, err := s.soaRepo.MarkCountersigned(ctx, rec.ID, typedSignature, signedAt, models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      models.AuditActionCompleted,
		PerformedBy: agentUserID.String(),
		Metadata:    map[string]any{"old_status": models.SOAStatusClientSigned, "new_status": models.SOAStatusCompleted},
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, soaerr.ErrInvalidTransition
	}

	oldStatus := rec.Status
	rec.Status = models.SOAStatusCompleted
	rec.AgentTypedSignature = &typedSignature
	rec.AgentSignedAt = &signedAt
	s.publishStatusChange(ctx, rec, oldStatus)
	return rec, nil
}

// MarkExpired settles a past-horizon unsigned record to expired. Used by
// the sweep; every read path already folds expiry lazily, so this only
// firms up what readers have been reporting.
func (s *SOAService) MarkExpired(ctx context.Context, rec *models.SOARecord) error {
	if !rec.TokenExpired(time.Now()) {
		return soaerr.ErrInvalidTransition
	}
	return s.transition(ctx, rec, models.SOAStatusExpired, models.PerformedBySystem, nil)
}

// SweepExpired persists expired status on records whose token elapsed
// without a signature.
func (s *SOAService) SweepExpired(ctx context.Context, limit int) (int, error) {
	records, err := s.soaRepo.ListExpiredUnsigned(ctx, limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range records {
		if err := s.MarkExpired(ctx, &records[i]); err != nil {
			s.log.Warn("expiry sweep transition failed",
				zap.String("soa_id", records[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *SOAService) getOwned(ctx context.Context, agentUserID, id uuid.UUID) (*models.SOARecord, error) {
	rec, err := s.soaRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.AgentUserID != agentUserID {
		return nil, soaerr.ErrNotFound
	}
	return rec, nil
}

// GetForAgent returns one owned record with expiry folded into status.
func (s *SOAService) GetForAgent(ctx context.Context, agentUserID, id uuid.UUID) (*models.SOARecord, error) {
	rec, err := s.getOwned(ctx, agentUserID, id)
	if err != nil {
		return nil, err
	}
	rec.Status = rec.EffectiveStatus(time.Now())
	return rec, nil
}

// ListForAgent returns the agent's records, newest first.
func (s *SOAService) ListForAgent(ctx context.Context, agentUserID uuid.UUID, status *string, limit, offset int) ([]models.SOARecord, error) {
	records, err := s.soaRepo.List(ctx, repositories.SOAFilter{
		AgentUserID: &agentUserID,
		Status:      status,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range records {
		records[i].Status = records[i].EffectiveStatus(now)
	}
	return records, nil
}

// AuditTrail returns the record's trail in ascending order.
func (s *SOAService) AuditTrail(ctx context.Context, agentUserID, id uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error) {
	if _, err := s.getOwned(ctx, agentUserID, id); err != nil {
		return nil, err
	}
	return s.auditRepo.ListBySOA(ctx, id, limit, offset)
}
