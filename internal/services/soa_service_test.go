package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/soaerr"
)

func TestCreateSendsAndTransitions(t *testing.T) {
	env := newTestEnv()

	rec, err := env.soaService.Create(context.Background(), env.agentID, env.createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rec.Status != models.SOAStatusSent {
		t.Errorf("status = %q, want sent", rec.Status)
	}
	if rec.SecureToken == "" {
		t.Error("no token issued")
	}

	msgs := env.sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if msgs[0].To != "client@example.com" {
		t.Errorf("sent to %q", msgs[0].To)
	}
	if !strings.Contains(msgs[0].Body, rec.SecureToken) {
		t.Error("signing link missing from message body")
	}

	if got := len(env.audit.byAction(models.AuditActionCreated)); got != 1 {
		t.Errorf("created audit entries = %d, want 1", got)
	}
	if got := len(env.audit.byAction(models.AuditActionSent)); got != 1 {
		t.Errorf("sent audit entries = %d, want 1", got)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name   string
		mutate func(*CreateSOAInput)
		field  string
	}{
		{"missing beneficiary name", func(in *CreateSOAInput) { in.BeneficiaryName = " " }, "beneficiary_name"},
		{"missing agent name", func(in *CreateSOAInput) { in.AgentName = "" }, "agent_name"},
		{"bad language", func(in *CreateSOAInput) { in.Language = "fr" }, "language"},
		{"unknown product", func(in *CreateSOAInput) { in.ProductsPreselected = []string{"annuities"} }, "products_preselected"},
		{"sms not supported", func(in *CreateSOAInput) { in.DeliveryMethod = models.DeliveryMethodSMS }, "delivery_method"},
		{"unknown delivery method", func(in *CreateSOAInput) { in.DeliveryMethod = "fax" }, "delivery_method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := env.createInput()
			tt.mutate(&input)

			_, err := env.soaService.Create(context.Background(), env.agentID, input)
			ve, ok := soaerr.AsValidation(err)
			if !ok {
				t.Fatalf("err = %v, want validation error", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %q flagged", ve.Fields, tt.field)
			}
		})
	}
}

func TestCreateOwnership(t *testing.T) {
	env := newTestEnv()
	otherAgent := uuid.New()

	_, err := env.soaService.Create(context.Background(), otherAgent, env.createInput())
	if !errors.Is(err, soaerr.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCreateNoEmailOnFile(t *testing.T) {
	env := newTestEnv()
	input := env.createInput()
	input.ClientID = env.clients.addClient(env.agentID) // no contacts

	_, err := env.soaService.Create(context.Background(), env.agentID, input)
	if _, ok := soaerr.AsValidation(err); !ok {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestCreateDeliveryAddressMustBeOnFile(t *testing.T) {
	env := newTestEnv()
	input := env.createInput()
	other := "someone-else@example.com"
	input.DeliveryAddress = &other

	_, err := env.soaService.Create(context.Background(), env.agentID, input)
	if _, ok := soaerr.AsValidation(err); !ok {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestCreateDeliveryFailureLeavesDraft(t *testing.T) {
	env := newTestEnv()
	env.sender.err = soaerr.Delivery(fmt.Errorf("smtp down"), false)

	rec, err := env.soaService.Create(context.Background(), env.agentID, env.createInput())
	if _, ok := soaerr.AsDelivery(err); !ok {
		t.Fatalf("err = %v, want delivery error", err)
	}
	if rec == nil {
		t.Fatal("record not returned alongside delivery error")
	}
	if rec.Status != models.SOAStatusDraft {
		t.Errorf("status = %q, want draft", rec.Status)
	}

	stored, err := env.store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.SOAStatusDraft {
		t.Errorf("stored status = %q, want draft", stored.Status)
	}

	// Recovery: a later resend moves the draft to sent.
	env.sender.err = nil
	if err := env.soaService.Resend(context.Background(), env.agentID, rec.ID); err != nil {
		t.Fatalf("Resend: %v", err)
	}
	stored, _ = env.store.GetByID(context.Background(), rec.ID)
	if stored.Status != models.SOAStatusSent {
		t.Errorf("status after resend = %q, want sent", stored.Status)
	}
}

func TestResendReusesToken(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)

	if err := env.soaService.Resend(context.Background(), env.agentID, rec.ID); err != nil {
		t.Fatalf("Resend: %v", err)
	}

	msgs := env.sender.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if !strings.Contains(msgs[1].Body, rec.SecureToken) {
		t.Error("resend did not reuse the original token")
	}

	stored, _ := env.store.GetByID(context.Background(), rec.ID)
	if stored.Status != models.SOAStatusSent {
		t.Errorf("status = %q, want sent", stored.Status)
	}
	if got := len(env.audit.byAction(models.AuditActionResent)); got != 1 {
		t.Errorf("resent audit entries = %d, want 1", got)
	}
}

func TestResendExpired(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)
	env.store.setTokenExpiry(rec.ID, time.Now().Add(-time.Hour))

	err := env.soaService.Resend(context.Background(), env.agentID, rec.ID)
	if !errors.Is(err, soaerr.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestResendAfterSigning(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)
	env.store.setStatus(rec.ID, models.SOAStatusClientSigned)

	err := env.soaService.Resend(context.Background(), env.agentID, rec.ID)
	if !errors.Is(err, soaerr.ErrAlreadyUsed) {
		t.Errorf("err = %v, want ErrAlreadyUsed", err)
	}
}

func TestVoid(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)

	reason := "client cancelled the meeting"
	if err := env.soaService.Void(context.Background(), env.agentID, rec.ID, &reason); err != nil {
		t.Fatalf("Void: %v", err)
	}

	stored, _ := env.store.GetByID(context.Background(), rec.ID)
	if stored.Status != models.SOAStatusVoided {
		t.Errorf("status = %q, want voided", stored.Status)
	}

	entries := env.audit.byAction(models.AuditActionVoided)
	if len(entries) != 1 {
		t.Fatalf("voided audit entries = %d, want 1", len(entries))
	}
	if entries[0].Metadata["reason"] != reason {
		t.Errorf("audit reason = %v, want %q", entries[0].Metadata["reason"], reason)
	}
}

func TestVoidTerminal(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)
	env.store.setStatus(rec.ID, models.SOAStatusCompleted)

	err := env.soaService.Void(context.Background(), env.agentID, rec.ID, nil)
	if !errors.Is(err, soaerr.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCountersign(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)
	env.store.setStatus(rec.ID, models.SOAStatusClientSigned)

	got, err := env.soaService.Countersign(context.Background(), env.agentID, rec.ID, "Alex Agent")
	if err != nil {
		t.Fatalf("Countersign: %v", err)
	}
	if got.Status != models.SOAStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.AgentTypedSignature == nil || *got.AgentTypedSignature != "Alex Agent" {
		t.Errorf("agent signature = %v", got.AgentTypedSignature)
	}
	if got.AgentSignedAt == nil {
		t.Error("agent signed_at not set")
	}
	if got := len(env.audit.byAction(models.AuditActionCompleted)); got != 1 {
		t.Errorf("completed audit entries = %d, want 1", got)
	}
}

func TestCountersignRequiresSignature(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)
	env.store.setStatus(rec.ID, models.SOAStatusClientSigned)

	_, err := env.soaService.Countersign(context.Background(), env.agentID, rec.ID, "   ")
	if _, ok := soaerr.AsValidation(err); !ok {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestCountersignWrongStatus(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)

	_, err := env.soaService.Countersign(context.Background(), env.agentID, rec.ID, "Alex Agent")
	if !errors.Is(err, soaerr.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestGetForAgentHidesOtherAgents(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)

	_, err := env.soaService.GetForAgent(context.Background(), uuid.New(), rec.ID)
	if !errors.Is(err, soaerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetForAgentFoldsExpiry(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)
	env.store.setTokenExpiry(rec.ID, time.Now().Add(-time.Minute))

	got, err := env.soaService.GetForAgent(context.Background(), env.agentID, rec.ID)
	if err != nil {
		t.Fatalf("GetForAgent: %v", err)
	}
	if got.Status != models.SOAStatusExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}

	// The stored row is untouched until the sweep runs.
	stored, _ := env.store.GetByID(context.Background(), rec.ID)
	if stored.Status != models.SOAStatusSent {
		t.Errorf("stored status = %q, want sent", stored.Status)
	}
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv()
	recA := env.createSent(t)
	recB := env.createSent(t)
	env.store.setTokenExpiry(recA.ID, time.Now().Add(-time.Hour))

	swept, err := env.soaService.SweepExpired(context.Background(), 100)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	storedA, _ := env.store.GetByID(context.Background(), recA.ID)
	if storedA.Status != models.SOAStatusExpired {
		t.Errorf("record A status = %q, want expired", storedA.Status)
	}
	storedB, _ := env.store.GetByID(context.Background(), recB.ID)
	if storedB.Status != models.SOAStatusSent {
		t.Errorf("record B status = %q, want sent", storedB.Status)
	}

	entries := env.audit.byAction(models.AuditActionExpired)
	if len(entries) != 1 {
		t.Fatalf("expired audit entries = %d, want 1", len(entries))
	}
	if entries[0].PerformedBy != models.PerformedBySystem {
		t.Errorf("performed_by = %q, want system", entries[0].PerformedBy)
	}
}

func TestListForAgent(t *testing.T) {
	env := newTestEnv()
	env.createSent(t)
	env.createSent(t)

	records, err := env.soaService.ListForAgent(context.Background(), env.agentID, nil, 20, 0)
	if err != nil {
		t.Fatalf("ListForAgent: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	records, err = env.soaService.ListForAgent(context.Background(), uuid.New(), nil, 20, 0)
	if err != nil {
		t.Fatalf("ListForAgent: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records for stranger, want 0", len(records))
	}
}

func TestAuditTrailOwnership(t *testing.T) {
	env := newTestEnv()
	rec := env.createSent(t)

	entries, err := env.soaService.AuditTrail(context.Background(), env.agentID, rec.ID, 100, 0)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("got %d entries, want at least created+sent", len(entries))
	}

	if _, err := env.soaService.AuditTrail(context.Background(), uuid.New(), rec.ID, 100, 0); !errors.Is(err, soaerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
