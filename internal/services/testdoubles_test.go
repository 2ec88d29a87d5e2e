package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/events"
	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/repositories"
	"github.com/soasign/backend/internal/soaerr"
)

// In-memory doubles. The store reproduces the guarded-update semantics of
// the real repository: every status change re-checks the precondition
// under one lock, so races resolve to exactly one winner here too.

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
}

func (l *fakeAuditLog) append(entry models.AuditLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	l.entries = append(l.entries, entry)
}

func (l *fakeAuditLog) byAction(action string) []models.AuditLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeAuditStore struct {
	log *fakeAuditLog
	err error
}

func (s *fakeAuditStore) Record(_ context.Context, entry models.AuditLogEntry) error {
	if s.err != nil {
		return s.err
	}
	s.log.append(entry)
	return nil
}

func (s *fakeAuditStore) ListBySOA(_ context.Context, soaID uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error) {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range s.log.entries {
		if e.SOAID == soaID {
			out = append(out, e)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeSOAStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.SOARecord
	order   []uuid.UUID
	audit   *fakeAuditLog
}

func newFakeSOAStore(audit *fakeAuditLog) *fakeSOAStore {
	return &fakeSOAStore{records: make(map[uuid.UUID]*models.SOARecord), audit: audit}
}

func copyRecord(rec *models.SOARecord) *models.SOARecord {
	c := *rec
	return &c
}

func (s *fakeSOAStore) Create(_ context.Context, rec *models.SOARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	s.records[rec.ID] = copyRecord(rec)
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *fakeSOAStore) GetByID(_ context.Context, id uuid.UUID) (*models.SOARecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, soaerr.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *fakeSOAStore) GetByToken(_ context.Context, token string) (*models.SOARecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.SecureToken == token {
			return copyRecord(rec), nil
		}
	}
	return nil, soaerr.ErrNotFound
}

func (s *fakeSOAStore) List(_ context.Context, f repositories.SOAFilter) ([]models.SOARecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SOARecord
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if f.AgentUserID != nil && rec.AgentUserID != *f.AgentUserID {
			continue
		}
		if f.ClientID != nil && rec.ClientID != *f.ClientID {
			continue
		}
		if f.Status != nil && rec.Status != *f.Status {
			continue
		}
		out = append(out, *copyRecord(rec))
	}
	return out, nil
}

func statusIn(status string, from []string) bool {
	for _, f := range from {
		if f == status {
			return true
		}
	}
	return false
}

func (s *fakeSOAStore) UpdateStatus(_ context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || !statusIn(rec.Status, from) {
		return false, nil
	}
	rec.Status = to
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeSOAStore) UpdateStatusWithAudit(ctx context.Context, id uuid.UUID, from []string, to string, entry models.AuditLogEntry) (bool, error) {
	ok, err := s.UpdateStatus(ctx, id, from, to)
	if err != nil || !ok {
		return ok, err
	}
	s.audit.append(entry)
	return true, nil
}

func (s *fakeSOAStore) MarkClientSigned(_ context.Context, id uuid.UUID, sig repositories.ClientSignature, entry models.AuditLogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || !statusIn(rec.Status, []string{models.SOAStatusSent, models.SOAStatusOpened}) {
		return false, nil
	}
	rec.Status = models.SOAStatusClientSigned
	rec.ClientTypedSignature = &sig.TypedSignature
	rec.ProductsSelected = sig.ProductsSelected
	rec.SignerType = &sig.SignerType
	rec.RepName = sig.RepName
	rec.RepRelationship = sig.RepRelationship
	rec.ClientIPAddress = sig.IPAddress
	rec.ClientUserAgent = sig.UserAgent
	signedAt := sig.SignedAt
	rec.ClientSignedAt = &signedAt
	rec.UpdatedAt = time.Now()
	s.audit.append(entry)
	return true, nil
}

func (s *fakeSOAStore) MarkCountersigned(_ context.Context, id uuid.UUID, typedSignature string, signedAt time.Time, entry models.AuditLogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != models.SOAStatusClientSigned {
		return false, nil
	}
	rec.Status = models.SOAStatusCompleted
	rec.AgentTypedSignature = &typedSignature
	rec.AgentSignedAt = &signedAt
	rec.UpdatedAt = time.Now()
	s.audit.append(entry)
	return true, nil
}

func (s *fakeSOAStore) SetArtifactPath(_ context.Context, id uuid.UUID, path string, entry models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return soaerr.ErrNotFound
	}
	rec.SignedArtifactPath = &path
	rec.UpdatedAt = time.Now()
	s.audit.append(entry)
	return nil
}

func (s *fakeSOAStore) ListExpiredUnsigned(_ context.Context, limit int) ([]models.SOARecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []models.SOARecord
	for _, id := range s.order {
		rec := s.records[id]
		if statusIn(rec.Status, []string{models.SOAStatusDraft, models.SOAStatusSent, models.SOAStatusOpened}) &&
			rec.TokenExpired(now) {
			out = append(out, *copyRecord(rec))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// setStatus force-sets a record's stored status for test setup.
func (s *fakeSOAStore) setStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id].Status = status
}

// setTokenExpiry rewinds or extends a record's signing horizon.
func (s *fakeSOAStore) setTokenExpiry(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id].TokenExpiresAt = at
}

type fakeClientStore struct {
	clients  map[uuid.UUID]*models.Client
	contacts map[uuid.UUID][]models.ClientContact
}

func newFakeClientStore() *fakeClientStore {
	return &fakeClientStore{
		clients:  make(map[uuid.UUID]*models.Client),
		contacts: make(map[uuid.UUID][]models.ClientContact),
	}
}

func (s *fakeClientStore) GetByID(_ context.Context, id uuid.UUID) (*models.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, soaerr.ErrNotFound
	}
	return c, nil
}

func (s *fakeClientStore) ListContacts(_ context.Context, clientID uuid.UUID, kind string) ([]models.ClientContact, error) {
	var out []models.ClientContact
	for _, c := range s.contacts[clientID] {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeClientStore) addClient(agentUserID uuid.UUID, emails ...string) uuid.UUID {
	id := uuid.New()
	s.clients[id] = &models.Client{ID: id, AgentUserID: agentUserID, FirstName: "Pat", LastName: "Doe"}
	for _, email := range emails {
		s.contacts[id] = append(s.contacts[id], models.ClientContact{
			ID: uuid.New(), ClientID: id, Kind: models.ContactKindEmail, Value: email,
		})
	}
	return id
}

type fakeAgentDirectory struct {
	emails map[uuid.UUID]string
	err    error
}

func (d *fakeAgentDirectory) GetEmail(_ context.Context, agentUserID uuid.UUID) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	email, ok := d.emails[agentUserID]
	if !ok {
		return "", soaerr.ErrNotFound
	}
	return email, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fakeRenderer struct {
	data []byte
	err  error
}

func (r *fakeRenderer) Render(_ *models.SOARecord) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.data, nil
}

// testEnv wires the full service graph on doubles.
type testEnv struct {
	agentID    uuid.UUID
	clientID   uuid.UUID
	audit      *fakeAuditLog
	store      *fakeSOAStore
	auditStore *fakeAuditStore
	clients    *fakeClientStore
	agents     *fakeAgentDirectory
	sender     *fakeSender
	publisher  *fakePublisher
	soaService *SOAService
	signing    *SigningService
}

func newTestEnv() *testEnv {
	log := zap.NewNop()
	agentID := uuid.New()

	audit := &fakeAuditLog{}
	store := newFakeSOAStore(audit)
	auditStore := &fakeAuditStore{log: audit}
	clients := newFakeClientStore()
	clientID := clients.addClient(agentID, "client@example.com")
	agents := &fakeAgentDirectory{emails: map[uuid.UUID]string{agentID: "agent@example.com"}}
	sender := &fakeSender{}
	publisher := &fakePublisher{}

	tokens := NewTokenService(72 * time.Hour)
	dispatcher := NewDispatcher(sender, "https://sign.example.com", "https://portal.example.com", 72*time.Hour, log)

	return &testEnv{
		agentID:    agentID,
		clientID:   clientID,
		audit:      audit,
		store:      store,
		auditStore: auditStore,
		clients:    clients,
		agents:     agents,
		sender:     sender,
		publisher:  publisher,
		soaService: NewSOAService(store, auditStore, clients, tokens, dispatcher, publisher, log),
		signing:    NewSigningService(store, auditStore, agents, dispatcher, publisher, log),
	}
}

func (e *testEnv) createInput() CreateSOAInput {
	return CreateSOAInput{
		ClientID:            e.clientID,
		BeneficiaryName:     "Pat Doe",
		AgentName:           "Alex Agent",
		Language:            models.LanguageEnglish,
		ProductsPreselected: []string{models.ProductPartC},
		DeliveryMethod:      models.DeliveryMethodEmail,
	}
}

func (e *testEnv) createSent(t interface{ Fatalf(string, ...any) }) *models.SOARecord {
	rec, err := e.soaService.Create(context.Background(), e.agentID, e.createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}
