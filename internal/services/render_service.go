package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/events"
	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/soaerr"
	"github.com/soasign/backend/internal/storage"
)

// documentURLExpiry bounds presigned artifact download links.
const documentURLExpiry = 15 * time.Minute

// ArtifactKey is the storage path convention: one object per record,
// keyed by owning agent and record id.
func ArtifactKey(agentUserID, soaID uuid.UUID) string {
	return fmt.Sprintf("%s/%s.pdf", agentUserID, soaID)
}

// RenderService overlays a finalized record onto the regulatory template
// and stores the resulting artifact.
type RenderService struct {
	soaRepo   SOAStore
	renderer  Renderer
	store     storage.ArtifactStore
	publisher events.Publisher
	log       *zap.Logger
}

func NewRenderService(soaRepo SOAStore, renderer Renderer, store storage.ArtifactStore, publisher events.Publisher, log *zap.Logger) *RenderService {
	return &RenderService{soaRepo: soaRepo, renderer: renderer, store: store, publisher: publisher, log: log}
}

// Render produces and stores the artifact for a signed record, replacing
// any prior artifact. The stale object is deleted before the new upload;
// a crash in between leaves the record in a needs-re-render state, never
// a fatal one. On upload failure signedArtifactPath is left unchanged.
func (s *RenderService) Render(ctx context.Context, agentUserID, id uuid.UUID) (string, error) {
	rec, err := s.soaRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.AgentUserID != agentUserID {
		return "", soaerr.ErrNotFound
	}
	if rec.Status != models.SOAStatusClientSigned && rec.Status != models.SOAStatusCompleted {
		return "", soaerr.ErrInvalidTransition
	}

	data, err := s.renderer.Render(rec)
	if err != nil {
		return "", err
	}

	key := ArtifactKey(rec.AgentUserID, rec.ID)

	// Remove whatever is currently reachable, both the recorded path and
	// the conventional key, before the new object lands.
	if rec.SignedArtifactPath != nil && *rec.SignedArtifactPath != key {
		if err := s.store.Delete(ctx, *rec.SignedArtifactPath); err != nil {
			s.log.Warn("stale artifact delete failed",
				zap.String("soa_id", rec.ID.String()),
				zap.String("path", *rec.SignedArtifactPath),
				zap.Error(err),
			)
		}
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Warn("stale artifact delete failed",
			zap.String("soa_id", rec.ID.String()),
			zap.String("path", key),
			zap.Error(err),
		)
	}

	if err := s.store.Upload(ctx, key, data); err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}

	if err := s.soaRepo.SetArtifactPath(ctx, rec.ID, key, models.AuditLogEntry{
		SOAID:       rec.ID,
		Action:      models.AuditActionPDFGenerated,
		PerformedBy: models.PerformedBySystem,
		Metadata:    map[string]any{"path": key},
	}); err != nil {
		return "", err
	}

	if err := s.publisher.Publish(ctx, events.StreamSOA, events.Event{
		Type: events.EventArtifactGenerated,
		Payload: map[string]any{
			"soa_id":        rec.ID.String(),
			"agent_user_id": rec.AgentUserID.String(),
			"path":          key,
		},
	}); err != nil {
		s.log.Warn("publish artifact event failed", zap.String("soa_id", rec.ID.String()), zap.Error(err))
	}
	return key, nil
}

// DocumentURL returns a short-lived download link for the stored artifact.
func (s *RenderService) DocumentURL(ctx context.Context, agentUserID, id uuid.UUID) (string, error) {
	rec, err := s.soaRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.AgentUserID != agentUserID {
		return "", soaerr.ErrNotFound
	}
	if rec.SignedArtifactPath == nil {
		return "", soaerr.ErrNotFound
	}
	return s.store.SignedURL(ctx, *rec.SignedArtifactPath, documentURLExpiry)
}
