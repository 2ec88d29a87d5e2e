package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/soasign/backend/internal/config"
	"github.com/soasign/backend/internal/db"
	"github.com/soasign/backend/internal/events"
	"github.com/soasign/backend/internal/repositories"
	"github.com/soasign/backend/internal/services"
)

// sweepBatchSize caps how many overdue records one sweep settles.
const sweepBatchSize = 500

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	soaRepo := repositories.NewSOARepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	clientRepo := repositories.NewClientRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	tokens := services.NewTokenService(cfg.TokenTTL)
	mailer := services.NewMailerClient(cfg.MailerInternalURL, log)
	dispatcher := services.NewDispatcher(mailer, cfg.SigningBaseURL, cfg.AgentBaseURL, cfg.TokenTTL, log)
	soaService := services.NewSOAService(soaRepo, auditRepo, clientRepo, tokens, dispatcher, publisher, log)

	log.Info("worker started", zap.Duration("sweep_interval", cfg.ExpirySweepInterval))

	sweepTicker := time.NewTicker(cfg.ExpirySweepInterval)
	defer sweepTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			runExpirySweep(ctx, soaService, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runExpirySweep settles records whose signing horizon elapsed without a
// signature. Read paths already project these as expired; the sweep only
// persists what readers report, so a missed run is harmless.
func runExpirySweep(ctx context.Context, soaService *services.SOAService, log *zap.Logger) {
	swept, err := soaService.SweepExpired(ctx, sweepBatchSize)
	if err != nil {
		log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		log.Info("expiry sweep settled records", zap.Int("count", swept))
	}
}
