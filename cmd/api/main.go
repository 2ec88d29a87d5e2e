package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/config"
	"github.com/soasign/backend/internal/db"
	"github.com/soasign/backend/internal/events"
	apphttp "github.com/soasign/backend/internal/http"
	"github.com/soasign/backend/internal/http/handlers"
	"github.com/soasign/backend/internal/pdf"
	"github.com/soasign/backend/internal/repositories"
	"github.com/soasign/backend/internal/services"
	"github.com/soasign/backend/internal/storage"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	soaRepo := repositories.NewSOARepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	clientRepo := repositories.NewClientRepo(pool)
	agentRepo := repositories.NewAgentRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	tokens := services.NewTokenService(cfg.TokenTTL)
	mailer := services.NewMailerClient(cfg.MailerInternalURL, log)
	dispatcher := services.NewDispatcher(mailer, cfg.SigningBaseURL, cfg.AgentBaseURL, cfg.TokenTTL, log)
	soaService := services.NewSOAService(soaRepo, auditRepo, clientRepo, tokens, dispatcher, publisher, log)
	signingService := services.NewSigningService(soaRepo, auditRepo, agentRepo, dispatcher, publisher, log)

	renderer, err := pdf.NewTemplateRenderer(cfg.Render)
	if err != nil {
		log.Fatal("render assets unavailable", zap.Error(err))
	}
	artifactStore := storage.NewS3Store(storage.S3Config{
		Endpoint: cfg.S3Endpoint,
		Region:   cfg.S3Region,
		Bucket:   cfg.S3Bucket,
		KeyID:    cfg.S3KeyID,
		Secret:   cfg.S3Secret,
	})
	renderService := services.NewRenderService(soaRepo, renderer, artifactStore, publisher, log)

	// Handlers
	soaHandler := handlers.NewSOAHandler(soaService, renderService, log)
	signHandler := handlers.NewSignHandler(signingService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, soaHandler, signHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
