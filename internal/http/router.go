package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/config"
	"github.com/soasign/backend/internal/http/handlers"
	"github.com/soasign/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	soaHandler *handlers.SOAHandler,
	signHandler *handlers.SignHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Public signing endpoints. Token-gated, no auth; rate-limited per IP
	// to slow token guessing.
	sign := api.Group("/sign", middleware.RateLimitMiddleware(rdb, 30, time.Minute))
	sign.Get("/:token", signHandler.Verify)
	sign.Post("/:token", signHandler.Submit)

	// Agent endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	protected.Post("/soas", soaHandler.Create)
	protected.Get("/soas", soaHandler.List)
	protected.Get("/soas/:id", soaHandler.Get)
	protected.Get("/soas/:id/audit", soaHandler.AuditTrail)
	protected.Post("/soas/:id/resend", soaHandler.Resend)
	protected.Post("/soas/:id/void", soaHandler.Void)
	protected.Post("/soas/:id/countersign", soaHandler.Countersign)
	protected.Post("/soas/:id/render", soaHandler.Render)
	protected.Get("/soas/:id/document", soaHandler.DocumentURL)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
