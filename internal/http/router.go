package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/http/handlers"
	"github.com/koinlend/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	promRegistry *prometheus.Registry,
	sessionHandler *handlers.SessionHandler,
	marketHandler *handlers.MarketHandler,
	loanHandler *handlers.LoanHandler,
	escrowHandler *handlers.EscrowHandler,
	adminHandler *handlers.AdminHandler,
	operationHandler *handlers.OperationHandler,
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

	// Prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1")

	// Session (public; connect issues the token)
	api.Post("/session/connect", sessionHandler.Connect)
	api.Post("/session/restore", sessionHandler.Restore)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Market reads (public)
	api.Get("/market", marketHandler.GetMarket)
	api.Get("/tokens", marketHandler.ListTokens)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Session
	protected.Delete("/session", sessionHandler.Disconnect)
	protected.Post("/session/network", sessionHandler.NetworkChanged)

	// Loans
	protected.Get("/loans", loanHandler.Dashboard)
	protected.Post("/loans/lend", loanHandler.Lend)
	protected.Post("/loans/claim", loanHandler.Claim)
	protected.Post("/loans/borrow/quote", loanHandler.Quote)
	protected.Post("/loans/borrow", loanHandler.Borrow)
	protected.Post("/loans/repay", loanHandler.Repay)

	// Approvals (the page a mailed link lands on)
	protected.Post("/approvals", escrowHandler.Approve)
	protected.Get("/approvals/allowance", escrowHandler.Allowance)

	// Operations
	protected.Get("/operations", operationHandler.List)
	protected.Get("/operations/:id", operationHandler.Get)
	protected.Post("/operations/:id/retry-ledger", operationHandler.RetryLedger)
	protected.Delete("/operations/:id", operationHandler.Acknowledge)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/paused", adminHandler.SetPaused)
	admin.Post("/rate", adminHandler.SetRate)
	admin.Post("/tokens", adminHandler.AddToken)
	admin.Post("/deals/process", escrowHandler.ProcessDeal)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
