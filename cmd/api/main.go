package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/db"
	"github.com/koinlend/backend/internal/events"
	apphttp "github.com/koinlend/backend/internal/http"
	"github.com/koinlend/backend/internal/http/handlers"
	"github.com/koinlend/backend/internal/ledger"
	"github.com/koinlend/backend/internal/metrics"
	"github.com/koinlend/backend/internal/notify"
	"github.com/koinlend/backend/internal/oracle"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/repositories"
	"github.com/koinlend/backend/internal/services"
	"github.com/koinlend/backend/internal/wallet"
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

	// Chain
	chainClient, err := chain.Dial(ctx, chain.Options{
		RPCURL:       cfg.ChainRPCURL,
		SignerKeys:   cfg.SignerKeys,
		PollInterval: cfg.ConfirmationPollInterval,
		WaitTimeout:  cfg.ConfirmationTimeout,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to chain rpc", zap.Error(err))
	}
	defer chainClient.Close()

	// Repositories
	tokenRepo := repositories.NewTokenRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	submissionRepo := repositories.NewSubmissionRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(promRegistry)

	// Core
	orch := orchestrator.New(chainClient, submissionRepo, publisher, appMetrics, log)
	marketOracle := oracle.New(chainClient, cfg.OracleTTL, log)
	reg := registry.New(tokenRepo, chainClient, cfg, log)
	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, log)
	mailer := notify.NewMailer(cfg.MailRelayURL, cfg.ApprovalPageURL, log)
	sessions := wallet.NewSessionService(chainClient, rdb, publisher, cfg, log)

	// Services
	lendingService := services.NewLendingService(orch, chainClient, marketOracle, reg, ledgerClient, auditRepo, cfg, log)
	borrowService := services.NewBorrowService(orch, chainClient, marketOracle, reg, ledgerClient, auditRepo, cfg, log)
	escrowService := services.NewEscrowService(orch, chainClient, reg, mailer, auditRepo, cfg, log)
	adminService := services.NewAdminService(orch, chainClient, marketOracle, reg, auditRepo, cfg, log)

	// Handlers
	sessionHandler := handlers.NewSessionHandler(sessions, log)
	marketHandler := handlers.NewMarketHandler(marketOracle, reg, cfg, log)
	loanHandler := handlers.NewLoanHandler(lendingService, borrowService, log)
	escrowHandler := handlers.NewEscrowHandler(escrowService, log)
	adminHandler := handlers.NewAdminHandler(adminService, log)
	operationHandler := handlers.NewOperationHandler(orch, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Cached market reads are scoped to the active identity/network.
	_ = subscriber.Subscribe(ctx, events.StreamOperations, func(event events.Event) {
		if event.Type == events.EventSessionChanged {
			marketOracle.InvalidateAll()
		}
	})

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

	apphttp.SetupRouter(app, cfg, log, rdb, promRegistry,
		sessionHandler, marketHandler, loanHandler, escrowHandler, adminHandler, operationHandler, wsHub)

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
