package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/db"
	"github.com/koinlend/backend/internal/events"
	"github.com/koinlend/backend/internal/models"
	"github.com/koinlend/backend/internal/repositories"
)

// How old a pending submission must be before the worker re-polls it.
// Younger ones are still being watched by the request that submitted them.
const reconcileMinAge = 5 * time.Minute

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

	submissionRepo := repositories.NewSubmissionRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	log.Info("worker started")

	reconcileTicker := time.NewTicker(2 * time.Minute)
	defer reconcileTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-reconcileTicker.C:
			runReconciliation(ctx, submissionRepo, chainClient, publisher, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runReconciliation resolves submissions whose confirmation wait was
// abandoned, e.g. the request timed out while the transaction was still
// in flight. The tx may well have landed; only the watcher was lost.
func runReconciliation(ctx context.Context, repo *repositories.SubmissionRepo, chainClient *chain.Client, publisher events.Publisher, log *zap.Logger) {
	pending, err := repo.ListPending(ctx, reconcileMinAge, 50)
	if err != nil {
		log.Error("failed to list pending submissions", zap.Error(err))
		return
	}

	for _, sub := range pending {
		checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		rcpt, err := chainClient.WaitMined(checkCtx, sub.TxHash)
		cancel()
		if err != nil {
			// Still not mined, or the node is unreachable. Try again on
			// the next pass.
			log.Debug("submission not yet resolvable",
				zap.String("tx_hash", sub.TxHash),
				zap.Error(err))
			continue
		}

		status := models.SubmissionConfirmed
		if !rcpt.Success {
			status = models.SubmissionReverted
		}
		if err := repo.MarkOutcome(ctx, sub.TxHash, status); err != nil {
			log.Error("failed to mark submission outcome",
				zap.String("tx_hash", sub.TxHash),
				zap.Error(err))
			continue
		}

		log.Info("submission reconciled",
			zap.String("tx_hash", sub.TxHash),
			zap.String("kind", sub.Kind),
			zap.String("leg", sub.Leg),
			zap.String("status", status))

		_ = publisher.Publish(ctx, events.StreamOperations, events.Event{
			Type: events.EventSubmissionReconciled,
			Payload: map[string]any{
				"operation_id": sub.OperationID.String(),
				"owner":        sub.Owner,
				"tx_hash":      sub.TxHash,
				"kind":         sub.Kind,
				"leg":          sub.Leg,
				"status":       status,
			},
		})
	}
}
