package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/ledger"
	"github.com/koinlend/backend/internal/models"
	"github.com/koinlend/backend/internal/oracle"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/repositories"
)

// ErrMarketPaused: the market contract is paused and rejects new positions.
var ErrMarketPaused = errors.New("market is paused")

type LendingService struct {
	orch      *orchestrator.Orchestrator
	chain     *chain.Client
	oracle    *oracle.Oracle
	registry  *registry.Registry
	ledger    *ledger.Client
	auditRepo *repositories.AuditRepo
	cfg       *config.Config
	log       *zap.Logger
}

func NewLendingService(
	orch *orchestrator.Orchestrator,
	chainClient *chain.Client,
	marketOracle *oracle.Oracle,
	reg *registry.Registry,
	ledgerClient *ledger.Client,
	auditRepo *repositories.AuditRepo,
	cfg *config.Config,
	log *zap.Logger,
) *LendingService {
	return &LendingService{
		orch:      orch,
		chain:     chainClient,
		oracle:    marketOracle,
		registry:  reg,
		ledger:    ledgerClient,
		auditRepo: auditRepo,
		cfg:       cfg,
		log:       log,
	}
}

// Lend deposits KOIN into the lending market. The full pipeline runs to a
// terminal state before returning: allowance, approval if short, deposit,
// then a ledger record carrying the deposit id and deadline parsed from
// the receipt.
func (s *LendingService) Lend(ctx context.Context, owner string, amount decimal.Decimal) (*models.Operation, error) {
	paused, err := s.oracle.Paused(ctx, s.cfg.LendingContract)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrMarketPaused
	}

	rate, err := s.oracle.LendingRate(ctx, s.cfg.LendingContract)
	if err != nil {
		return nil, err
	}

	spend, err := models.NewSpendDescriptor(s.registry.Koin(), owner, s.cfg.LendingContract, amount)
	if err != nil {
		return nil, err
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindLend,
		Owner: owner,
		Spend: spend,
		Primary: func(ctx context.Context) (string, error) {
			return s.chain.Deposit(ctx, s.cfg.LendingContract, owner, spend.Required)
		},
		Ledger: func(ctx context.Context, txHash string) (string, error) {
			// Mined already, so this resolves on the first poll.
			rcpt, err := s.chain.WaitMined(ctx, txHash)
			if err != nil {
				return "", err
			}
			info, err := chain.ParseDepositCreated(rcpt)
			if err != nil {
				return "", err
			}
			return s.ledger.CreateRecord(ctx, &models.LedgerRecord{
				Kind:        models.LoanKindLend,
				Token:       "KOIN",
				Amount:      spend.Display,
				Rate:        int(rate),
				Status:      models.LoanStatusActive,
				DueDate:     info.Deadline.Format("2006-01-02"),
				TxID:        info.ContractID,
				Participant: owner,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, op, "lend", map[string]any{"amount": spend.Display, "rate": rate})
	return op, nil
}

// Claim withdraws a matured deposit. No spend leg: withdrawing moves
// tokens out of the contract, so no allowance is involved. The ledger
// record is deleted once the withdrawal confirms.
func (s *LendingService) Claim(ctx context.Context, owner, recordID, contractID string) (*models.Operation, error) {
	if recordID == "" || contractID == "" {
		return nil, fmt.Errorf("record id and contract id are required")
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindClaim,
		Owner: owner,
		Primary: func(ctx context.Context) (string, error) {
			return s.chain.Withdraw(ctx, s.cfg.LendingContract, owner, contractID)
		},
		Ledger: func(ctx context.Context, txHash string) (string, error) {
			if err := s.ledger.DeleteRecord(ctx, models.LoanKindLend, recordID); err != nil {
				return "", err
			}
			return recordID, nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, op, "claim", map[string]any{"record_id": recordID, "contract_id": contractID})
	return op, nil
}

// Positions lists the wallet's lend records from the ledger.
func (s *LendingService) Positions(ctx context.Context, owner string) ([]models.LedgerRecord, error) {
	return s.ledger.ListRecords(ctx, models.LoanKindLend, owner, "")
}

func (s *LendingService) audit(ctx context.Context, op *models.Operation, action string, meta map[string]any) {
	meta["operation_id"] = op.ID.String()
	meta["state"] = op.State
	if err := s.auditRepo.Log(ctx, models.AuditLog{
		Actor:      op.Owner,
		ActorType:  "wallet",
		Action:     action,
		EntityType: "operation",
		EntityID:   &op.ID,
		Meta:       meta,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
