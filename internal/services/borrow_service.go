package services

import (
	"context"
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

type BorrowService struct {
	orch      *orchestrator.Orchestrator
	chain     *chain.Client
	oracle    *oracle.Oracle
	registry  *registry.Registry
	ledger    *ledger.Client
	auditRepo *repositories.AuditRepo
	cfg       *config.Config
	log       *zap.Logger
}

func NewBorrowService(
	orch *orchestrator.Orchestrator,
	chainClient *chain.Client,
	marketOracle *oracle.Oracle,
	reg *registry.Registry,
	ledgerClient *ledger.Client,
	auditRepo *repositories.AuditRepo,
	cfg *config.Config,
	log *zap.Logger,
) *BorrowService {
	return &BorrowService{
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

// Quote returns how much collateral backs a requested KOIN borrow.
func (s *BorrowService) Quote(ctx context.Context, network, collateralAddr string, amount decimal.Decimal) (*models.CollateralQuote, models.Token, error) {
	var token models.Token
	var err error
	if collateralAddr == "" {
		token, err = s.registry.Default(ctx, network)
	} else {
		token, err = s.registry.Resolve(ctx, network, collateralAddr)
	}
	if err != nil {
		return nil, models.Token{}, err
	}

	quote, err := s.ledger.CollateralQuote(ctx, amount.String(), token.Address)
	if err != nil {
		return nil, models.Token{}, err
	}
	return quote, token, nil
}

// Borrow takes a KOIN loan against token collateral. The collateral spend
// is approved if the standing allowance toward the borrow contract is
// short, the loan transaction runs, and the position is registered in the
// ledger with the contract id and due date parsed from the receipt.
func (s *BorrowService) Borrow(ctx context.Context, owner, network, collateralAddr string, amount decimal.Decimal) (*models.Operation, error) {
	paused, err := s.oracle.Paused(ctx, s.cfg.BorrowContract)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrMarketPaused
	}

	rate, err := s.oracle.BorrowRate(ctx, s.cfg.BorrowContract)
	if err != nil {
		return nil, err
	}

	quote, token, err := s.Quote(ctx, network, collateralAddr, amount)
	if err != nil {
		return nil, err
	}

	collateralAmount, err := decimal.NewFromString(quote.CollateralAmount)
	if err != nil {
		return nil, fmt.Errorf("bad collateral quote %q: %w", quote.CollateralAmount, err)
	}

	spend, err := models.NewSpendDescriptor(token, owner, s.cfg.BorrowContract, collateralAmount)
	if err != nil {
		return nil, err
	}
	// Base-unit conversion of the borrowed KOIN goes through the same
	// constructor as every other spend.
	koin, err := models.NewSpendDescriptor(s.registry.Koin(), owner, s.cfg.BorrowContract, amount)
	if err != nil {
		return nil, err
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindBorrow,
		Owner: owner,
		Spend: spend,
		Primary: func(ctx context.Context) (string, error) {
			return s.chain.Borrow(ctx, s.cfg.BorrowContract, owner, koin.Required, token.Address, spend.Required)
		},
		Ledger: func(ctx context.Context, txHash string) (string, error) {
			rcpt, err := s.chain.WaitMined(ctx, txHash)
			if err != nil {
				return "", err
			}
			info, err := chain.ParseLoanCreated(rcpt)
			if err != nil {
				return "", err
			}
			return s.ledger.CreateRecord(ctx, &models.LedgerRecord{
				Kind:        models.LoanKindBorrow,
				Token:       token.Symbol,
				Amount:      koin.Display,
				Rate:        int(rate),
				Status:      models.LoanStatusActive,
				DueDate:     info.DueDate.Format("2006-01-02"),
				TxID:        info.ContractID,
				Participant: owner,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, op, "borrow", map[string]any{
		"amount":     koin.Display,
		"collateral": token.Symbol,
		"rate":       rate,
	})
	return op, nil
}

// Repay pays back a loan in KOIN. The ledger record is kept and marked
// Completed rather than removed, so repaid loans stay visible in history.
func (s *BorrowService) Repay(ctx context.Context, owner, recordID, contractID string, amount decimal.Decimal) (*models.Operation, error) {
	if recordID == "" || contractID == "" {
		return nil, fmt.Errorf("record id and contract id are required")
	}

	spend, err := models.NewSpendDescriptor(s.registry.Koin(), owner, s.cfg.BorrowContract, amount)
	if err != nil {
		return nil, err
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindRepay,
		Owner: owner,
		Spend: spend,
		Primary: func(ctx context.Context) (string, error) {
			return s.chain.RepayFunds(ctx, s.cfg.BorrowContract, owner, spend.Required, contractID)
		},
		Ledger: func(ctx context.Context, txHash string) (string, error) {
			if err := s.ledger.UpdateStatus(ctx, models.LoanKindBorrow, recordID, models.LoanStatusCompleted); err != nil {
				return "", err
			}
			return recordID, nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, op, "repay", map[string]any{"record_id": recordID, "amount": spend.Display})
	return op, nil
}

// Positions lists the wallet's borrow records from the ledger.
func (s *BorrowService) Positions(ctx context.Context, owner string) ([]models.LedgerRecord, error) {
	return s.ledger.ListRecords(ctx, models.LoanKindBorrow, owner, "")
}

func (s *BorrowService) audit(ctx context.Context, op *models.Operation, action string, meta map[string]any) {
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
