package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/models"
	"github.com/koinlend/backend/internal/notify"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/repositories"
)

// ErrApprovalRequired: the client's allowance toward the escrow contract
// does not cover the deal. An approval link has been sent; the deal must
// be re-run after the client approves.
type ErrApprovalRequired struct {
	ApprovalLink string
}

func (e *ErrApprovalRequired) Error() string {
	return "client approval required before the deal can be processed"
}

// ErrWalletMismatch: the connected wallet is not the client the approval
// link was issued for. Approving from the wrong account would grant the
// allowance on the wrong balance.
var ErrWalletMismatch = errors.New("connected wallet does not match the deal client")

// allowanceReader is the read-only slice of the chain client the
// allowance checks need.
type allowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
}

type EscrowService struct {
	orch      *orchestrator.Orchestrator
	chain     *chain.Client
	registry  *registry.Registry
	mailer    *notify.Mailer
	auditRepo *repositories.AuditRepo
	cfg       *config.Config
	log       *zap.Logger
}

func NewEscrowService(
	orch *orchestrator.Orchestrator,
	chainClient *chain.Client,
	reg *registry.Registry,
	mailer *notify.Mailer,
	auditRepo *repositories.AuditRepo,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		orch:      orch,
		chain:     chainClient,
		registry:  reg,
		mailer:    mailer,
		auditRepo: auditRepo,
		cfg:       cfg,
		log:       log,
	}
}

// verifyAllowance re-reads the owner's allowance toward the spender and
// fails when it no longer covers the required amount. The pre-flight
// check and the actual pull are separate transactions; the allowance can
// be revoked in between.
func verifyAllowance(ctx context.Context, reader allowanceReader, token, owner, spender string, required *big.Int) error {
	current, err := reader.Allowance(ctx, token, owner, spender)
	if err != nil {
		return fmt.Errorf("allowance re-check failed: %w", err)
	}
	if current.Cmp(required) < 0 {
		return fmt.Errorf("allowance dropped below the deal amount: have %s, need %s", current, required)
	}
	return nil
}

// ProcessDeal moves a client's tokens into escrow on an admin's request.
// The client's allowance is checked first; the admin cannot approve on
// the client's behalf, so a short allowance aborts the deal and mails the
// client an approval link instead.
func (s *EscrowService) ProcessDeal(ctx context.Context, admin, client, network, tokenAddr, clientEmail string, amount decimal.Decimal) (*models.Operation, error) {
	if !s.cfg.IsAdmin(admin) {
		return nil, ErrNotAdmin
	}

	token, err := s.registry.Resolve(ctx, network, tokenAddr)
	if err != nil {
		return nil, err
	}

	spend, err := models.NewSpendDescriptor(token, client, s.cfg.EscrowContract, amount)
	if err != nil {
		return nil, err
	}

	current, err := s.chain.Allowance(ctx, token.Address, client, s.cfg.EscrowContract)
	if err != nil {
		return nil, fmt.Errorf("allowance check failed: %w", err)
	}
	if current.Cmp(spend.Required) < 0 {
		link := s.mailer.ApprovalLink(client, token.Address, spend.Display, s.cfg.EscrowContract)
		if clientEmail != "" {
			s.mailer.SendApprovalRequest(ctx, clientEmail, client, token.Address, spend.Display, s.cfg.EscrowContract)
		}
		s.log.Info("deal blocked on client allowance",
			zap.String("client", client),
			zap.String("token", token.Symbol),
			zap.String("amount", spend.Display))
		return nil, &ErrApprovalRequired{ApprovalLink: link}
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindProcessDeal,
		Owner: admin,
		Primary: func(ctx context.Context) (string, error) {
			// The pre-flight check above is stale by now; the client may
			// have revoked in between.
			if err := verifyAllowance(ctx, s.chain, token.Address, client, s.cfg.EscrowContract, spend.Required); err != nil {
				return "", err
			}
			return s.chain.ProcessDeal(ctx, s.cfg.EscrowContract, admin, client, token.Address, spend.Required)
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, op, admin, "process_deal", map[string]any{
		"client": client,
		"token":  token.Symbol,
		"amount": spend.Display,
	})
	return op, nil
}

// ApproveSpend grants a spender an allowance of exactly the given amount.
// Backs the approval page a client lands on from the mailed link: client
// is the address the link was issued for, and the connected owner must be
// that same wallet.
func (s *EscrowService) ApproveSpend(ctx context.Context, owner, client, network, tokenAddr, spender string, amount decimal.Decimal) (*models.Operation, error) {
	if client != "" && !strings.EqualFold(owner, client) {
		return nil, ErrWalletMismatch
	}
	if spender == "" {
		return nil, errors.New("spender is required")
	}

	token, err := s.registry.Resolve(ctx, network, tokenAddr)
	if err != nil {
		return nil, err
	}

	spend, err := models.NewSpendDescriptor(token, owner, spender, amount)
	if err != nil {
		return nil, err
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindApprove,
		Owner: owner,
		Primary: func(ctx context.Context) (string, error) {
			return s.chain.Approve(ctx, token.Address, owner, spender, spend.Required)
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, op, owner, "approve_spend", map[string]any{
		"token":   token.Symbol,
		"spender": spender,
		"amount":  spend.Display,
	})
	return op, nil
}

// CurrentAllowance reads the owner's standing allowance toward a spender,
// in human token units. The approval page shows it next to the requested
// amount.
func (s *EscrowService) CurrentAllowance(ctx context.Context, owner, network, tokenAddr, spender string) (string, error) {
	if spender == "" {
		return "", errors.New("spender is required")
	}

	token, err := s.registry.Resolve(ctx, network, tokenAddr)
	if err != nil {
		return "", err
	}

	raw, err := s.chain.Allowance(ctx, token.Address, owner, spender)
	if err != nil {
		return "", fmt.Errorf("allowance read failed: %w", err)
	}
	return decimal.NewFromBigInt(raw, -int32(token.Decimals)).String(), nil
}

func (s *EscrowService) audit(ctx context.Context, op *models.Operation, actor, action string, meta map[string]any) {
	meta["operation_id"] = op.ID.String()
	meta["state"] = op.State
	if err := s.auditRepo.Log(ctx, models.AuditLog{
		Actor:      actor,
		ActorType:  "wallet",
		Action:     action,
		EntityType: "operation",
		EntityID:   &op.ID,
		Meta:       meta,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
