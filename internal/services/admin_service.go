package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/models"
	"github.com/koinlend/backend/internal/oracle"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/repositories"
)

// ErrNotAdmin: the wallet is not in the admin allowlist.
var ErrNotAdmin = errors.New("wallet is not an admin")

// Market contract selector for admin writes.
const (
	MarketLending = "lending"
	MarketBorrow  = "borrow"
)

type AdminService struct {
	orch      *orchestrator.Orchestrator
	chain     *chain.Client
	oracle    *oracle.Oracle
	registry  *registry.Registry
	auditRepo *repositories.AuditRepo
	cfg       *config.Config
	log       *zap.Logger
}

func NewAdminService(
	orch *orchestrator.Orchestrator,
	chainClient *chain.Client,
	marketOracle *oracle.Oracle,
	reg *registry.Registry,
	auditRepo *repositories.AuditRepo,
	cfg *config.Config,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		orch:      orch,
		chain:     chainClient,
		oracle:    marketOracle,
		registry:  reg,
		auditRepo: auditRepo,
		cfg:       cfg,
		log:       log,
	}
}

func (s *AdminService) contractFor(market string) (string, error) {
	switch market {
	case MarketLending:
		return s.cfg.LendingContract, nil
	case MarketBorrow:
		return s.cfg.BorrowContract, nil
	default:
		return "", fmt.Errorf("unknown market %q", market)
	}
}

// SetPaused pauses or unpauses a market contract.
func (s *AdminService) SetPaused(ctx context.Context, admin, market string, paused bool) (*models.Operation, error) {
	if !s.cfg.IsAdmin(admin) {
		return nil, ErrNotAdmin
	}
	contract, err := s.contractFor(market)
	if err != nil {
		return nil, err
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:  models.OpKindSetPaused,
		Owner: admin,
		Primary: func(ctx context.Context) (string, error) {
			return s.chain.SetPaused(ctx, contract, admin, paused)
		},
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, op, admin, "set_paused", map[string]any{"market": market, "paused": paused})
	return op, nil
}

// SetRate updates the lending or borrowing APR of a market.
func (s *AdminService) SetRate(ctx context.Context, admin, market string, rate int64) (*models.Operation, error) {
	if !s.cfg.IsAdmin(admin) {
		return nil, ErrNotAdmin
	}
	if rate < 0 || rate > 100 {
		return nil, fmt.Errorf("rate %d out of range", rate)
	}
	contract, err := s.contractFor(market)
	if err != nil {
		return nil, err
	}

	primary := func(ctx context.Context) (string, error) {
		if market == MarketLending {
			return s.chain.SetLendingRate(ctx, contract, admin, rate)
		}
		return s.chain.SetBorrowRate(ctx, contract, admin, rate)
	}

	op, err := s.orch.Run(ctx, orchestrator.Request{
		Kind:    models.OpKindSetRate,
		Owner:   admin,
		Primary: primary,
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, op, admin, "set_rate", map[string]any{"market": market, "rate": rate})
	return op, nil
}

// AddToken registers a new collateral token.
func (s *AdminService) AddToken(ctx context.Context, admin, network, address string) (*models.Token, error) {
	if !s.cfg.IsAdmin(admin) {
		return nil, ErrNotAdmin
	}

	token, err := s.registry.AddToken(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if err := s.auditRepo.Log(ctx, models.AuditLog{
		Actor:      admin,
		ActorType:  "admin",
		Action:     "add_token",
		EntityType: "token",
		EntityID:   &token.ID,
		Meta:       map[string]any{"symbol": token.Symbol, "address": token.Address, "network": network},
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", "add_token"), zap.Error(err))
	}
	return token, nil
}

// finish records the audit entry and flushes cached market reads once an
// admin write has gone through.
func (s *AdminService) finish(ctx context.Context, op *models.Operation, admin, action string, meta map[string]any) {
	if op.State == models.OpStateCompleted {
		s.oracle.InvalidateAll()
	}
	meta["operation_id"] = op.ID.String()
	meta["state"] = op.State
	if err := s.auditRepo.Log(ctx, models.AuditLog{
		Actor:      admin,
		ActorType:  "admin",
		Action:     action,
		EntityType: "operation",
		EntityID:   &op.ID,
		Meta:       meta,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
