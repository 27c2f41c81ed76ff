package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/http/dto"
	"github.com/koinlend/backend/internal/ledger"
	"github.com/koinlend/backend/internal/middleware"
	"github.com/koinlend/backend/internal/oracle"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/services"
)

type LoanHandler struct {
	lending *services.LendingService
	borrow  *services.BorrowService
	log     *zap.Logger
}

func NewLoanHandler(lending *services.LendingService, borrow *services.BorrowService, log *zap.Logger) *LoanHandler {
	return &LoanHandler{lending: lending, borrow: borrow, log: log}
}

// Lend deposits KOIN into the lending market.
// POST /loans/lend
func (h *LoanHandler) Lend(c *fiber.Ctx) error {
	var req dto.LendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	op, err := h.lending.Lend(c.Context(), middleware.GetAddress(c), amount)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Claim withdraws a matured deposit.
// POST /loans/claim
func (h *LoanHandler) Claim(c *fiber.Ctx) error {
	var req dto.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	op, err := h.lending.Claim(c.Context(), middleware.GetAddress(c), req.RecordID, req.ContractID)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Quote prices the collateral for a requested borrow.
// POST /loans/borrow/quote
func (h *LoanHandler) Quote(c *fiber.Ctx) error {
	var req dto.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	quote, token, err := h.borrow.Quote(c.Context(), middleware.GetNetwork(c), req.CollateralToken, amount)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.QuoteResponse{
		CollateralAmount: quote.CollateralAmount,
		TokenAddress:     token.Address,
		TokenSymbol:      token.Symbol,
	})
}

// Borrow takes a KOIN loan against token collateral.
// POST /loans/borrow
func (h *LoanHandler) Borrow(c *fiber.Ctx) error {
	var req dto.BorrowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	op, err := h.borrow.Borrow(c.Context(), middleware.GetAddress(c), middleware.GetNetwork(c), req.CollateralToken, amount)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Repay pays back a loan in KOIN.
// POST /loans/repay
func (h *LoanHandler) Repay(c *fiber.Ctx) error {
	var req dto.RepayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	op, err := h.borrow.Repay(c.Context(), middleware.GetAddress(c), req.RecordID, req.ContractID, amount)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Dashboard lists the wallet's lend and borrow positions.
// GET /loans
func (h *LoanHandler) Dashboard(c *fiber.Ctx) error {
	owner := middleware.GetAddress(c)

	lends, err := h.lending.Positions(c.Context(), owner)
	if err != nil {
		return h.serviceErr(c, err)
	}
	borrows, err := h.borrow.Positions(c.Context(), owner)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.DashboardResponse{Lends: lends, Borrows: borrows})
}

func (h *LoanHandler) serviceErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrOperationInProgress):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "an operation for this token is already in progress"})
	case errors.Is(err, services.ErrMarketPaused):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "market is paused"})
	case errors.Is(err, oracle.ErrOracleUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "market data unavailable"})
	case errors.Is(err, ledger.ErrUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "ledger service unavailable"})
	case errors.Is(err, ledger.ErrRejected), errors.Is(err, registry.ErrTokenNotFound):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	h.log.Error("loan request failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("amount is not a valid number")
	}
	if amount.Sign() <= 0 {
		return decimal.Zero, errors.New("amount must be positive")
	}
	return amount, nil
}
