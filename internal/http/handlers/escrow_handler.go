package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/http/dto"
	"github.com/koinlend/backend/internal/middleware"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/services"
)

type EscrowHandler struct {
	escrow *services.EscrowService
	log    *zap.Logger
}

func NewEscrowHandler(escrow *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrow: escrow, log: log}
}

// ProcessDeal moves a client's tokens into escrow. Admin only. A short
// client allowance answers 409 with the approval link that was mailed.
// POST /deals/process
func (h *EscrowHandler) ProcessDeal(c *fiber.Ctx) error {
	var req dto.ProcessDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Client == "" || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "client and token are required"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	op, err := h.escrow.ProcessDeal(c.Context(), middleware.GetAddress(c), req.Client, middleware.GetNetwork(c), req.Token, req.ClientEmail, amount)
	if err != nil {
		var approval *services.ErrApprovalRequired
		if errors.As(err, &approval) {
			return c.Status(fiber.StatusConflict).JSON(dto.ApprovalRequiredResponse{
				Error:        approval.Error(),
				ApprovalLink: approval.ApprovalLink,
			})
		}
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Approve grants a spender an allowance. Backs the approval page: the
// client field carries the address from the mailed link and must match
// the connected wallet.
// POST /approvals
func (h *EscrowHandler) Approve(c *fiber.Ctx) error {
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Token == "" || req.Spender == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "token and spender are required"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	op, err := h.escrow.ApproveSpend(c.Context(), middleware.GetAddress(c), req.Client, middleware.GetNetwork(c), req.Token, req.Spender, amount)
	if err != nil {
		if errors.Is(err, services.ErrWalletMismatch) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "switch to the wallet the approval was requested for"})
		}
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Allowance reads the connected wallet's standing allowance toward a
// spender. The approval page shows it next to the requested amount.
// GET /approvals/allowance?token=...&spender=...
func (h *EscrowHandler) Allowance(c *fiber.Ctx) error {
	token := c.Query("token")
	spender := c.Query("spender")
	if token == "" || spender == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "token and spender are required"})
	}

	allowance, err := h.escrow.CurrentAllowance(c.Context(), middleware.GetAddress(c), middleware.GetNetwork(c), token, spender)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.AllowanceResponse{
		Token:     token,
		Spender:   spender,
		Allowance: allowance,
	})
}

func (h *EscrowHandler) serviceErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotAdmin):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
	case errors.Is(err, orchestrator.ErrOperationInProgress):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "an operation for this token is already in progress"})
	case errors.Is(err, registry.ErrTokenNotFound), errors.Is(err, registry.ErrInvalidAddress):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	h.log.Error("escrow request failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}
