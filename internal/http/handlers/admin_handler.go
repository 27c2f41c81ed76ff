package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/http/dto"
	"github.com/koinlend/backend/internal/middleware"
	"github.com/koinlend/backend/internal/orchestrator"
	"github.com/koinlend/backend/internal/registry"
	"github.com/koinlend/backend/internal/repositories"
	"github.com/koinlend/backend/internal/services"
)

type AdminHandler struct {
	admin *services.AdminService
	log   *zap.Logger
}

func NewAdminHandler(admin *services.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

// SetPaused pauses or unpauses a market.
// POST /admin/paused
func (h *AdminHandler) SetPaused(c *fiber.Ctx) error {
	var req dto.SetPausedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	op, err := h.admin.SetPaused(c.Context(), middleware.GetAddress(c), req.Market, req.Paused)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// SetRate updates a market's APR.
// POST /admin/rate
func (h *AdminHandler) SetRate(c *fiber.Ctx) error {
	var req dto.SetRateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	op, err := h.admin.SetRate(c.Context(), middleware.GetAddress(c), req.Market, req.Rate)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// AddToken registers a new collateral token.
// POST /admin/tokens
func (h *AdminHandler) AddToken(c *fiber.Ctx) error {
	var req dto.AddTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	token, err := h.admin.AddToken(c.Context(), middleware.GetAddress(c), middleware.GetNetwork(c), req.Address)
	if err != nil {
		return h.serviceErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: token})
}

func (h *AdminHandler) serviceErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotAdmin):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
	case errors.Is(err, orchestrator.ErrOperationInProgress):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "an admin operation is already in progress"})
	case errors.Is(err, registry.ErrInvalidAddress), errors.Is(err, repositories.ErrDuplicateToken):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	h.log.Error("admin request failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}
