package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/http/dto"
	"github.com/koinlend/backend/internal/middleware"
	"github.com/koinlend/backend/internal/models"
	"github.com/koinlend/backend/internal/orchestrator"
)

type OperationHandler struct {
	orch *orchestrator.Orchestrator
	log  *zap.Logger
}

func NewOperationHandler(orch *orchestrator.Orchestrator, log *zap.Logger) *OperationHandler {
	return &OperationHandler{orch: orch, log: log}
}

// List returns the caller's tracked operations.
// GET /operations
func (h *OperationHandler) List(c *fiber.Ctx) error {
	ops := h.orch.ListByOwner(middleware.GetAddress(c))
	return c.JSON(dto.SuccessResponse{OK: true, Data: ops})
}

// Get returns one tracked operation.
// GET /operations/:id
func (h *OperationHandler) Get(c *fiber.Ctx) error {
	id, op, err := h.ownedOp(c)
	if err != nil {
		return h.opErr(c, id, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// RetryLedger re-runs the ledger sync of a partially failed operation.
// POST /operations/:id/retry-ledger
func (h *OperationHandler) RetryLedger(c *fiber.Ctx) error {
	id, _, err := h.ownedOp(c)
	if err != nil {
		return h.opErr(c, id, err)
	}

	op, err := h.orch.RetryLedger(c.Context(), id)
	if err != nil {
		return h.opErr(c, id, err)
	}
	return c.JSON(dto.OperationResponse{Operation: op})
}

// Acknowledge drops a terminal operation from tracking.
// DELETE /operations/:id
func (h *OperationHandler) Acknowledge(c *fiber.Ctx) error {
	id, _, err := h.ownedOp(c)
	if err != nil {
		return h.opErr(c, id, err)
	}
	if err := h.orch.Acknowledge(id); err != nil {
		return h.opErr(c, id, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

var errNotOwner = errors.New("operation belongs to another wallet")

func (h *OperationHandler) ownedOp(c *fiber.Ctx) (uuid.UUID, *models.Operation, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, nil, orchestrator.ErrOperationNotFound
	}
	op, err := h.orch.Get(id)
	if err != nil {
		return id, nil, err
	}
	if !strings.EqualFold(op.Owner, middleware.GetAddress(c)) {
		return id, nil, errNotOwner
	}
	return id, op, nil
}

func (h *OperationHandler) opErr(c *fiber.Ctx, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrOperationNotFound), errors.Is(err, errNotOwner):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "operation not found"})
	case errors.Is(err, orchestrator.ErrNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "operation has no retryable ledger sync"})
	case errors.Is(err, orchestrator.ErrOperationInProgress):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "retry already running"})
	}
	h.log.Error("operation request failed", zap.String("operation_id", id.String()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}
