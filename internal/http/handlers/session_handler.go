package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/http/dto"
	"github.com/koinlend/backend/internal/middleware"
	"github.com/koinlend/backend/internal/wallet"
)

type SessionHandler struct {
	sessions *wallet.SessionService
	log      *zap.Logger
}

func NewSessionHandler(sessions *wallet.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// Connect binds the signer's first account to a session and issues a token.
// POST /session/connect
func (h *SessionHandler) Connect(c *fiber.Ctx) error {
	sess, token, err := h.sessions.Connect(c.Context())
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrNoAccounts), errors.Is(err, chain.ErrWalletUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "wallet unavailable"})
		case errors.Is(err, chain.ErrUnsupportedNetwork):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("connect failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SessionResponse{Token: token, Session: sess})
}

// Restore revalidates a stored session on page load.
// POST /session/restore
func (h *SessionHandler) Restore(c *fiber.Ctx) error {
	var req dto.RestoreSessionRequest
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	sess, err := h.sessions.Restore(c.Context(), req.Address)
	if err != nil {
		if errors.Is(err, wallet.ErrNoSession) || errors.Is(err, chain.ErrUnsupportedNetwork) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no restorable session"})
		}
		h.log.Error("restore failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SessionResponse{Session: sess})
}

// Disconnect drops the stored session.
// DELETE /session
func (h *SessionHandler) Disconnect(c *fiber.Ctx) error {
	address := middleware.GetAddress(c)
	if err := h.sessions.Disconnect(c.Context(), address); err != nil {
		h.log.Error("disconnect failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// NetworkChanged updates the session after a provider chain switch.
// POST /session/network
func (h *SessionHandler) NetworkChanged(c *fiber.Ctx) error {
	var req dto.NetworkChangedRequest
	if err := c.BodyParser(&req); err != nil || req.ChainID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "chain_id is required"})
	}

	address := middleware.GetAddress(c)
	sess, err := h.sessions.NetworkChanged(c.Context(), address, req.ChainID)
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrUnsupportedNetwork):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, wallet.ErrNoSession):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no active session"})
		}
		h.log.Error("network change failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SessionResponse{Session: sess})
}
