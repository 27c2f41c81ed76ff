package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/http/dto"
	"github.com/koinlend/backend/internal/middleware"
	"github.com/koinlend/backend/internal/oracle"
	"github.com/koinlend/backend/internal/registry"
)

type MarketHandler struct {
	oracle   *oracle.Oracle
	registry *registry.Registry
	cfg      *config.Config
	log      *zap.Logger
}

func NewMarketHandler(marketOracle *oracle.Oracle, reg *registry.Registry, cfg *config.Config, log *zap.Logger) *MarketHandler {
	return &MarketHandler{oracle: marketOracle, registry: reg, cfg: cfg, log: log}
}

// GetMarket returns the current rates and pause flag. An unreachable
// oracle is an error, never default values.
// GET /market
func (h *MarketHandler) GetMarket(c *fiber.Ctx) error {
	ctx := c.Context()

	lendingRate, err := h.oracle.LendingRate(ctx, h.cfg.LendingContract)
	if err != nil {
		return h.oracleErr(c, err)
	}
	borrowRate, err := h.oracle.BorrowRate(ctx, h.cfg.BorrowContract)
	if err != nil {
		return h.oracleErr(c, err)
	}
	paused, err := h.oracle.Paused(ctx, h.cfg.LendingContract)
	if err != nil {
		return h.oracleErr(c, err)
	}

	return c.JSON(dto.MarketResponse{
		LendingRate: lendingRate,
		BorrowRate:  borrowRate,
		Paused:      paused,
	})
}

// ListTokens returns the collateral tokens for the session's network.
// GET /tokens
func (h *MarketHandler) ListTokens(c *fiber.Ctx) error {
	network := middleware.GetNetwork(c)
	if network == "" {
		network = c.Query("network", "mainnet")
	}

	tokens, err := h.registry.ListByNetwork(c.Context(), network)
	if err != nil {
		h.log.Error("token list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tokens})
}

func (h *MarketHandler) oracleErr(c *fiber.Ctx, err error) error {
	if errors.Is(err, oracle.ErrOracleUnavailable) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "market data unavailable"})
	}
	h.log.Error("market read failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}
