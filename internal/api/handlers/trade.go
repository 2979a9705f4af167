/**
 * @description
 * HTTP Handlers for pool trades and position operations: market buys and
 * sells, NegRisk conversion, split, merge, and position queries.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/services
 * - internal/engine
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/likeli-project/backend/internal/api/middleware"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/services"
)

type TradeHandler struct {
	Exchange *services.ExchangeService
}

func NewTradeHandler(exchange *services.ExchangeService) *TradeHandler {
	return &TradeHandler{Exchange: exchange}
}

type tradeRequest struct {
	AnswerID string  `json:"answer_id"`
	Outcome  string  `json:"outcome"`
	Side     string  `json:"side"`
	Amount   float64 `json:"amount"`
	Shares   float64 `json:"shares"`
}

// ExecuteTrade runs a buy or sell against the market's pool
// POST /api/v1/markets/:id/trade
func (h *TradeHandler) ExecuteTrade(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	receipt, err := h.Exchange.Trade(c.Context(), services.TradeInput{
		UserID:   userID,
		MarketID: c.Params("id"),
		AnswerID: req.AnswerID,
		Outcome:  engine.Outcome(req.Outcome),
		Side:     engine.Side(req.Side),
		Amount:   req.Amount,
		Shares:   req.Shares,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(receipt)
}

type convertRequest struct {
	IndexSet uint64  `json:"index_set"`
	Amount   float64 `json:"amount"`
}

// ConvertPositions runs a NegRisk conversion on the caller's positions
// POST /api/v1/markets/:id/positions/convert
func (h *TradeHandler) ConvertPositions(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req convertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.Exchange.Convert(c.Context(), userID, c.Params("id"), req.IndexSet, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

type splitMergeRequest struct {
	AnswerID string  `json:"answer_id"`
	Amount   float64 `json:"amount"`
}

// SplitPosition mints matched YES/NO holdings for cash
// POST /api/v1/markets/:id/positions/split
func (h *TradeHandler) SplitPosition(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req splitMergeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	position, err := h.Exchange.Split(c.Context(), userID, c.Params("id"), req.AnswerID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(position)
}

// MergePosition burns matched YES/NO holdings for cash at par
// POST /api/v1/markets/:id/positions/merge
func (h *TradeHandler) MergePosition(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req splitMergeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	position, err := h.Exchange.Merge(c.Context(), userID, c.Params("id"), req.AnswerID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(position)
}

// GetMyPositions returns the caller's open positions across all markets
// GET /api/v1/positions
func (h *TradeHandler) GetMyPositions(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.JSON(h.Exchange.UserPositions(userID))
}

// GetPosition returns the caller's holding on one market answer
// GET /api/v1/markets/:id/position?answer_id=
func (h *TradeHandler) GetPosition(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	position, err := h.Exchange.Position(userID, c.Params("id"), c.Query("answer_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(position)
}
