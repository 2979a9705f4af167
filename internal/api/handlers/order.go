/**
 * @description
 * HTTP Handlers for the limit order book: placing and cancelling orders,
 * listing open orders, and the aggregated depth snapshot.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/services
 * - internal/engine
 */

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/likeli-project/backend/internal/api/middleware"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/services"
)

type OrderHandler struct {
	Exchange *services.ExchangeService
}

func NewOrderHandler(exchange *services.ExchangeService) *OrderHandler {
	return &OrderHandler{Exchange: exchange}
}

type placeOrderRequest struct {
	AnswerID  string  `json:"answer_id"`
	Outcome   string  `json:"outcome"`
	Side      string  `json:"side"`
	LimitProb float64 `json:"limit_prob"`
	Quantity  float64 `json:"quantity"`
	// ExpiresAt is RFC3339; omitted orders rest until cancelled.
	ExpiresAt string `json:"expires_at"`
}

// PlaceOrder places a limit order, settling any immediate fills
// POST /api/v1/markets/:id/orders
func (h *OrderHandler) PlaceOrder(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	in := services.PlaceOrderInput{
		UserID:    userID,
		MarketID:  c.Params("id"),
		AnswerID:  req.AnswerID,
		Outcome:   engine.Outcome(req.Outcome),
		Side:      engine.Side(req.Side),
		LimitProb: req.LimitProb,
		Quantity:  req.Quantity,
	}
	if req.ExpiresAt != "" {
		expiry, parseErr := time.Parse(time.RFC3339, req.ExpiresAt)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expires_at must be RFC3339"})
		}
		in.ExpiresAt = &expiry
	}

	receipt, err := h.Exchange.PlaceOrder(c.Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// CancelOrder cancels the unfilled remainder of the caller's order
// DELETE /api/v1/markets/:id/orders/:orderId
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	order, err := h.Exchange.CancelOrder(c.Context(), userID, c.Params("id"), c.Params("orderId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// ListOrders returns the open orders on a market
// GET /api/v1/markets/:id/orders?answer_id=
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.Exchange.OpenOrders(c.Params("id"), c.Query("answer_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(orders)
}

// GetBook returns the aggregated depth snapshot for a market answer
// GET /api/v1/markets/:id/book?answer_id=
func (h *OrderHandler) GetBook(c *fiber.Ctx) error {
	levels, err := h.Exchange.BookLevels(c.Params("id"), c.Query("answer_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(levels)
}
