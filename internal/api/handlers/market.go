/**
 * @description
 * HTTP Handlers for market lifecycle endpoints: creation, listing,
 * inspection, manual resolution, price history, and the live SSE price
 * stream.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/services
 * - internal/engine
 */

package handlers

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/likeli-project/backend/internal/api/middleware"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/services"
)

type MarketHandler struct {
	Exchange *services.ExchangeService
	Chart    *services.ChartService
	Hub      *services.PriceStreamHub
}

func NewMarketHandler(exchange *services.ExchangeService, chart *services.ChartService, hub *services.PriceStreamHub) *MarketHandler {
	return &MarketHandler{
		Exchange: exchange,
		Chart:    chart,
		Hub:      hub,
	}
}

type createMarketRequest struct {
	Question     string   `json:"question"`
	Kind         string   `json:"kind"`
	InitialProb  float64  `json:"initial_prob"`
	Ante         float64  `json:"ante"`
	AnswerLabels []string `json:"answer_labels"`
	SumToOne     bool     `json:"sum_to_one"`
	Weight       float64  `json:"weight"`
	FeeBps       int      `json:"fee_bps"`
	OracleSource string   `json:"oracle_source"`
	// OracleDeadline is RFC3339; required when oracle_source is set.
	OracleDeadline string `json:"oracle_deadline"`
}

// CreateMarket opens a new market seeded by the caller's ante
// POST /api/v1/markets
func (h *MarketHandler) CreateMarket(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req createMarketRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	in := services.CreateMarketInput{
		CreatorID:    userID,
		Question:     req.Question,
		Kind:         engine.MarketKind(req.Kind),
		InitialProb:  req.InitialProb,
		Ante:         req.Ante,
		AnswerLabels: req.AnswerLabels,
		SumToOne:     req.SumToOne,
		Weight:       req.Weight,
		FeeBps:       req.FeeBps,
		OracleSource: req.OracleSource,
	}
	if req.OracleDeadline != "" {
		deadline, parseErr := time.Parse(time.RFC3339, req.OracleDeadline)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "oracle_deadline must be RFC3339"})
		}
		in.OracleDeadline = deadline
	}

	market, err := h.Exchange.CreateMarket(c.Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(market)
}

// ListMarkets returns all markets, optionally filtered by phase
// GET /api/v1/markets?phase=MAIN
func (h *MarketHandler) ListMarkets(c *fiber.Ctx) error {
	phase := engine.Phase(c.Query("phase"))
	return c.JSON(h.Exchange.ListMarkets(phase))
}

// GetMarket returns one market by id
// GET /api/v1/markets/:id
func (h *MarketHandler) GetMarket(c *fiber.Ctx) error {
	market, err := h.Exchange.GetMarket(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(market)
}

// GetProgress reports graduation progress for a sandbox market
// GET /api/v1/markets/:id/progress
func (h *MarketHandler) GetProgress(c *fiber.Ctx) error {
	progress, err := h.Exchange.GraduationProgress(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if progress == nil {
		return c.JSON(fiber.Map{"graduated": true})
	}
	return c.JSON(progress)
}

type resolveRequest struct {
	Resolution  string  `json:"resolution"`
	Probability float64 `json:"probability"`
	AnswerID    string  `json:"answer_id"`
}

// ResolveMarket settles a market by creator decision
// POST /api/v1/markets/:id/resolve
func (h *MarketHandler) ResolveMarket(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	payouts, err := h.Exchange.ResolveMarket(c.Context(), services.ResolveInput{
		ResolverID:  userID,
		MarketID:    c.Params("id"),
		Resolution:  engine.Resolution(req.Resolution),
		Probability: req.Probability,
		AnswerID:    req.AnswerID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}

type feesRequest struct {
	FeeBps int `json:"fee_bps"`
}

// SetFees updates a market's trading fee, creator only
// POST /api/v1/markets/:id/fees
func (h *MarketHandler) SetFees(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req feesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	market, err := h.Exchange.SetMarketFees(c.Context(), userID, c.Params("id"), req.FeeBps)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(market)
}

// RebalanceMarket renormalizes a dependent multi-choice market
// POST /api/v1/markets/:id/rebalance
func (h *MarketHandler) RebalanceMarket(c *fiber.Ctx) error {
	market, err := h.Exchange.RebalanceMarket(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(market)
}

type liquidityRequest struct {
	AnswerID string  `json:"answer_id"`
	Amount   float64 `json:"amount"`
}

// AddLiquidity deepens a market's pool without moving its price
// POST /api/v1/markets/:id/liquidity
func (h *MarketHandler) AddLiquidity(c *fiber.Ctx) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req liquidityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	market, err := h.Exchange.AddLiquidity(c.Context(), c.Params("id"), req.AnswerID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(market)
}

// GetHistory returns the downsampled price history for a market
// GET /api/v1/markets/:id/history?answer_id=&from=&to=
func (h *MarketHandler) GetHistory(c *fiber.Ctx) error {
	marketID := c.Params("id")
	if _, err := h.Exchange.GetMarket(marketID); err != nil {
		return respondError(c, err)
	}

	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be RFC3339"})
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to must be RFC3339"})
		}
		to = parsed
	}

	points, err := h.Chart.History(c.Context(), marketID, c.Query("answer_id"), from, to)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch price history",
		})
	}
	return c.JSON(points)
}

// StreamPrices streams one market's live price updates over SSE
// GET /api/v1/markets/:id/stream
func (h *MarketHandler) StreamPrices(c *fiber.Ctx) error {
	marketID := c.Params("id")
	if _, err := h.Exchange.GetMarket(marketID); err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()
	updates, unsubscribe := h.Hub.Subscribe(marketID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		requestDone := requestCtx.Done()

		for {
			select {
			case <-requestDone:
				return
			case payload, ok := <-updates:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
