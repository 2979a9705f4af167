/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/api/handlers
 * - internal/api/middleware
 * - internal/services
 */

package api

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/likeli-project/backend/internal/api/handlers"
	"github.com/likeli-project/backend/internal/api/middleware"
	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/services"
)

// SetupRoutes configures all API routes around an already-restored
// exchange service.
func SetupRoutes(app *fiber.App, exchange *services.ExchangeService, oracle *services.OracleService, chart *services.ChartService, rdb *redis.Client, cfg *config.Config) {
	// 1. Initialize Middleware
	if err := middleware.InitAuthMiddleware(cfg); err != nil {
		log.Printf("Failed to init auth middleware: %v", err)
	}

	// 2. Initialize the SSE hub
	hub := services.NewPriceStreamHub(rdb, services.PriceUpdateChannel)

	// 3. Initialize Handlers
	marketHandler := handlers.NewMarketHandler(exchange, chart, hub)
	tradeHandler := handlers.NewTradeHandler(exchange)
	orderHandler := handlers.NewOrderHandler(exchange)
	oracleHandler := handlers.NewOracleHandler(oracle)

	// 4. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Public Routes
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Market Routes (Public reads)
	markets := v1.Group("/markets")
	markets.Get("/", marketHandler.ListMarkets)
	markets.Get("/:id", marketHandler.GetMarket)
	markets.Get("/:id/progress", marketHandler.GetProgress)
	markets.Get("/:id/history", marketHandler.GetHistory)
	markets.Get("/:id/stream", marketHandler.StreamPrices)
	markets.Get("/:id/orders", orderHandler.ListOrders)
	markets.Get("/:id/book", orderHandler.GetBook)

	// Market Routes (Protected writes)
	markets.Post("/", middleware.Protected(), marketHandler.CreateMarket)
	markets.Post("/:id/trade", middleware.Protected(), tradeHandler.ExecuteTrade)
	markets.Post("/:id/liquidity", middleware.Protected(), marketHandler.AddLiquidity)
	markets.Post("/:id/fees", middleware.Protected(), marketHandler.SetFees)
	markets.Post("/:id/rebalance", middleware.Protected(), marketHandler.RebalanceMarket)
	markets.Post("/:id/resolve", middleware.Protected(), marketHandler.ResolveMarket)
	markets.Post("/:id/positions/convert", middleware.Protected(), tradeHandler.ConvertPositions)
	markets.Post("/:id/positions/split", middleware.Protected(), tradeHandler.SplitPosition)
	markets.Post("/:id/positions/merge", middleware.Protected(), tradeHandler.MergePosition)
	markets.Get("/:id/position", middleware.Protected(), tradeHandler.GetPosition)
	markets.Post("/:id/orders", middleware.Protected(), orderHandler.PlaceOrder)
	markets.Delete("/:id/orders/:orderId", middleware.Protected(), orderHandler.CancelOrder)

	// Oracle Routes (Protected)
	markets.Post("/:id/oracle/propose", middleware.Protected(), oracleHandler.Propose)
	markets.Post("/:id/oracle/challenge", middleware.Protected(), oracleHandler.Challenge)
	markets.Post("/:id/oracle/finalize", middleware.Protected(), oracleHandler.Finalize)
	markets.Post("/:id/oracle/finalize-challenged", middleware.Protected(), oracleHandler.FinalizeChallenged)

	// Position Routes (Protected)
	v1.Get("/positions", middleware.Protected(), tradeHandler.GetMyPositions)
}
