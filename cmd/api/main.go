/**
 * @description
 * Main entry point for the Likeli Exchange API.
 * Initializes the Fiber web server, restores engine state from the
 * mirror, starts the oracle sweep, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - internal/config: Config loader
 * - internal/db: Database connections
 * - internal/services: Exchange, oracle and chart services
 *
 * @notes
 * - Connects to Postgres and Redis on startup.
 * - The engine owns market state in process memory; run exactly one
 *   instance against a given database.
 */

package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/likeli-project/backend/internal/api"
	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/db"
	"github.com/likeli-project/backend/internal/services"
	"github.com/likeli-project/backend/internal/store"
	"github.com/likeli-project/backend/internal/worker"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// 3. Initialize the Mirror and Services
	mirror := store.NewMirror(pgDB)
	if err := mirror.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	exchange := services.NewExchangeService(redisClient, mirror, cfg.Engine)
	if err := exchange.Restore(); err != nil {
		log.Fatalf("Failed to restore engine state: %v", err)
	}
	oracle := services.NewOracleService(exchange, cfg.Engine)
	chart := services.NewChartService(redisClient, mirror, cfg.Engine)

	// 4. Start the Oracle Sweep
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.NewSweeper(oracle, cfg.Worker.SweepInterval).Run(ctx)

	// 5. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Likeli Exchange",
		StrictRouting: true,
		CaseSensitive: true,
	})

	// 6. Global Middleware
	app.Use(recover.New())     // Panic recovery
	app.Use(fiberlogger.New()) // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*", // TODO: Lock this down in production
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// 7. Routes
	api.SetupRoutes(app, exchange, oracle, chart, redisClient, cfg)

	// 8. Start Server
	log.Printf("🚀 Starting Likeli Exchange on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
