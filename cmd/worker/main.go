/**
 * @description
 * Standalone sweep worker.
 * Restores engine state from the mirror and advances due oracle steps on
 * a fixed interval. Intended for maintenance windows when the API process
 * is stopped; engine state lives in process memory, so never run this
 * beside a live API instance on the same database.
 *
 * @dependencies
 * - internal/config
 * - internal/db
 * - internal/services
 * - internal/worker
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/db"
	"github.com/likeli-project/backend/internal/logger"
	"github.com/likeli-project/backend/internal/services"
	"github.com/likeli-project/backend/internal/store"
	"github.com/likeli-project/backend/internal/worker"
)

func main() {
	logger.Info("🔥 Starting Likeli Sweep Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}

	// 3. Restore Engine State
	mirror := store.NewMirror(pgDB)
	exchange := services.NewExchangeService(redisClient, mirror, cfg.Engine)
	if err := exchange.Restore(); err != nil {
		logger.Fatal("Failed to restore engine state: %v", err)
	}
	oracle := services.NewOracleService(exchange, cfg.Engine)

	// 4. Sweep Loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.NewSweeper(oracle, cfg.Worker.SweepInterval).Run(ctx)

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	logger.Info("Worker exited.")
}
