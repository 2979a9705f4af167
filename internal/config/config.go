/**
 * @description
 * Configuration loader for the Likeli exchange backend.
 * Responsible for reading environment variables, setting defaults, and
 * performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if critical variables (Database URL) are missing.
 * - Engine tunables (liquidity multiplier, pool floor, graduation
 *   thresholds, oracle windows) are centralized here so every component
 *   shares one source of truth.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Engine EngineConfig
	Worker WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	URL string
}

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	// JWTSecret is the HMAC secret bearer tokens are verified against.
	JWTSecret string
}

// EngineConfig holds the trading and resolution engine tunables.
type EngineConfig struct {
	// LiquidityMultiplier controls pool depth per unit of ante.
	LiquidityMultiplier float64
	// PoolFloor is the minimum either pool reserve may hold after a trade.
	PoolFloor float64
	// GraduationVolume is the cumulative volume that moves a sandbox
	// market into graduation.
	GraduationVolume float64
	// GraduationDwell is how long a market graduates before main trading.
	GraduationDwell time.Duration
	// ChallengeWindow is the oracle dispute window length.
	ChallengeWindow time.Duration
	// ChallengeBond is the flat bond settled on disputed resolutions.
	ChallengeBond float64
	// MaxChartPoints caps chart responses before downsampling kicks in.
	MaxChartPoints int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SweepInterval time.Duration
}

// Load reads .env file and populates the Config struct.
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (prod might inject
	// env vars directly).
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Engine: EngineConfig{
			LiquidityMultiplier: getEnvAsFloat("ENGINE_LIQUIDITY_MULTIPLIER", 10),
			PoolFloor:           getEnvAsFloat("ENGINE_POOL_FLOOR", 1),
			GraduationVolume:    getEnvAsFloat("ENGINE_GRADUATION_VOLUME", 1000),
			GraduationDwell:     getEnvAsDuration("ENGINE_GRADUATION_DWELL", 5*time.Minute),
			ChallengeWindow:     getEnvAsDuration("ORACLE_CHALLENGE_WINDOW", 24*time.Hour),
			ChallengeBond:       getEnvAsFloat("ORACLE_CHALLENGE_BOND", 100),
			MaxChartPoints:      getEnvAsInt("CHART_MAX_POINTS", 500),
		},
		Worker: WorkerConfig{
			SweepInterval: getEnvAsDuration("WORKER_SWEEP_INTERVAL", time.Minute),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables and sane tunables.
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" && cfg.Server.Env != "test" {
		fmt.Println("Warning: JWT_SECRET is missing. Auth middleware will reject all tokens.")
	}
	if cfg.Engine.LiquidityMultiplier <= 0 {
		return fmt.Errorf("ENGINE_LIQUIDITY_MULTIPLIER must be positive")
	}
	if cfg.Engine.GraduationVolume <= 0 {
		return fmt.Errorf("ENGINE_GRADUATION_VOLUME must be positive")
	}
	return nil
}

// Helper to get env var with default.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper to get env var as int.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
