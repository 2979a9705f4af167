/**
 * @description
 * Service for price chart queries. Reads history from the mirror,
 * downsamples it to a bounded point count, and caches the serialized
 * result in Redis so chart-heavy pages don't hammer PostgreSQL.
 *
 * @dependencies
 * - internal/engine: downsampling
 * - internal/store: price history queries
 * - github.com/redis/go-redis/v9: cache
 */

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/logger"
)

const chartCacheTTL = 30 * time.Second

// PriceHistorySource is the slice of the mirror the chart service reads.
type PriceHistorySource interface {
	PriceRange(marketID, answerID string, from, to time.Time) ([]engine.PricePoint, error)
}

type ChartService struct {
	Redis  *redis.Client
	Source PriceHistorySource
	Cfg    config.EngineConfig
}

func NewChartService(redisClient *redis.Client, source PriceHistorySource, cfg config.EngineConfig) *ChartService {
	return &ChartService{
		Redis:  redisClient,
		Source: source,
		Cfg:    cfg,
	}
}

// History returns the downsampled probability history for a market answer.
// A zero `from` means the beginning of the market; a zero `to` means now.
func (s *ChartService) History(ctx context.Context, marketID, answerID string, from, to time.Time) ([]engine.PricePoint, error) {
	cacheKey := fmt.Sprintf("chart:%s:%s:%d:%d", marketID, answerID, from.Unix(), to.Unix())

	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var points []engine.PricePoint
			if jsonErr := json.Unmarshal([]byte(cached), &points); jsonErr == nil {
				return points, nil
			}
		} else if err != redis.Nil {
			logger.Error("Chart cache read failed for %s: %v", cacheKey, err)
		}
	}

	points, err := s.Source.PriceRange(marketID, answerID, from, to)
	if err != nil {
		return nil, err
	}
	points = engine.Downsample(points, s.Cfg.MaxChartPoints)

	if s.Redis != nil {
		payload, jsonErr := json.Marshal(points)
		if jsonErr == nil {
			if err := s.Redis.Set(ctx, cacheKey, payload, chartCacheTTL).Err(); err != nil {
				logger.Error("Chart cache write failed for %s: %v", cacheKey, err)
			}
		}
	}
	return points, nil
}
