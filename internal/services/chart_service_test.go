package services

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/likeli-project/backend/internal/engine"
)

// countingSource wraps a fakeMirror and counts PriceRange calls.
type countingSource struct {
	mirror *fakeMirror
	calls  int
}

func (c *countingSource) PriceRange(marketID, answerID string, from, to time.Time) ([]engine.PricePoint, error) {
	c.calls++
	return c.mirror.PriceRange(marketID, answerID, from, to)
}

func TestChartHistoryCachesResult(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	mirror := newFakeMirror()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		mirror.prices = append(mirror.prices, engine.PricePoint{
			MarketID:    "m1",
			Probability: 0.4 + float64(i)*0.01,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		})
	}

	source := &countingSource{mirror: mirror}
	chart := NewChartService(redisClient, source, testEngineConfig())
	ctx := context.Background()

	points, err := chart.History(ctx, "m1", "", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 10)
	require.Equal(t, 1, source.calls)

	// Second read is served from the cache.
	again, err := chart.History(ctx, "m1", "", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, points, again)
	require.Equal(t, 1, source.calls)

	// Expiring the cache entry falls back to the source.
	mr.FastForward(time.Minute)
	_, err = chart.History(ctx, "m1", "", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestChartHistoryDownsamples(t *testing.T) {
	mirror := newFakeMirror()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5000; i++ {
		mirror.prices = append(mirror.prices, engine.PricePoint{
			MarketID:    "m1",
			Probability: 0.5,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
	}

	cfg := testEngineConfig()
	chart := NewChartService(nil, &countingSource{mirror: mirror}, cfg)

	points, err := chart.History(context.Background(), "m1", "", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, points, cfg.MaxChartPoints)
	require.Equal(t, base, points[0].Timestamp)
	require.Equal(t, base.Add(4999*time.Second), points[len(points)-1].Timestamp)
}
