/**
 * @description
 * Periodic sweep driving time-based transitions: lifecycle ticks happen
 * lazily inside the oracle check, and due oracle steps (propose, finalize)
 * are advanced without waiting for API traffic.
 *
 * @dependencies
 * - internal/services
 */

package worker

import (
	"context"
	"time"

	"github.com/likeli-project/backend/internal/logger"
	"github.com/likeli-project/backend/internal/services"
)

type Sweeper struct {
	Oracle   *services.OracleService
	Interval time.Duration
}

func NewSweeper(oracle *services.OracleService, interval time.Duration) *Sweeper {
	return &Sweeper{
		Oracle:   oracle,
		Interval: interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. One pass runs
// immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	report := s.Oracle.Check(ctx)
	if report.Proposed > 0 || report.Finalized > 0 || report.Failed > 0 {
		logger.Info("Oracle sweep: %d proposed, %d finalized, %d failed",
			report.Proposed, report.Finalized, report.Failed)
	}
}
