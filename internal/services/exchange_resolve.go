/**
 * @description
 * Manual resolution on the exchange service. Only the market creator may
 * resolve directly; oracle-governed markets settle through the oracle
 * service instead.
 *
 * @dependencies
 * - internal/engine: settlement
 */

package services

import (
	"context"
	"time"

	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/logger"
)

// ResolveInput describes a manual resolution request.
type ResolveInput struct {
	ResolverID string
	MarketID   string
	Resolution engine.Resolution
	// Probability is required for MKT resolutions.
	Probability float64
	// AnswerID is required for multi-choice YES resolutions.
	AnswerID string
}

// ResolveMarket settles a market by the creator's decision and pays out
// every position.
func (s *ExchangeService) ResolveMarket(ctx context.Context, in ResolveInput) ([]engine.Payout, error) {
	st, err := s.state(in.MarketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.now()
	s.tickLocked(st, now)
	m := st.market

	if err := engine.AuthorizeManualResolve(m, in.ResolverID); err != nil {
		return nil, err
	}
	if m.Oracle != nil {
		return nil, engine.Conflictf("market %s resolves through its oracle", m.ID)
	}

	out := engine.ResolutionOutcome{
		Resolution:  in.Resolution,
		Probability: in.Probability,
		AnswerID:    in.AnswerID,
		ResolverID:  in.ResolverID,
	}
	payouts, err := s.settleLocked(st, out, now)
	if err != nil {
		return nil, err
	}
	logger.Info("Market %s resolved %s by %s; %d payouts", m.ID, in.Resolution, in.ResolverID, len(payouts))
	return payouts, nil
}

// settleLocked runs engine settlement and mirrors the terminal state.
// Callers hold st.mu.
func (s *ExchangeService) settleLocked(st *marketState, out engine.ResolutionOutcome, now time.Time) ([]engine.Payout, error) {
	positions := make([]*engine.Position, 0, len(st.positions))
	for _, p := range st.positions {
		positions = append(positions, p)
	}

	payouts, err := engine.Settle(st.market, positions, st.book, out, now)
	if err != nil {
		return nil, err
	}

	s.mirrorMarket(st.market)
	s.mirrorPositions(st)
	s.mirrorOrders(st)
	st.prune()
	return payouts, nil
}
