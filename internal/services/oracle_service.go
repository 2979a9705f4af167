/**
 * @description
 * Service driving the oracle resolution protocol: provisional proposals,
 * challenges, and finalization once the challenge window closes. The
 * periodic sweep is invoked by the worker; every step is also reachable
 * through the API for manual driving.
 *
 * Key features:
 * - Default evaluator reads the market's own final probability, so no
 *   external data feed is required.
 * - Sweep failures are isolated per market; one bad market never stops
 *   the pass.
 *
 * @dependencies
 * - internal/engine: oracle protocol state machine
 * - internal/config
 */

package services

import (
	"context"
	"time"

	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/logger"
)

type OracleService struct {
	Exchange  *ExchangeService
	Evaluator engine.SourceEvaluator
	Cfg       config.EngineConfig
}

func NewOracleService(exchange *ExchangeService, cfg config.EngineConfig) *OracleService {
	return &OracleService{
		Exchange:  exchange,
		Evaluator: &marketImpliedEvaluator{},
		Cfg:       cfg,
	}
}

func (s *OracleService) params() engine.OracleParams {
	return engine.OracleParams{
		Window: s.Cfg.ChallengeWindow,
		Bond:   s.Cfg.ChallengeBond,
	}
}

// Propose generates a provisional resolution for an oracle market whose
// deadline has passed.
func (s *OracleService) Propose(ctx context.Context, marketID string) (*engine.OracleProposal, error) {
	st, err := s.Exchange.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.Exchange.now()
	s.Exchange.tickLocked(st, now)

	proposal, err := engine.Propose(st.market, s.Evaluator, now, s.params())
	if err != nil {
		return nil, err
	}
	s.Exchange.mirrorMarket(st.market)
	logger.Info("Oracle proposed %s for market %s, window ends %s",
		proposal.Resolution, marketID, proposal.WindowEndsAt.Format(time.RFC3339))
	cp := *proposal
	return &cp, nil
}

// Challenge disputes a provisional resolution inside its window. The
// challenger posts the configured bond.
func (s *OracleService) Challenge(ctx context.Context, marketID, challengerID, reason string) (*engine.OracleChallenge, error) {
	st, err := s.Exchange.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.Exchange.now()
	s.Exchange.tickLocked(st, now)

	challenge, err := engine.ChallengeProposal(st.market, challengerID, reason, now)
	if err != nil {
		return nil, err
	}
	s.Exchange.mirrorMarket(st.market)
	logger.Info("Oracle proposal for market %s challenged by %s", marketID, challengerID)
	cp := *challenge
	return &cp, nil
}

// Finalize settles an unchallenged proposal after its window closes.
func (s *OracleService) Finalize(ctx context.Context, marketID string) (*engine.FinalizeResult, error) {
	st, err := s.Exchange.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.Exchange.now()
	s.Exchange.tickLocked(st, now)

	positions := make([]*engine.Position, 0, len(st.positions))
	for _, p := range st.positions {
		positions = append(positions, p)
	}
	result, err := engine.Finalize(st.market, positions, st.book, now)
	if err != nil {
		return nil, err
	}
	s.mirrorSettled(st)
	logger.Info("Market %s finalized %s by oracle; %d payouts", marketID, result.Resolution.Resolution, len(result.Payouts))
	return result, nil
}

// FinalizeChallenged settles a challenged proposal with the arbiter's
// final ruling and awards the bond to whichever side it vindicates.
func (s *OracleService) FinalizeChallenged(ctx context.Context, marketID, resolverID string, final engine.ResolutionOutcome) (*engine.FinalizeResult, error) {
	st, err := s.Exchange.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.Exchange.now()
	s.Exchange.tickLocked(st, now)

	positions := make([]*engine.Position, 0, len(st.positions))
	for _, p := range st.positions {
		positions = append(positions, p)
	}
	result, err := engine.FinalizeChallenged(st.market, positions, st.book, final, resolverID, now, s.params())
	if err != nil {
		return nil, err
	}
	s.mirrorSettled(st)
	logger.Info("Market %s finalized %s after challenge (challenger won: %t)",
		marketID, result.Resolution.Resolution, result.ChallengerWon)
	return result, nil
}

func (s *OracleService) mirrorSettled(st *marketState) {
	s.Exchange.mirrorMarket(st.market)
	s.Exchange.mirrorPositions(st)
	s.Exchange.mirrorOrders(st)
	st.prune()
}

// SweepReport aggregates one pass over all oracle markets.
type SweepReport struct {
	Proposed  int `json:"proposed"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
}

// Check walks every market and advances whichever oracle step is due.
// Called by the worker on a fixed interval.
func (s *OracleService) Check(ctx context.Context) SweepReport {
	s.Exchange.mu.RLock()
	states := make([]*marketState, 0, len(s.Exchange.markets))
	for _, st := range s.Exchange.markets {
		states = append(states, st)
	}
	s.Exchange.mu.RUnlock()

	var report SweepReport
	now := s.Exchange.now()
	for _, st := range states {
		if ctx.Err() != nil {
			break
		}
		st.mu.Lock()
		s.Exchange.tickLocked(st, now)
		action := engine.Eligibility(st.market, now)
		marketID := st.market.ID
		st.mu.Unlock()

		switch action {
		case engine.SweepPropose:
			if _, err := s.Propose(ctx, marketID); err != nil {
				logger.Error("Oracle sweep: propose failed for market %s: %v", marketID, err)
				report.Failed++
				continue
			}
			report.Proposed++
		case engine.SweepFinalize:
			if _, err := s.Finalize(ctx, marketID); err != nil {
				logger.Error("Oracle sweep: finalize failed for market %s: %v", marketID, err)
				report.Failed++
				continue
			}
			report.Finalized++
		}
	}
	return report
}

// marketImpliedEvaluator resolves a market from its own closing prices:
// binary markets resolve YES when the final probability is at least one
// half, multi-choice markets resolve to the highest-probability answer.
type marketImpliedEvaluator struct{}

func (marketImpliedEvaluator) Evaluate(m *engine.Market, now time.Time) (engine.ResolutionOutcome, string, error) {
	if m.Kind == engine.KindMulti {
		var best *engine.Answer
		var bestProb float64
		for _, a := range m.Answers {
			if p := a.Pool.Prob(m.Weight); best == nil || p > bestProb {
				best, bestProb = a, p
			}
		}
		if best == nil {
			return engine.ResolutionOutcome{}, "", engine.Conflictf("market %s has no answers to evaluate", m.ID)
		}
		return engine.ResolutionOutcome{
				Resolution: engine.ResolutionYes,
				AnswerID:   best.ID,
			},
			"market-implied: leading answer at close",
			nil
	}

	prob := m.Pool.Prob(m.Weight)
	res := engine.ResolutionNo
	if prob >= 0.5 {
		res = engine.ResolutionYes
	}
	return engine.ResolutionOutcome{Resolution: res},
		"market-implied: closing probability",
		nil
}
