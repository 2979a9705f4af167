/**
 * @description
 * Market settlement primitive.
 * Shared by manual creator resolution and the oracle protocol: both paths
 * converge here once a final resolution value exists.
 */

package engine

import (
	"time"
)

// Payout is the cash owed to one user from a settlement.
type Payout struct {
	UserID   string  `json:"user_id"`
	MarketID string  `json:"market_id"`
	AnswerID string  `json:"answer_id,omitempty"`
	Shares   float64 `json:"shares"`
	Amount   float64 `json:"amount"`
}

// AuthorizeManualResolve checks that the caller may resolve the market by
// hand. Only the creator holds that right.
func AuthorizeManualResolve(m *Market, resolverID string) error {
	if resolverID != m.CreatorID {
		return Unauthorizedf("only the market creator may resolve market %s", m.ID)
	}
	return nil
}

// Settle applies a final resolution: pays out every position, extinguishes
// the holdings, cancels open orders, and moves the market to its terminal
// phase. The caller removes emptied position records afterwards.
func Settle(m *Market, positions []*Position, book *OrderBook, out ResolutionOutcome, now time.Time) ([]Payout, error) {
	if m.Resolved() {
		return nil, Conflictf("market %s is already resolved", m.ID)
	}
	if !out.Resolution.Valid() {
		return nil, Validationf("invalid resolution %q", out.Resolution)
	}
	switch m.Kind {
	case KindBinary:
		if out.Resolution == ResolutionMkt && (out.Probability < 0 || out.Probability > 1) {
			return nil, Validationf("MKT resolution requires a probability in [0, 1]")
		}
		if out.AnswerID != "" {
			return nil, Validationf("binary markets do not take an answer id")
		}
	case KindMulti:
		switch out.Resolution {
		case ResolutionYes:
			if m.AnswerByID(out.AnswerID) == nil {
				return nil, Validationf("multi-choice resolution requires a winning answer id")
			}
		case ResolutionCancel:
		default:
			return nil, Validationf("multi-choice markets resolve to a winning answer or CANCEL")
		}
	}

	var payouts []Payout
	for _, pos := range positions {
		amount, shares := settleOne(m, pos, out)
		if amount > 0 {
			payouts = append(payouts, Payout{
				UserID:   pos.UserID,
				MarketID: m.ID,
				AnswerID: pos.AnswerID,
				Shares:   shares,
				Amount:   amount,
			})
		}
		pos.YesShares = 0
		pos.NoShares = 0
		pos.CostBasis = 0
	}

	if book != nil {
		book.CancelAll(now)
	}

	out.ResolvedAt = now
	m.Resolution = &out
	m.Phase = PhaseResolved
	return payouts, nil
}

func settleOne(m *Market, pos *Position, out ResolutionOutcome) (amount, shares float64) {
	if out.Resolution == ResolutionCancel {
		// CANCEL returns principal, not curve value.
		return pos.CostBasis, 0
	}
	if m.Kind == KindBinary {
		switch out.Resolution {
		case ResolutionYes:
			return pos.YesShares, pos.YesShares
		case ResolutionNo:
			return pos.NoShares, pos.NoShares
		case ResolutionMkt:
			return ResolutionPayout(ResolutionMkt, out.Probability, pos.YesShares, pos.NoShares), pos.YesShares + pos.NoShares
		}
		return 0, 0
	}
	// Multi-choice one-winner settlement: the winner's YES and every
	// loser's NO pay 1.0 per share.
	if pos.AnswerID == out.AnswerID {
		return pos.YesShares, pos.YesShares
	}
	return pos.NoShares, pos.NoShares
}
