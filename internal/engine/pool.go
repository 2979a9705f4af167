/**
 * @description
 * Constant-product pricing engine.
 * Pure functions over a two-sided Pool: probability, buy/sell against the
 * curve, algebraic cost/shares inversion, and resolution payouts.
 *
 * @notes
 * - yes*no (the k-invariant) is preserved across every trade. Only explicit
 *   liquidity additions change k, and those preserve the implied probability.
 * - All mutating operations work on a copy and return the new pool, so a
 *   floor violation leaves the caller's state untouched.
 */

package engine

import (
	"math"
)

// Pool holds the two constant-product reserves of one contract.
type Pool struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

// CurveParams carries the tunables the pricing functions need.
type CurveParams struct {
	// Weight is the market's p parameter. 0.5 gives the plain CPMM price.
	Weight float64
	// Floor is the minimum either reserve may hold after a trade.
	Floor float64
	// FeeBps is the market's trading fee in basis points, charged on buy
	// cash in and on sell payouts.
	FeeBps int
}

// TradeResult reports the effect of one buy or sell.
type TradeResult struct {
	Shares     float64 `json:"shares,omitempty"`
	Payout     float64 `json:"payout,omitempty"`
	Fee        float64 `json:"fee,omitempty"`
	ProbBefore float64 `json:"prob_before"`
	ProbAfter  float64 `json:"prob_after"`
}

// MaxFeeBps caps configurable trading fees at 10%.
const MaxFeeBps = 1000

// Fee returns the fee owed on amount at feeBps basis points.
func Fee(amount float64, feeBps int) float64 {
	if feeBps <= 0 || amount <= 0 {
		return 0
	}
	return amount * float64(feeBps) / 10000
}

// NewPool seeds a pool for ante A at initial probability p0. The multiplier
// controls depth: larger values mean less price impact per unit traded.
func NewPool(ante, initialProb, multiplier float64) Pool {
	return Pool{
		Yes: ante * multiplier * (1 - initialProb),
		No:  ante * multiplier * initialProb,
	}
}

// Prob returns the YES probability implied by the reserves under weight p:
// (p*no) / ((1-p)*yes + p*no).
func (p Pool) Prob(weight float64) float64 {
	denom := (1-weight)*p.Yes + weight*p.No
	if denom <= 0 {
		return 0
	}
	return weight * p.No / denom
}

// K returns the constant product of the reserves.
func (p Pool) K() float64 {
	return p.Yes * p.No
}

// AddLiquidity scales both reserves by the same factor, deepening the pool
// without moving the implied probability. This deliberately changes k.
func (p Pool) AddLiquidity(amount, multiplier float64) Pool {
	if amount <= 0 {
		return p
	}
	total := p.Yes + p.No
	if total <= 0 {
		return p
	}
	scale := 1 + amount*multiplier/total
	return Pool{Yes: p.Yes * scale, No: p.No * scale}
}

// Buy trades amount of cash for outcome shares against the curve. The
// market fee is taken off the top; the net amount is added to the NO
// reserve for YES buys, yes' = k/no' recomputed, and the YES reserve
// reduction paid out as shares (symmetric for NO).
func (p Pool) Buy(outcome Outcome, amount float64, params CurveParams) (Pool, TradeResult, error) {
	res := TradeResult{ProbBefore: p.Prob(params.Weight), ProbAfter: p.Prob(params.Weight)}
	if !outcome.Valid() {
		return p, res, Validationf("invalid outcome %q", outcome)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return p, res, Validationf("buy amount must be positive")
	}

	fee := Fee(amount, params.FeeBps)
	net := amount - fee

	k := p.K()
	next := p
	var shares float64
	if outcome == OutcomeYes {
		next.No += net
		next.Yes = k / next.No
		shares = p.Yes - next.Yes
	} else {
		next.Yes += net
		next.No = k / next.Yes
		shares = p.No - next.No
	}

	if err := next.checkFloor(params.Floor); err != nil {
		return p, res, err
	}

	res.Shares = shares
	res.Fee = fee
	res.ProbAfter = next.Prob(params.Weight)
	return next, res, nil
}

// Sell returns outcome shares to the pool and pays out the opposite
// reserve's reduction. The payout is clamped at zero to guard against
// floating point round-off. The engine does not know user holdings;
// the caller rejects oversells.
func (p Pool) Sell(outcome Outcome, shares float64, params CurveParams) (Pool, TradeResult, error) {
	res := TradeResult{ProbBefore: p.Prob(params.Weight), ProbAfter: p.Prob(params.Weight)}
	if !outcome.Valid() {
		return p, res, Validationf("invalid outcome %q", outcome)
	}
	if shares <= 0 || math.IsNaN(shares) || math.IsInf(shares, 0) {
		return p, res, Validationf("sell shares must be positive")
	}

	k := p.K()
	next := p
	var payout float64
	if outcome == OutcomeYes {
		next.Yes += shares
		next.No = k / next.Yes
		payout = p.No - next.No
	} else {
		next.No += shares
		next.Yes = k / next.No
		payout = p.Yes - next.Yes
	}
	if payout < 0 {
		payout = 0
	}

	if err := next.checkFloor(params.Floor); err != nil {
		return p, res, err
	}

	fee := Fee(payout, params.FeeBps)
	res.Payout = payout - fee
	res.Fee = fee
	res.ProbAfter = next.Prob(params.Weight)
	return next, res, nil
}

// CostForShares returns the cash required to obtain n shares of outcome,
// derived algebraically from the invariant. Requests at or beyond the pool
// side are unobtainable at any price.
func (p Pool) CostForShares(outcome Outcome, n float64) (float64, error) {
	if !outcome.Valid() {
		return 0, Validationf("invalid outcome %q", outcome)
	}
	if n <= 0 {
		return 0, Validationf("share count must be positive")
	}
	k := p.K()
	if outcome == OutcomeYes {
		if n >= p.Yes {
			return math.Inf(1), Liquidityf("requested %.4f YES shares but pool holds %.4f", n, p.Yes)
		}
		// yes' = yes - n; no' = k/yes'; cost = no' - no
		return k/(p.Yes-n) - p.No, nil
	}
	if n >= p.No {
		return math.Inf(1), Liquidityf("requested %.4f NO shares but pool holds %.4f", n, p.No)
	}
	return k/(p.No-n) - p.Yes, nil
}

// SharesForAmount returns the shares a buy of the given amount would yield.
// Inverse of CostForShares; zero for non-positive amounts.
func (p Pool) SharesForAmount(outcome Outcome, amount float64) float64 {
	if amount <= 0 || !outcome.Valid() {
		return 0
	}
	k := p.K()
	if outcome == OutcomeYes {
		return p.Yes - k/(p.No+amount)
	}
	return p.No - k/(p.Yes+amount)
}

func (p Pool) checkFloor(floor float64) error {
	if math.Min(p.Yes, p.No) < floor {
		return Liquidityf("trade would drain pool below liquidity floor (yes=%.4f no=%.4f floor=%.4f)", p.Yes, p.No, floor)
	}
	return nil
}

// ResolutionPayout values one position leg under a final resolution.
// YES/NO resolutions pay 1.0 per matching share; MKT pays shares*prob to
// YES holders and shares*(1-prob) to NO holders. CANCEL is principal
// restitution and is handled by the settlement layer, not the curve.
func ResolutionPayout(res Resolution, prob, yesShares, noShares float64) float64 {
	switch res {
	case ResolutionYes:
		return yesShares
	case ResolutionNo:
		return noShares
	case ResolutionMkt:
		return yesShares*prob + noShares*(1-prob)
	case ResolutionCancel:
		return 0
	}
	return 0
}
