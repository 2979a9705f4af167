/**
 * @description
 * Multi-outcome coordinator.
 * Manages the N independent per-answer pools of a multi-choice market,
 * keeps dependent (sum-to-one) markets normalized after every trade, and
 * implements the NegRisk convert/split/merge position operations.
 *
 * @notes
 * - Sibling redistribution rule: after the primary trade, every sibling's
 *   probability is rescaled proportionally to its current probability so the
 *   siblings sum to 1 minus the traded answer's new probability. Reserve
 *   totals per answer are preserved; only the yes/no split moves. Residual
 *   rounding error is folded into the last sibling. This rule is
 *   deterministic and keeps the probability sum within tolerance.
 */

package engine

import (
	"math"
	"math/bits"
)

// SumTolerance is the acceptable absolute drift of a dependent market's
// probability sum from 1 before it is flagged out of sync.
const SumTolerance = 0.01

// NewAnswers seeds count pools, each funded with ante/count at 50/50.
func NewAnswers(ids []string, labels []string, ante, multiplier float64) []*Answer {
	answers := make([]*Answer, len(ids))
	per := ante / float64(len(ids))
	for i := range ids {
		answers[i] = &Answer{
			ID:    ids[i],
			Index: i,
			Label: labels[i],
			Pool:  NewPool(per, 0.5, multiplier),
		}
	}
	return answers
}

// ProbSum returns the sum of YES probabilities across all answers.
func ProbSum(m *Market) float64 {
	var sum float64
	for _, a := range m.Answers {
		sum += a.Pool.Prob(m.Weight)
	}
	return sum
}

// OutOfSync reports whether a dependent market's probabilities have drifted
// past tolerance. Independent markets are never out of sync.
func OutOfSync(m *Market) bool {
	if !m.SumToOne || m.Kind != KindMulti {
		return false
	}
	return math.Abs(ProbSum(m)-1) > SumTolerance
}

// setProb rewrites a pool's yes/no split so it implies prob under weight,
// preserving the total reserves.
func setProb(p Pool, prob, weight float64) Pool {
	total := p.Yes + p.No
	if total <= 0 {
		return p
	}
	if prob < 1e-9 {
		prob = 1e-9
	}
	if prob > 1-1e-9 {
		prob = 1 - 1e-9
	}
	// Solve weight*no / ((1-weight)*yes + weight*no) = prob for no with
	// yes+no = total.
	no := prob * (1 - weight) * total / (weight*(1-prob) + prob*(1-weight))
	return Pool{Yes: total - no, No: no}
}

// syncSiblings rescales every answer except primary so the probabilities
// sum to one, distributing proportionally to current probability.
func syncSiblings(m *Market, primary *Answer) {
	target := 1 - primary.Pool.Prob(m.Weight)
	if target < 0 {
		target = 0
	}

	var siblings []*Answer
	var oldSum float64
	for _, a := range m.Answers {
		if a.ID == primary.ID {
			continue
		}
		siblings = append(siblings, a)
		oldSum += a.Pool.Prob(m.Weight)
	}
	if len(siblings) == 0 {
		return
	}

	var actual float64
	for _, a := range siblings {
		var newP float64
		if oldSum > 0 {
			newP = a.Pool.Prob(m.Weight) * target / oldSum
		} else {
			newP = target / float64(len(siblings))
		}
		a.Pool = setProb(a.Pool, newP, m.Weight)
		actual += a.Pool.Prob(m.Weight)
	}

	// Fold residual rounding error into the last sibling.
	residual := target - actual
	if residual != 0 {
		last := siblings[len(siblings)-1]
		a := last.Pool.Prob(m.Weight) + residual
		last.Pool = setProb(last.Pool, a, m.Weight)
	}
}

// BuyAnswer executes a buy on one answer of a multi-choice market. For
// dependent markets the siblings are re-normalized afterwards.
func BuyAnswer(m *Market, answerID string, outcome Outcome, amount float64, params CurveParams) (TradeResult, error) {
	if m.Kind != KindMulti {
		return TradeResult{}, Validationf("market %s is not multi-choice", m.ID)
	}
	answer := m.AnswerByID(answerID)
	if answer == nil {
		return TradeResult{}, NotFoundf("answer %s not found on market %s", answerID, m.ID)
	}

	next, res, err := answer.Pool.Buy(outcome, amount, params)
	if err != nil {
		return res, err
	}
	answer.Pool = next
	answer.Volume += amount
	m.Volume += amount
	m.CollectedFees += res.Fee

	if m.SumToOne {
		syncSiblings(m, answer)
	}
	return res, nil
}

// SellAnswer executes a sell on one answer, normalizing siblings for
// dependent markets.
func SellAnswer(m *Market, answerID string, shares float64, outcome Outcome, params CurveParams) (TradeResult, error) {
	if m.Kind != KindMulti {
		return TradeResult{}, Validationf("market %s is not multi-choice", m.ID)
	}
	answer := m.AnswerByID(answerID)
	if answer == nil {
		return TradeResult{}, NotFoundf("answer %s not found on market %s", answerID, m.ID)
	}

	next, res, err := answer.Pool.Sell(outcome, shares, params)
	if err != nil {
		return res, err
	}
	answer.Pool = next
	answer.Volume += res.Payout
	m.Volume += res.Payout
	m.CollectedFees += res.Fee

	if m.SumToOne {
		syncSiblings(m, answer)
	}
	return res, nil
}

// Rebalance rescales every answer so the probabilities sum to exactly one,
// preserving the current relative odds. No user's shares change.
func Rebalance(m *Market) error {
	if m.Kind != KindMulti {
		return Validationf("market %s is not multi-choice", m.ID)
	}
	if !m.SumToOne {
		return Conflictf("market %s does not constrain probabilities to sum to one", m.ID)
	}
	if m.Resolved() {
		return Conflictf("market %s is resolved", m.ID)
	}

	sum := ProbSum(m)
	if sum <= 0 {
		return Liquidityf("market %s has no probability mass to rebalance", m.ID)
	}
	for _, a := range m.Answers {
		a.Pool = setProb(a.Pool, a.Pool.Prob(m.Weight)/sum, m.Weight)
	}
	return nil
}

// ConvertResult reports the effect of a NegRisk position conversion.
type ConvertResult struct {
	BurnedAnswerIDs []string `json:"burned_answer_ids"`
	MintedAnswerIDs []string `json:"minted_answer_ids"`
	Amount          float64  `json:"amount"`
	// Rebate is the cash paid out, net of the market fee.
	Rebate float64 `json:"rebate"`
	Fee    float64 `json:"fee,omitempty"`
}

// ConvertPositions burns amount NO shares on every answer selected by
// indexSet and mints amount YES shares on each complement answer, plus a
// cash rebate of (answerCount-1-|S|) * amount. Selecting all-but-one
// answers is the degenerate case: pure YES on the remainder, zero rebate.
//
// byAnswer must contain a position entry for every answer of the market;
// the coordinator mutates them in place.
func ConvertPositions(m *Market, byAnswer map[string]*Position, indexSet uint64, amount float64) (*ConvertResult, error) {
	if m.Kind != KindMulti {
		return nil, Validationf("market %s is not multi-choice", m.ID)
	}
	if !m.SumToOne {
		return nil, Conflictf("position conversion is only available on one-winner markets")
	}
	if m.Resolved() {
		return nil, Conflictf("market %s is resolved", m.ID)
	}
	count := len(m.Answers)
	if indexSet == 0 || indexSet>>uint(count) != 0 {
		return nil, Validationf("invalid index set %#x for %d answers", indexSet, count)
	}
	if amount <= 0 {
		return nil, Validationf("convert amount must be positive")
	}
	selected := bits.OnesCount64(indexSet)
	if selected >= count {
		return nil, Validationf("index set must leave at least one complement answer")
	}

	for _, a := range m.Answers {
		pos, ok := byAnswer[a.ID]
		if !ok {
			return nil, Validationf("missing position entry for answer %s", a.ID)
		}
		if indexSet&(1<<uint(a.Index)) != 0 && pos.NoShares < amount {
			return nil, Liquidityf("insufficient NO shares on answer %s: have %.4f, need %.4f", a.ID, pos.NoShares, amount)
		}
	}

	result := &ConvertResult{Amount: amount}
	for _, a := range m.Answers {
		pos := byAnswer[a.ID]
		if indexSet&(1<<uint(a.Index)) != 0 {
			pos.NoShares -= amount
			result.BurnedAnswerIDs = append(result.BurnedAnswerIDs, a.ID)
		} else {
			pos.YesShares += amount
			result.MintedAnswerIDs = append(result.MintedAnswerIDs, a.ID)
		}
	}

	gross := float64(count-1-selected) * amount
	result.Fee = Fee(gross, m.FeeBps)
	result.Rebate = gross - result.Fee
	m.CollectedFees += result.Fee

	// Cash out reduces principal. Burn the net rebate against the burned
	// legs' cost basis in answer order, never below zero.
	remaining := result.Rebate
	for _, a := range m.Answers {
		if remaining <= 0 {
			break
		}
		if indexSet&(1<<uint(a.Index)) == 0 {
			continue
		}
		pos := byAnswer[a.ID]
		deduct := math.Min(remaining, pos.CostBasis)
		pos.CostBasis -= deduct
		remaining -= deduct
	}
	return result, nil
}

// SplitPosition mints equal YES and NO holdings on one answer in exchange
// for cash. Returns the cash cost (equal to amount).
func SplitPosition(m *Market, answerID string, pos *Position, amount float64) (float64, error) {
	if m.Resolved() {
		return 0, Conflictf("market %s is resolved", m.ID)
	}
	if amount <= 0 {
		return 0, Validationf("split amount must be positive")
	}
	if m.AnswerByID(answerID) == nil {
		return 0, NotFoundf("answer %s not found on market %s", answerID, m.ID)
	}
	pos.YesShares += amount
	pos.NoShares += amount
	pos.CostBasis += amount
	return amount, nil
}

// MergePosition burns equal YES and NO holdings on one answer for cash at
// par. Inverse of SplitPosition.
func MergePosition(m *Market, answerID string, pos *Position, amount float64) (float64, error) {
	if m.Resolved() {
		return 0, Conflictf("market %s is resolved", m.ID)
	}
	if amount <= 0 {
		return 0, Validationf("merge amount must be positive")
	}
	if m.AnswerByID(answerID) == nil {
		return 0, NotFoundf("answer %s not found on market %s", answerID, m.ID)
	}
	if pos.YesShares < amount || pos.NoShares < amount {
		return 0, Liquidityf("merge requires %.4f YES and NO shares; have yes=%.4f no=%.4f", amount, pos.YesShares, pos.NoShares)
	}
	pos.YesShares -= amount
	pos.NoShares -= amount
	pos.CostBasis = math.Max(0, pos.CostBasis-amount)
	return amount, nil
}
