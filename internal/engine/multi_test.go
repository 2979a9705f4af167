package engine

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newMultiMarket(t *testing.T, count int, sumToOne bool) *Market {
	t.Helper()
	ids := make([]string, count)
	labels := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = fmt.Sprintf("a%d", i)
		labels[i] = fmt.Sprintf("Answer %d", i)
	}
	m := &Market{
		ID:        "m1",
		CreatorID: "alice",
		Kind:      KindMulti,
		Weight:    0.5,
		SumToOne:  sumToOne,
		Phase:     PhaseMain,
		Answers:   NewAnswers(ids, labels, 400, 10),
	}
	if sumToOne {
		require.NoError(t, Rebalance(m))
	}
	return m
}

func TestNewAnswersSeeding(t *testing.T) {
	m := newMultiMarket(t, 4, false)
	require.Len(t, m.Answers, 4)
	for i, a := range m.Answers {
		require.Equal(t, i, a.Index)
		require.InDelta(t, 0.5, a.Pool.Prob(m.Weight), 1e-9)
	}
}

func TestRebalanceNormalizesSum(t *testing.T) {
	m := newMultiMarket(t, 5, true)
	require.InDelta(t, 1.0, ProbSum(m), 1e-6)
	for _, a := range m.Answers {
		require.InDelta(t, 0.2, a.Pool.Prob(m.Weight), 1e-6)
	}
	require.False(t, OutOfSync(m))
}

func TestBuyAnswerMovesPrimaryAndSyncsSiblings(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	before := m.Answers[0].Pool.Prob(m.Weight)

	res, err := BuyAnswer(m, "a0", OutcomeYes, 50, testParams)
	require.NoError(t, err)
	require.Greater(t, res.ProbAfter, before)
	require.InDelta(t, 1.0, ProbSum(m), SumTolerance)
	require.InDelta(t, 50, m.Volume, 1e-9)
	require.InDelta(t, 50, m.Answers[0].Volume, 1e-9)
}

func TestDependentMarketStaysNormalizedUnderRandomTrades(t *testing.T) {
	m := newMultiMarket(t, 4, true)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		answerID := fmt.Sprintf("a%d", rng.Intn(4))
		outcome := OutcomeYes
		if rng.Intn(2) == 0 {
			outcome = OutcomeNo
		}
		amount := 1 + rng.Float64()*20
		if _, err := BuyAnswer(m, answerID, outcome, amount, testParams); err != nil {
			// Floor rejections leave state untouched; fine under fuzz.
			require.Equal(t, KindLiquidity, KindOf(err))
			continue
		}
		require.False(t, OutOfSync(m), "sum drifted to %f after %d trades", ProbSum(m), i+1)
	}
}

func TestSyncPreservesSiblingReserveTotals(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	totalBefore := m.Answers[1].Pool.Yes + m.Answers[1].Pool.No

	_, err := BuyAnswer(m, "a0", OutcomeYes, 40, testParams)
	require.NoError(t, err)

	totalAfter := m.Answers[1].Pool.Yes + m.Answers[1].Pool.No
	require.InDelta(t, totalBefore, totalAfter, 1e-6)
}

func TestSellAnswerLowersProbability(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	buyRes, err := BuyAnswer(m, "a1", OutcomeYes, 60, testParams)
	require.NoError(t, err)

	sellRes, err := SellAnswer(m, "a1", buyRes.Shares, OutcomeYes, testParams)
	require.NoError(t, err)
	require.Less(t, sellRes.ProbAfter, sellRes.ProbBefore)
	require.InDelta(t, 1.0, ProbSum(m), SumTolerance)
}

func TestIndependentMarketAnswersDoNotInteract(t *testing.T) {
	m := newMultiMarket(t, 3, false)
	otherBefore := m.Answers[2].Pool.Prob(m.Weight)

	_, err := BuyAnswer(m, "a0", OutcomeYes, 80, testParams)
	require.NoError(t, err)
	require.InDelta(t, otherBefore, m.Answers[2].Pool.Prob(m.Weight), 1e-12)
}

func TestBuyAnswerUnknownAnswer(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	_, err := BuyAnswer(m, "nope", OutcomeYes, 10, testParams)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestRebalanceRejectsIndependentMarkets(t *testing.T) {
	m := newMultiMarket(t, 3, false)
	err := Rebalance(m)
	require.Equal(t, KindConflict, KindOf(err))
}

func positionsForAll(m *Market, noShares float64) map[string]*Position {
	byAnswer := make(map[string]*Position, len(m.Answers))
	for _, a := range m.Answers {
		byAnswer[a.ID] = &Position{
			UserID:   "bob",
			MarketID: m.ID,
			AnswerID: a.ID,
			NoShares: noShares,
		}
	}
	return byAnswer
}

func TestConvertPositions(t *testing.T) {
	m := newMultiMarket(t, 4, true)
	byAnswer := positionsForAll(m, 100)

	// Select answers 0 and 1 (index set 0b0011).
	result, err := ConvertPositions(m, byAnswer, 0b0011, 30)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a0", "a1"}, result.BurnedAnswerIDs)
	require.ElementsMatch(t, []string{"a2", "a3"}, result.MintedAnswerIDs)
	// Rebate is (answers - 1 - selected) * amount.
	require.InDelta(t, float64(4-1-2)*30, result.Rebate, 1e-9)

	require.InDelta(t, 70, byAnswer["a0"].NoShares, 1e-9)
	require.InDelta(t, 70, byAnswer["a1"].NoShares, 1e-9)
	require.InDelta(t, 30, byAnswer["a2"].YesShares, 1e-9)
	require.InDelta(t, 30, byAnswer["a3"].YesShares, 1e-9)
}

func TestConvertAllButOneIsPureYes(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	byAnswer := positionsForAll(m, 50)

	result, err := ConvertPositions(m, byAnswer, 0b011, 50)
	require.NoError(t, err)
	require.Zero(t, result.Rebate)
	require.Equal(t, []string{"a2"}, result.MintedAnswerIDs)
	require.InDelta(t, 50, byAnswer["a2"].YesShares, 1e-9)
}

func TestConvertRebateReducesCostBasis(t *testing.T) {
	m := newMultiMarket(t, 4, true)
	byAnswer := positionsForAll(m, 100)
	byAnswer["a0"].CostBasis = 20
	byAnswer["a1"].CostBasis = 50

	result, err := ConvertPositions(m, byAnswer, 0b0011, 30)
	require.NoError(t, err)
	require.InDelta(t, 30, result.Rebate, 1e-9)

	// 30 of cash out burns all of a0's 20, then 10 off a1.
	require.Zero(t, byAnswer["a0"].CostBasis)
	require.InDelta(t, 40, byAnswer["a1"].CostBasis, 1e-9)
}

func TestConvertChargesFeeOnRebate(t *testing.T) {
	m := newMultiMarket(t, 4, true)
	m.FeeBps = 100
	byAnswer := positionsForAll(m, 100)

	result, err := ConvertPositions(m, byAnswer, 0b0011, 30)
	require.NoError(t, err)
	require.InDelta(t, 0.3, result.Fee, 1e-9)
	require.InDelta(t, 29.7, result.Rebate, 1e-9)
	require.InDelta(t, 0.3, m.CollectedFees, 1e-9)
}

func TestSetFees(t *testing.T) {
	m := newMultiMarket(t, 3, true)

	require.NoError(t, SetFees(m, "alice", 250))
	require.Equal(t, 250, m.FeeBps)

	err := SetFees(m, "bob", 100)
	require.Equal(t, KindUnauthorized, KindOf(err))

	err = SetFees(m, "alice", MaxFeeBps+1)
	require.Equal(t, KindValidation, KindOf(err))

	m.Phase = PhaseResolved
	err = SetFees(m, "alice", 100)
	require.Equal(t, KindConflict, KindOf(err))
}

func TestConvertRejections(t *testing.T) {
	m := newMultiMarket(t, 3, true)

	cases := []struct {
		name     string
		indexSet uint64
		amount   float64
		no       float64
		kind     ErrorKind
	}{
		{"empty set", 0, 10, 100, KindValidation},
		{"set beyond answers", 0b1000, 10, 100, KindValidation},
		{"full set", 0b111, 10, 100, KindValidation},
		{"zero amount", 0b001, 0, 100, KindValidation},
		{"insufficient no shares", 0b001, 200, 100, KindLiquidity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			byAnswer := positionsForAll(m, tc.no)
			_, err := ConvertPositions(m, byAnswer, tc.indexSet, tc.amount)
			require.Error(t, err)
			require.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestConvertRequiresOneWinnerMarket(t *testing.T) {
	m := newMultiMarket(t, 3, false)
	_, err := ConvertPositions(m, positionsForAll(m, 100), 0b001, 10)
	require.Equal(t, KindConflict, KindOf(err))
}

func TestConvertLeavesStateOnRejection(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	byAnswer := positionsForAll(m, 100)
	// a1 short of shares; nothing should change anywhere.
	byAnswer["a1"].NoShares = 5

	_, err := ConvertPositions(m, byAnswer, 0b011, 50)
	require.Equal(t, KindLiquidity, KindOf(err))
	require.InDelta(t, 100, byAnswer["a0"].NoShares, 1e-9)
	require.InDelta(t, 5, byAnswer["a1"].NoShares, 1e-9)
	require.Zero(t, byAnswer["a2"].YesShares)
}

func TestSplitAndMerge(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	pos := &Position{UserID: "bob", MarketID: m.ID, AnswerID: "a0"}

	cost, err := SplitPosition(m, "a0", pos, 25)
	require.NoError(t, err)
	require.InDelta(t, 25, cost, 1e-9)
	require.InDelta(t, 25, pos.YesShares, 1e-9)
	require.InDelta(t, 25, pos.NoShares, 1e-9)
	require.InDelta(t, 25, pos.CostBasis, 1e-9)

	payout, err := MergePosition(m, "a0", pos, 25)
	require.NoError(t, err)
	require.InDelta(t, 25, payout, 1e-9)
	require.True(t, pos.Empty())
	require.Zero(t, pos.CostBasis)
}

func TestMergeRequiresMatchedShares(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	pos := &Position{UserID: "bob", MarketID: m.ID, AnswerID: "a0", YesShares: 10, NoShares: 3}
	_, err := MergePosition(m, "a0", pos, 5)
	require.Equal(t, KindLiquidity, KindOf(err))
}

func TestMergeCostBasisFloorsAtZero(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	pos := &Position{UserID: "bob", MarketID: m.ID, AnswerID: "a0", YesShares: 50, NoShares: 50, CostBasis: 10}
	_, err := MergePosition(m, "a0", pos, 40)
	require.NoError(t, err)
	require.Zero(t, pos.CostBasis)
	require.True(t, math.Abs(pos.YesShares-10) < 1e-9)
}
