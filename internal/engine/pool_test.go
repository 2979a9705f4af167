package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

var testParams = CurveParams{Weight: 0.5, Floor: 1}

func TestNewPoolImpliedProbability(t *testing.T) {
	p := NewPool(100, 0.3, 10)
	require.InDelta(t, 0.3, p.Prob(0.5), 1e-9)
	require.InDelta(t, 700, p.Yes, 1e-9)
	require.InDelta(t, 300, p.No, 1e-9)
}

func TestWeightedProbability(t *testing.T) {
	// Equal reserves imply a probability equal to the weight.
	p := Pool{Yes: 500, No: 500}
	require.InDelta(t, 0.5, p.Prob(0.5), 1e-9)
	require.InDelta(t, 0.3, p.Prob(0.3), 1e-9)
	require.InDelta(t, 0.7, p.Prob(0.7), 1e-9)
}

func TestBuyPreservesInvariant(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	k := p.K()

	next, res, err := p.Buy(OutcomeYes, 50, testParams)
	require.NoError(t, err)
	require.InDelta(t, k, next.K(), 1e-6)
	require.Greater(t, res.Shares, 0.0)
	require.Greater(t, res.ProbAfter, res.ProbBefore)

	// Original pool untouched.
	require.Equal(t, NewPool(100, 0.5, 10), p)
}

func TestBuyNoLowersProbability(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	next, res, err := p.Buy(OutcomeNo, 50, testParams)
	require.NoError(t, err)
	require.Less(t, res.ProbAfter, res.ProbBefore)
	require.InDelta(t, p.K(), next.K(), 1e-6)
}

func TestBuySellRoundTrip(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	bought, res, err := p.Buy(OutcomeYes, 80, testParams)
	require.NoError(t, err)

	after, sellRes, err := bought.Sell(OutcomeYes, res.Shares, testParams)
	require.NoError(t, err)
	require.InDelta(t, 80, sellRes.Payout, 1e-6)
	require.InDelta(t, p.Yes, after.Yes, 1e-6)
	require.InDelta(t, p.No, after.No, 1e-6)
}

func TestBuyRejectsBadInput(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, _, err := p.Buy(OutcomeYes, amount, testParams)
		require.Error(t, err)
		require.Equal(t, KindValidation, KindOf(err))
	}
	_, _, err := p.Buy(Outcome("MAYBE"), 10, testParams)
	require.Equal(t, KindValidation, KindOf(err))
}

func TestBuyRespectsFloor(t *testing.T) {
	p := NewPool(1, 0.5, 1)
	_, _, err := p.Buy(OutcomeYes, 1000, testParams)
	require.Error(t, err)
	require.Equal(t, KindLiquidity, KindOf(err))
}

func TestSellPayoutClampedAtZero(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	_, res, err := p.Sell(OutcomeYes, 1e-12, testParams)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Payout, 0.0)
}

func TestBuyFeeReducesCashIn(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	feeParams := CurveParams{Weight: 0.5, Floor: 1, FeeBps: 200}

	next, res, err := p.Buy(OutcomeYes, 100, feeParams)
	require.NoError(t, err)
	require.InDelta(t, 2, res.Fee, 1e-9)

	// A 2% fee on 100 buys exactly what 98 buys fee free.
	netNext, netRes, err := p.Buy(OutcomeYes, 98, testParams)
	require.NoError(t, err)
	require.InDelta(t, netRes.Shares, res.Shares, 1e-9)
	require.InDelta(t, netNext.Yes, next.Yes, 1e-9)
	require.InDelta(t, netNext.No, next.No, 1e-9)
}

func TestSellFeeComesOutOfPayout(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	bought, res, err := p.Buy(OutcomeYes, 80, testParams)
	require.NoError(t, err)

	feeParams := CurveParams{Weight: 0.5, Floor: 1, FeeBps: 500}
	_, sellRes, err := bought.Sell(OutcomeYes, res.Shares, feeParams)
	require.NoError(t, err)
	require.InDelta(t, 4, sellRes.Fee, 1e-6)
	require.InDelta(t, 76, sellRes.Payout, 1e-6)
}

func TestCostForSharesInvertsSharesForAmount(t *testing.T) {
	p := NewPool(100, 0.4, 10)

	cost, err := p.CostForShares(OutcomeYes, 25)
	require.NoError(t, err)
	require.InDelta(t, 25, p.SharesForAmount(OutcomeYes, cost), 1e-9)

	cost, err = p.CostForShares(OutcomeNo, 40)
	require.NoError(t, err)
	require.InDelta(t, 40, p.SharesForAmount(OutcomeNo, cost), 1e-9)
}

func TestCostForSharesUnobtainable(t *testing.T) {
	p := NewPool(100, 0.5, 10)
	cost, err := p.CostForShares(OutcomeYes, p.Yes)
	require.Error(t, err)
	require.Equal(t, KindLiquidity, KindOf(err))
	require.True(t, math.IsInf(cost, 1))
}

func TestAddLiquidityKeepsProbability(t *testing.T) {
	p := NewPool(100, 0.35, 10)
	deeper := p.AddLiquidity(50, 10)
	require.InDelta(t, p.Prob(0.5), deeper.Prob(0.5), 1e-9)
	require.Greater(t, deeper.K(), p.K())

	// A buy of the same size now moves the price less.
	_, shallow, err := p.Buy(OutcomeYes, 30, testParams)
	require.NoError(t, err)
	_, deep, err := deeper.Buy(OutcomeYes, 30, testParams)
	require.NoError(t, err)
	require.Less(t, deep.ProbAfter-deep.ProbBefore, shallow.ProbAfter-shallow.ProbBefore)
}

func TestResolutionPayout(t *testing.T) {
	cases := []struct {
		name   string
		res    Resolution
		prob   float64
		yes    float64
		no     float64
		expect float64
	}{
		{"yes pays yes shares", ResolutionYes, 0, 10, 4, 10},
		{"no pays no shares", ResolutionNo, 0, 10, 4, 4},
		{"mkt blends", ResolutionMkt, 0.25, 10, 4, 10*0.25 + 4*0.75},
		{"cancel handled elsewhere", ResolutionCancel, 0, 10, 4, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expect, ResolutionPayout(tc.res, tc.prob, tc.yes, tc.no), 1e-9)
		})
	}
}
