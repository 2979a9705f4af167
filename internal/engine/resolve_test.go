package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeManualResolve(t *testing.T) {
	m := newBinaryMarket(0)
	require.NoError(t, AuthorizeManualResolve(m, "alice"))
	require.Equal(t, KindUnauthorized, KindOf(AuthorizeManualResolve(m, "mallory")))
}

func TestSettleBinaryYes(t *testing.T) {
	m := newBinaryMarket(0)
	positions := []*Position{
		{UserID: "bob", MarketID: m.ID, YesShares: 10, NoShares: 2, CostBasis: 7},
		{UserID: "carol", MarketID: m.ID, NoShares: 5, CostBasis: 3},
	}
	now := time.Now()

	payouts, err := Settle(m, positions, nil, ResolutionOutcome{
		Resolution: ResolutionYes,
		ResolverID: "alice",
	}, now)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	require.Equal(t, "bob", payouts[0].UserID)
	require.InDelta(t, 10, payouts[0].Amount, 1e-9)

	require.Equal(t, PhaseResolved, m.Phase)
	require.NotNil(t, m.Resolution)
	require.Equal(t, now, m.Resolution.ResolvedAt)
	for _, pos := range positions {
		require.True(t, pos.Empty())
		require.Zero(t, pos.CostBasis)
	}
}

func TestSettleBinaryMkt(t *testing.T) {
	m := newBinaryMarket(0)
	positions := []*Position{
		{UserID: "bob", MarketID: m.ID, YesShares: 10, NoShares: 4},
	}

	payouts, err := Settle(m, positions, nil, ResolutionOutcome{
		Resolution:  ResolutionMkt,
		Probability: 0.25,
		ResolverID:  "alice",
	}, time.Now())
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	require.InDelta(t, 10*0.25+4*0.75, payouts[0].Amount, 1e-9)
}

func TestSettleCancelRefundsPrincipal(t *testing.T) {
	m := newBinaryMarket(0)
	positions := []*Position{
		{UserID: "bob", MarketID: m.ID, YesShares: 10, CostBasis: 42.5},
		{UserID: "carol", MarketID: m.ID, NoShares: 3, CostBasis: 0},
	}

	payouts, err := Settle(m, positions, nil, ResolutionOutcome{
		Resolution: ResolutionCancel,
		ResolverID: "alice",
	}, time.Now())
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	require.InDelta(t, 42.5, payouts[0].Amount, 1e-9)
	require.Zero(t, payouts[0].Shares)
}

func TestSettleMultiWinner(t *testing.T) {
	m := newMultiMarket(t, 3, true)
	positions := []*Position{
		{UserID: "bob", MarketID: m.ID, AnswerID: "a0", YesShares: 10},
		{UserID: "bob", MarketID: m.ID, AnswerID: "a1", NoShares: 6},
		{UserID: "carol", MarketID: m.ID, AnswerID: "a1", YesShares: 9},
	}

	payouts, err := Settle(m, positions, nil, ResolutionOutcome{
		Resolution: ResolutionYes,
		AnswerID:   "a0",
		ResolverID: "alice",
	}, time.Now())
	require.NoError(t, err)

	// Winner YES and loser NO pay; loser YES does not.
	require.Len(t, payouts, 2)
	byUser := map[string]float64{}
	for _, p := range payouts {
		byUser[p.UserID] += p.Amount
	}
	require.InDelta(t, 16, byUser["bob"], 1e-9)
	require.Zero(t, byUser["carol"])
}

func TestSettleValidation(t *testing.T) {
	now := time.Now()

	t.Run("binary rejects answer id", func(t *testing.T) {
		m := newBinaryMarket(0)
		_, err := Settle(m, nil, nil, ResolutionOutcome{Resolution: ResolutionYes, AnswerID: "a0"}, now)
		require.Equal(t, KindValidation, KindOf(err))
	})
	t.Run("mkt probability bounds", func(t *testing.T) {
		m := newBinaryMarket(0)
		_, err := Settle(m, nil, nil, ResolutionOutcome{Resolution: ResolutionMkt, Probability: 1.5}, now)
		require.Equal(t, KindValidation, KindOf(err))
	})
	t.Run("multi requires winning answer", func(t *testing.T) {
		m := newMultiMarket(t, 3, true)
		_, err := Settle(m, nil, nil, ResolutionOutcome{Resolution: ResolutionYes, AnswerID: "nope"}, now)
		require.Equal(t, KindValidation, KindOf(err))
	})
	t.Run("multi rejects plain no", func(t *testing.T) {
		m := newMultiMarket(t, 3, true)
		_, err := Settle(m, nil, nil, ResolutionOutcome{Resolution: ResolutionNo}, now)
		require.Equal(t, KindValidation, KindOf(err))
	})
	t.Run("unknown resolution", func(t *testing.T) {
		m := newBinaryMarket(0)
		_, err := Settle(m, nil, nil, ResolutionOutcome{Resolution: "SHRUG"}, now)
		require.Equal(t, KindValidation, KindOf(err))
	})
}

func TestSettleIsTerminal(t *testing.T) {
	m := newBinaryMarket(0)
	_, err := Settle(m, nil, nil, ResolutionOutcome{Resolution: ResolutionYes, ResolverID: "alice"}, time.Now())
	require.NoError(t, err)

	_, err = Settle(m, nil, nil, ResolutionOutcome{Resolution: ResolutionNo, ResolverID: "alice"}, time.Now())
	require.Equal(t, KindConflict, KindOf(err))
}

func TestSettleCancelsOpenOrders(t *testing.T) {
	m := newBinaryMarket(0)
	book := NewOrderBook(m.ID)
	_, err := book.Place(testOrder("o1", "bob", SideBuy, 0.4, 10), bookNow)
	require.NoError(t, err)

	_, err = Settle(m, nil, book, ResolutionOutcome{Resolution: ResolutionYes, ResolverID: "alice"}, bookNow)
	require.NoError(t, err)
	require.Empty(t, book.ListOpen("", bookNow))
}
