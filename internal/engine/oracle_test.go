package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var oracleParams = OracleParams{Window: 24 * time.Hour, Bond: 100}

type stubEvaluator struct {
	out ResolutionOutcome
	err error
}

func (s stubEvaluator) Evaluate(m *Market, now time.Time) (ResolutionOutcome, string, error) {
	return s.out, "stubbed", s.err
}

func newOracleMarket(deadline time.Time) *Market {
	m := newBinaryMarket(0)
	m.Oracle = &OracleConfig{Source: "closing price", Deadline: deadline}
	return m
}

func TestProposeGating(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	eval := stubEvaluator{out: ResolutionOutcome{Resolution: ResolutionYes}}

	t.Run("before deadline", func(t *testing.T) {
		m := newOracleMarket(deadline)
		_, err := Propose(m, eval, deadline.Add(-time.Hour), oracleParams)
		require.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("no oracle configured", func(t *testing.T) {
		m := newBinaryMarket(0)
		_, err := Propose(m, eval, deadline, oracleParams)
		require.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("at deadline", func(t *testing.T) {
		m := newOracleMarket(deadline)
		p, err := Propose(m, eval, deadline, oracleParams)
		require.NoError(t, err)
		require.Equal(t, ResolutionYes, p.Resolution)
		require.Equal(t, deadline.Add(24*time.Hour), p.WindowEndsAt)
		require.Equal(t, OracleProvisional, Status(m))
	})
	t.Run("double propose", func(t *testing.T) {
		m := newOracleMarket(deadline)
		_, err := Propose(m, eval, deadline, oracleParams)
		require.NoError(t, err)
		_, err = Propose(m, eval, deadline.Add(time.Hour), oracleParams)
		require.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("invalid source output", func(t *testing.T) {
		m := newOracleMarket(deadline)
		_, err := Propose(m, stubEvaluator{out: ResolutionOutcome{Resolution: "SHRUG"}}, deadline, oracleParams)
		require.Equal(t, KindValidation, KindOf(err))
	})
}

func TestChallengeWindow(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	eval := stubEvaluator{out: ResolutionOutcome{Resolution: ResolutionYes}}

	m := newOracleMarket(deadline)
	_, err := Propose(m, eval, deadline, oracleParams)
	require.NoError(t, err)

	t.Run("no challenger id", func(t *testing.T) {
		_, err := ChallengeProposal(m, "", "wrong", deadline.Add(time.Hour))
		require.Equal(t, KindValidation, KindOf(err))
	})
	t.Run("inside window", func(t *testing.T) {
		ch, err := ChallengeProposal(m, "carol", "source misread", deadline.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, "carol", ch.ChallengerID)
		require.Equal(t, OracleChallenged, Status(m))
	})
	t.Run("double challenge", func(t *testing.T) {
		_, err := ChallengeProposal(m, "dave", "me too", deadline.Add(2*time.Hour))
		require.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("after window", func(t *testing.T) {
		late := newOracleMarket(deadline)
		_, err := Propose(late, eval, deadline, oracleParams)
		require.NoError(t, err)
		_, err = ChallengeProposal(late, "carol", "too late", deadline.Add(25*time.Hour))
		require.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("no proposal", func(t *testing.T) {
		fresh := newOracleMarket(deadline)
		_, err := ChallengeProposal(fresh, "carol", "nothing there", deadline)
		require.Equal(t, KindConflict, KindOf(err))
	})
}

func TestFinalizeUnchallenged(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	eval := stubEvaluator{out: ResolutionOutcome{Resolution: ResolutionYes}}

	m := newOracleMarket(deadline)
	positions := []*Position{{UserID: "bob", MarketID: m.ID, YesShares: 12}}
	_, err := Propose(m, eval, deadline, oracleParams)
	require.NoError(t, err)

	_, err = Finalize(m, positions, nil, deadline.Add(time.Hour))
	require.Equal(t, KindConflict, KindOf(err), "window still open")

	result, err := Finalize(m, positions, nil, deadline.Add(24*time.Hour))
	require.NoError(t, err)
	require.False(t, result.ChallengerWon)
	require.Nil(t, result.Bond)
	require.Equal(t, "oracle", result.Resolution.ResolverID)
	require.Len(t, result.Payouts, 1)
	require.InDelta(t, 12, result.Payouts[0].Amount, 1e-9)
	require.Equal(t, OracleFinalized, Status(m))

	_, err = Finalize(m, positions, nil, deadline.Add(48*time.Hour))
	require.Equal(t, KindConflict, KindOf(err))
}

func TestFinalizeChallengedBondAward(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	eval := stubEvaluator{out: ResolutionOutcome{Resolution: ResolutionYes}}

	t.Run("challenger vindicated", func(t *testing.T) {
		m := newOracleMarket(deadline)
		_, err := Propose(m, eval, deadline, oracleParams)
		require.NoError(t, err)
		_, err = ChallengeProposal(m, "carol", "wrong call", deadline.Add(time.Hour))
		require.NoError(t, err)

		result, err := FinalizeChallenged(m, nil, nil,
			ResolutionOutcome{Resolution: ResolutionNo}, "arbiter", deadline.Add(2*time.Hour), oracleParams)
		require.NoError(t, err)
		require.True(t, result.ChallengerWon)
		require.NotNil(t, result.Bond)
		require.Equal(t, "carol", result.Bond.Recipient)
		require.InDelta(t, 100, result.Bond.Amount, 1e-9)
		require.Equal(t, "arbiter", result.Resolution.ResolverID)
	})

	t.Run("proposal upheld", func(t *testing.T) {
		m := newOracleMarket(deadline)
		_, err := Propose(m, eval, deadline, oracleParams)
		require.NoError(t, err)
		_, err = ChallengeProposal(m, "carol", "wrong call", deadline.Add(time.Hour))
		require.NoError(t, err)

		result, err := FinalizeChallenged(m, nil, nil,
			ResolutionOutcome{Resolution: ResolutionYes}, "arbiter", deadline.Add(2*time.Hour), oracleParams)
		require.NoError(t, err)
		require.False(t, result.ChallengerWon)
		require.Equal(t, "oracle", result.Bond.Recipient)
	})

	t.Run("not challenged", func(t *testing.T) {
		m := newOracleMarket(deadline)
		_, err := Propose(m, eval, deadline, oracleParams)
		require.NoError(t, err)
		_, err = FinalizeChallenged(m, nil, nil,
			ResolutionOutcome{Resolution: ResolutionNo}, "arbiter", deadline.Add(time.Hour), oracleParams)
		require.Equal(t, KindConflict, KindOf(err))
	})
}

func TestEligibility(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	eval := stubEvaluator{out: ResolutionOutcome{Resolution: ResolutionYes}}

	plain := newBinaryMarket(0)
	require.Equal(t, SweepNothing, Eligibility(plain, deadline))

	m := newOracleMarket(deadline)
	require.Equal(t, SweepNothing, Eligibility(m, deadline.Add(-time.Hour)))
	require.Equal(t, SweepPropose, Eligibility(m, deadline))

	_, err := Propose(m, eval, deadline, oracleParams)
	require.NoError(t, err)
	require.Equal(t, SweepNothing, Eligibility(m, deadline.Add(time.Hour)))
	require.Equal(t, SweepFinalize, Eligibility(m, deadline.Add(24*time.Hour)))

	// Challenged markets wait for the arbiter, not the sweep.
	_, err = ChallengeProposal(m, "carol", "disputed", deadline.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, SweepNothing, Eligibility(m, deadline.Add(48*time.Hour)))
}
