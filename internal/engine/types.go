/**
 * @description
 * Core entity types for the Likeli exchange engine.
 * The engine owns all of this state in process memory; persistence is a
 * write-through mirror with no independent authority.
 *
 * @notes
 * - Outcome, Side, Resolution, MarketKind, and Phase are closed variants.
 *   Every consuming switch handles all members explicitly.
 * - Binary markets own a single Pool; multi-choice markets own an ordered
 *   slice of Answers, each with its own Pool.
 */

package engine

import (
	"time"
)

// Outcome is the side of a contract a position or order refers to.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Side is the direction of a trade or resting order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Resolution is a final market outcome.
type Resolution string

const (
	ResolutionYes Resolution = "YES"
	ResolutionNo  Resolution = "NO"
	// ResolutionMkt settles probabilistically at a supplied probability.
	ResolutionMkt Resolution = "MKT"
	// ResolutionCancel voids the market and refunds principal.
	ResolutionCancel Resolution = "CANCEL"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionYes, ResolutionNo, ResolutionMkt, ResolutionCancel:
		return true
	}
	return false
}

// MarketKind discriminates the two market entity variants.
type MarketKind string

const (
	KindBinary MarketKind = "BINARY"
	KindMulti  MarketKind = "MULTI"
)

// Phase is a market's lifecycle state.
type Phase string

const (
	PhaseSandbox    Phase = "SANDBOX"
	PhaseGraduating Phase = "GRADUATING"
	PhaseMain       Phase = "MAIN"
	PhaseResolved   Phase = "RESOLVED"
)

// Answer is one outcome of a multi-choice market with its own pool.
type Answer struct {
	ID     string  `json:"id"`
	Index  int     `json:"index"`
	Label  string  `json:"label"`
	Pool   Pool    `json:"pool"`
	Volume float64 `json:"volume"`
}

// ResolutionOutcome records how a market settled.
type ResolutionOutcome struct {
	Resolution Resolution `json:"resolution"`
	// Probability is only meaningful for MKT resolutions.
	Probability float64 `json:"probability,omitempty"`
	// AnswerID identifies the winning answer for multi-choice YES settlements.
	AnswerID   string    `json:"answer_id,omitempty"`
	ResolverID string    `json:"resolver_id"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Market is the engine's authoritative market entity.
type Market struct {
	ID          string     `json:"id"`
	ConditionID string     `json:"condition_id"`
	CreatorID   string     `json:"creator_id"`
	Question    string     `json:"question"`
	Kind        MarketKind `json:"kind"`

	// Weight is the p parameter of the weighted probability formula.
	Weight float64 `json:"weight"`

	// Pool is populated for binary markets only.
	Pool Pool `json:"pool"`

	// Answers is populated for multi-choice markets only.
	Answers  []*Answer `json:"answers,omitempty"`
	SumToOne bool      `json:"sum_to_one"`

	// FeeBps is the trading fee in basis points, at most MaxFeeBps.
	// CollectedFees accumulates every fee the market has charged.
	FeeBps        int     `json:"fee_bps"`
	CollectedFees float64 `json:"collected_fees"`

	Phase               Phase      `json:"phase"`
	Volume              float64    `json:"volume"`
	CreatedAt           time.Time  `json:"created_at"`
	GraduationStartedAt *time.Time `json:"graduation_started_at,omitempty"`

	Oracle     *OracleConfig      `json:"oracle,omitempty"`
	Proposal   *OracleProposal    `json:"proposal,omitempty"`
	Challenge  *OracleChallenge   `json:"challenge,omitempty"`
	Resolution *ResolutionOutcome `json:"resolution,omitempty"`
}

// SetFees updates the market's trading fee. Only the creator may change
// fees, and never after resolution.
func SetFees(m *Market, callerID string, feeBps int) error {
	if callerID != m.CreatorID {
		return Unauthorizedf("only the market creator can change fees")
	}
	if m.Resolved() {
		return Conflictf("market %s is resolved", m.ID)
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return Validationf("fee_bps must be between 0 and %d", MaxFeeBps)
	}
	m.FeeBps = feeBps
	return nil
}

// Resolved reports whether the market reached its terminal phase.
func (m *Market) Resolved() bool {
	return m.Phase == PhaseResolved
}

// AnswerByID returns the answer with the given id, or nil.
func (m *Market) AnswerByID(id string) *Answer {
	for _, a := range m.Answers {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Position is a user's share holding on one (market, answer?, outcome) leg.
// Extinguished to zero it is removed, never negative.
type Position struct {
	UserID   string `json:"user_id"`
	MarketID string `json:"market_id"`
	// AnswerID is empty for binary markets.
	AnswerID  string  `json:"answer_id,omitempty"`
	YesShares float64 `json:"yes_shares"`
	NoShares  float64 `json:"no_shares"`
	// CostBasis accumulates amounts spent acquiring the current holding.
	// Used for CANCEL resolutions, which refund principal.
	CostBasis float64 `json:"cost_basis"`
}

// Empty reports whether the position holds nothing worth keeping.
func (p *Position) Empty() bool {
	return p.YesShares <= 0 && p.NoShares <= 0
}

// PricePoint is one probability observation on a market's chart.
type PricePoint struct {
	MarketID    string    `json:"market_id"`
	AnswerID    string    `json:"answer_id,omitempty"`
	Probability float64   `json:"probability"`
	Volume      float64   `json:"volume"`
	Timestamp   time.Time `json:"timestamp"`
}
