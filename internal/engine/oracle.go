/**
 * @description
 * Oracle resolution protocol: propose -> challenge window -> finalize.
 * A market configured with a resolution source becomes eligible for an
 * automated proposal once its deadline passes; proposals settle through the
 * same primitive manual resolution uses.
 *
 * @notes
 * - Deadlines and windows are wall-clock values evaluated lazily; no timer
 *   resource is held open.
 */

package engine

import (
	"time"
)

// OracleStatus is the protocol state derived from the market's oracle
// fields.
type OracleStatus string

const (
	OracleNone        OracleStatus = "NONE"
	OracleProvisional OracleStatus = "PROVISIONAL"
	OracleChallenged  OracleStatus = "CHALLENGED"
	OracleFinalized   OracleStatus = "FINALIZED"
)

// OracleConfig attaches an external resolution source to a market.
type OracleConfig struct {
	// Source describes the external condition the oracle resolves against.
	Source string `json:"source"`
	// Deadline is the earliest time a proposal may be generated.
	Deadline time.Time `json:"deadline"`
}

// OracleProposal is a provisional resolution awaiting its challenge window.
type OracleProposal struct {
	Resolution Resolution `json:"resolution"`
	// Probability accompanies MKT proposals.
	Probability float64 `json:"probability,omitempty"`
	// AnswerID accompanies multi-choice proposals.
	AnswerID      string    `json:"answer_id,omitempty"`
	Justification string    `json:"justification"`
	ProposedAt    time.Time `json:"proposed_at"`
	WindowEndsAt  time.Time `json:"window_ends_at"`
}

// OracleChallenge disputes a provisional resolution.
type OracleChallenge struct {
	ChallengerID string    `json:"challenger_id"`
	Reason       string    `json:"reason"`
	ChallengedAt time.Time `json:"challenged_at"`
}

// OracleParams holds the dispute-process tunables.
type OracleParams struct {
	// Window is the fixed length of the challenge period.
	Window time.Duration
	// Bond is the flat challenge bond settled to whichever side the final
	// resolution vindicates.
	Bond float64
}

// SourceEvaluator produces a resolution value and justification from a
// market's configured source. Implementations live outside the engine.
type SourceEvaluator interface {
	Evaluate(m *Market, now time.Time) (ResolutionOutcome, string, error)
}

// Status derives the protocol state for a market.
func Status(m *Market) OracleStatus {
	switch {
	case m.Proposal == nil:
		return OracleNone
	case m.Resolved():
		return OracleFinalized
	case m.Challenge != nil:
		return OracleChallenged
	default:
		return OracleProvisional
	}
}

// Propose generates a provisional resolution from the market's source and
// opens the challenge window.
func Propose(m *Market, eval SourceEvaluator, now time.Time, params OracleParams) (*OracleProposal, error) {
	if m.Resolved() {
		return nil, Conflictf("market %s is already resolved", m.ID)
	}
	if m.Oracle == nil {
		return nil, Conflictf("market %s has no resolution source configured", m.ID)
	}
	if m.Proposal != nil {
		return nil, Conflictf("market %s already has a proposal", m.ID)
	}
	if now.Before(m.Oracle.Deadline) {
		return nil, Conflictf("market %s deadline not reached (deadline %s)", m.ID, m.Oracle.Deadline.Format(time.RFC3339))
	}

	out, justification, err := eval.Evaluate(m, now)
	if err != nil {
		return nil, err
	}
	if !out.Resolution.Valid() {
		return nil, Validationf("source produced invalid resolution %q", out.Resolution)
	}

	m.Proposal = &OracleProposal{
		Resolution:    out.Resolution,
		Probability:   out.Probability,
		AnswerID:      out.AnswerID,
		Justification: justification,
		ProposedAt:    now,
		WindowEndsAt:  now.Add(params.Window),
	}
	return m.Proposal, nil
}

// ChallengeProposal disputes a provisional resolution. Accepted only while
// the challenge window is open and no prior challenge exists.
func ChallengeProposal(m *Market, challengerID, reason string, now time.Time) (*OracleChallenge, error) {
	switch Status(m) {
	case OracleNone:
		return nil, Conflictf("market %s has no proposal to challenge", m.ID)
	case OracleChallenged:
		return nil, Conflictf("market %s is already challenged", m.ID)
	case OracleFinalized:
		return nil, Conflictf("market %s is already finalized", m.ID)
	}
	if !now.Before(m.Proposal.WindowEndsAt) {
		return nil, Conflictf("challenge window for market %s closed at %s", m.ID, m.Proposal.WindowEndsAt.Format(time.RFC3339))
	}
	if challengerID == "" {
		return nil, Validationf("challenger identity is required")
	}
	m.Challenge = &OracleChallenge{
		ChallengerID: challengerID,
		Reason:       reason,
		ChallengedAt: now,
	}
	return m.Challenge, nil
}

// BondAward records who the challenge bond settles to.
type BondAward struct {
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

// FinalizeResult is the outcome of closing the oracle process.
type FinalizeResult struct {
	Resolution    ResolutionOutcome `json:"resolution"`
	Payouts       []Payout          `json:"payouts"`
	ChallengerWon bool              `json:"challenger_won"`
	Bond          *BondAward        `json:"bond,omitempty"`
}

// Finalize settles an unchallenged provisional resolution after the window
// expires.
func Finalize(m *Market, positions []*Position, book *OrderBook, now time.Time) (*FinalizeResult, error) {
	switch Status(m) {
	case OracleNone:
		return nil, Conflictf("market %s has no proposal to finalize", m.ID)
	case OracleChallenged:
		return nil, Conflictf("market %s is challenged; a final resolution is required", m.ID)
	case OracleFinalized:
		return nil, Conflictf("market %s is already finalized", m.ID)
	}
	if now.Before(m.Proposal.WindowEndsAt) {
		return nil, Conflictf("challenge window for market %s is still open until %s", m.ID, m.Proposal.WindowEndsAt.Format(time.RFC3339))
	}

	out := ResolutionOutcome{
		Resolution:  m.Proposal.Resolution,
		Probability: m.Proposal.Probability,
		AnswerID:    m.Proposal.AnswerID,
		ResolverID:  "oracle",
	}
	payouts, err := Settle(m, positions, book, out, now)
	if err != nil {
		return nil, err
	}
	return &FinalizeResult{Resolution: *m.Resolution, Payouts: payouts}, nil
}

// FinalizeChallenged settles a disputed market with an externally supplied
// final resolution. The challenger wins the bond when the final value
// differs from the original proposal.
func FinalizeChallenged(m *Market, positions []*Position, book *OrderBook, final ResolutionOutcome, resolverID string, now time.Time, params OracleParams) (*FinalizeResult, error) {
	if Status(m) != OracleChallenged {
		return nil, Conflictf("market %s is not in a challenged state", m.ID)
	}
	if resolverID == "" {
		return nil, Validationf("resolver identity is required")
	}

	challengerWon := final.Resolution != m.Proposal.Resolution ||
		(final.Resolution == ResolutionMkt && final.Probability != m.Proposal.Probability) ||
		(final.AnswerID != m.Proposal.AnswerID)

	final.ResolverID = resolverID
	payouts, err := Settle(m, positions, book, final, now)
	if err != nil {
		return nil, err
	}

	result := &FinalizeResult{
		Resolution:    *m.Resolution,
		Payouts:       payouts,
		ChallengerWon: challengerWon,
	}
	if params.Bond > 0 {
		recipient := m.Challenge.ChallengerID
		if !challengerWon {
			recipient = "oracle"
		}
		result.Bond = &BondAward{Recipient: recipient, Amount: params.Bond}
	}
	return result, nil
}

// SweepAction is what the oracle sweep decided for one market.
type SweepAction int

const (
	SweepNothing SweepAction = iota
	SweepPropose
	SweepFinalize
)

// Eligibility reports what the periodic sweep should do with a market.
func Eligibility(m *Market, now time.Time) SweepAction {
	if m.Resolved() || m.Oracle == nil {
		return SweepNothing
	}
	switch Status(m) {
	case OracleNone:
		if !now.Before(m.Oracle.Deadline) {
			return SweepPropose
		}
	case OracleProvisional:
		if !now.Before(m.Proposal.WindowEndsAt) {
			return SweepFinalize
		}
	}
	return SweepNothing
}
