/**
 * @description
 * Converters between engine entities and their database rows.
 * Optional engine sub-records (oracle proposal, challenge, resolution)
 * are flattened into nullable market columns and reconstructed on load.
 */

package store

import (
	"time"

	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/models"
)

func marketToRow(m *engine.Market) models.Market {
	row := models.Market{
		ID:                  m.ID,
		ConditionID:         m.ConditionID,
		CreatorID:           m.CreatorID,
		Question:            m.Question,
		Kind:                string(m.Kind),
		Weight:              m.Weight,
		YesPool:             m.Pool.Yes,
		NoPool:              m.Pool.No,
		SumToOne:            m.SumToOne,
		FeeBps:              m.FeeBps,
		CollectedFees:       m.CollectedFees,
		Phase:               string(m.Phase),
		Volume:              m.Volume,
		GraduationStartedAt: m.GraduationStartedAt,
		CreatedAt:           m.CreatedAt,
	}
	if m.Oracle != nil {
		row.OracleSource = m.Oracle.Source
		deadline := m.Oracle.Deadline
		row.OracleDeadline = &deadline
	}
	if m.Proposal != nil {
		row.ProposalResolution = string(m.Proposal.Resolution)
		row.ProposalProbability = m.Proposal.Probability
		row.ProposalAnswerID = m.Proposal.AnswerID
		row.ProposalJustification = m.Proposal.Justification
		proposedAt := m.Proposal.ProposedAt
		windowEndsAt := m.Proposal.WindowEndsAt
		row.ProposedAt = &proposedAt
		row.WindowEndsAt = &windowEndsAt
	}
	if m.Challenge != nil {
		row.ChallengerID = m.Challenge.ChallengerID
		row.ChallengeReason = m.Challenge.Reason
		challengedAt := m.Challenge.ChallengedAt
		row.ChallengedAt = &challengedAt
	}
	if m.Resolution != nil {
		row.ResolutionValue = string(m.Resolution.Resolution)
		row.ResolutionProbability = m.Resolution.Probability
		row.ResolutionAnswerID = m.Resolution.AnswerID
		row.ResolverID = m.Resolution.ResolverID
		resolvedAt := m.Resolution.ResolvedAt
		row.ResolvedAt = &resolvedAt
	}
	for _, a := range m.Answers {
		row.Answers = append(row.Answers, models.Answer{
			ID:       a.ID,
			MarketID: m.ID,
			Idx:      a.Index,
			Label:    a.Label,
			YesPool:  a.Pool.Yes,
			NoPool:   a.Pool.No,
			Volume:   a.Volume,
		})
	}
	return row
}

func rowToMarket(row *models.Market) *engine.Market {
	m := &engine.Market{
		ID:                  row.ID,
		ConditionID:         row.ConditionID,
		CreatorID:           row.CreatorID,
		Question:            row.Question,
		Kind:                engine.MarketKind(row.Kind),
		Weight:              row.Weight,
		Pool:                engine.Pool{Yes: row.YesPool, No: row.NoPool},
		SumToOne:            row.SumToOne,
		FeeBps:              row.FeeBps,
		CollectedFees:       row.CollectedFees,
		Phase:               engine.Phase(row.Phase),
		Volume:              row.Volume,
		GraduationStartedAt: row.GraduationStartedAt,
		CreatedAt:           row.CreatedAt,
	}
	if row.OracleSource != "" || row.OracleDeadline != nil {
		cfg := &engine.OracleConfig{Source: row.OracleSource}
		if row.OracleDeadline != nil {
			cfg.Deadline = *row.OracleDeadline
		}
		m.Oracle = cfg
	}
	if row.ProposedAt != nil {
		m.Proposal = &engine.OracleProposal{
			Resolution:    engine.Resolution(row.ProposalResolution),
			Probability:   row.ProposalProbability,
			AnswerID:      row.ProposalAnswerID,
			Justification: row.ProposalJustification,
			ProposedAt:    *row.ProposedAt,
			WindowEndsAt:  derefTime(row.WindowEndsAt),
		}
	}
	if row.ChallengedAt != nil {
		m.Challenge = &engine.OracleChallenge{
			ChallengerID: row.ChallengerID,
			Reason:       row.ChallengeReason,
			ChallengedAt: *row.ChallengedAt,
		}
	}
	if row.ResolvedAt != nil {
		m.Resolution = &engine.ResolutionOutcome{
			Resolution:  engine.Resolution(row.ResolutionValue),
			Probability: row.ResolutionProbability,
			AnswerID:    row.ResolutionAnswerID,
			ResolverID:  row.ResolverID,
			ResolvedAt:  *row.ResolvedAt,
		}
	}
	for i := range row.Answers {
		a := &row.Answers[i]
		m.Answers = append(m.Answers, &engine.Answer{
			ID:     a.ID,
			Index:  a.Idx,
			Label:  a.Label,
			Pool:   engine.Pool{Yes: a.YesPool, No: a.NoPool},
			Volume: a.Volume,
		})
	}
	return m
}

func positionToRow(p *engine.Position) models.Position {
	return models.Position{
		UserID:    p.UserID,
		MarketID:  p.MarketID,
		AnswerID:  p.AnswerID,
		YesShares: p.YesShares,
		NoShares:  p.NoShares,
		CostBasis: p.CostBasis,
	}
}

func rowToPosition(row *models.Position) *engine.Position {
	return &engine.Position{
		UserID:    row.UserID,
		MarketID:  row.MarketID,
		AnswerID:  row.AnswerID,
		YesShares: row.YesShares,
		NoShares:  row.NoShares,
		CostBasis: row.CostBasis,
	}
}

func orderToRow(o *engine.LimitOrder) models.LimitOrder {
	return models.LimitOrder{
		ID:        o.ID,
		MarketID:  o.MarketID,
		AnswerID:  o.AnswerID,
		UserID:    o.UserID,
		Outcome:   string(o.Outcome),
		Side:      string(o.Side),
		LimitProb: o.LimitProb,
		Quantity:  o.Quantity,
		FilledQty: o.FilledQty,
		Cancelled: o.Cancelled,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}

func rowToOrder(row *models.LimitOrder) *engine.LimitOrder {
	return &engine.LimitOrder{
		ID:        row.ID,
		MarketID:  row.MarketID,
		AnswerID:  row.AnswerID,
		UserID:    row.UserID,
		Outcome:   engine.Outcome(row.Outcome),
		Side:      engine.Side(row.Side),
		LimitProb: row.LimitProb,
		Quantity:  row.Quantity,
		FilledQty: row.FilledQty,
		Cancelled: row.Cancelled,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
