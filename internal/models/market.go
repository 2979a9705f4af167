/**
 * @description
 * Market and Answer database models.
 * Maps to the 'markets' and 'answers' tables in PostgreSQL. These rows are
 * a write-through mirror of the engine's in-memory state: on conflicting
 * reads the in-memory entity is truth.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Market mirrors one engine market, binary or multi-choice.
type Market struct {
	ID          string  `gorm:"primaryKey;column:id" json:"id"`
	ConditionID string  `gorm:"column:condition_id;index" json:"condition_id"`
	CreatorID   string  `gorm:"column:creator_id;index" json:"creator_id"`
	Question    string  `gorm:"column:question" json:"question"`
	Kind        string  `gorm:"column:kind;type:varchar(8)" json:"kind"`
	Weight      float64 `gorm:"column:weight" json:"weight"`

	// Binary pool reserves; zero for multi-choice markets.
	YesPool float64 `gorm:"column:yes_pool" json:"yes_pool"`
	NoPool  float64 `gorm:"column:no_pool" json:"no_pool"`

	SumToOne bool `gorm:"column:sum_to_one;default:false" json:"sum_to_one"`

	FeeBps        int     `gorm:"column:fee_bps;default:0" json:"fee_bps"`
	CollectedFees float64 `gorm:"column:collected_fees" json:"collected_fees"`

	Phase               string     `gorm:"column:phase;type:varchar(12);index" json:"phase"`
	Volume              float64    `gorm:"column:volume" json:"volume"`
	GraduationStartedAt *time.Time `gorm:"column:graduation_started_at" json:"graduation_started_at"`

	// Oracle resolution source.
	OracleSource   string     `gorm:"column:oracle_source" json:"oracle_source"`
	OracleDeadline *time.Time `gorm:"column:oracle_deadline" json:"oracle_deadline"`

	// Provisional proposal, populated while the oracle process runs.
	ProposalResolution    string     `gorm:"column:proposal_resolution;type:varchar(8)" json:"proposal_resolution"`
	ProposalProbability   float64    `gorm:"column:proposal_probability" json:"proposal_probability"`
	ProposalAnswerID      string     `gorm:"column:proposal_answer_id" json:"proposal_answer_id"`
	ProposalJustification string     `gorm:"column:proposal_justification" json:"proposal_justification"`
	ProposedAt            *time.Time `gorm:"column:proposed_at" json:"proposed_at"`
	WindowEndsAt          *time.Time `gorm:"column:window_ends_at" json:"window_ends_at"`

	// Challenge record, populated only while disputed.
	ChallengerID    string     `gorm:"column:challenger_id" json:"challenger_id"`
	ChallengeReason string     `gorm:"column:challenge_reason" json:"challenge_reason"`
	ChallengedAt    *time.Time `gorm:"column:challenged_at" json:"challenged_at"`

	// Final settlement.
	ResolutionValue       string     `gorm:"column:resolution_value;type:varchar(8)" json:"resolution_value"`
	ResolutionProbability float64    `gorm:"column:resolution_probability" json:"resolution_probability"`
	ResolutionAnswerID    string     `gorm:"column:resolution_answer_id" json:"resolution_answer_id"`
	ResolverID            string     `gorm:"column:resolver_id" json:"resolver_id"`
	ResolvedAt            *time.Time `gorm:"column:resolved_at" json:"resolved_at"`

	Answers []Answer `gorm:"foreignKey:MarketID" json:"answers,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by Market to `markets`.
func (Market) TableName() string {
	return "markets"
}

// Answer mirrors one answer of a multi-choice market.
type Answer struct {
	ID       string  `gorm:"primaryKey;column:id" json:"id"`
	MarketID string  `gorm:"column:market_id;index" json:"market_id"`
	Idx      int     `gorm:"column:idx" json:"idx"`
	Label    string  `gorm:"column:label" json:"label"`
	YesPool  float64 `gorm:"column:yes_pool" json:"yes_pool"`
	NoPool   float64 `gorm:"column:no_pool" json:"no_pool"`
	Volume   float64 `gorm:"column:volume" json:"volume"`
}

// TableName overrides the table name used by Answer to `answers`.
func (Answer) TableName() string {
	return "answers"
}
