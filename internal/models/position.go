/**
 * @description
 * Position database model. One row per (user, market, answer) holding,
 * upserted after every trade, conversion, split, merge and settlement.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Position mirrors one user's share holding in a market answer.
// For binary markets AnswerID is the empty string.
type Position struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_positions_owner" json:"user_id"`
	MarketID  string    `gorm:"column:market_id;uniqueIndex:idx_positions_owner" json:"market_id"`
	AnswerID  string    `gorm:"column:answer_id;uniqueIndex:idx_positions_owner" json:"answer_id"`
	YesShares float64   `gorm:"column:yes_shares" json:"yes_shares"`
	NoShares  float64   `gorm:"column:no_shares" json:"no_shares"`
	CostBasis float64   `gorm:"column:cost_basis" json:"cost_basis"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by Position to `positions`.
func (Position) TableName() string {
	return "positions"
}
