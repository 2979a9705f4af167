/**
 * @description
 * PriceHistory database model. Append-only probability samples recorded on
 * every trade, used by the chart service for historical queries.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// PriceHistory is one probability sample for a market answer.
type PriceHistory struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MarketID    string    `gorm:"column:market_id;index:idx_price_history_market_ts" json:"market_id"`
	AnswerID    string    `gorm:"column:answer_id" json:"answer_id"`
	Probability float64   `gorm:"column:probability" json:"probability"`
	Volume      float64   `gorm:"column:volume" json:"volume"`
	Timestamp   time.Time `gorm:"column:timestamp;index:idx_price_history_market_ts" json:"timestamp"`
}

// TableName overrides the table name used by PriceHistory to `price_history`.
func (PriceHistory) TableName() string {
	return "price_history"
}
