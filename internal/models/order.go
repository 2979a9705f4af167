/**
 * @description
 * LimitOrder database model. Mirrors the in-memory order book so that open
 * orders survive a restart; filled and cancelled orders are kept as an audit
 * trail.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// LimitOrder mirrors one resting or historical limit order.
type LimitOrder struct {
	ID        string     `gorm:"primaryKey;column:id" json:"id"`
	MarketID  string     `gorm:"column:market_id;index" json:"market_id"`
	AnswerID  string     `gorm:"column:answer_id" json:"answer_id"`
	UserID    string     `gorm:"column:user_id;index" json:"user_id"`
	Outcome   string     `gorm:"column:outcome;type:varchar(4)" json:"outcome"`
	Side      string     `gorm:"column:side;type:varchar(4)" json:"side"`
	LimitProb float64    `gorm:"column:limit_prob" json:"limit_prob"`
	Quantity  float64    `gorm:"column:quantity" json:"quantity"`
	FilledQty float64    `gorm:"column:filled_qty" json:"filled_qty"`
	Cancelled bool       `gorm:"column:cancelled;default:false" json:"cancelled"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name used by LimitOrder to `limit_orders`.
func (LimitOrder) TableName() string {
	return "limit_orders"
}
