/**
 * @description
 * Write-through persistence mirror for the in-memory exchange engine.
 * Engine state is authoritative; every mutation is upserted here so a
 * restarted process can rebuild its books. Reads from the mirror happen
 * only at startup and for price history queries.
 *
 * Key features:
 * - Upserts use Postgres ON CONFLICT with a bounded retry loop for
 *   deadlock (40P01) and serialization (40001) failures.
 * - Converters translate between engine entities and database rows in
 *   both directions.
 *
 * @dependencies
 * - gorm.io/gorm: ORM and clause builder
 * - github.com/jackc/pgconn: Postgres error code inspection
 */

package store

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/models"
)

// Mirror persists engine state to PostgreSQL.
type Mirror struct {
	DB *gorm.DB
}

// NewMirror creates a persistence mirror on top of a gorm connection.
func NewMirror(db *gorm.DB) *Mirror {
	return &Mirror{DB: db}
}

// AutoMigrate creates or updates the mirrored tables.
func (mr *Mirror) AutoMigrate() error {
	return mr.DB.AutoMigrate(
		&models.Market{},
		&models.Answer{},
		&models.Position{},
		&models.LimitOrder{},
		&models.PriceHistory{},
	)
}

// withRetry runs op up to maxRetries times, backing off on Postgres
// deadlock and serialization failures.
func withRetry(op func() error) error {
	const maxRetries = 5
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if pgErr, ok := err.(*pgconn.PgError); ok && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
			backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
			time.Sleep(backoff)
			continue
		}
		break
	}
	return err
}

// SaveMarket upserts a market and its answers.
func (mr *Mirror) SaveMarket(m *engine.Market) error {
	row := marketToRow(m)
	err := withRetry(func() error {
		return mr.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Omit("Answers").Create(&row).Error; err != nil {
				return err
			}
			if len(row.Answers) == 0 {
				return nil
			}
			return tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"yes_pool",
					"no_pool",
					"volume",
				}),
			}).Create(&row.Answers).Error
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert market %s: %w", m.ID, err)
	}
	return nil
}

// SavePositions upserts the given positions and deletes extinguished ones.
func (mr *Mirror) SavePositions(positions []*engine.Position) error {
	if len(positions) == 0 {
		return nil
	}
	var upserts []models.Position
	var gone []*engine.Position
	for _, p := range positions {
		if p.Empty() {
			gone = append(gone, p)
			continue
		}
		upserts = append(upserts, positionToRow(p))
	}
	err := withRetry(func() error {
		return mr.DB.Transaction(func(tx *gorm.DB) error {
			if len(upserts) > 0 {
				if err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "user_id"}, {Name: "market_id"}, {Name: "answer_id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"yes_shares",
						"no_shares",
						"cost_basis",
					}),
				}).Create(&upserts).Error; err != nil {
					return err
				}
			}
			for _, p := range gone {
				if err := tx.Where("user_id = ? AND market_id = ? AND answer_id = ?",
					p.UserID, p.MarketID, p.AnswerID).Delete(&models.Position{}).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert positions: %w", err)
	}
	return nil
}

// SaveOrder upserts one limit order row.
func (mr *Mirror) SaveOrder(o *engine.LimitOrder) error {
	row := orderToRow(o)
	err := withRetry(func() error {
		return mr.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"filled_qty",
				"cancelled",
			}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
	}
	return nil
}

// SaveOrders upserts a batch of limit orders, typically after a match.
func (mr *Mirror) SaveOrders(orders []*engine.LimitOrder) error {
	if len(orders) == 0 {
		return nil
	}
	rows := make([]models.LimitOrder, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderToRow(o))
	}
	err := withRetry(func() error {
		return mr.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"filled_qty",
				"cancelled",
			}),
		}).CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert orders: %w", err)
	}
	return nil
}

// AppendPrice appends one probability sample to the history table.
func (mr *Mirror) AppendPrice(p engine.PricePoint) error {
	row := models.PriceHistory{
		MarketID:    p.MarketID,
		AnswerID:    p.AnswerID,
		Probability: p.Probability,
		Volume:      p.Volume,
		Timestamp:   p.Timestamp,
	}
	if err := mr.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append price point for market %s: %w", p.MarketID, err)
	}
	return nil
}

// PriceRange returns samples for a market answer in ascending time order.
// A zero `to` means now.
func (mr *Mirror) PriceRange(marketID, answerID string, from, to time.Time) ([]engine.PricePoint, error) {
	if to.IsZero() {
		to = time.Now()
	}
	var rows []models.PriceHistory
	q := mr.DB.Where("market_id = ? AND timestamp >= ? AND timestamp <= ?", marketID, from, to)
	if answerID != "" {
		q = q.Where("answer_id = ?", answerID)
	}
	if err := q.Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query price history for market %s: %w", marketID, err)
	}
	points := make([]engine.PricePoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, engine.PricePoint{
			MarketID:    r.MarketID,
			AnswerID:    r.AnswerID,
			Probability: r.Probability,
			Volume:      r.Volume,
			Timestamp:   r.Timestamp,
		})
	}
	return points, nil
}

// LoadMarkets reads every mirrored market with its answers, used once at
// startup to rebuild the in-memory state.
func (mr *Mirror) LoadMarkets() ([]*engine.Market, error) {
	var rows []models.Market
	if err := mr.DB.Preload("Answers", func(db *gorm.DB) *gorm.DB {
		return db.Order("answers.idx asc")
	}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load markets: %w", err)
	}
	markets := make([]*engine.Market, 0, len(rows))
	for i := range rows {
		markets = append(markets, rowToMarket(&rows[i]))
	}
	return markets, nil
}

// LoadPositions reads all mirrored positions for one market.
func (mr *Mirror) LoadPositions(marketID string) ([]*engine.Position, error) {
	var rows []models.Position
	if err := mr.DB.Where("market_id = ?", marketID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load positions for market %s: %w", marketID, err)
	}
	positions := make([]*engine.Position, 0, len(rows))
	for i := range rows {
		positions = append(positions, rowToPosition(&rows[i]))
	}
	return positions, nil
}

// LoadOpenOrders reads unexpired, uncancelled, unfilled orders for one market.
func (mr *Mirror) LoadOpenOrders(marketID string, now time.Time) ([]*engine.LimitOrder, error) {
	var rows []models.LimitOrder
	if err := mr.DB.Where(
		"market_id = ? AND cancelled = false AND filled_qty < quantity AND (expires_at IS NULL OR expires_at > ?)",
		marketID, now,
	).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load open orders for market %s: %w", marketID, err)
	}
	orders := make([]*engine.LimitOrder, 0, len(rows))
	for i := range rows {
		orders = append(orders, rowToOrder(&rows[i]))
	}
	return orders, nil
}
