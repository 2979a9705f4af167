/**
 * @description
 * Resting limit order storage and price-time matching.
 * One OrderBook exists per market; multi-choice markets segment orders by
 * answer ID inside the same book.
 *
 * @notes
 * - Matches always execute at the resting order's limit price.
 * - Expiry is evaluated lazily on every matching pass and listing query;
 *   there is no background sweep.
 */

package engine

import (
	"sort"
	"time"
)

// LimitOrder is a resting bid or ask on one outcome of a market.
type LimitOrder struct {
	ID       string `json:"id"`
	MarketID string `json:"market_id"`
	// AnswerID is empty for binary markets.
	AnswerID string  `json:"answer_id,omitempty"`
	UserID   string  `json:"user_id"`
	Outcome  Outcome `json:"outcome"`
	Side     Side    `json:"side"`
	// LimitProb is the limit price expressed as a probability in (0,1).
	LimitProb float64    `json:"limit_prob"`
	Quantity  float64    `json:"quantity"`
	FilledQty float64    `json:"filled_qty"`
	Cancelled bool       `json:"cancelled"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	sequence  uint64
}

// Filled reports whether the order has no remaining quantity.
func (o *LimitOrder) Filled() bool {
	return o.FilledQty >= o.Quantity
}

// Remaining returns the unfilled quantity.
func (o *LimitOrder) Remaining() float64 {
	r := o.Quantity - o.FilledQty
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the order's expiry has passed.
func (o *LimitOrder) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Open reports whether the order can still trade at the given time.
func (o *LimitOrder) Open(now time.Time) bool {
	return !o.Cancelled && !o.Filled() && !o.Expired(now)
}

// Fill records one matched quantity between an incoming order and a
// resting one. Price is the resting order's limit probability.
type Fill struct {
	MakerOrderID string    `json:"maker_order_id"`
	MakerUserID  string    `json:"maker_user_id"`
	TakerUserID  string    `json:"taker_user_id"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	Timestamp    time.Time `json:"timestamp"`
}

// BookLevel aggregates open orders at one price.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookLevels is the aggregated depth snapshot of one book, keyed by
// outcome, sorted best-price-first on each side.
type BookLevels struct {
	YesBids []BookLevel `json:"yes_bids"`
	YesAsks []BookLevel `json:"yes_asks"`
	NoBids  []BookLevel `json:"no_bids"`
	NoAsks  []BookLevel `json:"no_asks"`
}

// OrderBook holds all limit orders for one market.
type OrderBook struct {
	MarketID string
	orders   []*LimitOrder
	nextSeq  uint64
}

// NewOrderBook creates an empty book for the market.
func NewOrderBook(marketID string) *OrderBook {
	return &OrderBook{MarketID: marketID}
}

// Orders returns every order ever placed, open or not. Used by the mirror.
func (b *OrderBook) Orders() []*LimitOrder {
	return b.orders
}

// Restore re-seats a persisted order into the book, preserving time priority
// by created-at order of the calls.
func (b *OrderBook) Restore(o *LimitOrder) {
	o.sequence = b.nextSeq
	b.nextSeq++
	b.orders = append(b.orders, o)
}

// Get returns the order with the given id, or nil.
func (b *OrderBook) Get(orderID string) *LimitOrder {
	for _, o := range b.orders {
		if o.ID == orderID {
			return o
		}
	}
	return nil
}

// Place validates the incoming order, matches it against the opposite side
// at equal-or-better prices (oldest first per level), and rests any
// remainder. Fills execute at the resting order's price.
func (b *OrderBook) Place(o *LimitOrder, now time.Time) ([]Fill, error) {
	if !o.Outcome.Valid() {
		return nil, Validationf("invalid outcome %q", o.Outcome)
	}
	if !o.Side.Valid() {
		return nil, Validationf("invalid side %q", o.Side)
	}
	if o.LimitProb <= 0 || o.LimitProb >= 1 {
		return nil, Validationf("limit probability must be in (0, 1) exclusive, got %.4f", o.LimitProb)
	}
	if o.Quantity <= 0 {
		return nil, Validationf("order quantity must be positive")
	}
	if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
		return nil, Validationf("order expiry is already in the past")
	}

	b.expireLazily(now)

	fills := b.match(o, now)

	o.sequence = b.nextSeq
	b.nextSeq++
	b.orders = append(b.orders, o)
	return fills, nil
}

// match walks the opposite side in price-time priority and fills the
// incoming order as far as prices cross.
func (b *OrderBook) match(incoming *LimitOrder, now time.Time) []Fill {
	var candidates []*LimitOrder
	for _, resting := range b.orders {
		if !resting.Open(now) {
			continue
		}
		if resting.AnswerID != incoming.AnswerID ||
			resting.Outcome != incoming.Outcome ||
			resting.Side == incoming.Side {
			continue
		}
		if incoming.Side == SideBuy {
			// Bid fills asks priced at or below the bid.
			if resting.LimitProb > incoming.LimitProb {
				continue
			}
		} else {
			if resting.LimitProb < incoming.LimitProb {
				continue
			}
		}
		candidates = append(candidates, resting)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, c := candidates[i], candidates[j]
		if a.LimitProb != c.LimitProb {
			if incoming.Side == SideBuy {
				return a.LimitProb < c.LimitProb // cheapest ask first
			}
			return a.LimitProb > c.LimitProb // highest bid first
		}
		return a.sequence < c.sequence
	})

	var fills []Fill
	for _, resting := range candidates {
		remaining := incoming.Remaining()
		if remaining <= 0 {
			break
		}
		qty := remaining
		if avail := resting.Remaining(); avail < qty {
			qty = avail
		}
		resting.FilledQty += qty
		incoming.FilledQty += qty
		fills = append(fills, Fill{
			MakerOrderID: resting.ID,
			MakerUserID:  resting.UserID,
			TakerUserID:  incoming.UserID,
			Price:        resting.LimitProb,
			Quantity:     qty,
			Timestamp:    now,
		})
	}
	return fills
}

// Cancel marks the unfilled remainder of an order cancelled. Only the owner
// may cancel; already-filled portions stay settled.
func (b *OrderBook) Cancel(orderID, userID string, now time.Time) (*LimitOrder, error) {
	o := b.Get(orderID)
	if o == nil {
		return nil, NotFoundf("order %s not found", orderID)
	}
	if o.UserID != userID {
		return nil, Unauthorizedf("order %s is not owned by %s", orderID, userID)
	}
	if o.Cancelled || o.Expired(now) {
		return nil, Conflictf("order %s is already cancelled", orderID)
	}
	if o.Filled() {
		return nil, Conflictf("order %s is fully filled", orderID)
	}
	o.Cancelled = true
	return o, nil
}

// ListOpen returns the open orders at the given time, optionally filtered
// by answer. Expired orders are marked cancelled as a side effect.
func (b *OrderBook) ListOpen(answerID string, now time.Time) []*LimitOrder {
	b.expireLazily(now)
	var open []*LimitOrder
	for _, o := range b.orders {
		if !o.Open(now) {
			continue
		}
		if answerID != "" && o.AnswerID != answerID {
			continue
		}
		open = append(open, o)
	}
	return open
}

// Levels aggregates open orders into per-price levels for display and
// matching diagnostics, best price first on every side.
func (b *OrderBook) Levels(answerID string, now time.Time) BookLevels {
	open := b.ListOpen(answerID, now)

	aggregate := func(outcome Outcome, side Side, bestHigh bool) []BookLevel {
		sums := map[float64]float64{}
		for _, o := range open {
			if o.Outcome != outcome || o.Side != side {
				continue
			}
			sums[o.LimitProb] += o.Remaining()
		}
		levels := make([]BookLevel, 0, len(sums))
		for price, size := range sums {
			levels = append(levels, BookLevel{Price: price, Size: size})
		}
		sort.Slice(levels, func(i, j int) bool {
			if bestHigh {
				return levels[i].Price > levels[j].Price
			}
			return levels[i].Price < levels[j].Price
		})
		return levels
	}

	return BookLevels{
		YesBids: aggregate(OutcomeYes, SideBuy, true),
		YesAsks: aggregate(OutcomeYes, SideSell, false),
		NoBids:  aggregate(OutcomeNo, SideBuy, true),
		NoAsks:  aggregate(OutcomeNo, SideSell, false),
	}
}

// CancelAll cancels every open order; used when a market resolves.
func (b *OrderBook) CancelAll(now time.Time) int {
	var n int
	for _, o := range b.orders {
		if o.Open(now) {
			o.Cancelled = true
			n++
		}
	}
	return n
}

func (b *OrderBook) expireLazily(now time.Time) {
	for _, o := range b.orders {
		if !o.Cancelled && o.Expired(now) {
			o.Cancelled = true
		}
	}
}
