/**
 * @description
 * Limit order operations on the exchange service. Orders match peer to
 * peer at the resting order's price; the pool is not involved. Fill
 * settlement moves shares from the sell side to the buy side and adjusts
 * cost bases at the fill price.
 *
 * @dependencies
 * - internal/engine: order book matching
 * - github.com/google/uuid
 */

package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/logger"
)

// PlaceOrderInput describes a new limit order.
type PlaceOrderInput struct {
	UserID   string
	MarketID string
	// AnswerID is required for multi-choice markets.
	AnswerID  string
	Outcome   engine.Outcome
	Side      engine.Side
	LimitProb float64
	Quantity  float64
	// ExpiresAt is optional; nil orders rest until cancelled.
	ExpiresAt *time.Time
}

// OrderReceipt is the result of placing a limit order.
type OrderReceipt struct {
	Order *engine.LimitOrder `json:"order"`
	Fills []engine.Fill      `json:"fills"`
}

// PlaceOrder places a limit order, settling any immediate fills.
func (s *ExchangeService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*OrderReceipt, error) {
	st, err := s.state(in.MarketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.now()
	s.tickLocked(st, now)
	m := st.market
	if err := engine.GuardTradable(m); err != nil {
		return nil, err
	}
	if m.Kind == engine.KindMulti && m.AnswerByID(in.AnswerID) == nil {
		return nil, engine.NotFoundf("answer %s not found on market %s", in.AnswerID, in.MarketID)
	}
	if m.Kind == engine.KindBinary && in.AnswerID != "" {
		return nil, engine.Validationf("binary markets take no answer id")
	}

	if in.Side == engine.SideSell {
		pos := st.position(in.UserID, in.AnswerID)
		held := pos.YesShares
		if in.Outcome == engine.OutcomeNo {
			held = pos.NoShares
		}
		if held < in.Quantity {
			st.prune()
			return nil, engine.Liquidityf("insufficient %s shares to sell: have %.4f, need %.4f", in.Outcome, held, in.Quantity)
		}
	}

	order := &engine.LimitOrder{
		ID:        uuid.New().String(),
		MarketID:  in.MarketID,
		AnswerID:  in.AnswerID,
		UserID:    in.UserID,
		Outcome:   in.Outcome,
		Side:      in.Side,
		LimitProb: in.LimitProb,
		Quantity:  in.Quantity,
		CreatedAt: now,
		ExpiresAt: in.ExpiresAt,
	}

	fills, err := st.book.Place(order, now)
	if err != nil {
		st.prune()
		return nil, err
	}

	for _, f := range fills {
		s.settleFill(st, order, f)
	}
	st.prune()

	s.mirrorOrders(st)
	if len(fills) > 0 {
		s.mirrorPositions(st)
	}

	cp := *order
	return &OrderReceipt{Order: &cp, Fills: fills}, nil
}

// settleFill moves qty shares of the order's outcome from the sell side to
// the buy side at the fill price. Callers hold st.mu.
func (s *ExchangeService) settleFill(st *marketState, taker *engine.LimitOrder, f engine.Fill) {
	buyerID, sellerID := f.TakerUserID, f.MakerUserID
	if taker.Side == engine.SideSell {
		buyerID, sellerID = f.MakerUserID, f.TakerUserID
	}
	buyer := st.position(buyerID, taker.AnswerID)
	seller := st.position(sellerID, taker.AnswerID)
	cost := f.Quantity * f.Price

	if taker.Outcome == engine.OutcomeYes {
		buyer.YesShares += f.Quantity
		seller.YesShares = math.Max(0, seller.YesShares-f.Quantity)
	} else {
		buyer.NoShares += f.Quantity
		seller.NoShares = math.Max(0, seller.NoShares-f.Quantity)
	}
	buyer.CostBasis += cost
	seller.CostBasis = math.Max(0, seller.CostBasis-cost)
}

// CancelOrder cancels the unfilled remainder of the caller's order.
func (s *ExchangeService) CancelOrder(ctx context.Context, userID, marketID, orderID string) (*engine.LimitOrder, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.now()
	s.tickLocked(st, now)

	o, err := st.book.Cancel(orderID, userID, now)
	if err != nil {
		return nil, err
	}
	if mErr := s.Mirror.SaveOrder(o); mErr != nil {
		// In-memory cancel already happened; the mirror catches up on the
		// next order write.
		logger.Error("Failed to mirror cancelled order %s: %v", o.ID, mErr)
	}
	cp := *o
	return &cp, nil
}

// OpenOrders returns copies of the open orders on one market, optionally
// filtered by answer.
func (s *ExchangeService) OpenOrders(marketID, answerID string) ([]*engine.LimitOrder, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	open := st.book.ListOpen(answerID, s.now())
	out := make([]*engine.LimitOrder, 0, len(open))
	for _, o := range open {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

// BookLevels returns the aggregated depth snapshot for one market answer.
func (s *ExchangeService) BookLevels(marketID, answerID string) (engine.BookLevels, error) {
	st, err := s.state(marketID)
	if err != nil {
		return engine.BookLevels{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.Levels(answerID, s.now()), nil
}

// mirrorOrders persists every order touched since the last write.
// Callers hold st.mu.
func (s *ExchangeService) mirrorOrders(st *marketState) {
	if err := s.Mirror.SaveOrders(st.book.Orders()); err != nil {
		logger.Error("Failed to mirror orders for market %s: %v", st.market.ID, err)
	}
}
