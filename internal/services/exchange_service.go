/**
 * @description
 * Service coordinating all market state transitions. Owns the in-memory
 * market registry, the per-market order books, and the position ledger;
 * every mutation happens under the market's lock, then flows through the
 * persistence mirror and the Redis price channel.
 *
 * Key features:
 * - Lazy lifecycle ticks: every read and write path advances the market's
 *   phase before acting on it.
 * - Write-through persistence: mirror failures are logged, never fatal,
 *   because the in-memory state is authoritative.
 * - Price updates are published to Redis pub/sub for the SSE stream.
 *
 * @dependencies
 * - internal/engine: pure market mechanics
 * - internal/store: PostgreSQL mirror
 * - github.com/redis/go-redis/v9: price update pub/sub
 * - github.com/ethereum/go-ethereum/crypto: condition id derivation
 * - github.com/google/uuid
 */

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/logger"
)

const (
	// PriceUpdateChannel is the Redis pub/sub channel carrying price points.
	PriceUpdateChannel = "market:price_updates"
)

// MirrorStore is the subset of the persistence mirror the service needs.
// Satisfied by *store.Mirror; tests substitute an in-memory fake.
type MirrorStore interface {
	SaveMarket(m *engine.Market) error
	SavePositions(positions []*engine.Position) error
	SaveOrder(o *engine.LimitOrder) error
	SaveOrders(orders []*engine.LimitOrder) error
	AppendPrice(p engine.PricePoint) error
	LoadMarkets() ([]*engine.Market, error)
	LoadPositions(marketID string) ([]*engine.Position, error)
	LoadOpenOrders(marketID string, now time.Time) ([]*engine.LimitOrder, error)
}

type posKey struct {
	userID   string
	answerID string
}

// marketState bundles one market with its book and positions under a
// single lock.
type marketState struct {
	mu        sync.Mutex
	market    *engine.Market
	book      *engine.OrderBook
	positions map[posKey]*engine.Position
}

func (st *marketState) position(userID, answerID string) *engine.Position {
	key := posKey{userID: userID, answerID: answerID}
	pos, ok := st.positions[key]
	if !ok {
		pos = &engine.Position{
			UserID:   userID,
			MarketID: st.market.ID,
			AnswerID: answerID,
		}
		st.positions[key] = pos
	}
	return pos
}

func (st *marketState) prune() {
	for key, pos := range st.positions {
		if pos.Empty() {
			delete(st.positions, key)
		}
	}
}

type ExchangeService struct {
	Redis  *redis.Client
	Mirror MirrorStore
	Cfg    config.EngineConfig

	mu      sync.RWMutex
	markets map[string]*marketState

	// now is swappable in tests.
	now func() time.Time
}

func NewExchangeService(redisClient *redis.Client, mirror MirrorStore, cfg config.EngineConfig) *ExchangeService {
	return &ExchangeService{
		Redis:   redisClient,
		Mirror:  mirror,
		Cfg:     cfg,
		markets: make(map[string]*marketState),
		now:     time.Now,
	}
}

func (s *ExchangeService) lifecycle() engine.LifecycleConfig {
	return engine.LifecycleConfig{
		VolumeThreshold: s.Cfg.GraduationVolume,
		Dwell:           s.Cfg.GraduationDwell,
	}
}

// Restore rebuilds the in-memory registry from the mirror. Called once at
// startup before the HTTP listener starts.
func (s *ExchangeService) Restore() error {
	markets, err := s.Mirror.LoadMarkets()
	if err != nil {
		return fmt.Errorf("failed to restore markets: %w", err)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		st := &marketState{
			market:    m,
			book:      engine.NewOrderBook(m.ID),
			positions: make(map[posKey]*engine.Position),
		}
		positions, err := s.Mirror.LoadPositions(m.ID)
		if err != nil {
			return fmt.Errorf("failed to restore positions for market %s: %w", m.ID, err)
		}
		for _, p := range positions {
			st.positions[posKey{userID: p.UserID, answerID: p.AnswerID}] = p
		}
		orders, err := s.Mirror.LoadOpenOrders(m.ID, now)
		if err != nil {
			return fmt.Errorf("failed to restore orders for market %s: %w", m.ID, err)
		}
		for _, o := range orders {
			st.book.Restore(o)
		}
		s.markets[m.ID] = st
	}
	logger.Info("Restored %d markets from the mirror", len(markets))
	return nil
}

func (s *ExchangeService) state(marketID string) (*marketState, error) {
	s.mu.RLock()
	st, ok := s.markets[marketID]
	s.mu.RUnlock()
	if !ok {
		return nil, engine.NotFoundf("market %s not found", marketID)
	}
	return st, nil
}

// tickLocked advances the market's lifecycle and mirrors a phase change.
// Callers hold st.mu.
func (s *ExchangeService) tickLocked(st *marketState, now time.Time) {
	if engine.Tick(st.market, now, s.lifecycle()) {
		s.mirrorMarket(st.market)
	}
}

// CreateMarketInput carries everything needed to open a market.
type CreateMarketInput struct {
	CreatorID   string
	Question    string
	Kind        engine.MarketKind
	InitialProb float64
	Ante        float64
	// AnswerLabels is required for multi-choice markets.
	AnswerLabels []string
	SumToOne     bool
	// Weight is the probability weighting parameter p in (0,1).
	Weight float64
	// FeeBps is the trading fee in basis points, at most engine.MaxFeeBps.
	FeeBps int
	// OracleSource, when set, registers the market for oracle resolution
	// once OracleDeadline passes.
	OracleSource   string
	OracleDeadline time.Time
}

// CreateMarket opens a new sandbox market seeded with the creator's ante.
func (s *ExchangeService) CreateMarket(ctx context.Context, in CreateMarketInput) (*engine.Market, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, engine.Validationf("question is required")
	}
	if in.Ante <= 0 {
		return nil, engine.Validationf("ante must be positive")
	}
	if in.Weight <= 0 || in.Weight >= 1 {
		return nil, engine.Validationf("weight must be in (0,1)")
	}
	if in.FeeBps < 0 || in.FeeBps > engine.MaxFeeBps {
		return nil, engine.Validationf("fee_bps must be between 0 and %d", engine.MaxFeeBps)
	}

	now := s.now()
	id := uuid.New().String()
	m := &engine.Market{
		ID:          id,
		ConditionID: deriveConditionID(in.CreatorID, in.Question, id),
		CreatorID:   in.CreatorID,
		Question:    strings.TrimSpace(in.Question),
		Kind:        in.Kind,
		Weight:      in.Weight,
		FeeBps:      in.FeeBps,
		Phase:       engine.PhaseSandbox,
		CreatedAt:   now,
	}

	switch in.Kind {
	case engine.KindBinary:
		if in.InitialProb <= 0 || in.InitialProb >= 1 {
			return nil, engine.Validationf("initial probability must be in (0,1)")
		}
		m.Pool = engine.NewPool(in.Ante, in.InitialProb, s.Cfg.LiquidityMultiplier)
	case engine.KindMulti:
		if len(in.AnswerLabels) < 2 {
			return nil, engine.Validationf("multi-choice markets need at least two answers")
		}
		ids := make([]string, len(in.AnswerLabels))
		for i := range in.AnswerLabels {
			ids[i] = uuid.New().String()
		}
		m.Answers = engine.NewAnswers(ids, in.AnswerLabels, in.Ante, s.Cfg.LiquidityMultiplier)
		m.SumToOne = in.SumToOne
		if in.SumToOne {
			// Seeded pools imply equal probabilities that need not sum to
			// one; normalize before the market opens.
			if err := engine.Rebalance(m); err != nil {
				return nil, err
			}
		}
	default:
		return nil, engine.Validationf("unknown market kind %q", in.Kind)
	}

	if in.OracleSource != "" {
		if in.OracleDeadline.IsZero() {
			return nil, engine.Validationf("oracle markets require a resolution deadline")
		}
		m.Oracle = &engine.OracleConfig{Source: in.OracleSource, Deadline: in.OracleDeadline}
	}

	st := &marketState{
		market:    m,
		book:      engine.NewOrderBook(m.ID),
		positions: make(map[posKey]*engine.Position),
	}
	s.mu.Lock()
	s.markets[m.ID] = st
	s.mu.Unlock()

	s.mirrorMarket(m)
	logger.Info("Created %s market %s (%q)", m.Kind, m.ID, m.Question)
	return snapshotMarket(m), nil
}

// GetMarket returns a copy of one market after a lifecycle tick.
func (s *ExchangeService) GetMarket(marketID string) (*engine.Market, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	return snapshotMarket(st.market), nil
}

// ListMarkets returns copies of all markets, optionally filtered by phase,
// newest first.
func (s *ExchangeService) ListMarkets(phase engine.Phase) []*engine.Market {
	s.mu.RLock()
	states := make([]*marketState, 0, len(s.markets))
	for _, st := range s.markets {
		states = append(states, st)
	}
	s.mu.RUnlock()

	now := s.now()
	out := make([]*engine.Market, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		s.tickLocked(st, now)
		if phase == "" || st.market.Phase == phase {
			out = append(out, snapshotMarket(st.market))
		}
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GraduationProgress reports how far a sandbox market is from graduating.
func (s *ExchangeService) GraduationProgress(marketID string) (*engine.GraduationProgress, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := s.now()
	s.tickLocked(st, now)
	return engine.Progress(st.market, now, s.lifecycle()), nil
}

// TradeInput describes one market order against the pool.
type TradeInput struct {
	UserID   string
	MarketID string
	// AnswerID is required for multi-choice markets.
	AnswerID string
	Outcome  engine.Outcome
	Side     engine.Side
	// Amount is cash in for buys; Shares is shares out for sells.
	Amount float64
	Shares float64
}

// TradeReceipt is the result of an executed pool trade.
type TradeReceipt struct {
	MarketID   string             `json:"market_id"`
	AnswerID   string             `json:"answer_id,omitempty"`
	Outcome    engine.Outcome     `json:"outcome"`
	Side       engine.Side        `json:"side"`
	Result     engine.TradeResult `json:"result"`
	ExecutedAt time.Time          `json:"executed_at"`
}

// Trade executes a buy or sell against the market's pool.
func (s *ExchangeService) Trade(ctx context.Context, in TradeInput) (*TradeReceipt, error) {
	if !in.Outcome.Valid() {
		return nil, engine.Validationf("unknown outcome %q", in.Outcome)
	}
	if !in.Side.Valid() {
		return nil, engine.Validationf("unknown side %q", in.Side)
	}
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

	params := engine.CurveParams{Weight: m.Weight, Floor: s.Cfg.PoolFloor, FeeBps: m.FeeBps}
	pos := st.position(in.UserID, in.AnswerID)

	var res engine.TradeResult
	switch in.Side {
	case engine.SideBuy:
		if in.Amount <= 0 {
			return nil, engine.Validationf("buy amount must be positive")
		}
		res, err = s.executeBuy(m, in, params)
		if err != nil {
			return nil, err
		}
		if in.Outcome == engine.OutcomeYes {
			pos.YesShares += res.Shares
		} else {
			pos.NoShares += res.Shares
		}
		pos.CostBasis += in.Amount
	case engine.SideSell:
		if in.Shares <= 0 {
			return nil, engine.Validationf("sell shares must be positive")
		}
		held := pos.YesShares
		if in.Outcome == engine.OutcomeNo {
			held = pos.NoShares
		}
		if held < in.Shares {
			return nil, engine.Liquidityf("insufficient %s shares: have %.4f, need %.4f", in.Outcome, held, in.Shares)
		}
		res, err = s.executeSell(m, in, params)
		if err != nil {
			return nil, err
		}
		if in.Outcome == engine.OutcomeYes {
			pos.YesShares -= in.Shares
		} else {
			pos.NoShares -= in.Shares
		}
		// Cashing out returns principal; a CANCEL refund only covers what
		// is still at risk.
		pos.CostBasis = math.Max(0, pos.CostBasis-res.Payout)
	}

	st.prune()
	s.tickLocked(st, now)
	s.mirrorTrade(st, m, in.AnswerID, res, now)

	return &TradeReceipt{
		MarketID:   m.ID,
		AnswerID:   in.AnswerID,
		Outcome:    in.Outcome,
		Side:       in.Side,
		Result:     res,
		ExecutedAt: now,
	}, nil
}

func (s *ExchangeService) executeBuy(m *engine.Market, in TradeInput, params engine.CurveParams) (engine.TradeResult, error) {
	if m.Kind == engine.KindMulti {
		return engine.BuyAnswer(m, in.AnswerID, in.Outcome, in.Amount, params)
	}
	if in.AnswerID != "" {
		return engine.TradeResult{}, engine.Validationf("binary markets take no answer id")
	}
	next, res, err := m.Pool.Buy(in.Outcome, in.Amount, params)
	if err != nil {
		return res, err
	}
	m.Pool = next
	m.Volume += in.Amount
	m.CollectedFees += res.Fee
	return res, nil
}

func (s *ExchangeService) executeSell(m *engine.Market, in TradeInput, params engine.CurveParams) (engine.TradeResult, error) {
	if m.Kind == engine.KindMulti {
		return engine.SellAnswer(m, in.AnswerID, in.Shares, in.Outcome, params)
	}
	if in.AnswerID != "" {
		return engine.TradeResult{}, engine.Validationf("binary markets take no answer id")
	}
	next, res, err := m.Pool.Sell(in.Outcome, in.Shares, params)
	if err != nil {
		return res, err
	}
	m.Pool = next
	m.Volume += res.Payout
	m.CollectedFees += res.Fee
	return res, nil
}

// SetMarketFees updates a market's trading fee. Creator only.
func (s *ExchangeService) SetMarketFees(ctx context.Context, userID, marketID string, feeBps int) (*engine.Market, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	if err := engine.SetFees(st.market, userID, feeBps); err != nil {
		return nil, err
	}
	s.mirrorMarket(st.market)
	return snapshotMarket(st.market), nil
}

// AddLiquidity deepens a market's pool without moving its probability.
func (s *ExchangeService) AddLiquidity(ctx context.Context, marketID, answerID string, amount float64) (*engine.Market, error) {
	if amount <= 0 {
		return nil, engine.Validationf("liquidity amount must be positive")
	}
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	m := st.market
	if err := engine.GuardTradable(m); err != nil {
		return nil, err
	}

	if m.Kind == engine.KindMulti {
		a := m.AnswerByID(answerID)
		if a == nil {
			return nil, engine.NotFoundf("answer %s not found on market %s", answerID, marketID)
		}
		a.Pool = a.Pool.AddLiquidity(amount, s.Cfg.LiquidityMultiplier)
	} else {
		if answerID != "" {
			return nil, engine.Validationf("binary markets take no answer id")
		}
		m.Pool = m.Pool.AddLiquidity(amount, s.Cfg.LiquidityMultiplier)
	}
	s.mirrorMarket(m)
	return snapshotMarket(m), nil
}

// Position returns a copy of one user's holding, which may be empty.
func (s *ExchangeService) Position(userID, marketID, answerID string) (*engine.Position, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	key := posKey{userID: userID, answerID: answerID}
	if pos, ok := st.positions[key]; ok {
		cp := *pos
		return &cp, nil
	}
	return &engine.Position{UserID: userID, MarketID: marketID, AnswerID: answerID}, nil
}

// UserPositions returns copies of all of a user's non-empty positions.
func (s *ExchangeService) UserPositions(userID string) []*engine.Position {
	s.mu.RLock()
	states := make([]*marketState, 0, len(s.markets))
	for _, st := range s.markets {
		states = append(states, st)
	}
	s.mu.RUnlock()

	var out []*engine.Position
	for _, st := range states {
		st.mu.Lock()
		for key, pos := range st.positions {
			if key.userID == userID && !pos.Empty() {
				cp := *pos
				out = append(out, &cp)
			}
		}
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].AnswerID < out[j].AnswerID
	})
	return out
}

// mirrorTrade persists the post-trade state and publishes price points.
// Callers hold st.mu.
func (s *ExchangeService) mirrorTrade(st *marketState, m *engine.Market, answerID string, res engine.TradeResult, now time.Time) {
	s.mirrorMarket(m)
	s.mirrorPositions(st)
	s.publishPrices(m, answerID, now)
}

func (s *ExchangeService) mirrorMarket(m *engine.Market) {
	if err := s.Mirror.SaveMarket(m); err != nil {
		logger.Error("Failed to mirror market %s: %v", m.ID, err)
	}
}

func (s *ExchangeService) mirrorPositions(st *marketState) {
	positions := make([]*engine.Position, 0, len(st.positions))
	for _, p := range st.positions {
		positions = append(positions, p)
	}
	if err := s.Mirror.SavePositions(positions); err != nil {
		logger.Error("Failed to mirror positions for market %s: %v", st.market.ID, err)
	}
}

// publishPrices records a price sample per affected answer and fans it out
// over Redis. Dependent multi-choice trades move every sibling, so all
// answers are sampled.
func (s *ExchangeService) publishPrices(m *engine.Market, tradedAnswerID string, now time.Time) {
	var points []engine.PricePoint
	switch {
	case m.Kind == engine.KindBinary:
		points = append(points, engine.PricePoint{
			MarketID:    m.ID,
			Probability: m.Pool.Prob(m.Weight),
			Volume:      m.Volume,
			Timestamp:   now,
		})
	case m.SumToOne:
		for _, a := range m.Answers {
			points = append(points, engine.PricePoint{
				MarketID:    m.ID,
				AnswerID:    a.ID,
				Probability: a.Pool.Prob(m.Weight),
				Volume:      a.Volume,
				Timestamp:   now,
			})
		}
	default:
		a := m.AnswerByID(tradedAnswerID)
		if a == nil {
			return
		}
		points = append(points, engine.PricePoint{
			MarketID:    m.ID,
			AnswerID:    a.ID,
			Probability: a.Pool.Prob(m.Weight),
			Volume:      a.Volume,
			Timestamp:   now,
		})
	}

	ctx := context.Background()
	for _, p := range points {
		if err := s.Mirror.AppendPrice(p); err != nil {
			logger.Error("Failed to append price point for market %s: %v", m.ID, err)
		}
		payload, err := json.Marshal(p)
		if err != nil {
			continue
		}
		if s.Redis != nil {
			if err := s.Redis.Publish(ctx, PriceUpdateChannel, payload).Err(); err != nil {
				logger.Error("Failed to publish price update for market %s: %v", m.ID, err)
			}
		}
	}
}

// deriveConditionID hashes the market's identity the way on-chain
// prediction markets derive condition ids.
func deriveConditionID(creatorID, question, nonce string) string {
	digest := crypto.Keccak256([]byte(creatorID), []byte(question), []byte(nonce))
	return "0x" + fmt.Sprintf("%x", digest)
}

// snapshotMarket deep-copies a market so callers can read it outside the
// market lock.
func snapshotMarket(m *engine.Market) *engine.Market {
	cp := *m
	if len(m.Answers) > 0 {
		cp.Answers = make([]*engine.Answer, len(m.Answers))
		for i, a := range m.Answers {
			ac := *a
			cp.Answers[i] = &ac
		}
	}
	if m.GraduationStartedAt != nil {
		t := *m.GraduationStartedAt
		cp.GraduationStartedAt = &t
	}
	if m.Oracle != nil {
		o := *m.Oracle
		cp.Oracle = &o
	}
	if m.Proposal != nil {
		p := *m.Proposal
		cp.Proposal = &p
	}
	if m.Challenge != nil {
		c := *m.Challenge
		cp.Challenge = &c
	}
	if m.Resolution != nil {
		r := *m.Resolution
		cp.Resolution = &r
	}
	return &cp
}
