package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/services"
)

// nullMirror satisfies services.MirrorStore without any persistence.
type nullMirror struct{}

func (nullMirror) SaveMarket(*engine.Market) error        { return nil }
func (nullMirror) SavePositions([]*engine.Position) error { return nil }
func (nullMirror) SaveOrder(*engine.LimitOrder) error     { return nil }
func (nullMirror) SaveOrders([]*engine.LimitOrder) error  { return nil }
func (nullMirror) AppendPrice(engine.PricePoint) error    { return nil }
func (nullMirror) LoadMarkets() ([]*engine.Market, error) { return nil, nil }
func (nullMirror) LoadPositions(string) ([]*engine.Position, error) {
	return nil, nil
}
func (nullMirror) LoadOpenOrders(string, time.Time) ([]*engine.LimitOrder, error) {
	return nil, nil
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		LiquidityMultiplier: 10,
		PoolFloor:           1,
		GraduationVolume:    1e9,
		GraduationDwell:     time.Minute,
		ChallengeWindow:     time.Hour,
		ChallengeBond:       100,
		MaxChartPoints:      500,
	}
}

// asUser fakes an authenticated caller for handler tests.
func asUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func TestStreamPriceUpdates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer redisClient.Close()

	exchange := services.NewExchangeService(redisClient, nullMirror{}, testConfig())
	market, err := exchange.CreateMarket(context.Background(), services.CreateMarketInput{
		CreatorID:   "alice",
		Question:    "Will it stream?",
		Kind:        engine.KindBinary,
		InitialProb: 0.5,
		Ante:        100,
		Weight:      0.5,
	})
	if err != nil {
		t.Fatalf("failed to create market: %v", err)
	}

	hub := services.NewPriceStreamHub(redisClient, services.PriceUpdateChannel)
	handler := NewMarketHandler(exchange, nil, hub)
	app := fiber.New()
	app.Get("/api/v1/markets/:id/stream", handler.StreamPrices)

	// app.Test buffers the whole response, so the stream is exercised over
	// a real listener instead.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	defer app.Shutdown()
	baseURL := "http://" + ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// The first payload belongs to another market and must be filtered out.
	go func() {
		time.Sleep(100 * time.Millisecond)
		other := `{"market_id":"other-market","probability":0.9}`
		_ = redisClient.Publish(context.Background(), services.PriceUpdateChannel, other).Err()
		mine := `{"market_id":"` + market.ID + `","probability":0.55}`
		_ = redisClient.Publish(context.Background(), services.PriceUpdateChannel, mine).Err()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/markets/"+market.ID+"/stream", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to call SSE endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-timeout:
			t.Fatal("timed out waiting for SSE data")
		default:
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read SSE line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				if strings.Contains(line, "other-market") {
					t.Fatalf("received another market's update: %s", line)
				}
				if !strings.Contains(line, market.ID) {
					t.Fatalf("unexpected SSE payload: %s", line)
				}
				return
			}
		}
	}
}

func TestCreateAndTradeThroughAPI(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer redisClient.Close()

	exchange := services.NewExchangeService(redisClient, nullMirror{}, testConfig())
	marketHandler := NewMarketHandler(exchange, nil, nil)
	tradeHandler := NewTradeHandler(exchange)

	app := fiber.New()
	app.Post("/api/v1/markets", asUser("alice"), marketHandler.CreateMarket)
	app.Get("/api/v1/markets/:id", marketHandler.GetMarket)
	app.Post("/api/v1/markets/:id/trade", asUser("bob"), tradeHandler.ExecuteTrade)
	app.Get("/api/v1/markets/:id/position", asUser("bob"), tradeHandler.GetPosition)

	body := `{"question":"Will the API hold?","kind":"BINARY","initial_prob":0.5,"ante":100,"weight":0.5}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/markets", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create market returned status %d", resp.StatusCode)
	}
	var market engine.Market
	decodeJSON(t, resp, &market)
	if market.ID == "" {
		t.Fatal("created market has no id")
	}

	resp = doJSON(t, app, http.MethodPost, "/api/v1/markets/"+market.ID+"/trade",
		`{"outcome":"YES","side":"BUY","amount":50}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trade returned status %d", resp.StatusCode)
	}
	var receipt services.TradeReceipt
	decodeJSON(t, resp, &receipt)
	if receipt.Result.Shares <= 0 {
		t.Fatalf("trade receipt has no shares: %+v", receipt)
	}
	if receipt.Result.ProbAfter <= receipt.Result.ProbBefore {
		t.Fatalf("buy did not raise the probability: %+v", receipt.Result)
	}

	resp = doJSON(t, app, http.MethodGet, "/api/v1/markets/"+market.ID+"/position", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("position returned status %d", resp.StatusCode)
	}
	var position engine.Position
	decodeJSON(t, resp, &position)
	if position.YesShares != receipt.Result.Shares {
		t.Fatalf("position shares %f do not match receipt shares %f", position.YesShares, receipt.Result.Shares)
	}

	// Validation failures surface as 400.
	resp = doJSON(t, app, http.MethodPost, "/api/v1/markets/"+market.ID+"/trade",
		`{"outcome":"MAYBE","side":"BUY","amount":50}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid outcome returned status %d", resp.StatusCode)
	}

	// Overselling surfaces as 422.
	resp = doJSON(t, app, http.MethodPost, "/api/v1/markets/"+market.ID+"/trade",
		`{"outcome":"NO","side":"SELL","shares":10}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("oversell returned status %d", resp.StatusCode)
	}

	// Unknown market surfaces as 404.
	resp = doJSON(t, app, http.MethodGet, "/api/v1/markets/does-not-exist", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown market returned status %d", resp.StatusCode)
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, int(5*time.Second/time.Millisecond))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
