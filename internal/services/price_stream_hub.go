/**
 * @description
 * Fan-out hub between the Redis price channel and SSE clients. One Redis
 * subscription feeds every connected client; subscribers can scope
 * themselves to a single market.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type streamSubscriber struct {
	ch chan []byte
	// marketID filters deliveries; empty receives everything.
	marketID string
}

// PriceStreamHub multiplexes Redis pub/sub messages to many SSE clients
// without spawning a Redis subscription per HTTP request.
type PriceStreamHub struct {
	redis       *redis.Client
	channelName string

	mu          sync.RWMutex
	subscribers map[*streamSubscriber]struct{}
}

func NewPriceStreamHub(redisClient *redis.Client, channel string) *PriceStreamHub {
	hub := &PriceStreamHub{
		redis:       redisClient,
		channelName: channel,
		subscribers: make(map[*streamSubscriber]struct{}),
	}

	go hub.run()

	return hub
}

func (h *PriceStreamHub) run() {
	ctx := context.Background()

	for {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		ch := pubsub.Channel(redis.WithChannelSize(16384))

		for msg := range ch {
			h.broadcast([]byte(msg.Payload))
		}

		_ = pubsub.Close()

		// Avoid tight loop if Redis connection drops
		time.Sleep(time.Second)
	}
}

func (h *PriceStreamHub) broadcast(payload []byte) {
	marketID := peekMarketID(payload)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if sub.marketID != "" && sub.marketID != marketID {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			// Subscriber is too slow; shed its oldest message to keep
			// the hub responsive
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a listener for one market's price points. An empty
// marketID receives every market. Returns the channel plus a cleanup
// function.
func (h *PriceStreamHub) Subscribe(marketID string) (<-chan []byte, func()) {
	sub := &streamSubscriber{
		ch:       make(chan []byte, 512),
		marketID: marketID,
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[sub]; ok {
			delete(h.subscribers, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}

	return sub.ch, unsubscribe
}

// peekMarketID extracts just the market id from a price point payload.
func peekMarketID(payload []byte) string {
	var probe struct {
		MarketID string `json:"market_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.MarketID
}
