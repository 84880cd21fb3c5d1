// ratelimit.go throttles outbound calls to the witness node so a bug in a
// bot's resize/recalc loop can't hammer a shared node with requests. Graphene
// nodes don't publish a formal per-connection rate limit the way a
// centralized exchange API does; the buckets here are conservative client-side
// defaults, refilling continuously rather than in fixed windows.
package chainclient

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a token-bucket rate limiter with continuous refill. Callers
// block in wait() until a token is available or the context is cancelled.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

func (tb *tokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// rateLimiter groups token buckets by call category: database reads can run
// much hotter than broadcast operations, which cost a chain fee on every
// call.
type rateLimiter struct {
	database          *tokenBucket // database_api reads: get_ticker, get_order_book, ...
	networkBroadcast  *tokenBucket // network_broadcast_api: limit_order_create/update/cancel
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		database:         newTokenBucket(60, 20),
		networkBroadcast: newTokenBucket(20, 5),
	}
}
