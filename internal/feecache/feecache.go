// Package feecache resolves and caches per-asset market fees and
// per-operation chain fees, and computes the fee reservation a bot must
// set aside before allocating funds to its grid (spec §4.3, §6
// getGlobalProperties).
package feecache

import (
	"context"
	"fmt"
	"math"
	"sync"

	"dexgrid/internal/chain"
	"dexgrid/pkg/types"
)

// Cache is resolved once at startup and read-only after warmup, per the
// "replace global mutable state with explicitly owned contexts" design
// note (spec §9).
type Cache struct {
	mu    sync.RWMutex
	props types.GlobalProperties
	ready bool
}

// New creates an empty, unwarmed cache.
func New() *Cache {
	return &Cache{}
}

// Warm fetches current global properties (chain-wide operation fees)
// from the chain client and stores them.
func (c *Cache) Warm(ctx context.Context, client chain.Client) error {
	props, err := client.GetGlobalProperties(ctx)
	if err != nil {
		return fmt.Errorf("feecache: warm: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = props
	c.ready = true
	return nil
}

// CreateOrderFee returns the cached per-order creation fee, in native
// chain token integer units.
func (c *Cache) CreateOrderFee() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.CreateOrderFee, c.ready
}

// Reservation computes the 5x fee reservation: 1x for creation plus a 4x
// buffer for future rotations, across the target number of ACTIVE +
// PARTIAL slots on both sides (spec §4.3).
//
// Reservation is only meaningful if one of the bot's two assets is the
// native chain token; callers check that before subtracting the result
// from that side's allocation. The reservation never goes below 0.
func (c *Cache) Reservation(activeBuy, activeSell int, nativePrecision int) float64 {
	createFee, ready := c.CreateOrderFee()
	if !ready {
		return 0
	}

	units := createFee * 5 * int64(activeBuy+activeSell)
	if units < 0 {
		units = 0
	}
	return float64(units) / math.Pow10(nativePrecision)
}
