// Package oracle derives the reference price for a bot's pair from the
// chain's liquidity pools, ticker, or aggregated order book, following
// the fallback chains in spec §6: "pool" falls back to market, "market"
// may fall back to orderbook, "auto" tries pool then market.
package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"dexgrid/internal/chain"
	"dexgrid/pkg/types"
)

// Oracle derives reference prices, coalescing concurrent lookups for the
// same pair so that two bots sharing an asset pair (or a resize racing a
// periodic refresh) issue one chain round trip instead of two.
type Oracle struct {
	client chain.Client
	logger *slog.Logger
	group  singleflight.Group
}

// New creates an Oracle backed by the given chain client.
func New(client chain.Client, logger *slog.Logger) *Oracle {
	return &Oracle{client: client, logger: logger.With("component", "oracle")}
}

// Price derives the reference price for assetA/assetB per the requested
// mode.
func (o *Oracle) Price(ctx context.Context, assetA, assetB types.Asset, mode types.PriceMode) (float64, error) {
	key := fmt.Sprintf("%s:%s:%s:%s", assetA.ID, assetB.ID, mode, "price")
	v, err, _ := o.group.Do(key, func() (any, error) {
		return o.derive(ctx, assetA, assetB, mode)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (o *Oracle) derive(ctx context.Context, assetA, assetB types.Asset, mode types.PriceMode) (float64, error) {
	switch mode {
	case types.PriceModePool:
		if p, err := o.fromPool(ctx, assetA, assetB); err == nil {
			return p, nil
		}
		o.logger.Warn("pool price unavailable, falling back to market", "assetA", assetA.Symbol, "assetB", assetB.Symbol)
		return o.fromMarket(ctx, assetA, assetB, true)

	case types.PriceModeMarket:
		return o.fromMarket(ctx, assetA, assetB, true)

	case types.PriceModeAuto:
		if p, err := o.fromPool(ctx, assetA, assetB); err == nil {
			return p, nil
		}
		return o.fromMarket(ctx, assetA, assetB, true)

	default:
		return 0, fmt.Errorf("oracle: unknown price mode %q", mode)
	}
}

// fromPool selects the pool between assetA and assetB with the highest
// asset-A balance when multiple pools match the pair (spec §6).
func (o *Oracle) fromPool(ctx context.Context, assetA, assetB types.Asset) (float64, error) {
	pool, err := o.client.GetLiquidityPool(ctx, assetA.ID, assetB.ID)
	if err != nil {
		return 0, fmt.Errorf("oracle: get liquidity pool: %w", err)
	}
	if pool.BalanceA <= 0 || pool.BalanceB <= 0 {
		return 0, fmt.Errorf("oracle: pool %s has no liquidity", pool.ID)
	}
	return float64(pool.BalanceB) / float64(pool.BalanceA), nil
}

// fromMarket uses the ticker; if allowOrderbookFallback is set and the
// ticker is unavailable, it falls back to the aggregated order-book
// average.
func (o *Oracle) fromMarket(ctx context.Context, assetA, assetB types.Asset, allowOrderbookFallback bool) (float64, error) {
	ticker, err := o.client.GetTicker(ctx, assetA.ID, assetB.ID)
	if err == nil && ticker.LastPrice > 0 {
		return ticker.LastPrice, nil
	}
	if !allowOrderbookFallback {
		if err != nil {
			return 0, fmt.Errorf("oracle: get ticker: %w", err)
		}
		return 0, fmt.Errorf("oracle: ticker returned no price")
	}

	o.logger.Warn("ticker unavailable, falling back to order book average", "assetA", assetA.Symbol, "assetB", assetB.Symbol)
	return o.fromOrderBook(ctx, assetA, assetB)
}

// fromOrderBook averages the best bid and best ask of an aggregated
// order book snapshot.
func (o *Oracle) fromOrderBook(ctx context.Context, assetA, assetB types.Asset) (float64, error) {
	book, err := o.client.GetOrderBook(ctx, assetA.ID, assetB.ID, 1)
	if err != nil {
		return 0, fmt.Errorf("oracle: get order book: %w", err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, fmt.Errorf("oracle: order book has no depth for %s/%s", assetA.Symbol, assetB.Symbol)
	}
	return (book.Bids[0].Price + book.Asks[0].Price) / 2, nil
}
