// Package resize implements the resize pass (spec §4.7,
// updateGridFromBlockchainSnapshot): reallocating a side's slot sizes
// from its current chain balance without touching price or spread
// structure.
package resize

import (
	"fmt"

	"dexgrid/internal/boterrors"
	"dexgrid/internal/feecache"
	"dexgrid/internal/gridgen"
	"dexgrid/internal/slotstore"
	"dexgrid/pkg/types"
)

// Input carries everything a resize pass needs for one side of one bot.
// ChainTotal is the side's current account balance for the funding asset
// (assetB for BUY, assetA for SELL), already refetched by the caller if
// this is not a periodic-timer call.
type Input struct {
	Side types.Side

	ChainTotal        float64
	BotFundsValue     float64
	BotFundsIsPercent bool

	WeightDistribution float64
	IncrementPercent   float64
	SizePrecision      int

	// HoldsNativeToken is true when the funding asset for this side is
	// the chain's native fee token, in which case the 5x fee reservation
	// is subtracted from the allocation before it is distributed.
	HoldsNativeToken bool
	ActiveBuy        int
	ActiveSell       int
	NativePrecision  int
}

// Result reports what the pass computed, for the caller to fold into its
// fund view and persisted snapshot.
type Result struct {
	Allocated    float64
	CacheDelta   float64
	Warn         bool
}

// Pass reallocates a side's non-PARTIAL, non-SPREAD slot sizes from
// in.ChainTotal, in place in store. PARTIAL slots are left untouched —
// their committed capital is excluded from the reallocation pool, per the
// divergence detector's "ideal grid" definition (spec §4.6). Price and
// spread structure are never altered here.
func Pass(store *slotstore.Store, feeCache *feecache.Cache, in Input) (Result, error) {
	reallocable, alloc, err := computeAllocation(store, feeCache, in)
	if err != nil {
		return Result{}, err
	}

	warn, sizeErr := gridgen.CheckMinimumSizes(string(in.Side), alloc.Sizes, in.SizePrecision)
	if sizeErr != nil {
		return Result{}, sizeErr
	}

	for i, sl := range reallocable {
		sl.Size = alloc.Sizes[i]
		if err := store.Upsert(sl); err != nil {
			return Result{}, fmt.Errorf("resize: writing slot %s: %w", sl.ID, err)
		}
	}

	allocated := in.ChainTotal * in.BotFundsValue
	if !in.BotFundsIsPercent {
		allocated = in.BotFundsValue
		if allocated > in.ChainTotal {
			allocated = in.ChainTotal
		}
	}
	if in.HoldsNativeToken {
		allocated -= feeCache.Reservation(in.ActiveBuy, in.ActiveSell, in.NativePrecision)
	}
	if allocated < 0 {
		allocated = 0
	}

	return Result{
		Allocated:  allocated,
		CacheDelta: alloc.Surplus,
		Warn:       warn,
	}, nil
}

// Ideal reports what a side's non-PARTIAL, non-SPREAD slots would look
// like after a resize pass, without writing anything back to store. The
// divergence detector (spec §4.6) uses this as the "ideal grid" to compare
// against what is actually persisted, so a side drifting away from its
// target allocation gets caught between resize passes.
func Ideal(store *slotstore.Store, feeCache *feecache.Cache, in Input) ([]types.GridSlot, error) {
	reallocable, alloc, err := computeAllocation(store, feeCache, in)
	if err != nil {
		return nil, err
	}

	ideal := make([]types.GridSlot, len(reallocable))
	for i, sl := range reallocable {
		sl.Size = alloc.Sizes[i]
		ideal[i] = sl
	}
	return ideal, nil
}

// computeAllocation runs the reallocation math shared by Pass and Ideal:
// the side's reallocable (non-PARTIAL) slots in store order, alongside
// the allocation computed for them.
func computeAllocation(store *slotstore.Store, feeCache *feecache.Cache, in Input) ([]types.GridSlot, gridgen.Allocation, error) {
	slotType := types.SlotBuy
	if in.Side == types.Sell {
		slotType = types.SlotSell
	}

	allocated := in.ChainTotal * in.BotFundsValue
	if !in.BotFundsIsPercent {
		allocated = in.BotFundsValue
		if allocated > in.ChainTotal {
			allocated = in.ChainTotal
		}
	}
	if in.HoldsNativeToken {
		allocated -= feeCache.Reservation(in.ActiveBuy, in.ActiveSell, in.NativePrecision)
	}
	if allocated < 0 {
		allocated = 0
	}

	all := store.ByType(slotType)

	var partialTotal float64
	reallocable := make([]types.GridSlot, 0, len(all))
	for _, sl := range all {
		if sl.State == types.Partial {
			partialTotal += sl.Size
			continue
		}
		reallocable = append(reallocable, sl)
	}

	pool := allocated - partialTotal
	if pool < 0 {
		pool = 0
	}

	alloc, err := gridgen.Allocate(pool, len(reallocable), in.WeightDistribution, in.IncrementPercent, in.SizePrecision, in.Side == types.Sell)
	if err != nil {
		return nil, gridgen.Allocation{}, boterrors.NewConfigError("", fmt.Errorf("resize: %w", err))
	}
	return reallocable, alloc, nil
}
