// Package rotator implements the fill-driven rotation pass (spec §4.8):
// reacting to one fill event by updating the filled slot's state and, on
// a full fill, promoting the nearest virtual slot on the opposite side.
package rotator

import (
	"fmt"
	"math"

	"dexgrid/internal/fixedpoint"
	"dexgrid/internal/slotstore"
	"dexgrid/pkg/types"
)

// Config carries the per-bot constants a fill needs that aren't on the
// slot or the fill event itself.
type Config struct {
	AssetAPrecision int // SELL slot sizes are denominated in asset A
	AssetBPrecision int // BUY slot sizes are denominated in asset B
	MarketPrice     float64
	TargetActive    types.SideInt // activeOrders target per side
}

// Result is what a fill produces: a batch of chain actions to apply (at
// most one create, for a rotation), and a cache credit to post to the
// opposite side's cacheFunds once the caller applies it.
type Result struct {
	Batch          types.BatchUpdate
	ProceedsSide   types.Side
	ProceedsAmount float64
	Rotated        bool
}

// HandleFill applies one fill event to the slot it refers to. The caller
// is responsible for invoking the divergence detector after applying the
// returned batch (spec §4.8 step 6) and for crediting ProceedsAmount onto
// ProceedsSide's cacheFunds.
func HandleFill(store *slotstore.Store, fill types.FillEvent, cfg Config) (Result, error) {
	slot, ok := findByChainOrderID(store, fill.ChainOrderID)
	if !ok {
		return Result{}, fmt.Errorf("rotator: no slot for chain order %s", fill.ChainOrderID)
	}
	if slot.Type == types.SlotSpread {
		return Result{}, fmt.Errorf("rotator: chain order %s maps to a SPREAD slot %s", fill.ChainOrderID, slot.ID)
	}

	precision := cfg.AssetBPrecision
	if slot.Type == types.SlotSell {
		precision = cfg.AssetAPrecision
	}

	if fill.RemainingSize > 0 {
		if slot.OriginalSize == 0 {
			slot.OriginalSize = slot.Size
		}
		slot.State = types.Partial
		slot.Size = fixedpoint.ToFloat(fill.RemainingSize, precision)
		if err := store.Upsert(slot); err != nil {
			return Result{}, fmt.Errorf("rotator: updating partial fill on %s: %w", slot.ID, err)
		}
		return Result{}, nil
	}

	filledHuman := fixedpoint.ToFloat(fill.FilledAmount, precision)

	var proceeds float64
	var oppositeType types.SlotType
	var proceedsSide types.Side
	if slot.Type == types.SlotBuy {
		if slot.Price > 0 {
			proceeds = filledHuman / slot.Price
		}
		oppositeType = types.SlotSell
		proceedsSide = types.Sell
	} else {
		proceeds = filledHuman * slot.Price
		oppositeType = types.SlotBuy
		proceedsSide = types.Buy
	}

	filled := slot
	filled.Type = types.SlotSpread
	filled.State = types.Virtual
	filled.Size = 0
	filled.ChainOrderID = ""
	filled.OriginalSize = 0
	if err := store.Upsert(filled); err != nil {
		return Result{}, fmt.Errorf("rotator: converting %s to SPREAD: %w", slot.ID, err)
	}

	result := Result{ProceedsSide: proceedsSide, ProceedsAmount: proceeds}

	target := cfg.TargetActive.Buy
	if oppositeType == types.SlotSell {
		target = cfg.TargetActive.Sell
	}
	activeCount := store.Count(oppositeType, types.Active, types.Partial)
	if activeCount >= target {
		return result, nil
	}

	candidates := store.ByTypeAndState(oppositeType, types.Virtual)
	if len(candidates) == 0 {
		// Edge of grid: nothing further out to rotate into. Left as
		// SPREAD until the next resize extends the grid (spec §4.8 step 4).
		return result, nil
	}

	best := candidates[0]
	bestDelta := math.Abs(best.Price - cfg.MarketPrice)
	for _, c := range candidates[1:] {
		d := math.Abs(c.Price - cfg.MarketPrice)
		if d < bestDelta {
			best, bestDelta = c, d
		}
	}

	result.Batch.OrdersToPlace = append(result.Batch.OrdersToPlace, types.OrderToPlace{
		SlotID: best.ID,
		Type:   best.Type,
		Price:  best.Price,
		Size:   best.Size,
	})
	result.Rotated = true
	return result, nil
}

func findByChainOrderID(store *slotstore.Store, chainOrderID string) (types.GridSlot, bool) {
	for _, s := range store.All() {
		if s.ChainOrderID == chainOrderID {
			return s, true
		}
	}
	return types.GridSlot{}, false
}

// MinimumDelta applies the minimum-delta edge case for a PARTIAL order's
// price-only update (spec §4.8): when deltaAmount is 0 but the price
// changed, a ±1 integer-unit amount delta is added so the update has
// economic effect — but only if the new price moves toward the market
// center (|newPrice-mp| < |oldPrice-mp|). Otherwise the update is
// reported as skipped so the caller can log a warning and drop it.
func MinimumDelta(oldPrice, newPrice, mp float64, deltaAmount int64) (adjusted int64, skip bool) {
	if deltaAmount != 0 || oldPrice == newPrice {
		return deltaAmount, false
	}
	if math.Abs(newPrice-mp) < math.Abs(oldPrice-mp) {
		return 1, false
	}
	return 0, true
}
