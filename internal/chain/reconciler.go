package chain

import (
	"math"

	"dexgrid/internal/fixedpoint"
	"dexgrid/pkg/types"
)

// SlotStore is the subset of slotstore.Store the reconciler needs. Kept
// as a local interface so this package never imports internal/slotstore,
// matching the spec's framing of reconciliation as pure diff logic over
// already-fetched data (§4.5) rather than a store-owning component.
type SlotStore interface {
	All() []types.GridSlot
	Get(id string) (types.GridSlot, bool)
	Upsert(slot types.GridSlot) error
	ByTypeAndState(t types.SlotType, state types.SlotState) []types.GridSlot
	Count(t types.SlotType, states ...types.SlotState) int
}

// ParsedOrder is a chain order after it has been classified into a grid
// side using the bot's two assets.
type ParsedOrder struct {
	ChainID string
	Type    types.SlotType
	Price   float64 // assetB-per-assetA
	Size    float64 // in the side's native units (A for SELL, B for BUY)
}

// ParseOrder classifies a raw chain order against the bot's assets. The
// side is determined by which asset is the base of sell_price: base ==
// assetA means SELL (A for B); base == assetB means BUY (B for A).
func ParseOrder(o types.ChainOrder, assetA, assetB types.Asset) (ParsedOrder, bool) {
	base := o.SellPrice.Base
	quote := o.SellPrice.Quote

	switch base.AssetID {
	case assetA.ID:
		if quote.AssetID != assetB.ID {
			return ParsedOrder{}, false
		}
		baseHuman := fixedpoint.ToFloat(base.Amount, assetA.Precision)
		quoteHuman := fixedpoint.ToFloat(quote.Amount, assetB.Precision)
		price := quoteHuman / baseHuman
		size := fixedpoint.ToFloat(o.ForSale, assetA.Precision)
		return ParsedOrder{ChainID: o.ID, Type: types.SlotSell, Price: price, Size: size}, true

	case assetB.ID:
		if quote.AssetID != assetA.ID {
			return ParsedOrder{}, false
		}
		baseHuman := fixedpoint.ToFloat(base.Amount, assetB.Precision)
		quoteHuman := fixedpoint.ToFloat(quote.Amount, assetA.Precision)
		price := baseHuman / quoteHuman
		size := fixedpoint.ToFloat(o.ForSale, assetB.Precision)
		return ParsedOrder{ChainID: o.ID, Type: types.SlotBuy, Price: price, Size: size}, true

	default:
		return ParsedOrder{}, false
	}
}

// Tolerance computes τ(p, sz): the maximum accepted price delta between a
// chain order and a grid slot, derived from both assets' precisions and
// the order's size on each side (spec §4.5).
//
//	τ(p, sz) = (1/(sz_A · 10^p_A) + 1/(sz_B · 10^p_B)) · p
//
// sz_A and sz_B are the order's size expressed in asset A units and
// asset B units respectively; one of them is the slot's native size, the
// other is derived via the price.
func Tolerance(slotType types.SlotType, price, size float64, assetA, assetB types.Asset) float64 {
	var szA, szB float64
	switch slotType {
	case types.SlotSell:
		szA = size
		szB = size * price
	default: // BUY
		szB = size
		if price != 0 {
			szA = size / price
		}
	}
	if szA <= 0 || szB <= 0 {
		return 0
	}
	return (1/(szA*math.Pow10(assetA.Precision)) + 1/(szB*math.Pow10(assetB.Precision))) * price
}

// match finds the best matching VIRTUAL/ACTIVE/PARTIAL slot of the
// order's type for a parsed chain order, per the price+size tolerance
// rule. A slot whose ChainOrderID already equals the order's id
// short-circuits the search.
func match(order ParsedOrder, candidates []types.GridSlot, assetA, assetB types.Asset) (types.GridSlot, bool) {
	for _, c := range candidates {
		if c.ChainOrderID == order.ChainID {
			return c, true
		}
	}

	var best types.GridSlot
	bestDelta := math.Inf(1)
	found := false

	for _, c := range candidates {
		tol := Tolerance(order.Type, c.Price, c.Size, assetA, assetB)
		priceDelta := math.Abs(order.Price - c.Price)
		if priceDelta > tol {
			continue
		}
		if !fixedpoint.SizesEqual(order.Size, c.Size, assetSizePrecision(order.Type, assetA, assetB)) &&
			order.Size > c.Size {
			// Chain size larger than slot size never matches: the slot
			// can only be equal-or-smaller (a fill in progress), never grow.
			continue
		}
		if priceDelta < bestDelta {
			best, bestDelta, found = c, priceDelta, true
		}
	}
	return best, found
}

func assetSizePrecision(t types.SlotType, assetA, assetB types.Asset) int {
	if t == types.SlotSell {
		return assetA.Precision
	}
	return assetB.Precision
}

// Reconcile diffs the chain's open orders against the store and returns
// a batch update. Slots matched to a chain order are written back through
// store.Upsert here (state, and size on a partial fill); the chain actions
// in the returned BatchUpdate are left to the caller. It never mutates
// fund totals directly, matching "the fund view is always rederived,
// never mutated directly" (§4.4).
func Reconcile(store SlotStore, chainOrders []types.ChainOrder, assetA, assetB types.Asset, targetActive types.SideInt) (types.BatchUpdate, error) {
	var batch types.BatchUpdate

	candidatesBuy := append(store.ByTypeAndState(types.SlotBuy, types.Virtual), store.ByTypeAndState(types.SlotBuy, types.Active)...)
	candidatesBuy = append(candidatesBuy, store.ByTypeAndState(types.SlotBuy, types.Partial)...)
	candidatesSell := append(store.ByTypeAndState(types.SlotSell, types.Virtual), store.ByTypeAndState(types.SlotSell, types.Active)...)
	candidatesSell = append(candidatesSell, store.ByTypeAndState(types.SlotSell, types.Partial)...)

	matchedSlotIDs := make(map[string]bool)

	for _, raw := range chainOrders {
		parsed, ok := ParseOrder(raw, assetA, assetB)
		if !ok {
			// Unparseable against this bot's assets: not ours, ignore.
			continue
		}

		var pool []types.GridSlot
		if parsed.Type == types.SlotBuy {
			pool = candidatesBuy
		} else {
			pool = candidatesSell
		}

		slot, found := match(parsed, pool, assetA, assetB)
		if !found {
			batch.OrdersToCancel = append(batch.OrdersToCancel, types.OrderToRotate{ChainOrderID: parsed.ChainID})
			continue
		}
		matchedSlotIDs[slot.ID] = true

		updated := slot
		updated.ChainOrderID = parsed.ChainID

		sizePrecision := assetSizePrecision(parsed.Type, assetA, assetB)
		if !fixedpoint.SizesEqual(parsed.Size, slot.Size, sizePrecision) && parsed.Size < slot.Size {
			if updated.OriginalSize == 0 {
				updated.OriginalSize = slot.Size
			}
			updated.State = types.Partial
			updated.Size = parsed.Size
		} else if slot.State == types.Virtual {
			updated.State = types.Active
		}

		if err := store.Upsert(updated); err != nil {
			return batch, err
		}

		tol := Tolerance(parsed.Type, slot.Price, slot.Size, assetA, assetB)
		if math.Abs(parsed.Price-slot.Price) > tol {
			batch.PartialMoves = append(batch.PartialMoves, types.PartialMove{
				SlotID:       slot.ID,
				ChainOrderID: parsed.ChainID,
				NewPrice:     slot.Price,
			})
		}
	}

	for _, side := range []types.SlotType{types.SlotBuy, types.SlotSell} {
		target := targetActive.Buy
		if side == types.SlotSell {
			target = targetActive.Sell
		}

		activeCount := store.Count(side, types.Active, types.Partial)
		for _, sl := range candidatesForType(store, side) {
			if matchedSlotIDs[sl.ID] {
				continue
			}
			if sl.State != types.Virtual {
				// A previously ACTIVE/PARTIAL slot whose chain order
				// vanished without a matching open order is effectively
				// filled; the rotator, not the reconciler, handles that
				// transition when the fill event arrives.
				continue
			}
			if activeCount >= target {
				continue
			}
			batch.OrdersToPlace = append(batch.OrdersToPlace, types.OrderToPlace{
				SlotID: sl.ID,
				Type:   sl.Type,
				Price:  sl.Price,
				Size:   sl.Size,
			})
			activeCount++
		}
	}

	return batch, nil
}

func candidatesForType(store SlotStore, t types.SlotType) []types.GridSlot {
	// Nearest-to-market first: slotstore sorts by the numeric suffix of
	// the slot id, so "buy-0"/"sell-0" (closest to market) always come
	// before "buy-10"/"sell-10", not just lexicographically.
	return store.ByTypeAndState(t, types.Virtual)
}
