// Package gridgen generates geometric price levels for a grid and
// allocates a total budget across them using the spec's weighted,
// integer-quantized distribution (spec §4.2).
package gridgen

import (
	"fmt"
	"math"

	"dexgrid/pkg/types"
)

// MinSpreadFactor is the multiplier applied to incrementPercent when the
// configured targetSpreadPercent is too narrow to guarantee at least one
// spread slot per side (spec §4.2 "spreadPct' = max(targetSpread,
// MIN_SPREAD_FACTOR · inc)").
const MinSpreadFactor = 2.0

// Level is one price rung before weight allocation has assigned it a
// size. Type is SELL, BUY, or SPREAD.
type Level struct {
	ID    string
	Type  types.SlotType
	Price float64
}

// GenerateLevels produces the full price ladder for a bot: descending
// SELL levels from max down to just above market, ascending-from-market
// BUY levels down to min, with the innermost levels on each side tagged
// SPREAD per the configured (or floor-enforced) spread width.
func GenerateLevels(mp, min, max, incPercent, targetSpreadPercent float64) ([]Level, error) {
	if incPercent <= 0 || incPercent >= 100 {
		return nil, fmt.Errorf("gridgen: incrementPercent must be in (0,100), got %v", incPercent)
	}

	stepUp := 1 + incPercent/100
	stepDown := 1 - incPercent/100
	if stepUp <= 1 || stepUp >= 2 {
		return nil, fmt.Errorf("gridgen: stepUp %v must be in (1,2)", stepUp)
	}
	if mp <= 0 || min <= 0 || max <= 0 || min >= max {
		return nil, fmt.Errorf("gridgen: invalid price bounds mp=%v min=%v max=%v", mp, min, max)
	}
	if mp < min || mp > max {
		return nil, fmt.Errorf("gridgen: marketPrice %v outside [%v,%v]", mp, min, max)
	}

	sellPrices := make([]float64, 0)
	for p := mp * math.Sqrt(stepUp); p <= max; p *= stepUp {
		sellPrices = append(sellPrices, p)
	}
	// "reversed so the level closest to mp is last" (spec §4.2).
	reverse(sellPrices)

	buyPrices := make([]float64, 0)
	for p := mp * math.Sqrt(stepDown); p >= min; p *= stepDown {
		buyPrices = append(buyPrices, p)
	}

	if len(sellPrices) == 0 || len(buyPrices) == 0 {
		return nil, fmt.Errorf("gridgen: price bounds too narrow for incrementPercent %v", incPercent)
	}

	spreadPct := math.Max(targetSpreadPercent, MinSpreadFactor*incPercent)
	n := int(math.Ceil(math.Log(1+spreadPct/100) / math.Log(stepUp)))
	if n < 2 {
		n = 2
	}
	nBuySpread := n / 2
	nSellSpread := n - nBuySpread

	if nBuySpread > len(buyPrices) {
		nBuySpread = len(buyPrices)
	}
	if nSellSpread > len(sellPrices) {
		nSellSpread = len(sellPrices)
	}

	levels := make([]Level, 0, len(sellPrices)+len(buyPrices))

	for i, price := range sellPrices {
		t := types.SlotSell
		if i >= len(sellPrices)-nSellSpread {
			t = types.SlotSpread
		}
		levels = append(levels, Level{ID: fmt.Sprintf("sell-%d", i), Type: t, Price: price})
	}
	for i, price := range buyPrices {
		t := types.SlotBuy
		if i < nBuySpread {
			t = types.SlotSpread
		}
		levels = append(levels, Level{ID: fmt.Sprintf("buy-%d", i), Type: t, Price: price})
	}

	return levels, nil
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
