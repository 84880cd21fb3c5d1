// Package divergence compares the ideal grid against the persisted one
// and flags sides that have drifted enough to warrant a resize (spec
// §4.6). It runs after every rotation and periodically.
package divergence

import (
	"math"

	"dexgrid/pkg/types"
)

// GridRegenerationPercentage is the cache-ratio threshold: when
// (cacheFunds + available) / totalGrid reaches this fraction of a
// side's funds, that side is marked for resize regardless of the RMS
// check (spec §4.6 "GRID_REGENERATION_PERCENTAGE").
const GridRegenerationPercentage = 20.0

// RMSPercentage is the divergence-metric threshold. A side whose RMS of
// relative size error exceeds this percentage is marked for resize
// (spec §4.6 "RMS_PERCENTAGE"). Only the RMS-percentage schema is wired
// here; the promille schema referenced in spec §9's open question is not
// implemented (see DESIGN.md).
const RMSPercentage = 15.0

// CacheRatioExceeded reports whether the cache-ratio check trips for one
// side.
func CacheRatioExceeded(cacheFunds, available, totalGrid float64) bool {
	if totalGrid <= 0 {
		return false
	}
	return (cacheFunds+available)/totalGrid >= GridRegenerationPercentage/100
}

// RelativeErrorRMS computes the RMS-of-relative-error metric between an
// ideal grid and the persisted grid for one side, matching by slot id.
// PARTIAL and SPREAD slots never contribute. A slot present in ideal but
// missing from persisted, or present with persisted size 0 while ideal
// size > 0, contributes a relative error of 1.
func RelativeErrorRMS(ideal, persisted []types.GridSlot) float64 {
	byID := make(map[string]types.GridSlot, len(persisted))
	for _, s := range persisted {
		byID[s.ID] = s
	}

	var sumSq float64
	var count int

	for _, idealSlot := range ideal {
		if idealSlot.Type == types.SlotSpread {
			continue
		}

		p, found := byID[idealSlot.ID]
		if found && p.State == types.Partial {
			continue
		}

		var r float64
		switch {
		case !found:
			r = 1
		case p.Size == 0 && idealSlot.Size > 0:
			r = 1
		case p.Size == 0 && idealSlot.Size == 0:
			r = 0
		default:
			r = (idealSlot.Size - p.Size) / p.Size
		}

		sumSq += r * r
		count++
	}

	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(count))
}

// SideMarked reports whether a side should be marked for resize, per
// both checks.
func SideMarked(cacheFunds, available, totalGrid float64, ideal, persisted []types.GridSlot) bool {
	if CacheRatioExceeded(cacheFunds, available, totalGrid) {
		return true
	}
	return RelativeErrorRMS(ideal, persisted) > RMSPercentage/100
}
