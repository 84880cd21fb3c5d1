package gridgen

import (
	"fmt"

	"dexgrid/internal/boterrors"
	"dexgrid/internal/fixedpoint"
)

// MinOrderSizeFactor is MIN_ORDER_SIZE_FACTOR from spec §4.3: the minimum
// per-order size, expressed in integer units of the relevant asset's
// precision (minimum = MinOrderSizeFactor * 10^-p).
const MinOrderSizeFactor = 1

// CheckMinimumSizes validates a side's allocated sizes against the
// minimum-size policy (spec §4.3). It returns an error (wrapping
// boterrors.UndersizedGrid) if any non-zero size falls below the minimum,
// and warn=true if any non-zero size falls below twice the minimum but
// above it — a non-fatal condition the caller should log.
func CheckMinimumSizes(side string, sizes []float64, p int) (warn bool, err error) {
	min := fixedpoint.ToFloat(MinOrderSizeFactor, p)
	warnFloor := fixedpoint.ToFloat(2*MinOrderSizeFactor, p)

	var offenders []float64
	for _, sz := range sizes {
		if sz <= 0 {
			continue
		}
		if sz < min {
			offenders = append(offenders, sz)
			continue
		}
		if sz < warnFloor {
			warn = true
		}
	}

	if len(offenders) > 0 {
		err = &boterrors.UndersizedGrid{
			Side: side,
			Err:  fmt.Errorf("%d slot(s) below minimum size %v: %v", len(offenders), min, offenders),
		}
	}
	return warn, err
}
