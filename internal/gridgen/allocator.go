package gridgen

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"dexgrid/internal/fixedpoint"
)

// Allocation is the result of distributing a budget across N slots: one
// size per slot (in array order, matching the order the weights were
// computed in) plus any surplus left over after integer quantization.
type Allocation struct {
	Sizes        []float64
	SurplusUnits int64
	Surplus      float64
}

// Allocate distributes totalFunds across N slots using the geometric
// weight distribution from spec §4.2:
//
//	base = 1 - incPercent/100
//	W_i  = base^(idx_i * w), idx_i = i for buys, N-1-i for sells
//
// sizes are quantized to integer units at precision p; the rounding
// residual is pushed into slot 0, clamped at 0, and whatever cannot be
// absorbed there becomes surplus destined for cacheFunds.
func Allocate(totalFunds float64, n int, w, incPercent float64, p int, isSell bool) (Allocation, error) {
	if w < -1 || w > 2 {
		return Allocation{}, fmt.Errorf("gridgen: weightDistribution %v must be in [-1,2]", w)
	}
	f := incPercent / 100
	if f <= 0 || f >= 1 {
		return Allocation{}, fmt.Errorf("gridgen: incrementPercent factor %v must be in (0,1)", f)
	}

	if totalFunds <= 0 || n <= 0 {
		return Allocation{Sizes: make([]float64, max(n, 0))}, nil
	}

	base := decimal.NewFromFloat(1 - f)

	weights := make([]decimal.Decimal, n)
	sumW := decimal.Zero
	for i := 0; i < n; i++ {
		idx := i
		if isSell {
			idx = n - 1 - i
		}
		wi := decimalPow(base, float64(idx)*w)
		weights[i] = wi
		sumW = sumW.Add(wi)
	}

	targetUnits := fixedpoint.ToInt(totalFunds, p)
	units := make([]int64, n)
	var sumUnits int64
	for i, wi := range weights {
		share := wi.Div(sumW)
		u := share.Mul(decimal.NewFromInt(targetUnits)).Round(0).IntPart()
		units[i] = u
		sumUnits += u
	}

	residual := targetUnits - sumUnits
	units[0] += residual
	var surplusUnits int64
	if units[0] < 0 {
		surplusUnits = -units[0]
		units[0] = 0
	}

	sizes := make([]float64, n)
	for i, u := range units {
		sizes[i] = fixedpoint.ToFloat(u, p)
	}

	return Allocation{
		Sizes:        sizes,
		SurplusUnits: surplusUnits,
		Surplus:      fixedpoint.ToFloat(surplusUnits, p),
	}, nil
}

// decimalPow computes base^exp for a non-integer exponent by routing
// through float64 math.Pow and back into decimal.Decimal. base is
// strictly between 0 and 1 here (1 - incrementPercent/100), so this
// never encounters the branch-cut issues a general real power would;
// decimal.Decimal itself has no fractional-exponent Pow, which is why the
// weight computation (not the subsequent summation/quantization) is the
// one place this package still touches float64.
func decimalPow(base decimal.Decimal, exp float64) decimal.Decimal {
	b, _ := base.Float64()
	return decimal.NewFromFloat(math.Pow(b, exp))
}
