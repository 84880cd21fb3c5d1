package gridgen

import (
	"math"
	"testing"

	"dexgrid/pkg/types"
)

// Scenario 1: grid generation, symmetric.
func TestGenerateLevelsSymmetric(t *testing.T) {
	t.Parallel()
	levels, err := GenerateLevels(1800, 1700, 1900, 1, 2)
	if err != nil {
		t.Fatalf("GenerateLevels: %v", err)
	}

	var buySpread, sellSpread int
	for _, l := range levels {
		if l.Type == types.SlotSpread {
			if l.ID[:3] == "buy" {
				buySpread++
			} else {
				sellSpread++
			}
		}
	}
	if buySpread != 1 {
		t.Errorf("buy spread slots = %d, want 1", buySpread)
	}
	if sellSpread != 1 {
		t.Errorf("sell spread slots = %d, want 1", sellSpread)
	}
}

// P5: for every pair of adjacent sell levels p_i < p_{i+1}, p_{i+1}/p_i =
// 1 + inc/100 within floating tolerance; symmetric for buys.
func TestGenerateLevelsGeometricSpacing(t *testing.T) {
	t.Parallel()
	inc := 1.0
	levels, err := GenerateLevels(1800, 1700, 1900, inc, 2)
	if err != nil {
		t.Fatalf("GenerateLevels: %v", err)
	}

	var sellPrices, buyPrices []float64
	for _, l := range levels {
		switch {
		case l.Type == types.SlotSell || (l.Type == types.SlotSpread && l.ID[:4] == "sell"):
			sellPrices = append(sellPrices, l.Price)
		default:
			buyPrices = append(buyPrices, l.Price)
		}
	}

	want := 1 + inc/100
	for i := 0; i+1 < len(sellPrices); i++ {
		ratio := sellPrices[i] / sellPrices[i+1]
		if math.Abs(ratio-want) > 1e-9 {
			t.Errorf("sell ratio[%d] = %v, want %v", i, ratio, want)
		}
	}

	wantDown := 1 - inc/100
	for i := 0; i+1 < len(buyPrices); i++ {
		ratio := buyPrices[i+1] / buyPrices[i]
		if math.Abs(ratio-wantDown) > 1e-9 {
			t.Errorf("buy ratio[%d] = %v, want %v", i, ratio, wantDown)
		}
	}
}

func TestGenerateLevelsRejectsBadIncrement(t *testing.T) {
	t.Parallel()
	if _, err := GenerateLevels(1800, 1700, 1900, 0, 2); err == nil {
		t.Error("expected error for incrementPercent = 0")
	}
	if _, err := GenerateLevels(1800, 1700, 1900, 150, 2); err == nil {
		t.Error("expected error for incrementPercent = 150")
	}
}

// Scenario 2: weight allocation, uniform.
func TestAllocateUniform(t *testing.T) {
	t.Parallel()
	alloc, err := Allocate(100, 5, 0, 1, 5, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var sum float64
	for _, sz := range alloc.Sizes {
		if math.Abs(sz-20.0) > 1e-9 {
			t.Errorf("size = %v, want 20.0", sz)
		}
		sum += sz
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("sum = %v, want 100", sum)
	}
	if alloc.Surplus != 0 {
		t.Errorf("surplus = %v, want 0", alloc.Surplus)
	}
}

// Scenario 3: weight allocation, mountain shape (monotone decreasing
// toward the end of the array for a buy-indexed allocation — idx_i = i,
// so buy-0, closest to market, gets the largest weight).
func TestAllocateMountainMonotone(t *testing.T) {
	t.Parallel()
	alloc, err := Allocate(100, 5, 1, 1, 5, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	for i := 0; i+1 < len(alloc.Sizes); i++ {
		if alloc.Sizes[i+1] > alloc.Sizes[i] {
			t.Errorf("sizes not monotone decreasing: %v", alloc.Sizes)
			break
		}
	}

	var sum float64
	for _, sz := range alloc.Sizes {
		sum += sz
	}
	if math.Abs(sum-100) > 1e-5 {
		t.Errorf("sum = %v, want ~100", sum)
	}
}

// Scenario 4: allocator overflow guard.
func TestAllocateOverflowGuard(t *testing.T) {
	t.Parallel()
	// Exercise the same saturation path the allocator routes through via
	// fixedpoint.ToInt.
	alloc, err := Allocate(9.23e13, 1, 0, 1, 5, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.Sizes[0] <= 0 {
		t.Errorf("expected saturated positive size, got %v", alloc.Sizes[0])
	}
}

func TestAllocateZeroFundsReturnsZeros(t *testing.T) {
	t.Parallel()
	alloc, err := Allocate(0, 5, 0, 1, 5, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for _, sz := range alloc.Sizes {
		if sz != 0 {
			t.Errorf("expected zero sizes, got %v", alloc.Sizes)
			break
		}
	}
}

func TestAllocateRejectsWeightOutOfRange(t *testing.T) {
	t.Parallel()
	if _, err := Allocate(100, 5, 3, 1, 5, false); err == nil {
		t.Error("expected error for weight out of range")
	}
	if _, err := Allocate(100, 5, -2, 1, 5, false); err == nil {
		t.Error("expected error for weight out of range")
	}
}

// P6: weight allocator is conservative.
func TestAllocateConservation(t *testing.T) {
	t.Parallel()
	const p = 5
	alloc, err := Allocate(100, 7, 1, 3, p, true)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var sumUnits int64
	for _, sz := range alloc.Sizes {
		sumUnits += int64(math.Round(sz * math.Pow10(p)))
	}
	targetUnits := int64(math.Round(100 * math.Pow10(p)))
	if sumUnits+alloc.SurplusUnits != targetUnits {
		t.Errorf("sumUnits(%d) + surplus(%d) = %d, want %d", sumUnits, alloc.SurplusUnits, sumUnits+alloc.SurplusUnits, targetUnits)
	}
}
