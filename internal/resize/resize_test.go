package resize

import (
	"context"
	"math"
	"testing"

	"dexgrid/internal/chain"
	"dexgrid/internal/feecache"
	"dexgrid/internal/slotstore"
	"dexgrid/pkg/types"
)

func seedBuySlots(t *testing.T, n int, size float64, state types.SlotState) *slotstore.Store {
	t.Helper()
	store := slotstore.New()
	for i := 0; i < n; i++ {
		id := "buy-" + string(rune('0'+i))
		chainID := ""
		if state != types.Virtual {
			chainID = "chain-" + id
		}
		if err := store.Upsert(types.GridSlot{
			ID: id, Type: types.SlotBuy, State: state, Size: size, Price: 100, ChainOrderID: chainID,
		}); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}
	return store
}

// Scenario 6: divergence detect and resize. 10 ACTIVE BUY slots of size
// 10 each; account balance doubles; resize should produce new sizes
// close to 20 each, preserving conservation.
func TestPassDoublesAllocation(t *testing.T) {
	t.Parallel()
	store := seedBuySlots(t, 10, 10, types.Active)

	res, err := Pass(store, feecache.New(), Input{
		Side:               types.Buy,
		ChainTotal:         200,
		BotFundsValue:       1,
		BotFundsIsPercent:  true,
		WeightDistribution: 0,
		IncrementPercent:   1,
		SizePrecision:      5,
	})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Allocated != 200 {
		t.Errorf("allocated = %v, want 200", res.Allocated)
	}

	var sum float64
	for _, sl := range store.ByType(types.SlotBuy) {
		if math.Abs(sl.Size-20) > 1e-6 {
			t.Errorf("slot %s size = %v, want ~20", sl.ID, sl.Size)
		}
		sum += sl.Size
	}
	if math.Abs(sum+res.CacheDelta-200) > 1e-6 {
		t.Errorf("sum(%v) + cacheDelta(%v) != 200", sum, res.CacheDelta)
	}
}

func TestPassLeavesPartialSlotsUntouched(t *testing.T) {
	t.Parallel()
	store := slotstore.New()
	if err := store.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Partial, Size: 5, Price: 100, ChainOrderID: "c0"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(types.GridSlot{ID: "buy-1", Type: types.SlotBuy, State: types.Virtual, Size: 10, Price: 99}); err != nil {
		t.Fatal(err)
	}

	_, err := Pass(store, feecache.New(), Input{
		Side:               types.Buy,
		ChainTotal:         100,
		BotFundsValue:       1,
		BotFundsIsPercent:  true,
		WeightDistribution: 0,
		IncrementPercent:   1,
		SizePrecision:      5,
	})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}

	partial, _ := store.Get("buy-0")
	if partial.Size != 5 {
		t.Errorf("partial slot size changed to %v, want unchanged 5", partial.Size)
	}
	virtual, _ := store.Get("buy-1")
	if math.Abs(virtual.Size-95) > 1e-6 {
		t.Errorf("virtual slot size = %v, want ~95 (100 - 5 partial)", virtual.Size)
	}
}

func TestPassSubtractsFeeReservationForNativeSide(t *testing.T) {
	t.Parallel()
	store := seedBuySlots(t, 2, 10, types.Active)

	cache := feecache.New()
	stub := &stubClient{fee: 1000}
	if err := cache.Warm(context.Background(), stub); err != nil {
		t.Fatalf("warm: %v", err)
	}

	res, err := Pass(store, cache, Input{
		Side:               types.Buy,
		ChainTotal:         20,
		BotFundsValue:       1,
		BotFundsIsPercent:  true,
		WeightDistribution: 0,
		IncrementPercent:   1,
		SizePrecision:      5,
		HoldsNativeToken:   true,
		ActiveBuy:          2,
		ActiveSell:         0,
		NativePrecision:    5,
	})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	// reservation = 1000 * 5 * 2 units at precision 5 = 0.1
	if math.Abs(res.Allocated-19.9) > 1e-9 {
		t.Errorf("allocated = %v, want 19.9 after fee reservation", res.Allocated)
	}
}

func TestPassAbsoluteBotFundsClampedToChainTotal(t *testing.T) {
	t.Parallel()
	store := seedBuySlots(t, 2, 10, types.Active)

	res, err := Pass(store, feecache.New(), Input{
		Side:               types.Buy,
		ChainTotal:         50,
		BotFundsValue:       1000, // absolute, far above chainTotal
		BotFundsIsPercent:  false,
		WeightDistribution: 0,
		IncrementPercent:   1,
		SizePrecision:      5,
	})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Allocated != 50 {
		t.Errorf("allocated = %v, want 50 (clamped to chainTotal)", res.Allocated)
	}
}

// Ideal must compute the same sizes Pass would write, without mutating
// the store — the divergence detector needs a read-only "what would
// resize produce" view.
func TestIdealMatchesPassWithoutMutating(t *testing.T) {
	t.Parallel()
	store := seedBuySlots(t, 10, 10, types.Active)

	in := Input{
		Side:               types.Buy,
		ChainTotal:         200,
		BotFundsValue:      1,
		BotFundsIsPercent:  true,
		WeightDistribution: 0,
		IncrementPercent:   1,
		SizePrecision:      5,
	}

	ideal, err := Ideal(store, feecache.New(), in)
	if err != nil {
		t.Fatalf("Ideal: %v", err)
	}
	if len(ideal) != 10 {
		t.Fatalf("len(ideal) = %d, want 10", len(ideal))
	}
	for _, sl := range ideal {
		if math.Abs(sl.Size-20) > 1e-6 {
			t.Errorf("ideal slot %s size = %v, want ~20", sl.ID, sl.Size)
		}
	}

	for _, sl := range store.ByType(types.SlotBuy) {
		if math.Abs(sl.Size-10) > 1e-6 {
			t.Errorf("store slot %s size = %v, want unchanged 10 (Ideal must not mutate)", sl.ID, sl.Size)
		}
	}

	if _, err := Pass(store, feecache.New(), in); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	for i, sl := range store.ByType(types.SlotBuy) {
		if math.Abs(sl.Size-ideal[i].Size) > 1e-6 {
			t.Errorf("Pass slot %s size = %v, want %v (same as Ideal)", sl.ID, sl.Size, ideal[i].Size)
		}
	}
}

// stubClient embeds the Client interface (left nil) so it only needs to
// implement the one method these tests exercise.
type stubClient struct {
	chain.Client
	fee int64
}

func (s *stubClient) GetGlobalProperties(ctx context.Context) (types.GlobalProperties, error) {
	return types.GlobalProperties{CreateOrderFee: s.fee}, nil
}
