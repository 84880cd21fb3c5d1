package slotstore

import (
	"fmt"
	"testing"

	"dexgrid/pkg/types"
)

func TestUpsertAndGet(t *testing.T) {
	t.Parallel()
	s := New()

	slot := types.GridSlot{ID: "sell-0", Type: types.SlotSell, State: types.Virtual, Price: 10, Size: 1}
	if err := s.Upsert(slot); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok := s.Get("sell-0")
	if !ok {
		t.Fatal("Get: not found")
	}
	if got.Price != 10 {
		t.Errorf("Price = %v, want 10", got.Price)
	}
}

func TestUpsertRejectsInvalidSpread(t *testing.T) {
	t.Parallel()
	s := New()
	bad := types.GridSlot{ID: "spread-0", Type: types.SlotSpread, State: types.Virtual, Size: 1}
	if err := s.Upsert(bad); err == nil {
		t.Error("expected error for non-zero-size SPREAD slot")
	}
}

func TestUpsertRejectsActiveWithoutChainOrderID(t *testing.T) {
	t.Parallel()
	s := New()
	bad := types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Active, Size: 1}
	if err := s.Upsert(bad); err == nil {
		t.Error("expected error for ACTIVE slot without chainOrderId")
	}
}

func TestCount(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Active, Size: 1, ChainOrderID: "1.7.1"})
	_ = s.Upsert(types.GridSlot{ID: "buy-1", Type: types.SlotBuy, State: types.Partial, Size: 1, ChainOrderID: "1.7.2"})
	_ = s.Upsert(types.GridSlot{ID: "buy-2", Type: types.SlotBuy, State: types.Virtual, Size: 1})

	if n := s.Count(types.SlotBuy, types.Active, types.Partial); n != 2 {
		t.Errorf("Count(active+partial) = %d, want 2", n)
	}
	if n := s.Count(types.SlotBuy, types.Virtual); n != 1 {
		t.Errorf("Count(virtual) = %d, want 1", n)
	}
}

func TestFundsView(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Virtual, Size: 10})
	_ = s.Upsert(types.GridSlot{ID: "buy-1", Type: types.SlotBuy, State: types.Active, Size: 5, ChainOrderID: "1.7.1"})
	_ = s.Upsert(types.GridSlot{ID: "buy-spread", Type: types.SlotSpread, State: types.Virtual, Size: 0})

	f := s.Funds(types.Buy, 2, 100, 200, 0)
	if f.Virtuel != 10 {
		t.Errorf("Virtuel = %v, want 10", f.Virtuel)
	}
	if f.Committed != 5 {
		t.Errorf("Committed = %v, want 5", f.Committed)
	}
	if f.TotalGrid != 15 {
		t.Errorf("TotalGrid = %v, want 15", f.TotalGrid)
	}
	// available = chainFree(200) - virtuel(10) - cacheFunds(2) - feesReserved(0)
	if f.Available != 188 {
		t.Errorf("Available = %v, want 188", f.Available)
	}
}

func TestFundsAvailableClampedAtZero(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Virtual, Size: 1000})

	f := s.Funds(types.Buy, 0, 0, 10, 0)
	if f.Available != 0 {
		t.Errorf("Available = %v, want 0 (clamped)", f.Available)
	}
}

// A side with 11+ reallocable slots must still come back nearest-to-market
// first: "buy-2" before "buy-10", not after it as a lexicographic sort
// would order them.
func TestByTypeOrdersByNumericSuffix(t *testing.T) {
	t.Parallel()
	s := New()
	for _, i := range []int{0, 1, 2, 10, 11} {
		id := fmt.Sprintf("buy-%d", i)
		_ = s.Upsert(types.GridSlot{ID: id, Type: types.SlotBuy, State: types.Virtual, Size: 1})
	}

	got := s.ByType(types.SlotBuy)
	want := []string{"buy-0", "buy-1", "buy-2", "buy-10", "buy-11"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, sl := range got {
		if sl.ID != want[i] {
			t.Errorf("slot %d = %s, want %s", i, sl.ID, want[i])
		}
	}
}

func TestReplace(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Virtual, Size: 1})

	err := s.Replace([]types.GridSlot{
		{ID: "sell-0", Type: types.SlotSell, State: types.Virtual, Size: 2},
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, ok := s.Get("buy-0"); ok {
		t.Error("buy-0 should have been replaced away")
	}
	if _, ok := s.Get("sell-0"); !ok {
		t.Error("sell-0 should exist after replace")
	}
}
