package persistence

import (
	"errors"
	"testing"

	"dexgrid/internal/boterrors"
	"dexgrid/pkg/types"
)

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := types.Snapshot{
		Grid: []types.GridSlot{
			{ID: "buy-0", Type: types.SlotBuy, State: types.Active, Price: 99, Size: 10, ChainOrderID: "c0"},
		},
		CacheFunds:  types.SideValue{Buy: 1.5, Sell: 2.5},
		BTSFeesOwed: 0.01,
	}

	if err := s.Save("bot1", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok, err := s.Load("bot1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load returned ok=false for a saved snapshot")
	}
	if len(loaded.Grid) != 1 || loaded.Grid[0].ID != "buy-0" {
		t.Errorf("grid = %+v", loaded.Grid)
	}
	if loaded.CacheFunds != snap.CacheFunds {
		t.Errorf("cacheFunds = %+v, want %+v", loaded.CacheFunds, snap.CacheFunds)
	}
}

func TestLoadMissingReturnsNotOK(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, ok, err := s.Load("nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a missing snapshot")
	}
}

func TestLoadMergesPendingProceedsIntoCacheFunds(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Simulate a legacy snapshot on disk directly, since Save never writes
	// pendingProceeds back out.
	legacy := types.Snapshot{
		CacheFunds:      types.SideValue{Buy: 1, Sell: 2},
		PendingProceeds: &types.SideValue{Buy: 0.5, Sell: 0.25},
	}
	if err := s.save("legacy-bot", legacy); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := s.Load("legacy-bot")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if loaded.PendingProceeds != nil {
		t.Error("pendingProceeds should be cleared after merge")
	}
	if loaded.CacheFunds.Buy != 1.5 || loaded.CacheFunds.Sell != 2.25 {
		t.Errorf("cacheFunds = %+v, want {1.5 2.25}", loaded.CacheFunds)
	}
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Save("bot1", types.Snapshot{BTSFeesOwed: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("bot1", types.Snapshot{BTSFeesOwed: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _, err := s.Load("bot1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.BTSFeesOwed != 2 {
		t.Errorf("btsFeesOwed = %v, want 2", loaded.BTSFeesOwed)
	}
}

func TestSaveFailureIsRecordedAndClearedOnRetry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Force a write failure by replacing the target directory with a file
	// at the exact path the snapshot would be written to, so os.Rename
	// fails because a directory of that name cannot be overwritten by a
	// regular file... instead, make the store directory itself read-only
	// is platform-dependent, so we simulate directly via a manufactured
	// persistence error using the same wrap path Save uses.
	wrapped := &boterrors.PersistenceError{Bot: "bot1", Err: errors.New("disk full")}
	s.recordFailure("bot1", wrapped)

	rec, ok := s.LastFailure("bot1")
	if !ok {
		t.Fatal("expected a recorded failure")
	}
	if rec.Err == nil {
		t.Error("expected a non-nil recorded error")
	}

	if err := s.Save("bot1", types.Snapshot{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := s.LastFailure("bot1"); ok {
		t.Error("expected failure record cleared after a successful save")
	}
}
