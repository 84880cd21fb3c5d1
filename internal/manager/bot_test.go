package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"dexgrid/internal/chain"
	"dexgrid/pkg/types"
)

func newTestBot(t *testing.T, client chain.Client) *bot {
	t.Helper()
	persist, err := newTestPersistence(t)
	if err != nil {
		t.Fatalf("persistence: %v", err)
	}
	return newBot(testConfig("bot-a"), client, persist, testLogger())
}

func TestRetryCorrectionCreateSucceeds(t *testing.T) {
	t.Parallel()
	client := newFakeClient(1000_00000, 1000_00000)
	b := newTestBot(t, client)

	if err := b.store.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Virtual, Price: 100, Size: 5}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	b.queueCorrection("buy-0", "", 100, 5, 0, types.CorrectionPrice)

	key := b.correctionKey("buy-0", types.CorrectionPrice)
	if ok := b.retryCorrection(context.Background(), b.corrections[key]); !ok {
		t.Fatal("expected retryCreate to succeed")
	}

	slot, ok := b.store.Get("buy-0")
	if !ok {
		t.Fatal("slot missing after retry")
	}
	if slot.State != types.Active || slot.ChainOrderID == "" {
		t.Errorf("slot = %+v, want ACTIVE with a chainOrderId", slot)
	}
}

func TestRetryCorrectionCreateFailsStaysQueued(t *testing.T) {
	t.Parallel()
	client := newFakeClient(1000_00000, 1000_00000)
	client.createErr = errors.New("node unreachable")
	b := newTestBot(t, client)

	_ = b.store.Upsert(types.GridSlot{ID: "buy-0", Type: types.SlotBuy, State: types.Virtual, Price: 100, Size: 5})
	b.queueCorrection("buy-0", "", 100, 5, 0, types.CorrectionPrice)

	key := b.correctionKey("buy-0", types.CorrectionPrice)
	if ok := b.retryCorrection(context.Background(), b.corrections[key]); ok {
		t.Fatal("expected retryCreate to fail and stay queued")
	}
}

func TestRetryCorrectionNotFoundDropsImmediately(t *testing.T) {
	t.Parallel()
	client := newFakeClient(1000_00000, 1000_00000)
	b := newTestBot(t, client)

	corr := types.Correction{SlotID: "buy-0", Kind: types.CorrectionNotFound}
	if ok := b.retryCorrection(context.Background(), corr); !ok {
		t.Fatal("expected CorrectionNotFound to be dropped")
	}
}

func TestRetryCorrectionCancelDropsOnOrderNotFound(t *testing.T) {
	t.Parallel()
	client := newFakeClient(1000_00000, 1000_00000)
	client.cancelErr = chain.ErrOrderNotFound
	b := newTestBot(t, client)

	corr := types.Correction{SlotID: "buy-0", ChainOrderID: "1.7.1", Kind: types.CorrectionCancel}
	if ok := b.retryCorrection(context.Background(), corr); !ok {
		t.Fatal("expected cancel-retry to drop when the chain reports the order gone")
	}
}

func TestRetryCorrectionsHonorsDelay(t *testing.T) {
	t.Parallel()
	client := newFakeClient(1000_00000, 1000_00000)
	b := newTestBot(t, client)

	key := "not_found:buy-0"
	b.corrections[key] = types.Correction{
		Key:         key,
		SlotID:      "buy-0",
		Kind:        types.CorrectionNotFound,
		NextAttempt: time.Now().Add(time.Hour),
	}

	b.retryCorrections(context.Background())

	if _, ok := b.corrections[key]; !ok {
		t.Error("correction retried before its delay elapsed, expected it to stay queued")
	}
}

func TestRetryCorrectionsClearsDueNotFound(t *testing.T) {
	t.Parallel()
	client := newFakeClient(1000_00000, 1000_00000)
	b := newTestBot(t, client)

	key := "not_found:buy-0"
	b.corrections[key] = types.Correction{
		Key:         key,
		SlotID:      "buy-0",
		Kind:        types.CorrectionNotFound,
		NextAttempt: time.Now().Add(-time.Second),
	}

	b.retryCorrections(context.Background())

	if _, ok := b.corrections[key]; ok {
		t.Error("expected a due CorrectionNotFound entry to be cleared")
	}
}
