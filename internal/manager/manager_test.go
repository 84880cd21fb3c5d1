package manager

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dexgrid/pkg/types"
)

// fakeClient is a minimal, in-memory chain.Client good enough to drive a
// bot through startup, a fill, and a recalc without a live node.
type fakeClient struct {
	mu         sync.Mutex
	balances   map[string]types.Balance
	openOrders []types.ChainOrder
	fills      chan types.FillEvent
	created    []types.CreateOrderRequest
	nextID     int

	createErr error
	cancelErr error
	updateErr error
}

func newFakeClient(buyFree, sellFree int64) *fakeClient {
	return &fakeClient{
		balances: map[string]types.Balance{
			"1.3.1": {Free: buyFree},
			"1.3.0": {Free: sellFree},
		},
		fills: make(chan types.FillEvent, 8),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error                              { return nil }
func (f *fakeClient) WaitForConnected(ctx context.Context, timeout time.Duration) error { return nil }
func (f *fakeClient) IsConnected() bool                                              { return true }

func (f *fakeClient) LookupAsset(ctx context.Context, symbol string) (types.Asset, error) {
	return types.Asset{}, nil
}
func (f *fakeClient) GetAssets(ctx context.Context, ids []string) ([]types.Asset, error) {
	return nil, nil
}
func (f *fakeClient) GetAccountBalances(ctx context.Context, accountID string) (map[string]types.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]types.Balance, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}
func (f *fakeClient) GetOpenOrders(ctx context.Context, accountID string) ([]types.ChainOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openOrders, nil
}
func (f *fakeClient) GetOrderBook(ctx context.Context, base, quote string, depth int) (types.OrderBook, error) {
	return types.OrderBook{}, nil
}
func (f *fakeClient) GetTicker(ctx context.Context, base, quote string) (types.Ticker, error) {
	return types.Ticker{LastPrice: 100}, nil
}
func (f *fakeClient) ListLiquidityPools(ctx context.Context, start, limit int) ([]types.Pool, error) {
	return nil, nil
}
func (f *fakeClient) GetLiquidityPool(ctx context.Context, assetA, assetB string) (types.Pool, error) {
	return types.Pool{}, nil
}
func (f *fakeClient) GetGlobalProperties(ctx context.Context) (types.GlobalProperties, error) {
	return types.GlobalProperties{CreateOrderFee: 100, UpdateOrderFee: 100, CancelOrderFee: 100}, nil
}
func (f *fakeClient) SubscribeAccount(ctx context.Context, accountName string) (<-chan types.FillEvent, error) {
	return f.fills, nil
}
func (f *fakeClient) UnsubscribeAccount(ctx context.Context, accountName string) error { return nil }

func (f *fakeClient) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	f.created = append(f.created, req)
	return "order-" + string(rune('0'+f.nextID)), nil
}
func (f *fakeClient) UpdateOrder(ctx context.Context, chainOrderID string, req types.UpdateOrderRequest) error {
	return f.updateErr
}
func (f *fakeClient) CancelOrder(ctx context.Context, chainOrderID string) error { return f.cancelErr }

func testConfig(name string) types.ResolvedBotConfig {
	return types.ResolvedBotConfig{
		Name:                name,
		AssetA:              types.Asset{ID: "1.3.0", Symbol: "A", Precision: 5},
		AssetB:              types.Asset{ID: "1.3.1", Symbol: "B", Precision: 5},
		PreferredAccount:    "1.2.100",
		MinPrice:            50,
		MaxPrice:             200,
		IncrementPercent:    2,
		TargetSpreadPercent: 1,
		WeightDistribution:  types.SideValue{Buy: 0, Sell: 0},
		BotFundsIsPercent:   map[types.Side]bool{types.Buy: true, types.Sell: true},
		BotFundsValue:       map[types.Side]float64{types.Buy: 1, types.Sell: 1},
		ActiveOrders:        types.SideInt{Buy: 3, Sell: 3},
		PriceMode:           types.PriceModeMarket,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartBotBuildsGridAndRegistersIt(t *testing.T) {
	client := newFakeClient(1000_00000, 1000_00000)
	persist, err := newTestPersistence(t)
	if err != nil {
		t.Fatalf("persistence: %v", err)
	}

	m := New(client, persist, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("bot-a")
	if err := m.StartBot(ctx, cfg); err != nil {
		t.Fatalf("StartBot: %v", err)
	}
	defer m.StopBot("bot-a")

	snap := m.Snapshot()
	if _, ok := snap["bot-a"]; !ok {
		t.Fatal("expected bot-a in snapshot")
	}
	if len(snap["bot-a"]) == 0 {
		t.Error("expected a non-empty grid after startup")
	}
}

func TestStartBotRejectsDuplicateName(t *testing.T) {
	client := newFakeClient(1000_00000, 1000_00000)
	persist, err := newTestPersistence(t)
	if err != nil {
		t.Fatalf("persistence: %v", err)
	}

	m := New(client, persist, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("bot-a")
	if err := m.StartBot(ctx, cfg); err != nil {
		t.Fatalf("StartBot: %v", err)
	}
	defer m.StopBot("bot-a")

	if err := m.StartBot(ctx, cfg); err == nil {
		t.Error("expected an error starting a second bot with the same name")
	}
}

func TestHandleFillRoutesToBot(t *testing.T) {
	client := newFakeClient(1000_00000, 1000_00000)
	persist, err := newTestPersistence(t)
	if err != nil {
		t.Fatalf("persistence: %v", err)
	}

	m := New(client, persist, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("bot-a")
	if err := m.StartBot(ctx, cfg); err != nil {
		t.Fatalf("StartBot: %v", err)
	}
	defer m.StopBot("bot-a")

	var target types.GridSlot
	for _, sl := range m.Snapshot()["bot-a"] {
		if sl.Type == types.SlotBuy && sl.State == types.Active {
			target = sl
			break
		}
	}
	if target.ID == "" {
		t.Fatal("expected at least one ACTIVE buy slot after startup reconciliation")
	}

	if err := m.HandleFill("bot-a", types.FillEvent{
		ChainOrderID:  target.ChainOrderID,
		FilledAmount:  1,
		RemainingSize: 1,
		Timestamp:     time.Time{},
	}); err != nil {
		t.Fatalf("HandleFill: %v", err)
	}

	// give the bot's run loop a moment to drain the channel.
	time.Sleep(50 * time.Millisecond)
}

func TestHandleFillUnknownBot(t *testing.T) {
	client := newFakeClient(1000_00000, 1000_00000)
	persist, err := newTestPersistence(t)
	if err != nil {
		t.Fatalf("persistence: %v", err)
	}
	m := New(client, persist, testLogger())

	if err := m.HandleFill("nope", types.FillEvent{}); err == nil {
		t.Error("expected an error for an unknown bot")
	}
}

func TestRequestRecalc(t *testing.T) {
	client := newFakeClient(1000_00000, 1000_00000)
	persist, err := newTestPersistence(t)
	if err != nil {
		t.Fatalf("persistence: %v", err)
	}

	m := New(client, persist, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("bot-a")
	if err := m.StartBot(ctx, cfg); err != nil {
		t.Fatalf("StartBot: %v", err)
	}
	defer m.StopBot("bot-a")

	recalcCtx, recalcCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recalcCancel()
	if err := m.RequestRecalc(recalcCtx, "bot-a"); err != nil {
		t.Fatalf("RequestRecalc: %v", err)
	}
}
