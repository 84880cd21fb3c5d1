package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dexgrid/internal/boterrors"
	"dexgrid/internal/chain"
	"dexgrid/internal/divergence"
	"dexgrid/internal/feecache"
	"dexgrid/internal/fixedpoint"
	"dexgrid/internal/gridgen"
	"dexgrid/internal/oracle"
	"dexgrid/internal/persistence"
	"dexgrid/internal/resize"
	"dexgrid/internal/rotator"
	"dexgrid/internal/slotstore"
	"dexgrid/pkg/types"
)

// fillDedupWindow is the window within which a repeated fill notification
// for the same chain order + amount is treated as a duplicate and dropped
// (spec §5, "fill dedup in a 5s window").
const fillDedupWindow = 5 * time.Second

// resizeInterval is the periodic-timer cadence for the balance/resize
// check (spec §5 blocking/suspension points: "timer-driven resize").
const resizeInterval = 30 * time.Second

// correctionRetryDelay spaces consecutive retry attempts for the same
// queued correction (spec: "price-correction retries between corrections
// are spaced by a fixed delay").
const correctionRetryDelay = 30 * time.Second

// bot is one running grid: one goroutine, one store, one cache-funds
// ledger. All mutation of bot-local state happens on its own goroutine,
// reached only through the channels below, so no additional locking is
// needed inside run's handlers.
type bot struct {
	cfg      types.ResolvedBotConfig
	store    *slotstore.Store
	feeCache *feecache.Cache
	oracle   *oracle.Oracle
	client   chain.Client
	persist  *persistence.Store
	logger   *slog.Logger

	cacheFunds  types.SideValue
	btsFeesOwed float64

	fillCh   chan types.FillEvent
	recalcCh chan chan error
	statusCh chan chan types.BotStatus

	lastSeenFill map[string]time.Time
	corrections  map[string]types.Correction

	cancel context.CancelFunc
	done   chan struct{}
}

func newBot(cfg types.ResolvedBotConfig, client chain.Client, persist *persistence.Store, logger *slog.Logger) *bot {
	return &bot{
		cfg:          cfg,
		store:        slotstore.New(),
		feeCache:     feecache.New(),
		oracle:       oracle.New(client, logger),
		client:       client,
		persist:      persist,
		logger:       logger.With("component", "manager", "bot", cfg.Name),
		fillCh:       make(chan types.FillEvent, 64),
		recalcCh:     make(chan chan error),
		statusCh:     make(chan chan types.BotStatus),
		lastSeenFill: make(map[string]time.Time),
		corrections:  make(map[string]types.Correction),
		done:         make(chan struct{}),
	}
}

// startup performs the initial grid build (spec §4.2-§4.5 run once at
// boot): resolves the reference price, fetches balances and open orders
// concurrently, generates and allocates the grid, reconciles it against
// what is already on chain, and persists the result.
func (b *bot) startup(ctx context.Context) error {
	if snap, ok, err := b.persist.Load(b.botKey()); err != nil {
		b.logger.Warn("snapshot load failed, starting from a fresh grid", "error", err)
	} else if ok {
		if err := b.store.Replace(snap.Grid); err != nil {
			b.logger.Warn("persisted snapshot had invalid slots, discarding", "error", err)
		} else {
			b.cacheFunds = snap.CacheFunds
			b.btsFeesOwed = snap.BTSFeesOwed
		}
	}

	var balances map[string]types.Balance
	var openOrders []types.ChainOrder

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = b.client.GetAccountBalances(gctx, b.cfg.PreferredAccount)
		return err
	})
	g.Go(func() error {
		var err error
		openOrders, err = b.client.GetOpenOrders(gctx, b.cfg.PreferredAccount)
		return err
	})
	if err := g.Wait(); err != nil {
		return &boterrors.ChainTransient{Op: "startup fetch", Err: err}
	}

	if err := b.feeCache.Warm(ctx, b.client); err != nil {
		b.logger.Warn("fee cache warmup failed, reservation will be 0 until retried", "error", err)
	}

	if b.cfg.FixedMarketPrice != nil {
		b.cfg.MarketPrice = *b.cfg.FixedMarketPrice
	} else {
		mp, err := b.oracle.Price(ctx, b.cfg.AssetA, b.cfg.AssetB, b.cfg.PriceMode)
		if err != nil {
			return boterrors.NewConfigError(b.cfg.Name, fmt.Errorf("resolving reference price: %w", err))
		}
		b.cfg.MarketPrice = mp
	}

	if err := b.buildGrid(balances); err != nil {
		return err
	}

	batch, err := chain.Reconcile(b.store, openOrders, b.cfg.AssetA, b.cfg.AssetB, b.cfg.ActiveOrders)
	if err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	}
	b.applyBatch(ctx, batch)

	return b.persistSnapshot()
}

// buildGrid regenerates price levels and allocates sizes for both sides
// from the given balances, writing the full slot set into the store.
// Existing ACTIVE/PARTIAL state is not known yet at this point — callers
// that already hold open orders reconcile them in immediately afterward.
func (b *bot) buildGrid(balances map[string]types.Balance) error {
	levels, err := gridgen.GenerateLevels(b.cfg.MarketPrice, b.cfg.MinPrice, b.cfg.MaxPrice, b.cfg.IncrementPercent, b.cfg.TargetSpreadPercent)
	if err != nil {
		return boterrors.NewConfigError(b.cfg.Name, err)
	}

	var nBuy, nSell int
	for _, lvl := range levels {
		switch lvl.Type {
		case types.SlotBuy:
			nBuy++
		case types.SlotSell:
			nSell++
		}
	}

	buyTotal := accountTotal(balances, b.cfg.AssetB.ID, b.cfg.AssetB.Precision)
	sellTotal := accountTotal(balances, b.cfg.AssetA.ID, b.cfg.AssetA.Precision)

	buyAlloc, err := b.allocateSide(types.Buy, nBuy, buyTotal)
	if err != nil {
		return err
	}
	sellAlloc, err := b.allocateSide(types.Sell, nSell, sellTotal)
	if err != nil {
		return err
	}

	slots := make([]types.GridSlot, 0, len(levels))
	var buyIdx, sellIdx int
	for _, lvl := range levels {
		slot := types.GridSlot{ID: lvl.ID, Type: lvl.Type, State: types.Virtual, Price: lvl.Price}
		switch lvl.Type {
		case types.SlotBuy:
			slot.Size = buyAlloc.Sizes[buyIdx]
			buyIdx++
		case types.SlotSell:
			slot.Size = sellAlloc.Sizes[sellIdx]
			sellIdx++
		}
		slots = append(slots, slot)
	}

	if err := b.store.Replace(slots); err != nil {
		return fmt.Errorf("buildGrid: %w", err)
	}

	b.cacheFunds.Buy += buyAlloc.Surplus
	b.cacheFunds.Sell += sellAlloc.Surplus
	return nil
}

func (b *bot) allocateSide(side types.Side, n int, chainTotal float64) (gridgen.Allocation, error) {
	value := b.cfg.BotFundsValue[side]
	allocated := chainTotal * value
	if !b.cfg.BotFundsIsPercent[side] {
		allocated = value
		if allocated > chainTotal {
			allocated = chainTotal
		}
	}

	if b.holdsNativeToken(side) {
		allocated -= b.feeCache.Reservation(b.cfg.ActiveOrders.Buy, b.cfg.ActiveOrders.Sell, b.nativePrecision())
		if allocated < 0 {
			allocated = 0
		}
	}

	precision := b.cfg.AssetB.Precision
	if side == types.Sell {
		precision = b.cfg.AssetA.Precision
	}

	alloc, err := gridgen.Allocate(allocated, n, b.cfg.WeightDistribution.Side(side), b.cfg.IncrementPercent, precision, side == types.Sell)
	if err != nil {
		return gridgen.Allocation{}, boterrors.NewConfigError(b.cfg.Name, err)
	}
	if _, err := gridgen.CheckMinimumSizes(string(side), alloc.Sizes, precision); err != nil {
		return gridgen.Allocation{}, err
	}
	return alloc, nil
}

// holdsNativeToken and nativePrecision compare the bot's assets against
// cfg.NativeAssetID; the native asset id is environment-specific (varies
// per graphene chain) and is threaded through ResolvedBotConfig by
// internal/config.
func (b *bot) holdsNativeToken(side types.Side) bool {
	asset := b.cfg.AssetB
	if side == types.Sell {
		asset = b.cfg.AssetA
	}
	return asset.ID == b.cfg.NativeAssetID
}

func (b *bot) nativePrecision() int {
	if b.cfg.AssetA.ID == b.cfg.NativeAssetID {
		return b.cfg.AssetA.Precision
	}
	return b.cfg.AssetB.Precision
}

func accountTotal(balances map[string]types.Balance, assetID string, precision int) float64 {
	bal, ok := balances[assetID]
	if !ok {
		return 0
	}
	free := float64(bal.Free)
	for i := 0; i < precision; i++ {
		free /= 10
	}
	return free
}

// run is the bot's single serialized event loop (spec §5): only one of
// {startup, fill handling, timer-driven resize, user-triggered
// recalculation} executes at a time.
func (b *bot) run(ctx context.Context) {
	defer close(b.done)

	timer := time.NewTicker(resizeInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fill := <-b.fillCh:
			if b.isDuplicateFill(fill) {
				continue
			}
			b.handleFill(ctx, fill)
		case <-timer.C:
			b.handleResize(ctx, false)
			b.retryCorrections(ctx)
		case reply := <-b.recalcCh:
			reply <- b.handleResize(ctx, true)
		case reply := <-b.statusCh:
			reply <- b.buildStatus()
		}
	}
}

// buildStatus reads every field the status API reports. Run only from
// run's own goroutine so it never races with a concurrent fill or resize
// handler touching the same fields.
func (b *bot) buildStatus() types.BotStatus {
	corrections := make([]types.Correction, 0, len(b.corrections))
	for _, c := range b.corrections {
		corrections = append(corrections, c)
	}
	return types.BotStatus{
		Name:             b.cfg.Name,
		AssetA:           b.cfg.AssetA,
		AssetB:           b.cfg.AssetB,
		PreferredAccount: b.cfg.PreferredAccount,
		DryRun:           b.cfg.DryRun,
		MarketPrice:      b.cfg.MarketPrice,
		MinPrice:         b.cfg.MinPrice,
		MaxPrice:         b.cfg.MaxPrice,
		Grid:             b.store.Snapshot(),
		CacheFunds:       b.cacheFunds,
		BTSFeesOwed:      b.btsFeesOwed,
		Corrections:      corrections,
	}
}

func (b *bot) isDuplicateFill(fill types.FillEvent) bool {
	key := fmt.Sprintf("%s:%d", fill.ChainOrderID, fill.FilledAmount)
	now := time.Now()
	for k, seenAt := range b.lastSeenFill {
		if now.Sub(seenAt) > fillDedupWindow {
			delete(b.lastSeenFill, k)
		}
	}
	if _, seen := b.lastSeenFill[key]; seen {
		return true
	}
	b.lastSeenFill[key] = now
	return false
}

func (b *bot) handleFill(ctx context.Context, fill types.FillEvent) {
	res, err := rotator.HandleFill(b.store, fill, rotator.Config{
		AssetAPrecision: b.cfg.AssetA.Precision,
		AssetBPrecision: b.cfg.AssetB.Precision,
		MarketPrice:     b.cfg.MarketPrice,
		TargetActive:    b.cfg.ActiveOrders,
	})
	if err != nil {
		b.logger.Error("rotator: handling fill", "chainOrderId", fill.ChainOrderID, "error", err)
		return
	}

	switch res.ProceedsSide {
	case types.Buy:
		b.cacheFunds.Buy += res.ProceedsAmount
	case types.Sell:
		b.cacheFunds.Sell += res.ProceedsAmount
	}

	b.applyBatch(ctx, res.Batch)

	b.checkDivergence(ctx)

	if err := b.persistSnapshot(); err != nil {
		b.logger.Error("persisting snapshot after fill", "error", err)
	}
}

// checkDivergence runs the divergence detector (spec §4.6) against the
// ideal grid recomputed from current funds and marks sides for resize.
// Both the cache-ratio check and the RMS-of-relative-size-error check are
// independent triggers; either one marks a side.
func (b *bot) checkDivergence(ctx context.Context) {
	for _, side := range []types.Side{types.Buy, types.Sell} {
		funds := b.sideFunds(side)

		asset := b.cfg.AssetB
		slotType := types.SlotBuy
		if side == types.Sell {
			asset = b.cfg.AssetA
			slotType = types.SlotSell
		}

		ideal, err := resize.Ideal(b.store, b.feeCache, resize.Input{
			Side:               side,
			ChainTotal:         funds.ChainFree,
			BotFundsValue:      b.cfg.BotFundsValue[side],
			BotFundsIsPercent:  b.cfg.BotFundsIsPercent[side],
			WeightDistribution: b.cfg.WeightDistribution.Side(side),
			IncrementPercent:   b.cfg.IncrementPercent,
			SizePrecision:      asset.Precision,
			HoldsNativeToken:   b.holdsNativeToken(side),
			ActiveBuy:          b.cfg.ActiveOrders.Buy,
			ActiveSell:         b.cfg.ActiveOrders.Sell,
			NativePrecision:    b.nativePrecision(),
		})
		if err != nil {
			b.logger.Warn("divergence: computing ideal grid", "side", side, "error", err)
			continue
		}

		persisted := b.store.ByType(slotType)
		if divergence.SideMarked(funds.CacheFunds, funds.Available, funds.TotalGrid, ideal, persisted) {
			b.resizeSide(ctx, side, false)
		}
	}
}

func (b *bot) sideFunds(side types.Side) types.SideFunds {
	cache := b.cacheFunds.Side(side)
	allocated := 0.0
	feesReserved := 0.0
	if b.holdsNativeToken(side) {
		feesReserved = b.feeCache.Reservation(b.cfg.ActiveOrders.Buy, b.cfg.ActiveOrders.Sell, b.nativePrecision())
	}
	chainFree := 0.0 // refreshed during resize; best-effort view between resizes.
	return b.store.Funds(side, cache, allocated, chainFree, feesReserved)
}

// handleResize runs the resize pass (spec §4.7) for both sides. refetch
// controls whether account balances are refreshed first; the periodic
// timer path skips it, matching step 1's "skipped if called by the
// periodic balance timer".
func (b *bot) handleResize(ctx context.Context, refetch bool) error {
	var balances map[string]types.Balance
	if refetch {
		bal, err := b.client.GetAccountBalances(ctx, b.cfg.PreferredAccount)
		if err != nil {
			return &boterrors.ChainTransient{Op: "resize refetch", Err: err}
		}
		balances = bal
	}

	for _, side := range []types.Side{types.Buy, types.Sell} {
		if err := b.resizeSideWithBalances(ctx, side, balances); err != nil {
			return err
		}
	}
	return b.persistSnapshot()
}

func (b *bot) resizeSide(ctx context.Context, side types.Side, refetch bool) {
	var balances map[string]types.Balance
	if refetch {
		bal, err := b.client.GetAccountBalances(ctx, b.cfg.PreferredAccount)
		if err != nil {
			b.logger.Error("resize refetch", "error", err)
			return
		}
		balances = bal
	}
	if err := b.resizeSideWithBalances(ctx, side, balances); err != nil {
		b.logger.Error("resize", "side", side, "error", err)
	}
}

func (b *bot) resizeSideWithBalances(ctx context.Context, side types.Side, balances map[string]types.Balance) error {
	asset := b.cfg.AssetB
	slotType := types.SlotBuy
	if side == types.Sell {
		asset = b.cfg.AssetA
		slotType = types.SlotSell
	}

	chainTotal := 0.0
	if balances != nil {
		chainTotal = accountTotal(balances, asset.ID, asset.Precision)
	} else {
		// No refetch requested: reuse the last allocated total as the
		// chain-total input, since resize only redistributes it.
		chainTotal = b.sideFunds(side).ChainFree
	}

	preSizes := make(map[string]float64)
	for _, sl := range b.store.ByType(slotType) {
		if sl.State == types.Active || sl.State == types.Partial {
			preSizes[sl.ID] = sl.Size
		}
	}

	res, err := resize.Pass(b.store, b.feeCache, resize.Input{
		Side:               side,
		ChainTotal:         chainTotal,
		BotFundsValue:      b.cfg.BotFundsValue[side],
		BotFundsIsPercent:  b.cfg.BotFundsIsPercent[side],
		WeightDistribution: b.cfg.WeightDistribution.Side(side),
		IncrementPercent:   b.cfg.IncrementPercent,
		SizePrecision:      asset.Precision,
		HoldsNativeToken:   b.holdsNativeToken(side),
		ActiveBuy:          b.cfg.ActiveOrders.Buy,
		ActiveSell:         b.cfg.ActiveOrders.Sell,
		NativePrecision:    b.nativePrecision(),
	})
	if err != nil {
		return err
	}

	cache := b.cacheFunds.SidePtr(side)
	*cache += res.CacheDelta
	if res.Warn {
		b.logger.Warn("resize produced slots near the minimum size floor", "side", side)
	}

	batch := b.buildResizeBatch(slotType, asset.Precision, preSizes)
	b.applyBatch(ctx, batch)
	return nil
}

// buildResizeBatch produces PartialMove entries re-sending updated sizes
// for ACTIVE/PARTIAL slots whose size changed under resize (spec §4.6
// "re-sends updated sizes for ACTIVE slots on those sides"). preSizes
// holds each slot's committed size just before the resize pass ran.
func (b *bot) buildResizeBatch(slotType types.SlotType, precision int, preSizes map[string]float64) types.BatchUpdate {
	var batch types.BatchUpdate
	for _, sl := range b.store.ByType(slotType) {
		before, tracked := preSizes[sl.ID]
		if !tracked {
			continue
		}

		delta := fixedpoint.ToInt(sl.Size, precision) - fixedpoint.ToInt(before, precision)
		if delta == 0 {
			continue
		}

		batch.PartialMoves = append(batch.PartialMoves, types.PartialMove{
			SlotID:            sl.ID,
			ChainOrderID:      sl.ChainOrderID,
			NewPrice:          sl.Price,
			DeltaAmountToSell: delta,
		})
	}
	return batch
}

// applyBatch sends every piece of a BatchUpdate to the chain and updates
// the store to match. A failure on one entry is logged and queued as a
// correction rather than aborting the rest of the batch — a stuck order
// must not block every other slot in the grid from converging.
func (b *bot) applyBatch(ctx context.Context, batch types.BatchUpdate) {
	for _, place := range batch.OrdersToPlace {
		req := types.CreateOrderRequest{
			Seller:       b.cfg.PreferredAccount,
			Expiration:   time.Now().Add(365 * 24 * time.Hour),
		}
		if place.Type == types.SlotBuy {
			req.SellAssetID = b.cfg.AssetB.ID
			req.ReceiveAssetID = b.cfg.AssetA.ID
			req.AmountToSell = fixedpoint.ToInt(place.Size, b.cfg.AssetB.Precision)
			req.MinToReceive = fixedpoint.ToInt(place.Size/place.Price, b.cfg.AssetA.Precision)
		} else {
			req.SellAssetID = b.cfg.AssetA.ID
			req.ReceiveAssetID = b.cfg.AssetB.ID
			req.AmountToSell = fixedpoint.ToInt(place.Size, b.cfg.AssetA.Precision)
			req.MinToReceive = fixedpoint.ToInt(place.Size*place.Price, b.cfg.AssetB.Precision)
		}

		chainOrderID, err := b.client.CreateOrder(ctx, req)
		if err != nil {
			b.logger.Error("create order failed", "slotId", place.SlotID, "error", err)
			b.queueCorrection(place.SlotID, "", place.Price, place.Size, 0, types.CorrectionPrice)
			continue
		}

		slot, ok := b.store.Get(place.SlotID)
		if !ok {
			b.logger.Warn("placed order for a slot no longer in the store", "slotId", place.SlotID)
			continue
		}
		slot.State = types.Active
		slot.ChainOrderID = chainOrderID
		slot.Size = place.Size
		if err := b.store.Upsert(slot); err != nil {
			b.logger.Error("upsert after create", "slotId", place.SlotID, "error", err)
		}
	}

	for _, cancel := range batch.OrdersToCancel {
		if cancel.ChainOrderID == "" {
			continue
		}
		if err := b.client.CancelOrder(ctx, cancel.ChainOrderID); err != nil {
			if errors.Is(err, chain.ErrOrderNotFound) {
				continue // already gone: nothing left to cancel
			}
			b.logger.Error("cancel order failed", "slotId", cancel.SlotID, "error", err)
			b.queueCorrection(cancel.SlotID, cancel.ChainOrderID, 0, 0, 0, types.CorrectionCancel)
		}
	}

	for _, move := range batch.PartialMoves {
		if move.ChainOrderID == "" {
			continue
		}
		req := types.UpdateOrderRequest{
			DeltaAmountToSell: move.DeltaAmountToSell,
			NewPrice:          move.NewPrice,
			Expiration:        time.Now().Add(365 * 24 * time.Hour),
		}
		if err := b.client.UpdateOrder(ctx, move.ChainOrderID, req); err != nil {
			if errors.Is(err, chain.ErrOrderNotFound) {
				b.queueCorrection(move.SlotID, move.ChainOrderID, move.NewPrice, 0, 0, types.CorrectionNotFound)
				continue
			}
			b.logger.Error("update order failed", "slotId", move.SlotID, "error", err)
			b.queueCorrection(move.SlotID, move.ChainOrderID, move.NewPrice, 0, move.DeltaAmountToSell, types.CorrectionPrice)
		}
	}
}

// queueCorrection records a failed chain operation for a later retry pass,
// collapsing repeated failures for the same slot/kind onto one entry.
func (b *bot) queueCorrection(slotID, chainOrderID string, price, size float64, delta int64, kind types.CorrectionKind) {
	key := b.correctionKey(slotID, kind)
	corr := b.corrections[key]
	corr.ChainOrderID = chainOrderID
	corr.ExpectedPrice = price
	corr.ExpectedSize = size
	corr.DeltaAmountToSell = delta
	corr.NextAttempt = time.Now().Add(correctionRetryDelay)
	b.corrections[key] = corr
}

// retryCorrections re-attempts every queued correction whose retry delay
// has elapsed (spec: "price-correction retries between corrections are
// spaced by a fixed delay"). A correction is cleared from the queue on a
// successful retry or when the chain reports the underlying order no
// longer exists (spec: "ChainNotFound -> remove from queue; resync on
// next reconcile"); anything else stays queued for the next pass.
func (b *bot) retryCorrections(ctx context.Context) {
	now := time.Now()
	for key, corr := range b.corrections {
		if now.Before(corr.NextAttempt) {
			continue
		}
		if b.retryCorrection(ctx, corr) {
			delete(b.corrections, key)
			continue
		}
		corr.NextAttempt = now.Add(correctionRetryDelay)
		b.corrections[key] = corr
	}
}

// retryCorrection re-attempts one queued correction and reports whether
// it can be dropped from the queue.
func (b *bot) retryCorrection(ctx context.Context, corr types.Correction) bool {
	switch corr.Kind {
	case types.CorrectionNotFound:
		return true

	case types.CorrectionCancel:
		if err := b.client.CancelOrder(ctx, corr.ChainOrderID); err != nil {
			if errors.Is(err, chain.ErrOrderNotFound) {
				return true
			}
			b.logger.Warn("correction retry: cancel order failed", "slotId", corr.SlotID, "error", err)
			return false
		}
		return true

	case types.CorrectionPrice:
		if corr.ChainOrderID == "" {
			return b.retryCreate(ctx, corr)
		}
		return b.retryUpdate(ctx, corr)

	default:
		return true
	}
}

// retryCreate re-attempts a failed order creation using the price/size
// the original batch entry wanted.
func (b *bot) retryCreate(ctx context.Context, corr types.Correction) bool {
	slot, ok := b.store.Get(corr.SlotID)
	if !ok {
		return true
	}

	req := types.CreateOrderRequest{
		Seller:     b.cfg.PreferredAccount,
		Expiration: time.Now().Add(365 * 24 * time.Hour),
	}
	if slot.Type == types.SlotBuy {
		req.SellAssetID = b.cfg.AssetB.ID
		req.ReceiveAssetID = b.cfg.AssetA.ID
		req.AmountToSell = fixedpoint.ToInt(corr.ExpectedSize, b.cfg.AssetB.Precision)
		req.MinToReceive = fixedpoint.ToInt(corr.ExpectedSize/corr.ExpectedPrice, b.cfg.AssetA.Precision)
	} else {
		req.SellAssetID = b.cfg.AssetA.ID
		req.ReceiveAssetID = b.cfg.AssetB.ID
		req.AmountToSell = fixedpoint.ToInt(corr.ExpectedSize, b.cfg.AssetA.Precision)
		req.MinToReceive = fixedpoint.ToInt(corr.ExpectedSize*corr.ExpectedPrice, b.cfg.AssetB.Precision)
	}

	chainOrderID, err := b.client.CreateOrder(ctx, req)
	if err != nil {
		b.logger.Warn("correction retry: create order failed", "slotId", corr.SlotID, "error", err)
		return false
	}

	slot.State = types.Active
	slot.ChainOrderID = chainOrderID
	slot.Size = corr.ExpectedSize
	if err := b.store.Upsert(slot); err != nil {
		b.logger.Error("correction retry: upsert after create", "slotId", corr.SlotID, "error", err)
	}
	return true
}

// retryUpdate re-attempts a failed partial move using the delta the
// original batch entry wanted.
func (b *bot) retryUpdate(ctx context.Context, corr types.Correction) bool {
	req := types.UpdateOrderRequest{
		DeltaAmountToSell: corr.DeltaAmountToSell,
		NewPrice:          corr.ExpectedPrice,
		Expiration:        time.Now().Add(365 * 24 * time.Hour),
	}
	if err := b.client.UpdateOrder(ctx, corr.ChainOrderID, req); err != nil {
		if errors.Is(err, chain.ErrOrderNotFound) {
			return true
		}
		b.logger.Warn("correction retry: update order failed", "slotId", corr.SlotID, "error", err)
		return false
	}
	return true
}

// persistSnapshot writes the bot's current grid and fund state to disk.
func (b *bot) persistSnapshot() error {
	return b.persist.Save(b.botKey(), types.Snapshot{
		Grid:        b.store.Snapshot(),
		CacheFunds:  b.cacheFunds,
		BTSFeesOwed: b.btsFeesOwed,
	})
}

// botKey is the persistence key: the configured BotKey, or the bot's name
// when none is set.
func (b *bot) botKey() string {
	if b.cfg.BotKey != "" {
		return b.cfg.BotKey
	}
	return b.cfg.Name
}

// correctionKey returns the dedup key "kind:slotID" for a correction, so
// repeated enqueue attempts for the same slot and kind collapse onto one
// retryable entry. The first time a key is seen it creates that entry with
// a fresh uuid as its Key.
func (b *bot) correctionKey(slotID string, kind types.CorrectionKind) string {
	existingKey := string(kind) + ":" + slotID
	if _, ok := b.corrections[existingKey]; ok {
		return existingKey
	}
	b.corrections[existingKey] = types.Correction{Key: uuid.NewString(), SlotID: slotID, Kind: kind}
	return existingKey
}
