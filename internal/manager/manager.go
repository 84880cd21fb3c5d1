// Package manager is the multi-bot orchestrator: it owns the lifecycle of
// every running grid (start/stop, fill routing, recalculation requests),
// mirroring the teacher's internal/engine.Engine market-slot registry but
// keyed by bot name instead of condition id.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dexgrid/internal/chain"
	"dexgrid/internal/persistence"
	"dexgrid/pkg/types"
)

// Manager owns every running bot and the shared collaborators they all use.
type Manager struct {
	client  chain.Client
	persist *persistence.Store
	logger  *slog.Logger

	mu   sync.RWMutex
	bots map[string]*bot

	wg sync.WaitGroup
}

// New creates a manager against a shared chain client and persistence store.
func New(client chain.Client, persist *persistence.Store, logger *slog.Logger) *Manager {
	return &Manager{
		client:  client,
		persist: persist,
		logger:  logger,
		bots:    make(map[string]*bot),
	}
}

// StartBot builds, reconciles, and launches one bot's run loop, plus a fan-in
// goroutine that forwards its account's fill subscription into its fillCh.
// A startup failure leaves no trace in the registry.
func (m *Manager) StartBot(ctx context.Context, cfg types.ResolvedBotConfig) error {
	m.mu.Lock()
	if _, exists := m.bots[cfg.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("manager: bot %q already running", cfg.Name)
	}
	m.mu.Unlock()

	b := newBot(cfg, m.client, m.persist, m.logger)
	botCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	if err := b.startup(botCtx); err != nil {
		cancel()
		return fmt.Errorf("manager: starting bot %q: %w", cfg.Name, err)
	}

	m.mu.Lock()
	m.bots[cfg.Name] = b
	m.mu.Unlock()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		b.run(botCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.pumpFills(botCtx, b, cfg.PreferredAccount)
	}()

	m.logger.Info("bot started", "bot", cfg.Name)
	return nil
}

// pumpFills subscribes to the bot's account and forwards every fill onto the
// bot's own fillCh, where run's select loop applies the 5s dedup window. A
// closed subscription channel (a reconnect dropped it, per
// internal/chainclient) triggers a fresh SubscribeAccount rather than
// ending the pump, so fills keep flowing across chain reconnects; the
// periodic resize timer covers the gap in between.
func (m *Manager) pumpFills(ctx context.Context, b *bot, account string) {
	defer m.client.UnsubscribeAccount(context.Background(), account)

	for {
		fills, err := m.client.SubscribeAccount(ctx, account)
		if err != nil {
			b.logger.Error("fill subscription failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		if !m.drainFills(ctx, b, fills) {
			return
		}
	}
}

// drainFills forwards fills until the channel closes or ctx is cancelled.
// Returns false when the caller should stop entirely (ctx done), true when
// it should resubscribe.
func (m *Manager) drainFills(ctx context.Context, b *bot, fills <-chan types.FillEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case fill, ok := <-fills:
			if !ok {
				return true
			}
			select {
			case b.fillCh <- fill:
			default:
				b.logger.Warn("fill channel full, dropping notification", "chainOrderId", fill.ChainOrderID)
			}
		}
	}
}

// StopBot removes a running bot from the registry, cancels its context and
// waits for its run loop to exit. The fill-forwarding goroutine stops on
// the same cancellation but is not waited for.
func (m *Manager) StopBot(name string) error {
	m.mu.Lock()
	b, ok := m.bots[name]
	if ok {
		delete(m.bots, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("manager: bot %q not running", name)
	}
	b.cancel()
	<-b.done
	return nil
}

// HandleFill routes a fill notification to the named bot's run loop. Used by
// tests to inject fills without a live chain subscription.
func (m *Manager) HandleFill(botName string, fill types.FillEvent) error {
	b, ok := m.bot(botName)
	if !ok {
		return fmt.Errorf("manager: bot %q not running", botName)
	}
	select {
	case b.fillCh <- fill:
		return nil
	default:
		return fmt.Errorf("manager: bot %q fill channel full", botName)
	}
}

// RequestRecalc triggers an out-of-band resize pass (with balance refetch)
// for the named bot and blocks until it completes.
func (m *Manager) RequestRecalc(ctx context.Context, botName string) error {
	b, ok := m.bot(botName)
	if !ok {
		return fmt.Errorf("manager: bot %q not running", botName)
	}

	reply := make(chan error, 1)
	select {
	case b.recalcCh <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current grid for every running bot, keyed by name.
// Status reports the fuller per-bot view (funds, corrections, config);
// Snapshot stays cheap for callers that only need the grid itself.
func (m *Manager) Snapshot() map[string][]types.GridSlot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]types.GridSlot, len(m.bots))
	for name, b := range m.bots {
		out[name] = b.store.Snapshot()
	}
	return out
}

// Status returns the named bot's full status, built from inside its own
// run loop so funds and corrections are read without racing a concurrent
// fill or resize.
func (m *Manager) Status(ctx context.Context, name string) (types.BotStatus, error) {
	b, ok := m.bot(name)
	if !ok {
		return types.BotStatus{}, fmt.Errorf("manager: bot %q not running", name)
	}

	reply := make(chan types.BotStatus, 1)
	select {
	case b.statusCh <- reply:
	case <-ctx.Done():
		return types.BotStatus{}, ctx.Err()
	}

	select {
	case status := <-reply:
		return status, nil
	case <-ctx.Done():
		return types.BotStatus{}, ctx.Err()
	}
}

// StatusAll returns every running bot's status, keyed by name. A bot whose
// status request can't complete before ctx is cancelled is omitted.
func (m *Manager) StatusAll(ctx context.Context) map[string]types.BotStatus {
	m.mu.RLock()
	names := make([]string, 0, len(m.bots))
	for name := range m.bots {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]types.BotStatus, len(names))
	for _, name := range names {
		status, err := m.Status(ctx, name)
		if err != nil {
			m.logger.Warn("status request failed", "bot", name, "error", err)
			continue
		}
		out[name] = status
	}
	return out
}

func (m *Manager) bot(name string) (*bot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[name]
	return b, ok
}

// Wait blocks until every started bot's goroutines have exited, used during
// shutdown after every bot has been cancelled via its parent context.
func (m *Manager) Wait() {
	m.wg.Wait()
}
