// Command gridbot runs a fleet of grid-manager market-making bots against a
// graphene-style (BitShares-like) chain with an on-chain limit order book.
//
// Architecture:
//
//	main.go                  — entry point: load config, connect to chain, start every active bot, wait for SIGINT/SIGTERM
//	internal/config          — bot roster + ambient settings, relative-string field resolution
//	internal/chainclient     — the reference chain.Client: graphene JSON-RPC over a single WebSocket
//	internal/oracle          — reference-price derivation (pool/market/auto), singleflight-coalesced
//	internal/gridgen         — initial grid generation and fund allocation
//	internal/rotator         — fill handling: rotates a filled slot to the opposite side
//	internal/resize          — periodic balance-driven grid resize
//	internal/manager         — one goroutine per bot, orchestrates startup/fills/resize/recalc
//	internal/persistence     — JSON snapshot persistence, survives restarts
//	internal/api             — read-only status HTTP/WS server
//
// How it makes money:
//
//	Each bot lays a ladder of buy and sell limit orders around a reference
//	price. When a slot fills, the rotator turns it into a spread
//	placeholder and, if the opposite side is below its active-order
//	target, places that side's virtual slot nearest the reference price,
//	capturing the spread between the two trades while staying within the
//	configured price band.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dexgrid/internal/api"
	"dexgrid/internal/chainclient"
	"dexgrid/internal/config"
	"dexgrid/internal/manager"
	"dexgrid/internal/oracle"
	"dexgrid/internal/persistence"
)

func main() {
	cfgPath := "configs/bots.json"
	if p := os.Getenv("GRID_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(newLogHandler(cfg.Logging))

	dataDir := cfg.Store.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	persist, err := persistence.Open(dataDir)
	if err != nil {
		logger.Error("failed to open persistence store", "error", err)
		os.Exit(1)
	}

	client := chainclient.New(cfg.NodeURL, logger)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer connectCancel()
	if err := client.Connect(connectCtx); err != nil {
		logger.Error("failed to connect to chain node", "error", err, "url", cfg.NodeURL)
		os.Exit(1)
	}
	if err := client.WaitForConnected(connectCtx, 30*time.Second); err != nil {
		logger.Error("timed out waiting for chain connection", "error", err)
		os.Exit(1)
	}

	o := oracle.New(client, logger)
	resolved, err := cfg.Resolve(connectCtx, client, o)
	if err != nil {
		logger.Error("failed to resolve bot configuration", "error", err)
		os.Exit(1)
	}
	if len(resolved) == 0 {
		logger.Warn("no active bots configured, nothing to do")
	}

	mgr := manager.New(client, persist, logger)

	startCtx, startCancel := context.WithCancel(context.Background())
	defer startCancel()
	for _, rc := range resolved {
		if err := mgr.StartBot(startCtx, rc); err != nil {
			logger.Error("failed to start bot", "bot", rc.Name, "error", err)
			os.Exit(1)
		}
		logger.Info("bot started", "bot", rc.Name, "assetA", rc.AssetA.Symbol, "assetB", rc.AssetB.Symbol, "dryRun", rc.DryRun)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{Port: cfg.API.Port, AllowedOrigins: cfg.API.AllowedOrigins}, mgr, cfg.DryRun, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status api started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop status api", "error", err)
		}
	}

	for _, rc := range resolved {
		if err := mgr.StopBot(rc.Name); err != nil {
			logger.Error("failed to stop bot", "bot", rc.Name, "error", err)
		}
	}
	mgr.Wait()
}

func newLogHandler(cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
