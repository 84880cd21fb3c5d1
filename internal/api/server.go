package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// snapshotPushInterval is how often connected WebSocket clients receive a
// refreshed snapshot, independent of fill/correction events.
const snapshotPushInterval = 5 * time.Second

// Config is the status API's own settings, separate from the bot roster.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Server runs the read-only status HTTP/WebSocket API over a running
// manager's bot fleet.
type Server struct {
	cfg      Config
	mgr      Manager
	dryRun   bool
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger

	stop chan struct{}
}

// NewServer creates a new API server over mgr.
func NewServer(cfg Config, mgr Manager, dryRun bool, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(mgr, dryRun, cfg.AllowedOrigins, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		mgr:      mgr,
		dryRun:   dryRun,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
		stop:     make(chan struct{}),
	}
}

// Start runs the hub and periodic snapshot pusher in the background, then
// blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.pushSnapshots()

	s.logger.Info("status server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping status server")
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// pushSnapshots periodically broadcasts a fresh snapshot to every connected
// client, covering bots that neither fill nor queue a correction for a
// while (an otherwise-idle grid still needs its price/funds refreshed).
func (s *Server) pushSnapshots() {
	ticker := time.NewTicker(snapshotPushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			snapshot := BuildSnapshot(ctx, s.mgr, s.dryRun)
			cancel()
			s.hub.BroadcastSnapshot(snapshot)
		}
	}
}
