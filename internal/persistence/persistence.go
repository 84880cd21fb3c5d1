// Package persistence stores each bot's grid snapshot as a JSON file,
// written atomically (write temp, then rename) so a crash mid-write never
// leaves a corrupt or partial file on disk (spec §4.9).
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dexgrid/internal/boterrors"
	"dexgrid/pkg/types"
)

// Store persists one snapshot file per bot key in a designated directory.
type Store struct {
	dir string
	mu  sync.Mutex

	failMu     sync.Mutex
	lastFailed map[string]FailureRecord
}

// FailureRecord is kept for a bot whose last snapshot write failed, so the
// manager can retry at the next safe point instead of silently dropping
// fund state.
type FailureRecord struct {
	Err  error
	When time.Time
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create dir: %w", err)
	}
	return &Store{dir: dir, lastFailed: make(map[string]FailureRecord)}, nil
}

// Save atomically persists botKey's snapshot. On failure the error is
// recorded (retrievable via LastFailure) in addition to being returned,
// wrapped as a boterrors.PersistenceError.
func (s *Store) Save(botKey string, snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(botKey, snap); err != nil {
		wrapped := &boterrors.PersistenceError{Bot: botKey, Err: err}
		s.recordFailure(botKey, wrapped)
		return wrapped
	}
	s.clearFailure(botKey)
	return nil
}

func (s *Store) save(botKey string, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := s.path(botKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores botKey's snapshot from disk. Returns the zero Snapshot
// and ok=false if no file exists yet (a fresh bot). Any legacy
// pendingProceeds field is merged into CacheFunds on the same side before
// being returned, and is never written back out.
func (s *Store) Load(botKey string) (types.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(botKey))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Snapshot{}, false, nil
		}
		return types.Snapshot{}, false, fmt.Errorf("persistence: read snapshot: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("persistence: unmarshal snapshot: %w", err)
	}

	if snap.PendingProceeds != nil {
		snap.CacheFunds.Buy += snap.PendingProceeds.Buy
		snap.CacheFunds.Sell += snap.PendingProceeds.Sell
		snap.PendingProceeds = nil
	}

	return snap, true, nil
}

func (s *Store) path(botKey string) string {
	return filepath.Join(s.dir, "grid_"+botKey+".json")
}

func (s *Store) recordFailure(botKey string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.lastFailed[botKey] = FailureRecord{Err: err, When: time.Now()}
}

func (s *Store) clearFailure(botKey string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	delete(s.lastFailed, botKey)
}

// LastFailure reports the most recent unretried save failure for botKey,
// if any, so the manager can retry it at the next safe point.
func (s *Store) LastFailure(botKey string) (FailureRecord, bool) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	rec, ok := s.lastFailed[botKey]
	return rec, ok
}
