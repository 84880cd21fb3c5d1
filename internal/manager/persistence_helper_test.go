package manager

import (
	"testing"

	"dexgrid/internal/persistence"
)

func newTestPersistence(t *testing.T) (*persistence.Store, error) {
	t.Helper()
	return persistence.Open(t.TempDir())
}
