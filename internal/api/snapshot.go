package api

import (
	"context"
	"time"

	"dexgrid/pkg/types"
)

// Manager is the subset of *manager.Manager the dashboard depends on, kept
// narrow so handlers can be tested against a fake instead of a live bot
// fleet.
type Manager interface {
	StatusAll(ctx context.Context) map[string]types.BotStatus
}

// BuildSnapshot aggregates every running bot's status into one dashboard
// snapshot.
func BuildSnapshot(ctx context.Context, mgr Manager, dryRun bool) DashboardSnapshot {
	statuses := mgr.StatusAll(ctx)

	bots := make([]BotSnapshot, 0, len(statuses))
	for _, status := range statuses {
		bots = append(bots, NewBotSnapshot(status))
	}

	return DashboardSnapshot{
		Timestamp: time.Now(),
		DryRun:    dryRun,
		Bots:      bots,
	}
}
