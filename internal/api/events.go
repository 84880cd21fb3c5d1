package api

import (
	"time"

	"dexgrid/pkg/types"
)

// DashboardEvent wraps every event pushed to connected WebSocket clients.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "fill", "correction"
	Timestamp time.Time   `json:"timestamp"`
	BotName   string      `json:"botName,omitempty"`
	Data      interface{} `json:"data"`
}

// FillEvent reports one fill notification as forwarded to the dashboard.
type FillEvent struct {
	BotName      string  `json:"botName"`
	ChainOrderID string  `json:"chainOrderId"`
	SlotType     string  `json:"slotType"` // "BUY" or "SELL"
	Price        float64 `json:"price"`
	FilledAmount int64   `json:"filledAmount"`
}

// NewFillEvent builds a dashboard fill event from a grid slot and the
// chain fill that landed on it.
func NewFillEvent(botName string, slot types.GridSlot, fill types.FillEvent) FillEvent {
	return FillEvent{
		BotName:      botName,
		ChainOrderID: fill.ChainOrderID,
		SlotType:     string(slot.Type),
		Price:        slot.Price,
		FilledAmount: fill.FilledAmount,
	}
}

// CorrectionEvent reports a single queued correction entering the
// dashboard's corrections list, used to alert an operator to a stuck order.
type CorrectionEvent struct {
	BotName string `json:"botName"`
	types.Correction
}
