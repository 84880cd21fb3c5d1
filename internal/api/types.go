package api

import (
	"time"

	"dexgrid/pkg/types"
)

// DashboardSnapshot is the complete read-only state served at /api/snapshot
// and pushed to every /ws client on connect.
type DashboardSnapshot struct {
	Timestamp time.Time            `json:"timestamp"`
	DryRun    bool                 `json:"dryRun"`
	Bots      []BotSnapshot        `json:"bots"`
}

// BotSnapshot is the dashboard's per-bot view, flattened from
// types.BotStatus into JSON-friendly shapes.
type BotSnapshot struct {
	Name             string `json:"name"`
	AssetA           string `json:"assetA"`
	AssetB           string `json:"assetB"`
	PreferredAccount string `json:"preferredAccount"`
	DryRun           bool   `json:"dryRun"`

	MarketPrice float64 `json:"marketPrice"`
	MinPrice    float64 `json:"minPrice"`
	MaxPrice    float64 `json:"maxPrice"`

	Grid        []types.GridSlot    `json:"grid"`
	CacheFunds  types.SideValue     `json:"cacheFunds"`
	BTSFeesOwed float64             `json:"btsFeesOwed"`
	Corrections []types.Correction  `json:"corrections"`

	ActiveBuyOrders  int `json:"activeBuyOrders"`
	ActiveSellOrders int `json:"activeSellOrders"`
}

// NewBotSnapshot converts a manager-reported status into the dashboard's
// wire shape, deriving the active-order counts the teacher's dashboard
// always surfaces per market.
func NewBotSnapshot(s types.BotStatus) BotSnapshot {
	var buy, sell int
	for _, slot := range s.Grid {
		if slot.State != types.Active && slot.State != types.Partial {
			continue
		}
		if slot.Type == types.SlotBuy {
			buy++
		} else if slot.Type == types.SlotSell {
			sell++
		}
	}

	return BotSnapshot{
		Name:             s.Name,
		AssetA:           s.AssetA.Symbol,
		AssetB:           s.AssetB.Symbol,
		PreferredAccount: s.PreferredAccount,
		DryRun:           s.DryRun,
		MarketPrice:      s.MarketPrice,
		MinPrice:         s.MinPrice,
		MaxPrice:         s.MaxPrice,
		Grid:             s.Grid,
		CacheFunds:       s.CacheFunds,
		BTSFeesOwed:      s.BTSFeesOwed,
		Corrections:      s.Corrections,
		ActiveBuyOrders:  buy,
		ActiveSellOrders: sell,
	}
}
