// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the grid manager — assets,
// grid slots, funds, configuration, and the wire shapes exchanged with the
// chain client. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"fmt"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is BUY or SELL, the two sides of a grid.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// SlotType classifies what a grid slot does. SELL sells asset A for asset
// B; BUY sells asset B for asset A; SPREAD is a placeholder inside the
// spread zone around the reference price, always sized 0.
type SlotType string

const (
	SlotSell   SlotType = "SELL"
	SlotBuy    SlotType = "BUY"
	SlotSpread SlotType = "SPREAD"
)

// Side returns the fund-accounting side a slot type contributes to.
// SPREAD slots are always size 0 so their side is informational only.
func (t SlotType) Side() Side {
	if t == SlotBuy {
		return Buy
	}
	return Sell
}

// SlotState is the lifecycle state of a grid slot.
//
//	VIRTUAL: not on chain. Contributes to funds.virtuel.
//	ACTIVE:  placed on chain, unfilled. Contributes to funds.committed.
//	PARTIAL: placed on chain, partially filled. Contributes to funds.committed.
type SlotState string

const (
	Virtual SlotState = "VIRTUAL"
	Active  SlotState = "ACTIVE"
	Partial SlotState = "PARTIAL"
)

// PriceMode selects how the reference price is derived.
type PriceMode string

const (
	PriceModePool   PriceMode = "pool"
	PriceModeMarket PriceMode = "market"
	PriceModeAuto   PriceMode = "auto"
)

// ————————————————————————————————————————————————————————————————————————
// Assets
// ————————————————————————————————————————————————————————————————————————

// Asset identifies a tradeable unit on the chain. Precision p means one
// on-chain integer unit equals 10^-p human units. Immutable after
// resolution; created once on manager startup.
type Asset struct {
	ID        string // chain object id, e.g. "1.3.0"
	Symbol    string
	Precision int
}

// ————————————————————————————————————————————————————————————————————————
// Grid slots
// ————————————————————————————————————————————————————————————————————————

// GridSlot is one rung of the grid ladder.
//
// id is a deterministic label ("sell-0".."sell-N", "buy-0".."buy-M"),
// stable across runs and used as the primary matching key during
// reconciliation. price is expressed as assetB-per-assetA. size units
// depend on Type: SELL sizes are in asset A, BUY sizes are in asset B.
//
// Invariants: Type == SPREAD implies Size == 0 and State == Virtual.
// State in {Active, Partial} implies ChainOrderID is non-empty.
type GridSlot struct {
	ID           string    `json:"id"`
	Type         SlotType  `json:"type"`
	State        SlotState `json:"state"`
	Price        float64   `json:"price"`
	Size         float64   `json:"size"`
	ChainOrderID string    `json:"chainOrderId,omitempty"`

	// OriginalSize remembers the size a PARTIAL slot had before it was
	// first reduced by a fill, so a later full fill can report the
	// correct fraction filled. Zero when State != Partial.
	OriginalSize float64 `json:"originalSize,omitempty"`
}

// Validate checks the two slot invariants from the data model.
func (s GridSlot) Validate() error {
	if s.Type == SlotSpread {
		if s.Size != 0 {
			return fmt.Errorf("spread slot %s has non-zero size %v", s.ID, s.Size)
		}
		if s.State != Virtual {
			return fmt.Errorf("spread slot %s has state %s, want VIRTUAL", s.ID, s.State)
		}
	}
	if (s.State == Active || s.State == Partial) && s.ChainOrderID == "" {
		return fmt.Errorf("slot %s in state %s has no chainOrderId", s.ID, s.State)
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Funds
// ————————————————————————————————————————————————————————————————————————

// SideFunds is the derived fund view for one side of one bot, rederived
// from the order store after every mutation. Never mutated directly.
type SideFunds struct {
	Virtuel       float64 `json:"virtuel"`
	Committed     float64 `json:"committed"`
	TotalGrid     float64 `json:"totalGrid"`
	CacheFunds    float64 `json:"cacheFunds"`
	Allocated     float64 `json:"allocated"`
	Available     float64 `json:"available"`
	FeesReserved  float64 `json:"feesReserved"`
	ChainFree     float64 `json:"chainFree"`
}

// Funds is the per-pair derived fund view.
type Funds struct {
	Buy         SideFunds `json:"buy"`
	Sell        SideFunds `json:"sell"`
	BTSFeesOwed float64   `json:"btsFeesOwed"`
}

// Side returns the fund view for the given side.
func (f *Funds) Side(s Side) *SideFunds {
	if s == Buy {
		return &f.Buy
	}
	return &f.Sell
}

// ————————————————————————————————————————————————————————————————————————
// Configuration
// ————————————————————————————————————————————————————————————————————————

// BotConfig is one entry of the "bots" array in the configuration file.
// Several fields accept relative string forms ("50%", "3x", "pool",
// "market") in the raw JSON; internal/parse resolves them into the
// Resolved* numeric fields below before the bot is started.
type BotConfig struct {
	Name              string `mapstructure:"name"`
	AssetA            string `mapstructure:"assetA"`
	AssetB            string `mapstructure:"assetB"`
	Active            bool   `mapstructure:"active"`
	DryRun            bool   `mapstructure:"dryRun"`
	PreferredAccount  string `mapstructure:"preferredAccount"`
	BotKey            string `mapstructure:"botKey"`

	MarketPrice         string `mapstructure:"marketPrice"` // numeric, "pool", or "market"
	MinPrice            string `mapstructure:"minPrice"`    // numeric or "Nx"
	MaxPrice            string `mapstructure:"maxPrice"`    // numeric or "Nx"
	IncrementPercent    float64 `mapstructure:"incrementPercent"`
	TargetSpreadPercent float64 `mapstructure:"targetSpreadPercent"`

	WeightDistribution SideValue  `mapstructure:"weightDistribution"`
	BotFunds           SideString `mapstructure:"botFunds"` // numeric or "N%"
	ActiveOrders       SideInt    `mapstructure:"activeOrders"`

	PriceMode string `mapstructure:"priceMode"` // "pool" | "market" | "auto"
}

// SideValue holds a numeric value per side.
type SideValue struct {
	Buy  float64 `mapstructure:"buy"`
	Sell float64 `mapstructure:"sell"`
}

// Side returns the value for the given side.
func (v SideValue) Side(s Side) float64 {
	if s == Buy {
		return v.Buy
	}
	return v.Sell
}

// SidePtr returns a pointer to the given side's field, for in-place
// accumulation (e.g. crediting cacheFunds).
func (v *SideValue) SidePtr(s Side) *float64 {
	if s == Buy {
		return &v.Buy
	}
	return &v.Sell
}

// SideString holds a raw (possibly relative) string per side.
type SideString struct {
	Buy  string `mapstructure:"buy"`
	Sell string `mapstructure:"sell"`
}

// SideInt holds a target count per side.
type SideInt struct {
	Buy  int `mapstructure:"buy"`
	Sell int `mapstructure:"sell"`
}

// ResolvedBotConfig is a BotConfig after internal/parse has resolved every
// relative string field into absolute numbers, using the assets' resolved
// precisions and a known reference price where needed.
type ResolvedBotConfig struct {
	Name             string
	AssetA, AssetB   Asset
	Active           bool
	DryRun           bool
	PreferredAccount string
	// BotKey is the stable identifier used for persistence; config.Resolve
	// sets it to Name when the config file leaves botKey empty.
	BotKey string

	MarketPrice         float64
	MinPrice            float64
	MaxPrice            float64
	IncrementPercent    float64
	TargetSpreadPercent float64

	WeightDistribution SideValue
	BotFundsIsPercent  map[Side]bool
	BotFundsValue      map[Side]float64 // either an absolute amount or a fraction in [0,1]
	ActiveOrders       SideInt

	PriceMode PriceMode

	// NativeAssetID is the chain's native fee token's object id, used to
	// decide whether a side's fee reservation applies (§4.3).
	NativeAssetID string

	// FixedMarketPrice is set when the config file's marketPrice field was
	// a plain number rather than "pool"/"market": the reference price is
	// pinned and the oracle is never consulted. Nil means derive via
	// PriceMode every startup.
	FixedMarketPrice *float64
}

// ————————————————————————————————————————————————————————————————————————
// Persistence
// ————————————————————————————————————————————————————————————————————————

// Snapshot is the persisted state of one bot, written atomically after
// every successful batch application.
type Snapshot struct {
	Grid        []GridSlot `json:"grid"`
	CacheFunds  SideValue  `json:"cacheFunds"`
	BTSFeesOwed float64    `json:"btsFeesOwed"`

	// PendingProceeds is a legacy field from an earlier snapshot format;
	// if present on load it is merged into CacheFunds on the same side
	// and dropped from subsequent writes.
	PendingProceeds *SideValue `json:"pendingProceeds,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Chain wire types
// ————————————————————————————————————————————————————————————————————————

// AssetAmount is one leg of a chain order's price, an (asset, integer
// amount) pair as reported by the chain.
type AssetAmount struct {
	AssetID string `json:"asset_id"`
	Amount  int64  `json:"amount"`
}

// ChainOrder is an open limit order as reported by getOpenOrders. It
// exchanges sell_price.base for sell_price.quote; for_sale is the
// remaining amount of the base asset still for sale.
type ChainOrder struct {
	ID         string `json:"id"`
	SellPrice  struct {
		Base  AssetAmount `json:"base"`
		Quote AssetAmount `json:"quote"`
	} `json:"sell_price"`
	ForSale    int64     `json:"for_sale"`
	Expiration time.Time `json:"expiration"`
}

// Balance is one asset's free/locked balance on an account.
type Balance struct {
	Free   int64 `json:"free"`
	Locked int64 `json:"locked"`
}

// CreateOrderRequest is the payload for creating a chain order.
type CreateOrderRequest struct {
	Seller        string
	AmountToSell  int64
	SellAssetID   string
	MinToReceive  int64
	ReceiveAssetID string
	Expiration    time.Time
}

// UpdateOrderRequest adjusts an existing order's remaining amount and/or
// price. A zero DeltaAmountToSell and unchanged NewPrice is rejected by
// the chain; the chain client does not check for it.
type UpdateOrderRequest struct {
	DeltaAmountToSell int64
	NewPrice          float64
	Expiration        time.Time
}

// FillEvent is delivered by the chain client's account subscription when
// one of the account's orders is filled, fully or partially.
type FillEvent struct {
	ChainOrderID  string
	FilledAmount  int64
	RemainingSize int64 // remaining for_sale, in the order's base asset units
	Timestamp     time.Time
}

// GlobalProperties carries current chain-wide operation fees.
type GlobalProperties struct {
	CreateOrderFee int64 // in the native chain token's integer units
	UpdateOrderFee int64
	CancelOrderFee int64
}

// Pool is a liquidity pool between two assets.
type Pool struct {
	ID          string
	AssetA      string
	AssetB      string
	BalanceA    int64
	BalanceB    int64
}

// OrderBookLevel is one price/size level of an aggregated order book.
type OrderBookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth-limited snapshot of the on-chain order book for a
// base/quote pair.
type OrderBook struct {
	Bids []OrderBookLevel
	Asks []OrderBookLevel
}

// Ticker is the latest traded price for a base/quote pair.
type Ticker struct {
	LastPrice float64
	Timestamp time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Batch update
// ————————————————————————————————————————————————————————————————————————

// OrderToPlace is a new chain order the reconciler or rotator wants
// created.
type OrderToPlace struct {
	SlotID string
	Type   SlotType
	Price  float64
	Size   float64
}

// OrderToRotate is an existing chain order that should be cancelled as
// part of a rotation (its slot became a SPREAD placeholder).
type OrderToRotate struct {
	SlotID       string
	ChainOrderID string
}

// PartialMove is a price and/or size correction to an existing chain
// order backing a PARTIAL or ACTIVE slot.
type PartialMove struct {
	SlotID            string
	ChainOrderID      string
	NewPrice          float64
	DeltaAmountToSell int64
}

// BatchUpdate is the interface exposed to the chain client: every diff
// produced by reconciliation or resize is expressed as one of these three
// lists and applied together.
type BatchUpdate struct {
	OrdersToPlace  []OrderToPlace
	OrdersToCancel []OrderToRotate
	PartialMoves   []PartialMove
}

// IsEmpty reports whether the batch has nothing to do.
func (b BatchUpdate) IsEmpty() bool {
	return len(b.OrdersToPlace) == 0 && len(b.OrdersToCancel) == 0 && len(b.PartialMoves) == 0
}

// ————————————————————————————————————————————————————————————————————————
// Correction queue
// ————————————————————————————————————————————————————————————————————————

// CorrectionKind distinguishes why a slot was queued for correction.
type CorrectionKind string

const (
	CorrectionPrice    CorrectionKind = "price"
	CorrectionResize   CorrectionKind = "resize"
	CorrectionNotFound CorrectionKind = "not_found"
	CorrectionCancel   CorrectionKind = "cancel"
)

// Correction is a queued, de-duplicated request awaiting a batched
// correction pass. Key is a stable dedup key distinct from ChainOrderID
// (see internal/manager), since two corrections for the same slot queued
// in the same pass must collapse into one.
type Correction struct {
	Key               string
	SlotID            string
	ChainOrderID      string
	ExpectedPrice     float64
	ExpectedSize      float64
	DeltaAmountToSell int64
	Kind              CorrectionKind
	NextAttempt       time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Status reporting
// ————————————————————————————————————————————————————————————————————————

// BotStatus is the read-only view of one running bot reported by the
// status API and the CLI, built from inside the bot's own goroutine so it
// never races with fill or resize handling.
type BotStatus struct {
	Name             string
	AssetA, AssetB   Asset
	PreferredAccount string
	DryRun           bool

	MarketPrice float64
	MinPrice    float64
	MaxPrice    float64

	Grid        []GridSlot
	CacheFunds  SideValue
	BTSFeesOwed float64
	Corrections []Correction
}
