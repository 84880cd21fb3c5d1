// Package chain defines the contract between the grid manager and the
// on-chain ledger. This package never talks to a live network itself —
// per the scope in SPEC_FULL.md §1, the chain RPC client is an external
// collaborator. internal/chainclient ships one concrete adapter that
// satisfies Client against a graphene-style node.
package chain

import (
	"context"
	"time"

	"dexgrid/pkg/types"
)

// Client is every capability the grid manager needs from the chain.
type Client interface {
	Connect(ctx context.Context) error
	WaitForConnected(ctx context.Context, timeout time.Duration) error
	IsConnected() bool

	LookupAsset(ctx context.Context, symbol string) (types.Asset, error)
	GetAssets(ctx context.Context, ids []string) ([]types.Asset, error)
	GetAccountBalances(ctx context.Context, accountID string) (map[string]types.Balance, error)
	GetOpenOrders(ctx context.Context, accountID string) ([]types.ChainOrder, error)
	GetOrderBook(ctx context.Context, base, quote string, depth int) (types.OrderBook, error)
	GetTicker(ctx context.Context, base, quote string) (types.Ticker, error)
	ListLiquidityPools(ctx context.Context, start, limit int) ([]types.Pool, error)
	GetLiquidityPool(ctx context.Context, assetA, assetB string) (types.Pool, error)
	GetGlobalProperties(ctx context.Context) (types.GlobalProperties, error)

	SubscribeAccount(ctx context.Context, accountName string) (<-chan types.FillEvent, error)
	UnsubscribeAccount(ctx context.Context, accountName string) error

	CreateOrder(ctx context.Context, req types.CreateOrderRequest) (chainOrderID string, err error)
	UpdateOrder(ctx context.Context, chainOrderID string, req types.UpdateOrderRequest) error
	CancelOrder(ctx context.Context, chainOrderID string) error
}

// ErrOrderNotFound is returned by UpdateOrder/CancelOrder when the chain
// reports the order no longer exists. Per §7, this is treated as
// "probably filled externally" and the correction is dropped from the
// queue rather than retried.
var ErrOrderNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "chain: order not found" }
