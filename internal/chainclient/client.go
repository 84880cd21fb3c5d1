// Package chainclient is the reference chain.Client implementation: a
// graphene-style witness node JSON-RPC API framed over a single WebSocket
// connection, with exponential-backoff reconnect and notice-based account
// subscriptions. It is the one concrete adapter the manager wires against a
// live chain; every other package only depends on the chain.Client interface.
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"dexgrid/internal/chain"
	"dexgrid/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	callTimeout      = 15 * time.Second
)

// rpcRequest is a graphene-style JSON-RPC 2.0 call: {api, method, params}
// wrapped in the standard jsonrpc envelope, addressed to a previously
// resolved API id (database_api, network_broadcast_api, ...).
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"` // set on unsolicited notice callbacks
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("chain rpc error %d: %s", e.Code, e.Message) }

// Client is the reference graphene JSON-RPC-over-WebSocket chain.Client.
type Client struct {
	url    string
	logger *slog.Logger

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	nextID  atomic.Uint64
	pending sync.Map // id uint64 -> chan rpcResponse

	apiIDs   map[string]uint64
	apiIDsMu sync.RWMutex

	subsMu sync.RWMutex
	subs   map[uint64]chan types.FillEvent // callback id -> delivery channel

	limiter *rateLimiter

	connectOnce  sync.Once
	connectedCh  chan struct{}
}

// New creates a client pointed at a graphene witness node's WebSocket RPC
// endpoint. Connect must be called before any other method.
func New(url string, logger *slog.Logger) *Client {
	return &Client{
		url:         url,
		logger:      logger.With("component", "chainclient"),
		apiIDs:      make(map[string]uint64),
		subs:        make(map[uint64]chan types.FillEvent),
		limiter:     newRateLimiter(),
		connectedCh: make(chan struct{}),
	}
}

// Connect dials the node and starts the read/reconnect loop in the
// background. It returns once the first dial attempt succeeds or ctx is
// cancelled.
func (c *Client) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("chainclient: dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	c.connectOnce.Do(func() { close(c.connectedCh) })

	if err := c.resolveAPIIDs(ctx); err != nil {
		return fmt.Errorf("chainclient: resolve api ids: %w", err)
	}

	go c.runLoop(context.Background())
	return nil
}

// WaitForConnected blocks until Connect's first dial has succeeded or the
// timeout elapses (spec §5 "waitForConnected(timeoutMs)").
func (c *Client) WaitForConnected(ctx context.Context, timeout time.Duration) error {
	select {
	case <-c.connectedCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("chainclient: not connected after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports the current connection state.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// runLoop owns the single reader for the connection's lifetime, dispatching
// responses to pending calls and notices to subscriptions, reconnecting
// with exponential backoff on read failure (grounded on the teacher's
// WSFeed.Run/connectAndRead reconnect loop).
func (c *Client) runLoop(ctx context.Context) {
	backoff := time.Second
	for {
		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		c.connected.Store(false)
		c.logger.Warn("chain connection lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			continue
		}
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.connected.Store(true)
		backoff = time.Second

		if err := c.resolveAPIIDs(ctx); err != nil {
			c.logger.Error("re-resolving api ids after reconnect", "error", err)
		}
		c.resubscribeAll(ctx)
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("chainclient: not connected")
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Debug("ignoring unparseable chain message", "error", err)
		return
	}

	if resp.Method == "notice" {
		c.dispatchNotice(resp.Params)
		return
	}

	if ch, ok := c.pending.LoadAndDelete(resp.ID); ok {
		ch.(chan rpcResponse) <- resp
	}
}

// dispatchNotice routes a set_subscribe_callback notification to the
// registered FillEvent channel for its callback id, the first element of
// params per graphene's notice envelope.
func (c *Client) dispatchNotice(params json.RawMessage) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(params, &envelope); err != nil || len(envelope) < 1 {
		return
	}
	var cbID uint64
	if err := json.Unmarshal(envelope[0], &cbID); err != nil {
		return
	}

	c.subsMu.RLock()
	ch, ok := c.subs[cbID]
	c.subsMu.RUnlock()
	if !ok {
		return
	}

	var fills []types.FillEvent
	if len(envelope) > 1 {
		json.Unmarshal(envelope[1], &fills)
	}
	for _, f := range fills {
		select {
		case ch <- f:
		default:
			c.logger.Warn("fill subscription channel full, dropping notice")
		}
	}
}

// resubscribeAll drops every pending subscription after a reconnect:
// graphene subscriptions do not survive a new connection, and this client
// does not retain the account name behind a callback id to replay them
// automatically. internal/manager notices the closed channel and calls
// SubscribeAccount again.
func (c *Client) resubscribeAll(ctx context.Context) {
	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
}

// resolveAPIIDs looks up the database_api and network_broadcast_api ids,
// which graphene nodes assign per connection rather than fixing statically.
// Every fresh connection can reach api id 1 (the login api) without
// authenticating, and api id 1 exposes these by name.
func (c *Client) resolveAPIIDs(ctx context.Context) error {
	for _, api := range []string{"database", "network_broadcast"} {
		var id uint64
		if err := c.rawCall(ctx, []interface{}{1, api, []interface{}{}}, &id); err != nil {
			return fmt.Errorf("resolve %s api: %w", api, err)
		}
		c.apiIDsMu.Lock()
		c.apiIDs[api] = id
		c.apiIDsMu.Unlock()
	}
	return nil
}

func (c *Client) apiID(name string) uint64 {
	c.apiIDsMu.RLock()
	defer c.apiIDsMu.RUnlock()
	return c.apiIDs[name]
}

// call issues a "call" dispatch against a previously resolved apiID,
// unmarshaling the result into out.
func (c *Client) call(ctx context.Context, apiID uint64, method string, params []interface{}, out interface{}) error {
	return c.rawCall(ctx, []interface{}{apiID, method, params}, out)
}

// rawCall sends one JSON-RPC request with the given already-shaped params
// and blocks until the matching response arrives or callTimeout elapses.
func (c *Client) rawCall(ctx context.Context, params []interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	replyCh := make(chan rpcResponse, 1)
	c.pending.Store(id, replyCh)
	defer c.pending.Delete(id)

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: "call", Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	c.connMu.Lock()
	conn := c.conn
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = conn.WriteMessage(websocket.TextMessage, data)
	} else {
		err = fmt.Errorf("chainclient: not connected")
	}
	c.connMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case resp := <-replyCh:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	case <-time.After(callTimeout):
		return fmt.Errorf("chainclient: call timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) db(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if err := c.limiter.database.wait(ctx); err != nil {
		return err
	}
	return c.call(ctx, c.apiID("database"), method, params, out)
}

func (c *Client) broadcast(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if err := c.limiter.networkBroadcast.wait(ctx); err != nil {
		return err
	}
	return c.call(ctx, c.apiID("network_broadcast"), method, params, out)
}

// LookupAsset resolves a symbol to its chain object id and precision via
// lookup_asset_symbols.
func (c *Client) LookupAsset(ctx context.Context, symbol string) (types.Asset, error) {
	var results []struct {
		ID        string `json:"id"`
		Symbol    string `json:"symbol"`
		Precision int    `json:"precision"`
	}
	if err := c.db(ctx, "lookup_asset_symbols", []interface{}{[]string{symbol}}, &results); err != nil {
		return types.Asset{}, fmt.Errorf("lookup_asset_symbols: %w", err)
	}
	if len(results) == 0 {
		return types.Asset{}, fmt.Errorf("chainclient: asset %q not found", symbol)
	}
	return types.Asset{ID: results[0].ID, Symbol: results[0].Symbol, Precision: results[0].Precision}, nil
}

// GetAssets resolves a batch of asset ids via get_assets.
func (c *Client) GetAssets(ctx context.Context, ids []string) ([]types.Asset, error) {
	var results []struct {
		ID        string `json:"id"`
		Symbol    string `json:"symbol"`
		Precision int    `json:"precision"`
	}
	if err := c.db(ctx, "get_assets", []interface{}{ids}, &results); err != nil {
		return nil, fmt.Errorf("get_assets: %w", err)
	}
	assets := make([]types.Asset, len(results))
	for i, r := range results {
		assets[i] = types.Asset{ID: r.ID, Symbol: r.Symbol, Precision: r.Precision}
	}
	return assets, nil
}

// GetAccountBalances fetches every asset balance for an account via
// get_account_balances (graphene returns asset id + amount pairs; locked
// amounts from open orders are not double counted here since the store's
// committed total already tracks them through ACTIVE/PARTIAL slot sizes).
func (c *Client) GetAccountBalances(ctx context.Context, accountID string) (map[string]types.Balance, error) {
	var amounts []types.AssetAmount
	if err := c.db(ctx, "get_account_balances", []interface{}{accountID, []string{}}, &amounts); err != nil {
		return nil, fmt.Errorf("get_account_balances: %w", err)
	}
	out := make(map[string]types.Balance, len(amounts))
	for _, a := range amounts {
		out[a.AssetID] = types.Balance{Free: a.Amount}
	}
	return out, nil
}

// GetOpenOrders fetches every open limit order for an account.
func (c *Client) GetOpenOrders(ctx context.Context, accountID string) ([]types.ChainOrder, error) {
	var orders []types.ChainOrder
	if err := c.db(ctx, "get_limit_orders_by_account", []interface{}{accountID}, &orders); err != nil {
		return nil, fmt.Errorf("get_limit_orders_by_account: %w", err)
	}
	return orders, nil
}

// GetOrderBook fetches an aggregated order book for a base/quote pair.
func (c *Client) GetOrderBook(ctx context.Context, base, quote string, depth int) (types.OrderBook, error) {
	var book types.OrderBook
	if err := c.db(ctx, "get_order_book", []interface{}{base, quote, depth}, &book); err != nil {
		return types.OrderBook{}, fmt.Errorf("get_order_book: %w", err)
	}
	return book, nil
}

// GetTicker fetches the 24h ticker for a base/quote pair.
func (c *Client) GetTicker(ctx context.Context, base, quote string) (types.Ticker, error) {
	var t types.Ticker
	if err := c.db(ctx, "get_ticker", []interface{}{base, quote}, &t); err != nil {
		return types.Ticker{}, fmt.Errorf("get_ticker: %w", err)
	}
	return t, nil
}

// ListLiquidityPools lists pools page by page.
func (c *Client) ListLiquidityPools(ctx context.Context, start, limit int) ([]types.Pool, error) {
	var pools []types.Pool
	if err := c.db(ctx, "list_liquidity_pools", []interface{}{start, limit}, &pools); err != nil {
		return nil, fmt.Errorf("list_liquidity_pools: %w", err)
	}
	return pools, nil
}

// GetLiquidityPool finds the highest-balance-in-assetA pool for a pair
// (spec §6 pool-selection rule).
func (c *Client) GetLiquidityPool(ctx context.Context, assetA, assetB string) (types.Pool, error) {
	var pools []types.Pool
	if err := c.db(ctx, "get_liquidity_pools_by_both_assets", []interface{}{assetA, assetB}, &pools); err != nil {
		return types.Pool{}, fmt.Errorf("get_liquidity_pools_by_both_assets: %w", err)
	}
	if len(pools) == 0 {
		return types.Pool{}, fmt.Errorf("chainclient: no liquidity pool for %s/%s", assetA, assetB)
	}
	best := pools[0]
	for _, p := range pools[1:] {
		if p.BalanceA > best.BalanceA {
			best = p
		}
	}
	return best, nil
}

// GetGlobalProperties fetches current chain-wide operation fees.
func (c *Client) GetGlobalProperties(ctx context.Context) (types.GlobalProperties, error) {
	var raw struct {
		Parameters struct {
			CurrentFees struct {
				Parameters []struct {
					Fee int64 `json:"fee"`
				} `json:"parameters"`
			} `json:"current_fees"`
		} `json:"parameters"`
	}
	if err := c.db(ctx, "get_global_properties", nil, &raw); err != nil {
		return types.GlobalProperties{}, fmt.Errorf("get_global_properties: %w", err)
	}
	// Fee schedule ordering is chain-config-specific; operation indices 1/5/4
	// correspond to limit_order_create/update/cancel on a standard graphene
	// fee schedule, and are read defensively to avoid a panic on a shorter
	// schedule from a non-standard chain.
	fee := func(idx int) int64 {
		if idx < len(raw.Parameters.CurrentFees.Parameters) {
			return raw.Parameters.CurrentFees.Parameters[idx].Fee
		}
		return 0
	}
	return types.GlobalProperties{
		CreateOrderFee: fee(1),
		UpdateOrderFee: fee(5),
		CancelOrderFee: fee(4),
	}, nil
}

// SubscribeAccount registers a notice callback for accountName's operations
// and returns a channel of parsed fill events, per graphene's
// set_subscribe_callback + get_full_accounts(subscribe=true) idiom.
func (c *Client) SubscribeAccount(ctx context.Context, accountName string) (<-chan types.FillEvent, error) {
	cbID := c.nextID.Add(1)
	ch := make(chan types.FillEvent, 64)

	c.subsMu.Lock()
	c.subs[cbID] = ch
	c.subsMu.Unlock()

	if err := c.db(ctx, "get_full_accounts", []interface{}{[]string{accountName}, true}, nil); err != nil {
		c.subsMu.Lock()
		delete(c.subs, cbID)
		c.subsMu.Unlock()
		return nil, fmt.Errorf("get_full_accounts subscribe: %w", err)
	}
	return ch, nil
}

// UnsubscribeAccount does nothing and returns nil. It does not close or
// unregister the channel returned by SubscribeAccount; that channel stays
// registered until a reconnect closes it in resubscribeAll. Graphene has
// no explicit per-account unsubscribe, and the node-side subscription
// expires with the connection.
func (c *Client) UnsubscribeAccount(ctx context.Context, accountName string) error {
	return nil
}

// CreateOrder submits a limit_order_create operation.
func (c *Client) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	params := []interface{}{
		req.Seller, req.SellAssetID, req.AmountToSell, req.ReceiveAssetID, req.MinToReceive, req.Expiration, false,
	}
	if err := c.broadcast(ctx, "limit_order_create", params, &result); err != nil {
		return "", fmt.Errorf("limit_order_create: %w", err)
	}
	return result.ID, nil
}

// UpdateOrder submits a limit_order_update operation. A request with a
// zero DeltaAmountToSell and an unchanged price is the caller's
// responsibility to avoid; the chain itself rejects a no-op update.
func (c *Client) UpdateOrder(ctx context.Context, chainOrderID string, req types.UpdateOrderRequest) error {
	params := []interface{}{chainOrderID, req.DeltaAmountToSell, req.NewPrice, req.Expiration}
	if err := c.broadcast(ctx, "limit_order_update", params, nil); err != nil {
		if isNotFoundError(err) {
			return chain.ErrOrderNotFound
		}
		return fmt.Errorf("limit_order_update: %w", err)
	}
	return nil
}

// CancelOrder submits a limit_order_cancel operation.
func (c *Client) CancelOrder(ctx context.Context, chainOrderID string) error {
	if err := c.broadcast(ctx, "limit_order_cancel", []interface{}{chainOrderID}, nil); err != nil {
		if isNotFoundError(err) {
			return chain.ErrOrderNotFound
		}
		return fmt.Errorf("limit_order_cancel: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var rpcErr *rpcError
	if e, ok := err.(*rpcError); ok {
		rpcErr = e
	}
	return rpcErr != nil && rpcErr.Code == 10 // "unknown object" in graphene's fc exception hierarchy
}

var _ chain.Client = (*Client)(nil)
