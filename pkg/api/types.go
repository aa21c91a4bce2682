package api

// Request and response types for the REST endpoints and WebSocket messages.
// Prices and quantities are integer ticks/lots; amounts are integer asset
// units. Capability tokens travel as 64-char hex strings.

// ==============================
// REST Response Types
// ==============================

// PoolInfo is a pool's static configuration plus running totals.
type PoolInfo struct {
	ID              string `json:"id"`
	Symbol          string `json:"symbol"`
	BaseAsset       string `json:"baseAsset"`
	QuoteAsset      string `json:"quoteAsset"`
	TickSize        uint64 `json:"tickSize"`
	LotSize         uint64 `json:"lotSize"`
	MinSize         uint64 `json:"minSize"`
	TakerFeeRate    uint64 `json:"takerFeeRate"`
	MakerRebateRate uint64 `json:"makerRebateRate"`
	FeeBalance      uint64 `json:"feeBalance"`
	OpenOrders      int    `json:"openOrders"`
}

// PriceLevel is a [price, depth] tuple.
type PriceLevel struct {
	Price uint64 `json:"price"`
	Depth uint64 `json:"depth"`
}

// OrderbookSnapshot is the aggregated book at query time. Bids are sorted
// best (highest) first, asks best (lowest) first.
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp uint64       `json:"timestamp"` // unix milliseconds
}

// MarketPriceInfo is the current best bid/ask. A side with no resting
// orders reports zero and ok=false.
type MarketPriceInfo struct {
	Symbol    string `json:"symbol"`
	BestBid   uint64 `json:"bestBid"`
	HasBid    bool   `json:"hasBid"`
	BestAsk   uint64 `json:"bestAsk"`
	HasAsk    bool   `json:"hasAsk"`
	Timestamp uint64 `json:"timestamp"`
}

// TradeInfo is one executed fill.
type TradeInfo struct {
	Symbol       string `json:"symbol"`
	MakerOrderID uint64 `json:"makerOrderId"`
	TakerIsBid   bool   `json:"takerIsBid"`
	Price        uint64 `json:"price"`
	Quantity     uint64 `json:"quantity"`
	Notional     uint64 `json:"notional"`
	Timestamp    uint64 `json:"timestamp"`
}

// BalanceInfo is an account's custodied funds in one pool.
type BalanceInfo struct {
	Address     string `json:"address"`
	BaseAvail   uint64 `json:"baseAvailable"`
	BaseLocked  uint64 `json:"baseLocked"`
	QuoteAvail  uint64 `json:"quoteAvailable"`
	QuoteLocked uint64 `json:"quoteLocked"`
}

// OpenOrderInfo is a resting order owned by the queried account.
type OpenOrderInfo struct {
	OrderID         uint64 `json:"orderId"`
	ClientID        uint64 `json:"clientId"`
	Side            string `json:"side"` // "bid" or "ask"
	Price           uint64 `json:"price"`
	Quantity        uint64 `json:"quantity"`
	Remaining       uint64 `json:"remaining"`
	ExpireTimestamp uint64 `json:"expireTimestamp"`
}

// CreateAccountResponse carries the freshly minted capability. The token is
// shown exactly once; the server does not store it in recoverable form.
type CreateAccountResponse struct {
	Address  string `json:"address"`
	CapToken string `json:"capToken"`
}

// PlaceOrderResponse reports what a limit/market order did.
type PlaceOrderResponse struct {
	BaseFilled  uint64 `json:"baseFilled"`
	QuoteFilled uint64 `json:"quoteFilled"`
	Placed      bool   `json:"placed"`
	OrderID     uint64 `json:"orderId"`
}

// ==============================
// REST Request Types
// ==============================

type CreateAccountRequest struct {
	Address string `json:"address"`
}

type FundsRequest struct {
	Address  string `json:"address"`
	CapToken string `json:"capToken"`
	Asset    string `json:"asset"` // "base" or "quote"
	Amount   uint64 `json:"amount"`
}

type PlaceOrderRequest struct {
	Address         string `json:"address"`
	CapToken        string `json:"capToken"`
	ClientID        uint64 `json:"clientId"`
	Side            string `json:"side"` // "bid" or "ask"
	Price           uint64 `json:"price"`
	Quantity        uint64 `json:"quantity"`
	Restriction     string `json:"restriction"` // "", "ioc", "fok", "post_or_abort"
	ExpireTimestamp uint64 `json:"expireTimestamp"`
}

type CancelRequest struct {
	Address  string   `json:"address"`
	CapToken string   `json:"capToken"`
	OrderIDs []uint64 `json:"orderIds"` // empty cancels everything
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions,
// e.g. {"op":"subscribe","channels":["trades:ETH-USDC"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// TradeUpdate is broadcast on the "trades:<symbol>" channel per fill.
type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}
