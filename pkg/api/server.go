// Package api exposes the pool registry over REST and streams executed
// trades over WebSocket.
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/deepdex/deepdex/pkg/clob"
	"github.com/deepdex/deepdex/pkg/clob/book"
	"github.com/deepdex/deepdex/pkg/clob/custodian"
	"github.com/deepdex/deepdex/pkg/util"
)

// TradeHistory serves the recent-trades endpoint. *storage.PebbleStore
// implements it.
type TradeHistory interface {
	LoadRecentFills(poolID uuid.UUID, limit int) ([]clob.Fill, error)
}

type Server struct {
	reg     *clob.Registry
	history TradeHistory // may be nil
	router  *mux.Router
	hub     *Hub
	clock   util.Clock
	log     *zap.Logger

	allowedOrigins []string
}

type ServerOption func(*Server)

func WithTradeHistory(h TradeHistory) ServerOption {
	return func(s *Server) { s.history = h }
}

func WithClock(c util.Clock) ServerOption {
	return func(s *Server) { s.clock = c }
}

func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func NewServer(reg *clob.Registry, log *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{
		reg:            reg,
		router:         mux.NewRouter(),
		clock:          util.RealClock{},
		log:            log,
		allowedOrigins: []string{"http://localhost:3000"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(log)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/pools", s.handleListPools).Methods("GET")
	api.HandleFunc("/pools/{symbol}", s.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/pools/{symbol}/price", s.handleGetPrice).Methods("GET")
	api.HandleFunc("/pools/{symbol}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/pools/{symbol}/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/pools/{symbol}/accounts/{address}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/pools/{symbol}/accounts/{address}/orders", s.handleGetOpenOrders).Methods("GET")
	api.HandleFunc("/pools/{symbol}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/pools/{symbol}/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/pools/{symbol}/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/pools/{symbol}/orders/cancel", s.handleCancel).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and blocks serving HTTP.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Sink returns a TradeSink that broadcasts fills for the given symbol on
// the "trades:<symbol>" channel. Safe to call under the pool lock: the
// broadcast is a non-blocking channel send.
func (s *Server) Sink(symbol string) clob.TradeSink {
	return &broadcastSink{hub: s.hub, symbol: symbol}
}

type broadcastSink struct {
	hub    *Hub
	symbol string
}

func (b *broadcastSink) RecordFill(_ uuid.UUID, fill clob.Fill) {
	b.hub.Publish("trades:"+b.symbol, TradeUpdate{
		Type:  "trade",
		Trade: tradeInfo(b.symbol, fill),
	})
}

func tradeInfo(symbol string, fill clob.Fill) TradeInfo {
	return TradeInfo{
		Symbol:       symbol,
		MakerOrderID: fill.MakerOrderID,
		TakerIsBid:   fill.TakerIsBid,
		Price:        fill.Price,
		Quantity:     fill.Quantity,
		Notional:     fill.Notional,
		Timestamp:    fill.Timestamp,
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.reg.List()
	response := make([]PoolInfo, len(pools))
	for i, pool := range pools {
		response[i] = poolInfo(pool.Stat())
	}
	respondJSON(w, response)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	respondJSON(w, poolInfo(pool.Stat()))
}

func poolInfo(stat clob.PoolStat) PoolInfo {
	return PoolInfo{
		ID:              stat.ID.String(),
		Symbol:          stat.Params.Symbol,
		BaseAsset:       stat.Params.BaseAsset,
		QuoteAsset:      stat.Params.QuoteAsset,
		TickSize:        stat.Params.TickSize,
		LotSize:         stat.Params.LotSize,
		MinSize:         stat.Params.MinSize,
		TakerFeeRate:    stat.Params.TakerFeeRate,
		MakerRebateRate: stat.Params.MakerRebateRate,
		FeeBalance:      stat.FeeBalance,
		OpenOrders:      stat.OpenOrders,
	}
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	low := queryUint(r, "low", 0)
	high := queryUint(r, "high", ^uint64(0))
	nowMs := s.clock.NowUnixMilli()

	bidPrices, bidDepths := pool.Level2BidSide(low, high, nowMs)
	askPrices, askDepths := pool.Level2AskSide(low, high, nowMs)

	respondJSON(w, OrderbookSnapshot{
		Symbol:    pool.Params().Symbol,
		Bids:      priceLevels(bidPrices, bidDepths),
		Asks:      priceLevels(askPrices, askDepths),
		Timestamp: nowMs,
	})
}

func priceLevels(prices, depths []uint64) []PriceLevel {
	levels := make([]PriceLevel, len(prices))
	for i := range prices {
		levels[i] = PriceLevel{Price: prices[i], Depth: depths[i]}
	}
	return levels
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	bid, ask, hasBid, hasAsk := pool.MarketPrice()
	respondJSON(w, MarketPriceInfo{
		Symbol:    pool.Params().Symbol,
		BestBid:   bid,
		HasBid:    hasBid,
		BestAsk:   ask,
		HasAsk:    hasAsk,
		Timestamp: s.clock.NowUnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		respondJSON(w, []TradeInfo{})
		return
	}
	limit := int(queryUint(r, "limit", 100))
	fills, err := s.history.LoadRecentFills(pool.ID(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load trades", err.Error())
		return
	}
	symbol := pool.Params().Symbol
	trades := make([]TradeInfo, len(fills))
	for i, fill := range fills {
		trades[i] = tradeInfo(symbol, fill)
	}
	respondJSON(w, trades)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	cap, err := pool.CreateAccount(addr)
	if err != nil {
		respondError(w, http.StatusConflict, "create account", err.Error())
		return
	}
	s.log.Info("account created",
		zap.String("symbol", pool.Params().Symbol),
		zap.String("address", addr.Hex()))
	respondJSON(w, CreateAccountResponse{
		Address:  addr.Hex(),
		CapToken: hex.EncodeToString(cap.Token[:]),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	baseAvail, baseLocked, quoteAvail, quoteLocked := pool.AccountBalance(addr)
	respondJSON(w, BalanceInfo{
		Address:     addr.Hex(),
		BaseAvail:   baseAvail,
		BaseLocked:  baseLocked,
		QuoteAvail:  quoteAvail,
		QuoteLocked: quoteLocked,
	})
}

func (s *Server) handleGetOpenOrders(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	orders := pool.ListOpenOrders(addr)
	response := make([]OpenOrderInfo, len(orders))
	for i, o := range orders {
		side := "ask"
		if o.IsBid {
			side = "bid"
		}
		response[i] = OpenOrderInfo{
			OrderID:         o.OrderID,
			ClientID:        o.ClientID,
			Side:            side,
			Price:           o.Price,
			Quantity:        o.Quantity,
			Remaining:       o.Remaining,
			ExpireTimestamp: o.ExpireTimestamp,
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleFunds(w, r, true)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleFunds(w, r, false)
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request, deposit bool) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cap, ok := parseCap(w, req.Address, req.CapToken)
	if !ok {
		return
	}

	var err error
	switch {
	case deposit && req.Asset == "base":
		err = pool.DepositBase(cap, custodian.BaseCoin(req.Amount))
	case deposit && req.Asset == "quote":
		err = pool.DepositQuote(cap, custodian.QuoteCoin(req.Amount))
	case !deposit && req.Asset == "base":
		_, err = pool.WithdrawBase(cap, req.Amount)
	case !deposit && req.Asset == "quote":
		_, err = pool.WithdrawQuote(cap, req.Amount)
	default:
		respondError(w, http.StatusBadRequest, "invalid asset", req.Asset)
		return
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cap, ok := parseCap(w, req.Address, req.CapToken)
	if !ok {
		return
	}
	isBid, ok := parseSide(w, req.Side)
	if !ok {
		return
	}
	restriction, ok := parseRestriction(w, req.Restriction)
	if !ok {
		return
	}

	expireTs := req.ExpireTimestamp
	if expireTs == 0 {
		expireTs = book.NoExpiry
	}
	baseFilled, quoteFilled, placed, orderID, err := pool.PlaceLimitOrder(
		cap, req.ClientID, req.Price, req.Quantity,
		clob.CancelOldest, isBid, expireTs, restriction,
		s.clock.NowUnixMilli(),
	)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, PlaceOrderResponse{
		BaseFilled:  baseFilled,
		QuoteFilled: quoteFilled,
		Placed:      placed,
		OrderID:     orderID,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cap, ok := parseCap(w, req.Address, req.CapToken)
	if !ok {
		return
	}

	var err error
	if len(req.OrderIDs) == 0 {
		err = pool.CancelAllOrders(cap)
	} else if len(req.OrderIDs) == 1 {
		err = pool.CancelOrder(cap, req.OrderIDs[0])
	} else {
		err = pool.BatchCancelOrders(cap, req.OrderIDs)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) pool(w http.ResponseWriter, r *http.Request) (*clob.Pool, bool) {
	symbol := mux.Vars(r)["symbol"]
	pool, err := s.reg.Pool(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "pool not found", symbol)
		return nil, false
	}
	return pool, true
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseCap(w http.ResponseWriter, rawAddr, rawToken string) (custodian.AccountCap, bool) {
	addr, ok := parseAddress(w, rawAddr)
	if !ok {
		return custodian.AccountCap{}, false
	}
	token, err := hex.DecodeString(rawToken)
	if err != nil || len(token) != 32 {
		respondError(w, http.StatusBadRequest, "invalid capability token", "")
		return custodian.AccountCap{}, false
	}
	cap := custodian.AccountCap{Owner: addr}
	copy(cap.Token[:], token)
	return cap, true
}

func parseSide(w http.ResponseWriter, side string) (isBid, ok bool) {
	switch side {
	case "bid", "buy":
		return true, true
	case "ask", "sell":
		return false, true
	default:
		respondError(w, http.StatusBadRequest, "invalid side", side)
		return false, false
	}
}

func parseRestriction(w http.ResponseWriter, raw string) (clob.Restriction, bool) {
	switch raw {
	case "", "none":
		return clob.NoRestriction, true
	case "ioc":
		return clob.ImmediateOrCancel, true
	case "fok":
		return clob.FillOrKill, true
	case "post_or_abort", "alo":
		return clob.PostOrAbort, true
	default:
		respondError(w, http.StatusBadRequest, "invalid restriction", raw)
		return 0, false
	}
}

func queryUint(r *http.Request, key string, def uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// respondEngineError maps the engine's sentinel errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, clob.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, clob.ErrIncorrectCapability), errors.Is(err, clob.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, clob.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	}
	respondError(w, status, "order rejected", err.Error())
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "detail": detail})
}
