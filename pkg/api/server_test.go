package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/deepdex/deepdex/pkg/clob"
	"github.com/deepdex/deepdex/pkg/util"
)

const testAddr = "0x00000000000000000000000000000000000000A1"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := clob.NewRegistry()
	_, _, err := reg.CreatePool(clob.Params{
		Symbol:          "ETH-USDC",
		BaseAsset:       "ETH",
		QuoteAsset:      "USDC",
		TickSize:        1,
		LotSize:         1,
		MinSize:         1,
		TakerFeeRate:    5_000_000,
		MakerRebateRate: 2_500_000,
	})
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	return NewServer(reg, zap.NewNop(), WithClock(util.NewManualClock(1_700_000_000_000)))
}

func doJSON(t *testing.T, s *Server, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func TestAccountAndOrderFlow(t *testing.T) {
	s := newTestServer(t)

	var created CreateAccountResponse
	rec := doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/accounts",
		CreateAccountRequest{Address: testAddr}, &created)
	if rec.Code != http.StatusOK {
		t.Fatalf("create account = %d: %s", rec.Code, rec.Body)
	}
	if len(created.CapToken) != 64 {
		t.Fatalf("cap token = %q, want 64 hex chars", created.CapToken)
	}

	rec = doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/deposit", FundsRequest{
		Address: testAddr, CapToken: created.CapToken, Asset: "quote", Amount: 10_000,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit = %d: %s", rec.Code, rec.Body)
	}

	var placed PlaceOrderResponse
	rec = doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/orders", PlaceOrderRequest{
		Address: testAddr, CapToken: created.CapToken,
		ClientID: 1, Side: "bid", Price: 2_000_000_000, Quantity: 500,
	}, &placed)
	if rec.Code != http.StatusOK {
		t.Fatalf("place order = %d: %s", rec.Code, rec.Body)
	}
	if !placed.Placed || placed.OrderID == 0 || placed.BaseFilled != 0 {
		t.Fatalf("place order response = %+v", placed)
	}

	var balance BalanceInfo
	rec = doJSON(t, s, "GET", "/api/v1/pools/ETH-USDC/accounts/"+testAddr, nil, &balance)
	if rec.Code != http.StatusOK {
		t.Fatalf("get balance = %d", rec.Code)
	}
	if balance.QuoteLocked != 1000 || balance.QuoteAvail != 9000 {
		t.Fatalf("balance = %+v, want 1000 locked / 9000 available", balance)
	}

	var snapshot OrderbookSnapshot
	rec = doJSON(t, s, "GET", "/api/v1/pools/ETH-USDC/orderbook", nil, &snapshot)
	if rec.Code != http.StatusOK {
		t.Fatalf("get orderbook = %d", rec.Code)
	}
	if len(snapshot.Bids) != 1 || snapshot.Bids[0].Price != 2_000_000_000 || snapshot.Bids[0].Depth != 500 {
		t.Fatalf("orderbook bids = %+v", snapshot.Bids)
	}

	var orders []OpenOrderInfo
	rec = doJSON(t, s, "GET", "/api/v1/pools/ETH-USDC/accounts/"+testAddr+"/orders", nil, &orders)
	if rec.Code != http.StatusOK || len(orders) != 1 {
		t.Fatalf("open orders = %d entries (status %d)", len(orders), rec.Code)
	}
	if orders[0].OrderID != placed.OrderID || orders[0].Side != "bid" {
		t.Fatalf("open order = %+v", orders[0])
	}

	rec = doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/orders/cancel", CancelRequest{
		Address: testAddr, CapToken: created.CapToken, OrderIDs: []uint64{placed.OrderID},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, "GET", "/api/v1/pools/ETH-USDC/accounts/"+testAddr, nil, &balance)
	if rec.Code != http.StatusOK || balance.QuoteLocked != 0 || balance.QuoteAvail != 10_000 {
		t.Fatalf("balance after cancel = %+v", balance)
	}
}

func TestRejections(t *testing.T) {
	s := newTestServer(t)

	if rec := doJSON(t, s, "GET", "/api/v1/pools/NOPE-USD/orderbook", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown pool = %d, want 404", rec.Code)
	}

	var created CreateAccountResponse
	doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/accounts",
		CreateAccountRequest{Address: testAddr}, &created)

	// A forged token is forbidden, not merely invalid.
	forged := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	rec := doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/deposit", FundsRequest{
		Address: testAddr, CapToken: forged, Asset: "quote", Amount: 1,
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("forged cap = %d, want 403", rec.Code)
	}

	// Malformed token and bad side are plain bad requests.
	rec = doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/deposit", FundsRequest{
		Address: testAddr, CapToken: "zzzz", Asset: "quote", Amount: 1,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed cap = %d, want 400", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/orders", PlaceOrderRequest{
		Address: testAddr, CapToken: created.CapToken, Side: "sideways", Price: 1, Quantity: 1,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad side = %d, want 400", rec.Code)
	}

	// Withdrawing more than deposited maps to 402.
	rec = doJSON(t, s, "POST", "/api/v1/pools/ETH-USDC/withdraw", FundsRequest{
		Address: testAddr, CapToken: created.CapToken, Asset: "quote", Amount: 1,
	}, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("overdrawn withdraw = %d, want 402", rec.Code)
	}
}
