package storage

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/deepdex/deepdex/pkg/clob"
	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func samplePoolState(symbol string) clob.State {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return clob.State{
		ID: uuid.New(),
		Params: clob.Params{
			Symbol:          symbol,
			BaseAsset:       "ETH",
			QuoteAsset:      "USDC",
			TickSize:        1,
			LotSize:         1,
			MinSize:         1,
			TakerFeeRate:    5_000_000,
			MakerRebateRate: 2_500_000,
		},
		OwnerToken: [32]byte{1, 2, 3},
		Caps:       map[common.Address][32]byte{owner: {4, 5, 6}},
		FeeBalance: 12,
		NextBidSeq: 3,
		NextAskSeq: 2,
		Orders: []clob.OrderState{
			{ID: 1, Owner: owner, Price: 2_000_000_000, Quantity: 100, Remaining: 40, IsBid: true, LockedQuote: 80, ExpireTimestamp: ^uint64(0)},
		},
		Balances: []custodian.Entry{
			{Owner: owner, Asset: custodian.Quote, Available: 920, Locked: 80},
		},
	}
}

func TestPoolStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	want := samplePoolState("ETH-USDC")

	if err := store.SavePoolState(want); err != nil {
		t.Fatalf("SavePoolState: %v", err)
	}
	got, found, err := store.LoadPoolState(want.ID)
	if err != nil {
		t.Fatalf("LoadPoolState: %v", err)
	}
	if !found {
		t.Fatal("saved state not found")
	}
	if got.ID != want.ID || got.Params != want.Params || got.FeeBalance != want.FeeBalance ||
		got.NextBidSeq != want.NextBidSeq || got.NextAskSeq != want.NextAskSeq {
		t.Fatalf("loaded state = %+v, want %+v", got, want)
	}
	if len(got.Orders) != 1 || got.Orders[0] != want.Orders[0] {
		t.Fatalf("loaded orders = %+v", got.Orders)
	}
	if len(got.Balances) != 1 || got.Balances[0] != want.Balances[0] {
		t.Fatalf("loaded balances = %+v", got.Balances)
	}
	if got.OwnerToken != want.OwnerToken || len(got.Caps) != 1 {
		t.Fatal("capability material lost in round trip")
	}

	if _, found, err := store.LoadPoolState(uuid.New()); err != nil || found {
		t.Fatalf("missing pool: found=%v err=%v", found, err)
	}
}

func TestSavePoolStateOverwrites(t *testing.T) {
	store := newTestStore(t)
	st := samplePoolState("ETH-USDC")
	if err := store.SavePoolState(st); err != nil {
		t.Fatalf("SavePoolState: %v", err)
	}
	st.FeeBalance = 99
	st.Orders = nil
	if err := store.SavePoolState(st); err != nil {
		t.Fatalf("second SavePoolState: %v", err)
	}

	got, _, err := store.LoadPoolState(st.ID)
	if err != nil {
		t.Fatalf("LoadPoolState: %v", err)
	}
	if got.FeeBalance != 99 || len(got.Orders) != 0 {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestListPoolStates(t *testing.T) {
	store := newTestStore(t)
	a := samplePoolState("ETH-USDC")
	b := samplePoolState("BTC-USDC")
	for _, st := range []clob.State{a, b} {
		if err := store.SavePoolState(st); err != nil {
			t.Fatalf("SavePoolState(%s): %v", st.Params.Symbol, err)
		}
	}

	states, err := store.ListPoolStates()
	if err != nil {
		t.Fatalf("ListPoolStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("listed %d states, want 2", len(states))
	}
	seen := map[string]bool{}
	for _, st := range states {
		seen[st.Params.Symbol] = true
	}
	if !seen["ETH-USDC"] || !seen["BTC-USDC"] {
		t.Fatalf("listed symbols = %v", seen)
	}
}

func TestRecordAndLoadRecentFills(t *testing.T) {
	store := newTestStore(t)
	poolID := uuid.New()
	otherPool := uuid.New()
	maker := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	for i := uint64(0); i < 5; i++ {
		store.RecordFill(poolID, clob.Fill{
			MakerOrderID: i + 1,
			MakerOwner:   maker,
			Price:        2_000_000_000,
			Quantity:     10 * (i + 1),
			Notional:     20 * (i + 1),
			Timestamp:    1_000 + i,
		})
	}
	store.RecordFill(otherPool, clob.Fill{MakerOrderID: 99, Timestamp: 5_000})

	fills, err := store.LoadRecentFills(poolID, 3)
	if err != nil {
		t.Fatalf("LoadRecentFills: %v", err)
	}
	if len(fills) != 3 {
		t.Fatalf("loaded %d fills, want 3", len(fills))
	}
	// Newest first, and never a fill from another pool.
	for i, fill := range fills {
		if want := uint64(5 - i); fill.MakerOrderID != want {
			t.Fatalf("fill %d has maker order %d, want %d", i, fill.MakerOrderID, want)
		}
	}

	all, err := store.LoadRecentFills(poolID, 100)
	if err != nil {
		t.Fatalf("LoadRecentFills: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("loaded %d fills, want 5", len(all))
	}

	// Two fills in the same millisecond keep distinct keys.
	store.RecordFill(poolID, clob.Fill{MakerOrderID: 6, Timestamp: 2_000})
	store.RecordFill(poolID, clob.Fill{MakerOrderID: 7, Timestamp: 2_000})
	all, err = store.LoadRecentFills(poolID, 100)
	if err != nil {
		t.Fatalf("LoadRecentFills: %v", err)
	}
	if len(all) != 7 || all[0].MakerOrderID != 7 || all[1].MakerOrderID != 6 {
		t.Fatalf("same-timestamp fills = %+v", all[:2])
	}
}

func TestFileJournalWritesLines(t *testing.T) {
	path := t.TempDir() + "/trades.log"
	journal, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}
	poolID := uuid.New()
	journal.RecordFill(poolID, clob.Fill{MakerOrderID: 1, Price: 5, Quantity: 2, Notional: 10})
	journal.RecordFill(poolID, clob.Fill{MakerOrderID: 2, Price: 5, Quantity: 4, Notional: 20})
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("journal has %d lines, want 2", len(lines))
	}
	var line struct {
		PoolID       string `json:"pool_id"`
		MakerOrderID uint64 `json:"maker_order_id"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &line); err != nil {
		t.Fatalf("journal line not JSON: %v", err)
	}
	if line.PoolID != poolID.String() || line.MakerOrderID != 1 {
		t.Fatalf("journal line = %+v", line)
	}
}
