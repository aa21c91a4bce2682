package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner1 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	owner2 = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func newOrder(seq uint64, owner common.Address, price, qty uint64, isBid bool) *Order {
	return &Order{
		ID:              EncodeOrderID(isBid, seq),
		Owner:           owner,
		Price:           price,
		Quantity:        qty,
		Remaining:       qty,
		IsBid:           isBid,
		ExpireTimestamp: NoExpiry,
	}
}

func TestOrderIDEncoding(t *testing.T) {
	if id := EncodeOrderID(true, 7); id != 7 || !IsBidOrderID(id) {
		t.Fatalf("bid id 7 encoded as %d", id)
	}
	ask := EncodeOrderID(false, 7)
	if IsBidOrderID(ask) {
		t.Fatalf("ask id %d decodes as bid", ask)
	}
	// The same sequence on opposite sides yields distinct ids.
	if EncodeOrderID(true, 7) == EncodeOrderID(false, 7) {
		t.Fatal("bid and ask ids collide")
	}
}

func TestInsertFindRemove(t *testing.T) {
	b := New()
	o := newOrder(1, owner1, 100, 10, true)
	b.Insert(o)

	got, ok := b.Find(o.ID)
	if !ok || got != o {
		t.Fatalf("Find(%d) = %v, %v", o.ID, got, ok)
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}

	if !b.Remove(o) {
		t.Fatal("Remove returned false")
	}
	if _, ok := b.Find(o.ID); ok {
		t.Fatal("removed order still findable")
	}
	if b.Remove(o) {
		t.Fatal("second Remove returned true")
	}
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
}

func TestBestPrices(t *testing.T) {
	b := New()
	if _, ok := b.BestBid(); ok {
		t.Fatal("empty book has a best bid")
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatal("empty book has a best ask")
	}

	b.Insert(newOrder(1, owner1, 90, 10, true))
	b.Insert(newOrder(2, owner1, 95, 10, true))
	b.Insert(newOrder(1, owner2, 105, 10, false))
	b.Insert(newOrder(2, owner2, 101, 10, false))

	if bid, ok := b.BestBid(); !ok || bid != 95 {
		t.Fatalf("BestBid = %d, %v; want 95", bid, ok)
	}
	if ask, ok := b.BestAsk(); !ok || ask != 101 {
		t.Fatalf("BestAsk = %d, %v; want 101", ask, ok)
	}
}

func TestScanOppositeOrder(t *testing.T) {
	b := New()
	b.Insert(newOrder(1, owner1, 101, 1, false))
	b.Insert(newOrder(2, owner1, 103, 1, false))
	b.Insert(newOrder(3, owner1, 102, 1, false))
	b.Insert(newOrder(4, owner2, 95, 1, true))
	b.Insert(newOrder(5, owner2, 97, 1, true))

	var askPrices []uint64
	b.ScanOpposite(true, func(level *TickLevel) bool {
		askPrices = append(askPrices, level.Price)
		return true
	})
	want := []uint64{101, 102, 103}
	for i, p := range want {
		if askPrices[i] != p {
			t.Fatalf("buyer scan = %v, want %v", askPrices, want)
		}
	}

	var bidPrices []uint64
	b.ScanOpposite(false, func(level *TickLevel) bool {
		bidPrices = append(bidPrices, level.Price)
		return true
	})
	if bidPrices[0] != 97 || bidPrices[1] != 95 {
		t.Fatalf("seller scan = %v, want [97 95]", bidPrices)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New()
	first := newOrder(1, owner1, 100, 1, false)
	second := newOrder(2, owner2, 100, 1, false)
	b.Insert(first)
	b.Insert(second)

	b.ScanOpposite(true, func(level *TickLevel) bool {
		if level.Orders[0] != first || level.Orders[1] != second {
			t.Fatalf("level queue out of arrival order: %v", level.Orders)
		}
		return false
	})

	// Removing the head promotes the next order without disturbing the level.
	b.Remove(first)
	got, ok := b.Find(second.ID)
	if !ok || got != second {
		t.Fatal("second order lost after removing the first")
	}
}

func TestLevel2RangeSkipsExpiredAndBounds(t *testing.T) {
	b := New()
	now := uint64(1000)

	live := newOrder(1, owner1, 100, 10, false)
	expired := newOrder(2, owner2, 100, 5, false)
	expired.ExpireTimestamp = now - 1
	b.Insert(live)
	b.Insert(expired)
	b.Insert(newOrder(3, owner1, 120, 7, false))
	b.Insert(newOrder(4, owner1, 130, 3, false))

	prices, depths := b.Level2Range(false, 0, 125, now)
	if len(prices) != 2 || prices[0] != 100 || prices[1] != 120 {
		t.Fatalf("prices = %v, want [100 120]", prices)
	}
	// The expired order does not count toward depth.
	if depths[0] != 10 || depths[1] != 7 {
		t.Fatalf("depths = %v, want [10 7]", depths)
	}

	// A level whose only order expired disappears entirely.
	b.Remove(live)
	prices, _ = b.Level2Range(false, 0, 125, now)
	if len(prices) != 1 || prices[0] != 120 {
		t.Fatalf("prices after removal = %v, want [120]", prices)
	}
}

func TestOpenOrdersOrdering(t *testing.T) {
	b := New()
	bidLow := newOrder(1, owner1, 90, 1, true)
	bidHigh := newOrder(2, owner1, 95, 1, true)
	askA := newOrder(1, owner1, 101, 1, false)
	askB := newOrder(2, owner1, 101, 1, false)
	foreign := newOrder(3, owner2, 101, 1, false)
	for _, o := range []*Order{bidHigh, askB, foreign, bidLow, askA} {
		b.Insert(o)
	}

	got := b.OpenOrders(owner1)
	want := []*Order{bidLow, bidHigh, askB, askA}
	// Bids ascending by price, then asks ascending, FIFO within a level.
	// askB was inserted before askA at the same tick.
	if len(got) != len(want) {
		t.Fatalf("OpenOrders = %d orders, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OpenOrders[%d] = %d, want %d", i, got[i].ID, want[i].ID)
		}
	}

	ids := b.OpenOrderIDs(owner1)
	for i := range want {
		if ids[i] != want[i].ID {
			t.Fatalf("OpenOrderIDs[%d] = %d, want %d", i, ids[i], want[i].ID)
		}
	}

	if b.OpenOrders(common.Address{}) != nil {
		t.Fatal("unknown owner has open orders")
	}
}

func TestExpired(t *testing.T) {
	o := newOrder(1, owner1, 100, 1, true)
	if o.Expired(^uint64(0) - 1) {
		t.Fatal("NoExpiry order reported expired")
	}
	o.ExpireTimestamp = 500
	if o.Expired(499) {
		t.Fatal("expired before its timestamp")
	}
	if !o.Expired(500) {
		t.Fatal("not expired at its timestamp")
	}
}
