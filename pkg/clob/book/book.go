package book

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/btree"
)

// TickLevel is one price tick: a FIFO queue of resting orders, oldest first.
type TickLevel struct {
	Price  uint64
	Orders []*Order
}

// totalQuantity sums remaining quantity at the level, skipping expired orders.
func (l *TickLevel) totalQuantity(nowMs uint64) uint64 {
	var total uint64
	for _, o := range l.Orders {
		if o.Expired(nowMs) {
			continue
		}
		total += o.Remaining
	}
	return total
}

// Book holds both sides of the order book plus lookup indexes:
// id -> price for O(1) cancellation and owner -> open ids for account queries.
// The pool serializes access; Book itself is not safe for concurrent use.
type Book struct {
	bids *btree.Map[uint64, *TickLevel]
	asks *btree.Map[uint64, *TickLevel]

	prices  map[uint64]uint64 // order id -> tick price
	byOwner map[common.Address]map[uint64]struct{}
}

func New() *Book {
	return &Book{
		bids:    btree.NewMap[uint64, *TickLevel](32),
		asks:    btree.NewMap[uint64, *TickLevel](32),
		prices:  make(map[uint64]uint64),
		byOwner: make(map[common.Address]map[uint64]struct{}),
	}
}

func (b *Book) side(isBid bool) *btree.Map[uint64, *TickLevel] {
	if isBid {
		return b.bids
	}
	return b.asks
}

// Insert appends the order to the FIFO queue at its price tick, creating the
// tick level if absent.
func (b *Book) Insert(o *Order) {
	tree := b.side(o.IsBid)
	level, ok := tree.Get(o.Price)
	if !ok {
		level = &TickLevel{Price: o.Price}
		tree.Set(o.Price, level)
	}
	level.Orders = append(level.Orders, o)

	b.prices[o.ID] = o.Price
	owned, ok := b.byOwner[o.Owner]
	if !ok {
		owned = make(map[uint64]struct{})
		b.byOwner[o.Owner] = owned
	}
	owned[o.ID] = struct{}{}
}

// Find returns the resting order with the given id.
func (b *Book) Find(id uint64) (*Order, bool) {
	price, ok := b.prices[id]
	if !ok {
		return nil, false
	}
	level, ok := b.side(IsBidOrderID(id)).Get(price)
	if !ok {
		return nil, false
	}
	for _, o := range level.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// Remove deletes the order from its tick level and all indexes. An emptied
// tick level is removed from the tree.
func (b *Book) Remove(o *Order) bool {
	price, ok := b.prices[o.ID]
	if !ok {
		return false
	}
	tree := b.side(o.IsBid)
	level, ok := tree.Get(price)
	if !ok {
		return false
	}
	for i, rest := range level.Orders {
		if rest.ID != o.ID {
			continue
		}
		level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
		if len(level.Orders) == 0 {
			tree.Delete(price)
		}
		delete(b.prices, o.ID)
		if owned, ok := b.byOwner[o.Owner]; ok {
			delete(owned, o.ID)
			if len(owned) == 0 {
				delete(b.byOwner, o.Owner)
			}
		}
		return true
	}
	return false
}

// BestBid returns the highest bid tick price.
func (b *Book) BestBid() (uint64, bool) {
	price, _, ok := b.bids.Max()
	return price, ok
}

// BestAsk returns the lowest ask tick price.
func (b *Book) BestAsk() (uint64, bool) {
	price, _, ok := b.asks.Min()
	return price, ok
}

// ScanOpposite walks the side a taker with side isBidTaker matches against,
// best price first (asks ascending for a buyer, bids descending for a
// seller). Iteration stops when fn returns false. fn must not mutate.
func (b *Book) ScanOpposite(isBidTaker bool, fn func(level *TickLevel) bool) {
	if isBidTaker {
		b.asks.Scan(func(_ uint64, level *TickLevel) bool { return fn(level) })
		return
	}
	b.bids.Reverse(func(_ uint64, level *TickLevel) bool { return fn(level) })
}

// Level2Range returns parallel price/aggregate-depth slices for ticks with
// low <= price <= high, excluding expired orders and empty aggregates. The
// bid side comes back best-first (descending), the ask side ascending.
func (b *Book) Level2Range(isBid bool, low, high, nowMs uint64) (prices, depths []uint64) {
	collect := func(_ uint64, level *TickLevel) bool {
		if isBid && level.Price < low {
			return false
		}
		if !isBid && level.Price > high {
			return false
		}
		if qty := level.totalQuantity(nowMs); qty > 0 {
			prices = append(prices, level.Price)
			depths = append(depths, qty)
		}
		return true
	}
	if isBid {
		b.bids.Descend(high, collect)
	} else {
		b.asks.Ascend(low, collect)
	}
	return prices, depths
}

// OpenOrders lists an account's resting orders: bid levels ascending by
// price, then ask levels ascending, FIFO within each level.
func (b *Book) OpenOrders(owner common.Address) []*Order {
	owned := b.byOwner[owner]
	if len(owned) == 0 {
		return nil
	}
	out := make([]*Order, 0, len(owned))
	appendOwned := func(_ uint64, level *TickLevel) bool {
		for _, o := range level.Orders {
			if o.Owner == owner {
				out = append(out, o)
			}
		}
		return true
	}
	b.bids.Scan(appendOwned)
	b.asks.Scan(appendOwned)
	return out
}

// OpenOrderIDs returns the ids of an account's resting orders in the same
// deterministic order as OpenOrders.
func (b *Book) OpenOrderIDs(owner common.Address) []uint64 {
	orders := b.OpenOrders(owner)
	ids := make([]uint64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

// Len is the total number of resting orders on both sides.
func (b *Book) Len() int { return len(b.prices) }
