// Package book implements the resting side of the matching engine: price tick
// levels held in an ordered map, FIFO queues per level, and a per-account
// index of open orders. It never touches balances; the pool layer owns all
// ledger movement.
package book

import "github.com/ethereum/go-ethereum/common"

// askOrderIDBit marks ask-side order ids. Bid and ask sequences count
// independently, so the high bit alone decodes the side of any id in O(1).
const askOrderIDBit = uint64(1) << 63

// EncodeOrderID builds a 64-bit order id from a side and a per-side sequence.
func EncodeOrderID(isBid bool, seq uint64) uint64 {
	if isBid {
		return seq
	}
	return askOrderIDBit | seq
}

// IsBidOrderID reports the side encoded in an order id.
func IsBidOrderID(id uint64) bool { return id&askOrderIDBit == 0 }

// NoExpiry is an ExpireTimestamp that never triggers expiration.
const NoExpiry = ^uint64(0)

// Order is a resting limit order. Prices and quantities are integers on the
// pool's tick/lot grid; ExpireTimestamp is a caller-clock milliseconds value.
type Order struct {
	ID       uint64
	ClientID uint64
	Owner    common.Address

	Price    uint64
	Quantity uint64 // original quantity
	Remaining uint64
	IsBid    bool

	// LockedQuote is the quote margin still held for a bid order. It is
	// decremented by the exact round-down notional of each fill, so whatever
	// is left on removal (rounding crumbs included) is refunded precisely.
	// Always zero for asks, which lock base equal to Remaining.
	LockedQuote uint64

	ExpireTimestamp uint64
}

// Expired reports whether the order's expiry has passed at time nowMs.
func (o *Order) Expired(nowMs uint64) bool {
	return o.ExpireTimestamp != NoExpiry && o.ExpireTimestamp <= nowMs
}
