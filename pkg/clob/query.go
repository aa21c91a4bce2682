package clob

import (
	"github.com/ethereum/go-ethereum/common"
)

// MarketPrice returns the best bid and ask tick prices. A missing side
// reports ok=false with a zero price.
func (p *Pool) MarketPrice() (bestBid, bestAsk uint64, hasBid, hasAsk bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bestBid, hasBid = p.book.BestBid()
	bestAsk, hasAsk = p.book.BestAsk()
	return bestBid, bestAsk, hasBid, hasAsk
}

// Level2BidSide returns parallel price/depth slices for bid ticks with
// low <= price <= high, best (highest) first. Expired orders are excluded
// from the aggregates.
func (p *Pool) Level2BidSide(low, high, nowMs uint64) (prices, depths []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.Level2Range(true, low, high, nowMs)
}

// Level2AskSide is the ask-side counterpart, best (lowest) first.
func (p *Pool) Level2AskSide(low, high, nowMs uint64) (prices, depths []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.Level2Range(false, low, high, nowMs)
}

// ListOpenOrders returns the account's resting orders: bid levels ascending
// by price then ask levels ascending, FIFO within each level.
func (p *Pool) ListOpenOrders(account common.Address) []OpenOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	orders := p.book.OpenOrders(account)
	out := make([]OpenOrder, len(orders))
	for i, o := range orders {
		out[i] = OpenOrder{
			OrderID:         o.ID,
			ClientID:        o.ClientID,
			Owner:           o.Owner,
			Price:           o.Price,
			Quantity:        o.Quantity,
			Remaining:       o.Remaining,
			IsBid:           o.IsBid,
			ExpireTimestamp: o.ExpireTimestamp,
		}
	}
	return out
}

// AccountBalance returns a read-only balance snapshot for one account.
func (p *Pool) AccountBalance(account common.Address) (baseAvail, baseLocked, quoteAvail, quoteLocked uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Snapshot(account)
}
