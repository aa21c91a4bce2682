// Package clob implements a price-time-priority central limit order book with
// custodial balance accounting: limit/market/swap execution, self-trade
// prevention, order expiration, and taker-fee/maker-rebate accrual. One Pool
// is one trading pair; every externally invoked operation runs to completion
// atomically under the pool's lock.
package clob

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Restriction constrains how a limit order may execute.
type Restriction uint8

const (
	// NoRestriction: fill what crosses, rest the remainder.
	NoRestriction Restriction = iota
	// ImmediateOrCancel: fill what crosses, discard the remainder.
	ImmediateOrCancel
	// FillOrKill: fill completely right now or abort with no effect.
	FillOrKill
	// PostOrAbort: rest without matching; abort if the price would cross.
	PostOrAbort
)

func (r Restriction) String() string {
	switch r {
	case NoRestriction:
		return "none"
	case ImmediateOrCancel:
		return "ioc"
	case FillOrKill:
		return "fok"
	case PostOrAbort:
		return "post_or_abort"
	default:
		return fmt.Sprintf("restriction(%d)", uint8(r))
	}
}

// SelfMatchingPolicy decides what happens when an incoming order meets a
// resting order of the same owner. Only CancelOldest is implemented; the
// enum exists so reduce-taker or reject variants can slot in later.
type SelfMatchingPolicy uint8

const (
	// CancelOldest cancels the resting order, refunds its locked margin, and
	// keeps matching. No fill is ever recorded between same-owner orders.
	CancelOldest SelfMatchingPolicy = iota
)

// Fill is one maker/taker execution. Quantities are base units; Notional is
// the round-down quote value at the maker's price.
type Fill struct {
	MakerOrderID  uint64
	MakerOwner    common.Address
	TakerClientID uint64
	TakerIsBid    bool
	Price         uint64
	Quantity      uint64
	Notional      uint64
	TakerFee      uint64
	MakerRebate   uint64
	Timestamp     uint64
}

// TradeSink receives every executed fill, e.g. for journaling or broadcast.
// Called synchronously under the pool lock; implementations must not call
// back into the pool.
type TradeSink interface {
	RecordFill(poolID uuid.UUID, fill Fill)
}

// Params is a pool's immutable configuration. Prices must be positive
// multiples of TickSize; quantities positive multiples of LotSize and at
// least MinSize. Fee rates are FloatScaling-scaled fractions of quote
// notional; the protocol retains TakerFeeRate-MakerRebateRate per fill.
type Params struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	TickSize uint64
	LotSize  uint64
	MinSize  uint64

	TakerFeeRate    uint64
	MakerRebateRate uint64
}

func (p Params) Validate() error {
	if p.Symbol == "" || p.BaseAsset == "" || p.QuoteAsset == "" {
		return fmt.Errorf("pool params: symbol and assets must be set")
	}
	if p.TickSize == 0 {
		return fmt.Errorf("pool params: tick size must be positive")
	}
	if p.LotSize == 0 {
		return fmt.Errorf("pool params: lot size must be positive")
	}
	if p.MinSize == 0 || p.MinSize%p.LotSize != 0 {
		return fmt.Errorf("pool params: min size must be a positive multiple of lot size")
	}
	if p.TakerFeeRate >= FloatScaling || p.MakerRebateRate >= FloatScaling {
		return fmt.Errorf("pool params: fee rates must be below %d", FloatScaling)
	}
	if p.MakerRebateRate > p.TakerFeeRate {
		return fmt.Errorf("pool params: maker rebate rate exceeds taker fee rate")
	}
	return nil
}

// OpenOrder is a read-only view of a resting order.
type OpenOrder struct {
	OrderID         uint64
	ClientID        uint64
	Owner           common.Address
	Price           uint64
	Quantity        uint64
	Remaining       uint64
	IsBid           bool
	ExpireTimestamp uint64
}

// PoolStat is the pool's configuration plus its running totals.
type PoolStat struct {
	ID         uuid.UUID
	Params     Params
	FeeBalance uint64
	OpenOrders int
	NextBidSeq uint64
	NextAskSeq uint64
}
