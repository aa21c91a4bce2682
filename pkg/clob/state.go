package clob

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepdex/deepdex/pkg/clob/book"
	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

// State is the serializable form of a pool: everything needed to rebuild the
// book, ledger, capabilities, and counters after a restart. Produced under
// the pool lock, so it is a consistent snapshot.
type State struct {
	ID         uuid.UUID
	Params     Params
	OwnerToken [32]byte
	Caps       map[common.Address][32]byte

	FeeBalance uint64
	NextBidSeq uint64
	NextAskSeq uint64

	Orders   []OrderState
	Balances []custodian.Entry
}

// OrderState is a resting order with its margin bookkeeping.
type OrderState struct {
	ID              uint64
	ClientID        uint64
	Owner           common.Address
	Price           uint64
	Quantity        uint64
	Remaining       uint64
	IsBid           bool
	LockedQuote     uint64
	ExpireTimestamp uint64
}

// ExportState snapshots the pool for persistence.
func (p *Pool) ExportState() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	caps := make(map[common.Address][32]byte, len(p.caps))
	for owner, token := range p.caps {
		caps[owner] = token
	}
	st := State{
		ID:         p.id,
		Params:     p.params,
		OwnerToken: p.ownerToken,
		Caps:       caps,
		FeeBalance: p.feeBalance,
		NextBidSeq: p.nextBidSeq,
		NextAskSeq: p.nextAskSeq,
		Balances:   p.ledger.Entries(),
	}
	for _, owner := range p.accountsWithOrders() {
		for _, o := range p.book.OpenOrders(owner) {
			st.Orders = append(st.Orders, OrderState{
				ID:              o.ID,
				ClientID:        o.ClientID,
				Owner:           o.Owner,
				Price:           o.Price,
				Quantity:        o.Quantity,
				Remaining:       o.Remaining,
				IsBid:           o.IsBid,
				LockedQuote:     o.LockedQuote,
				ExpireTimestamp: o.ExpireTimestamp,
			})
		}
	}
	return st
}

func (p *Pool) accountsWithOrders() []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	for _, e := range p.ledger.Entries() {
		if _, ok := seen[e.Owner]; ok {
			continue
		}
		seen[e.Owner] = struct{}{}
		out = append(out, e.Owner)
	}
	return out
}

// RestorePool rebuilds a pool from a persisted snapshot.
func RestorePool(st State, opts ...Option) (*Pool, error) {
	if err := st.Params.Validate(); err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	p := &Pool{
		id:         st.ID,
		params:     st.Params,
		ownerToken: st.OwnerToken,
		book:       book.New(),
		ledger:     custodian.NewLedger(),
		caps:       make(map[common.Address][32]byte, len(st.Caps)),
		nextBidSeq: st.NextBidSeq,
		nextAskSeq: st.NextAskSeq,
		feeBalance: st.FeeBalance,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for owner, token := range st.Caps {
		p.caps[owner] = token
	}
	for _, e := range st.Balances {
		p.ledger.RestoreEntry(e)
	}
	for _, os := range st.Orders {
		p.book.Insert(&book.Order{
			ID:              os.ID,
			ClientID:        os.ClientID,
			Owner:           os.Owner,
			Price:           os.Price,
			Quantity:        os.Quantity,
			Remaining:       os.Remaining,
			IsBid:           os.IsBid,
			LockedQuote:     os.LockedQuote,
			ExpireTimestamp: os.ExpireTimestamp,
		})
	}
	p.log.Info("pool_restored",
		zap.String("pool", p.id.String()),
		zap.String("symbol", p.params.Symbol),
		zap.Int("orders", len(st.Orders)),
		zap.Int("balances", len(st.Balances)))
	return p, nil
}
