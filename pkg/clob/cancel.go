package clob

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/deepdex/deepdex/pkg/clob/book"
	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

// removeAndRefund takes a resting order off the book and releases its locked
// margin back to the owner's available balance.
func (p *Pool) removeAndRefund(o *book.Order) {
	p.book.Remove(o)
	if o.IsBid {
		mustLedger(p.ledger.Unlock(o.Owner, custodian.Quote, o.LockedQuote))
		o.LockedQuote = 0
	} else {
		mustLedger(p.ledger.Unlock(o.Owner, custodian.Base, o.Remaining))
	}
}

// CancelOrder removes one resting order owned by the capability holder and
// refunds its unfilled margin.
func (p *Pool) CancelOrder(cap custodian.AccountCap, orderID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.verifyCap(cap); err != nil {
		return err
	}
	o, ok := p.book.Find(orderID)
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if o.Owner != cap.Owner {
		return fmt.Errorf("order %d: %w", orderID, ErrNotOwner)
	}
	p.removeAndRefund(o)
	p.log.Debug("order_cancelled",
		zap.Uint64("order_id", orderID),
		zap.String("owner", cap.Owner.Hex()))
	return nil
}

// BatchCancelOrders cancels an explicit id list. Ids no longer on the book
// are skipped; an id resting under a different owner aborts the whole batch
// before any cancellation is applied.
func (p *Pool) BatchCancelOrders(cap custodian.AccountCap, orderIDs []uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.verifyCap(cap); err != nil {
		return err
	}
	targets := make([]*book.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		o, ok := p.book.Find(id)
		if !ok {
			continue
		}
		if o.Owner != cap.Owner {
			return fmt.Errorf("order %d: %w", id, ErrNotOwner)
		}
		targets = append(targets, o)
	}
	for _, o := range targets {
		p.removeAndRefund(o)
	}
	p.log.Debug("batch_cancel",
		zap.String("owner", cap.Owner.Hex()),
		zap.Int("requested", len(orderIDs)),
		zap.Int("cancelled", len(targets)))
	return nil
}

// CancelAllOrders cancels every resting order of the capability holder,
// returning all of the account's locked order margin to available.
func (p *Pool) CancelAllOrders(cap custodian.AccountCap) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.verifyCap(cap); err != nil {
		return err
	}
	orders := p.book.OpenOrders(cap.Owner)
	for _, o := range orders {
		p.removeAndRefund(o)
	}
	p.log.Debug("cancel_all",
		zap.String("owner", cap.Owner.Hex()),
		zap.Int("cancelled", len(orders)))
	return nil
}

// CleanUpExpiredOrders removes expired orders and refunds their margin to
// the recorded owner. Callable by anyone: the (id, owner) pairs are checked
// against the book, ids already gone are no-ops, live orders whose expiry
// has not passed are untouched, and an owner mismatch aborts the whole call
// before any removal.
func (p *Pool) CleanUpExpiredOrders(nowMs uint64, orderIDs []uint64, owners []common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(orderIDs) != len(owners) {
		return fmt.Errorf("cleanup: %d ids, %d owners", len(orderIDs), len(owners))
	}
	expired := make([]*book.Order, 0, len(orderIDs))
	for i, id := range orderIDs {
		o, ok := p.book.Find(id)
		if !ok {
			continue
		}
		if o.Owner != owners[i] {
			return fmt.Errorf("order %d: %w", id, ErrNotOwner)
		}
		if !o.Expired(nowMs) {
			continue
		}
		expired = append(expired, o)
	}
	for _, o := range expired {
		p.removeAndRefund(o)
	}
	if len(expired) > 0 {
		p.log.Debug("expired_orders_cleaned", zap.Int("count", len(expired)))
	}
	return nil
}
