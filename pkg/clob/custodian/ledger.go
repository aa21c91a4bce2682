package custodian

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientBalance: an available (or locked) balance cannot cover the
// requested movement.
var ErrInsufficientBalance = errors.New("custodian: insufficient balance")

// Balance is one (account, asset) ledger entry.
type Balance struct {
	Available uint64
	Locked    uint64
}

// Ledger tracks available/locked balances per (account, asset). Entries are
// created lazily on first movement. The ledger carries no lock of its own:
// the owning pool serializes all access under its operation mutex.
//
// Invariant: available+locked changes only through Deposit, Withdraw,
// Lock/Unlock (placement and cancellation), DebitLocked and Credit (fills,
// net of fees). Debits that would underflow fail without any change.
type Ledger struct {
	balances map[common.Address]map[Asset]*Balance
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[Asset]*Balance)}
}

func (l *Ledger) entry(owner common.Address, asset Asset) *Balance {
	assets, ok := l.balances[owner]
	if !ok {
		assets = make(map[Asset]*Balance, 2)
		l.balances[owner] = assets
	}
	bal, ok := assets[asset]
	if !ok {
		bal = &Balance{}
		assets[asset] = bal
	}
	return bal
}

// Deposit consumes a coin into the account's available balance.
func (l *Ledger) Deposit(owner common.Address, coin Coin) {
	if coin.IsZero() {
		return
	}
	l.entry(owner, coin.Asset).Available += coin.Amount
}

// Withdraw moves amount out of the account's available balance, minting a
// coin handed back to the caller.
func (l *Ledger) Withdraw(owner common.Address, asset Asset, amount uint64) (Coin, error) {
	bal := l.entry(owner, asset)
	if bal.Available < amount {
		return Coin{}, fmt.Errorf("withdraw %d %s, available %d: %w",
			amount, asset, bal.Available, ErrInsufficientBalance)
	}
	bal.Available -= amount
	return Coin{Asset: asset, Amount: amount}, nil
}

// Lock moves amount from available to locked (order placement margin).
func (l *Ledger) Lock(owner common.Address, asset Asset, amount uint64) error {
	bal := l.entry(owner, asset)
	if bal.Available < amount {
		return fmt.Errorf("lock %d %s, available %d: %w",
			amount, asset, bal.Available, ErrInsufficientBalance)
	}
	bal.Available -= amount
	bal.Locked += amount
	return nil
}

// Unlock releases locked margin back to available (cancel, expiry, or the
// rounding remainder left after a fill).
func (l *Ledger) Unlock(owner common.Address, asset Asset, amount uint64) error {
	bal := l.entry(owner, asset)
	if bal.Locked < amount {
		return fmt.Errorf("unlock %d %s, locked %d: %w",
			amount, asset, bal.Locked, ErrInsufficientBalance)
	}
	bal.Locked -= amount
	bal.Available += amount
	return nil
}

// DebitLocked consumes locked margin, the maker leg of a fill.
func (l *Ledger) DebitLocked(owner common.Address, asset Asset, amount uint64) error {
	bal := l.entry(owner, asset)
	if bal.Locked < amount {
		return fmt.Errorf("debit locked %d %s, locked %d: %w",
			amount, asset, bal.Locked, ErrInsufficientBalance)
	}
	bal.Locked -= amount
	return nil
}

// DebitAvailable consumes available balance, the taker leg of a fill.
func (l *Ledger) DebitAvailable(owner common.Address, asset Asset, amount uint64) error {
	bal := l.entry(owner, asset)
	if bal.Available < amount {
		return fmt.Errorf("debit available %d %s, available %d: %w",
			amount, asset, bal.Available, ErrInsufficientBalance)
	}
	bal.Available -= amount
	return nil
}

// Credit adds trade proceeds (net of fees) to the available balance.
func (l *Ledger) Credit(owner common.Address, asset Asset, amount uint64) {
	if amount == 0 {
		return
	}
	l.entry(owner, asset).Available += amount
}

// Snapshot returns a read-only view of both legs for one account. Missing
// entries read as zero without being created.
func (l *Ledger) Snapshot(owner common.Address) (baseAvail, baseLocked, quoteAvail, quoteLocked uint64) {
	assets, ok := l.balances[owner]
	if !ok {
		return 0, 0, 0, 0
	}
	if b, ok := assets[Base]; ok {
		baseAvail, baseLocked = b.Available, b.Locked
	}
	if q, ok := assets[Quote]; ok {
		quoteAvail, quoteLocked = q.Available, q.Locked
	}
	return baseAvail, baseLocked, quoteAvail, quoteLocked
}

// Available reads one available balance without creating an entry.
func (l *Ledger) Available(owner common.Address, asset Asset) uint64 {
	if assets, ok := l.balances[owner]; ok {
		if bal, ok := assets[asset]; ok {
			return bal.Available
		}
	}
	return 0
}

// Entry is one (account, asset) row, used for persistence sweeps.
type Entry struct {
	Owner     common.Address
	Asset     Asset
	Available uint64
	Locked    uint64
}

// Entries dumps every ledger row. Order is unspecified.
func (l *Ledger) Entries() []Entry {
	var out []Entry
	for owner, assets := range l.balances {
		for asset, bal := range assets {
			out = append(out, Entry{Owner: owner, Asset: asset, Available: bal.Available, Locked: bal.Locked})
		}
	}
	return out
}

// RestoreEntry installs a persisted row verbatim. Boot-time use only.
func (l *Ledger) RestoreEntry(e Entry) {
	bal := l.entry(e.Owner, e.Asset)
	bal.Available = e.Available
	bal.Locked = e.Locked
}
