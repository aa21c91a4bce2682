// Package custodian provides the balance side of the exchange: per-account
// available/locked bookkeeping for a pool's base and quote assets, the coin
// value containers exchanged with callers, and capability tokens gating
// account-sensitive operations.
package custodian

// Asset selects one leg of a pool's trading pair.
type Asset uint8

const (
	Base Asset = iota
	Quote
)

func (a Asset) String() string {
	if a == Base {
		return "base"
	}
	return "quote"
}

// Coin is a caller-supplied value container. The engine never moves assets
// anywhere: it only consumes and mints Coin values and adjusts ledger
// entries, leaving transport to the surrounding custody layer.
type Coin struct {
	Asset  Asset
	Amount uint64
}

func BaseCoin(amount uint64) Coin  { return Coin{Asset: Base, Amount: amount} }
func QuoteCoin(amount uint64) Coin { return Coin{Asset: Quote, Amount: amount} }

// IsZero reports whether the coin carries no value.
func (c Coin) IsZero() bool { return c.Amount == 0 }
