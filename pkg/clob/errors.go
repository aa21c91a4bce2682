package clob

import (
	"errors"

	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

// Every operation validates (or plans) fully before mutating anything, so any
// of these errors implies zero state change for that attempt.
var (
	// ErrInvalidPrice: price is zero or not a multiple of the pool tick size.
	ErrInvalidPrice = errors.New("clob: price not a positive multiple of tick size")

	// ErrInvalidQuantity: quantity is zero, below min size, not a multiple of
	// the lot size, or its notional overflows 64 bits.
	ErrInvalidQuantity = errors.New("clob: invalid quantity")

	// ErrUnderflow: a required-nonzero fee/rebate computation rounded to zero.
	ErrUnderflow = errors.New("clob: fixed-point rounding underflow")

	// ErrFillOrKillNotSatisfied: book liquidity cannot fully fill a FOK order.
	ErrFillOrKillNotSatisfied = errors.New("clob: fill-or-kill cannot be fully filled")

	// ErrPostOrAbortCrossed: a post-only order would cross the spread.
	ErrPostOrAbortCrossed = errors.New("clob: post-or-abort order would cross")

	ErrOrderNotFound = errors.New("clob: order not found")
	ErrNotOwner      = errors.New("clob: caller does not own order")

	// ErrIncorrectCapability: the supplied capability does not match the one
	// issued for the account (or pool owner).
	ErrIncorrectCapability = errors.New("clob: incorrect capability")

	// ErrInvalidExpireTimestamp: expiration is not in the future at placement.
	ErrInvalidExpireTimestamp = errors.New("clob: expire timestamp not in the future")

	ErrInvalidRestriction = errors.New("clob: unknown order restriction")

	// ErrInsufficientBalance is shared with the custodian ledger.
	ErrInsufficientBalance = custodian.ErrInsufficientBalance
)
