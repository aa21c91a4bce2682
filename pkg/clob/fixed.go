package clob

import "math/bits"

// FloatScaling is the fixed-point scale for prices and fee rates: a price is
// quote-units-per-base-unit multiplied by 1e9, a fee rate is a fraction
// multiplied by 1e9. Quote notional of a fill is price*qty/1e9.
const FloatScaling uint64 = 1_000_000_000

// mulDivDown returns floor(a*b/denom) using a 128-bit intermediate.
// ok is false when the quotient does not fit in 64 bits.
func mulDivDown(a, b, denom uint64) (v uint64, ok bool) {
	hi, lo := bits.Mul64(a, b)
	if hi >= denom {
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, denom)
	return q, true
}

// mulDivUp returns ceil(a*b/denom) using a 128-bit intermediate.
func mulDivUp(a, b, denom uint64) (v uint64, ok bool) {
	hi, lo := bits.Mul64(a, b)
	if hi >= denom {
		return 0, false
	}
	q, r := bits.Div64(hi, lo, denom)
	if r > 0 {
		if q == ^uint64(0) {
			return 0, false
		}
		q++
	}
	return q, true
}

// quoteDown is the round-down quote notional of qty base at price.
func quoteDown(price, qty uint64) (uint64, bool) { return mulDivDown(price, qty, FloatScaling) }

// quoteUp is the round-up quote notional, used when locking bid margin so the
// lock always covers the round-down amounts consumed by individual fills.
func quoteUp(price, qty uint64) (uint64, bool) { return mulDivUp(price, qty, FloatScaling) }

// takerFee rounds up: the protocol never undercharges the taker.
func takerFee(notional, rate uint64) (uint64, bool) { return mulDivUp(notional, rate, FloatScaling) }

// makerRebate rounds down: the protocol never overpays the maker. A non-zero
// notional with a non-zero rate that still rounds to zero is reported via
// underflow=true and aborts the operation.
func makerRebate(notional, rate uint64) (rebate uint64, underflow, ok bool) {
	r, ok := mulDivDown(notional, rate, FloatScaling)
	if !ok {
		return 0, false, false
	}
	if r == 0 && notional > 0 && rate > 0 {
		return 0, true, true
	}
	return r, false, true
}
