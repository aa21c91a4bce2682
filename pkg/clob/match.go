package clob

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/deepdex/deepdex/pkg/clob/book"
	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

// Matching is split into a read-only planning pass and an apply pass. The
// plan walks the opposite side in price-time order and records every fill,
// self-trade cancellation, and expired-maker eviction together with all fee
// arithmetic. Validation (balances, FOK, rounding underflow) happens against
// the finished plan, so a failing operation never mutates anything; the
// apply pass then cannot fail.

type plannedFill struct {
	maker    *book.Order
	quantity uint64
	notional uint64 // round-down quote value at the maker's price
	fee      uint64
	rebate   uint64
}

type plannedEvict struct {
	order   *book.Order
	expired bool // false means self-trade cancellation
}

type matchPlan struct {
	fills  []plannedFill
	evicts []plannedEvict

	baseFilled  uint64
	quoteFilled uint64 // gross notional, fees not included
	fees        uint64
	rebates     uint64

	remaining uint64 // base mode: unfilled base quantity
	quoteLeft uint64 // quote mode: unspent budget (fees included in spend)
}

type matchRequest struct {
	taker      common.Address
	isBid      bool
	limitPrice uint64 // math.MaxUint64 (bid) / 0 (ask) disables the limit
	quantity   uint64 // base mode target
	budget     uint64 // quote mode budget
	quoteMode  bool
	nowMs      uint64
}

// planMatch simulates matching without mutating book or ledger.
func (p *Pool) planMatch(req matchRequest) (matchPlan, error) {
	plan := matchPlan{remaining: req.quantity, quoteLeft: req.budget}
	var planErr error

	p.book.ScanOpposite(req.isBid, func(level *book.TickLevel) bool {
		if req.isBid && level.Price > req.limitPrice {
			return false
		}
		if !req.isBid && level.Price < req.limitPrice {
			return false
		}
		for _, maker := range level.Orders {
			if p.done(&plan, req) {
				return false
			}
			if maker.Expired(req.nowMs) {
				plan.evicts = append(plan.evicts, plannedEvict{order: maker, expired: true})
				continue
			}
			if maker.Owner == req.taker {
				plan.evicts = append(plan.evicts, plannedEvict{order: maker})
				continue
			}
			stop, err := p.planFill(&plan, req, maker)
			if err != nil {
				planErr = err
				return false
			}
			if stop {
				return false
			}
		}
		return !p.done(&plan, req)
	})

	return plan, planErr
}

func (p *Pool) done(plan *matchPlan, req matchRequest) bool {
	if req.quoteMode {
		// Budget exhaustion is detected per tick in planFill, where the
		// price is known; here only a fully spent budget ends the walk.
		return plan.quoteLeft == 0
	}
	return plan.remaining == 0
}

// planFill appends one fill against maker. stop=true means the residual size
// cannot cover one lot (base mode) or the budget cannot buy a single base
// unit at this tick (quote mode, whose terminal fill may be a partial lot).
func (p *Pool) planFill(plan *matchPlan, req matchRequest, maker *book.Order) (stop bool, err error) {
	lot := p.params.LotSize
	var fill uint64

	if req.quoteMode {
		// Price per base unit including the taker fee, rounded against the
		// taker, bounds what the remaining budget can afford at this tick.
		// The budget converts at the tick price rather than the lot grid, so
		// the last fill of the swap may be a fraction of a lot.
		feePerUnit, ok := mulDivUp(maker.Price, p.params.TakerFeeRate, FloatScaling)
		if !ok {
			return false, fmt.Errorf("fee price overflow: %w", ErrInvalidQuantity)
		}
		afford, ok := mulDivDown(plan.quoteLeft, FloatScaling, maker.Price+feePerUnit)
		if !ok {
			return false, fmt.Errorf("affordable quantity overflow: %w", ErrInvalidQuantity)
		}
		fill = afford
		if fill == 0 {
			return true, nil
		}
		if maker.Remaining < fill {
			fill = maker.Remaining
		}
	} else {
		fill = plan.remaining
		if maker.Remaining < fill {
			fill = maker.Remaining
		}
		if fill < lot {
			// Residual cannot fill one lot at this tick.
			return true, nil
		}
	}

	notional, fee, rebate, err := p.fillEconomics(maker.Price, fill)
	if err != nil {
		return false, err
	}
	if req.quoteMode {
		// The rounded-down afford estimate can overshoot by a unit or two;
		// walk down until the gross cost fits the budget.
		for fill > 0 && notional+fee > plan.quoteLeft {
			fill--
			if fill == 0 {
				return true, nil
			}
			notional, fee, rebate, err = p.fillEconomics(maker.Price, fill)
			if err != nil {
				return false, err
			}
		}
	}

	plan.fills = append(plan.fills, plannedFill{
		maker:    maker,
		quantity: fill,
		notional: notional,
		fee:      fee,
		rebate:   rebate,
	})
	plan.baseFilled += fill
	plan.quoteFilled += notional
	plan.fees += fee
	plan.rebates += rebate
	if req.quoteMode {
		plan.quoteLeft -= notional + fee
	} else {
		plan.remaining -= fill
	}
	return false, nil
}

// fillEconomics computes the quote notional, taker fee, and maker rebate of
// a fill. A rebate that rounds to zero on a non-zero notional aborts with
// ErrUnderflow rather than silently crediting nothing.
func (p *Pool) fillEconomics(price, qty uint64) (notional, fee, rebate uint64, err error) {
	notional, ok := quoteDown(price, qty)
	if !ok {
		return 0, 0, 0, fmt.Errorf("notional overflow: %w", ErrInvalidQuantity)
	}
	fee, ok = takerFee(notional, p.params.TakerFeeRate)
	if !ok {
		return 0, 0, 0, fmt.Errorf("taker fee overflow: %w", ErrInvalidQuantity)
	}
	rebate, underflow, ok := makerRebate(notional, p.params.MakerRebateRate)
	if !ok {
		return 0, 0, 0, fmt.Errorf("maker rebate overflow: %w", ErrInvalidQuantity)
	}
	if underflow {
		return 0, 0, 0, fmt.Errorf("maker rebate on notional %d: %w", notional, ErrUnderflow)
	}
	return notional, fee, rebate, nil
}

// applyEvictions removes expired and self-matched resting orders, refunding
// their locked margin to their owners.
func (p *Pool) applyEvictions(plan *matchPlan) {
	for _, ev := range plan.evicts {
		o := ev.order
		p.book.Remove(o)
		if o.IsBid {
			mustLedger(p.ledger.Unlock(o.Owner, custodian.Quote, o.LockedQuote))
			o.LockedQuote = 0
		} else {
			mustLedger(p.ledger.Unlock(o.Owner, custodian.Base, o.Remaining))
		}
		reason := "self_trade"
		if ev.expired {
			reason = "expired"
		}
		p.log.Debug("order_evicted",
			zap.Uint64("order_id", o.ID),
			zap.String("owner", o.Owner.Hex()),
			zap.String("reason", reason))
	}
}

// applyFills settles every planned fill. takerLedger selects whether the
// taker leg moves through the custodian ledger (limit orders) or through the
// caller-supplied coins (market orders and swaps, settled by the caller from
// the plan totals).
func (p *Pool) applyFills(plan *matchPlan, taker common.Address, takerClientID uint64, isBid, takerLedger bool, nowMs uint64) []Fill {
	if len(plan.fills) == 0 {
		return nil
	}
	fills := make([]Fill, 0, len(plan.fills))
	for _, f := range plan.fills {
		maker := f.maker
		if isBid { // makers rest on the ask side, holding locked base
			if takerLedger {
				mustLedger(p.ledger.DebitAvailable(taker, custodian.Quote, f.notional+f.fee))
				p.ledger.Credit(taker, custodian.Base, f.quantity)
			}
			mustLedger(p.ledger.DebitLocked(maker.Owner, custodian.Base, f.quantity))
			p.ledger.Credit(maker.Owner, custodian.Quote, f.notional+f.rebate)
		} else { // makers rest on the bid side, holding locked quote
			if takerLedger {
				mustLedger(p.ledger.DebitAvailable(taker, custodian.Base, f.quantity))
				p.ledger.Credit(taker, custodian.Quote, f.notional-f.fee)
			}
			mustLedger(p.ledger.DebitLocked(maker.Owner, custodian.Quote, f.notional))
			maker.LockedQuote -= f.notional
			p.ledger.Credit(maker.Owner, custodian.Base, f.quantity)
			p.ledger.Credit(maker.Owner, custodian.Quote, f.rebate)
		}
		p.feeBalance += f.fee - f.rebate

		maker.Remaining -= f.quantity
		if maker.Remaining == 0 {
			// Refund the rounding crumbs left on a fully filled bid.
			if maker.IsBid && maker.LockedQuote > 0 {
				mustLedger(p.ledger.Unlock(maker.Owner, custodian.Quote, maker.LockedQuote))
				maker.LockedQuote = 0
			}
			p.book.Remove(maker)
		}

		fill := Fill{
			MakerOrderID:  maker.ID,
			MakerOwner:    maker.Owner,
			TakerClientID: takerClientID,
			TakerIsBid:    isBid,
			Price:         maker.Price,
			Quantity:      f.quantity,
			Notional:      f.notional,
			TakerFee:      f.fee,
			MakerRebate:   f.rebate,
			Timestamp:     nowMs,
		}
		fills = append(fills, fill)
		if p.sink != nil {
			p.sink.RecordFill(p.id, fill)
		}
		p.log.Debug("fill",
			zap.Uint64("maker_order_id", maker.ID),
			zap.Uint64("price", maker.Price),
			zap.Uint64("quantity", f.quantity),
			zap.Uint64("taker_fee", f.fee),
			zap.Uint64("maker_rebate", f.rebate))
	}
	return fills
}

// restOrder inserts the unmatched remainder as a new resting order, locking
// its margin: quote rounded up for bids, base for asks.
func (p *Pool) restOrder(owner common.Address, clientID, price, remaining uint64, isBid bool, expireTs uint64) (uint64, error) {
	var lockedQuote uint64
	if isBid {
		lock, ok := quoteUp(price, remaining)
		if !ok {
			return 0, fmt.Errorf("bid margin overflow: %w", ErrInvalidQuantity)
		}
		lockedQuote = lock
	}

	var seq uint64
	if isBid {
		seq = p.nextBidSeq
	} else {
		seq = p.nextAskSeq
	}
	o := &book.Order{
		ID:              book.EncodeOrderID(isBid, seq),
		ClientID:        clientID,
		Owner:           owner,
		Price:           price,
		Quantity:        remaining,
		Remaining:       remaining,
		IsBid:           isBid,
		LockedQuote:     lockedQuote,
		ExpireTimestamp: expireTs,
	}
	if isBid {
		if err := p.ledger.Lock(owner, custodian.Quote, lockedQuote); err != nil {
			return 0, err
		}
		p.nextBidSeq++
	} else {
		if err := p.ledger.Lock(owner, custodian.Base, remaining); err != nil {
			return 0, err
		}
		p.nextAskSeq++
	}
	p.book.Insert(o)
	p.log.Debug("order_rested",
		zap.Uint64("order_id", o.ID),
		zap.String("owner", owner.Hex()),
		zap.Uint64("price", price),
		zap.Uint64("quantity", remaining),
		zap.Bool("is_bid", isBid))
	return o.ID, nil
}

// PlaceLimitOrder submits a limit order for a custodial account. Crossing
// liquidity fills at maker prices; any remainder rests unless the
// restriction forbids it. Returns the filled base and gross quote totals,
// whether a remainder was placed, and the new order id (zero when nothing
// rested).
func (p *Pool) PlaceLimitOrder(
	cap custodian.AccountCap,
	clientID, price, quantity uint64,
	policy SelfMatchingPolicy,
	isBid bool,
	expireTs uint64,
	restriction Restriction,
	nowMs uint64,
) (baseFilled, quoteFilled uint64, placed bool, orderID uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.verifyCap(cap); err != nil {
		return 0, 0, false, 0, err
	}
	if policy != CancelOldest {
		return 0, 0, false, 0, fmt.Errorf("self-matching policy %d: %w", policy, ErrInvalidRestriction)
	}
	if restriction > PostOrAbort {
		return 0, 0, false, 0, ErrInvalidRestriction
	}
	if err := p.validatePrice(price); err != nil {
		return 0, 0, false, 0, err
	}
	if err := p.validateQuantity(quantity); err != nil {
		return 0, 0, false, 0, err
	}
	if expireTs != book.NoExpiry && expireTs <= nowMs {
		return 0, 0, false, 0, ErrInvalidExpireTimestamp
	}

	if restriction == PostOrAbort {
		// Post-only orders never run the matching loop: any opposing
		// liquidity at or better than the price aborts.
		if isBid {
			if best, ok := p.book.BestAsk(); ok && best <= price {
				return 0, 0, false, 0, ErrPostOrAbortCrossed
			}
		} else {
			if best, ok := p.book.BestBid(); ok && best >= price {
				return 0, 0, false, 0, ErrPostOrAbortCrossed
			}
		}
		id, err := p.restOrder(cap.Owner, clientID, price, quantity, isBid, expireTs)
		if err != nil {
			return 0, 0, false, 0, err
		}
		return 0, 0, true, id, nil
	}

	plan, err := p.planMatch(matchRequest{
		taker:      cap.Owner,
		isBid:      isBid,
		limitPrice: price,
		quantity:   quantity,
		nowMs:      nowMs,
	})
	if err != nil {
		return 0, 0, false, 0, err
	}
	if restriction == FillOrKill && plan.remaining > 0 {
		return 0, 0, false, 0, fmt.Errorf("unfilled %d of %d: %w",
			plan.remaining, quantity, ErrFillOrKillNotSatisfied)
	}

	willRest := restriction == NoRestriction && plan.remaining > 0

	// Fund check before any mutation: taker cost plus resting margin must fit
	// in the available balance.
	if isBid {
		need := plan.quoteFilled + plan.fees
		if willRest {
			lock, ok := quoteUp(price, plan.remaining)
			if !ok {
				return 0, 0, false, 0, fmt.Errorf("bid margin overflow: %w", ErrInvalidQuantity)
			}
			need += lock
		}
		if p.ledger.Available(cap.Owner, custodian.Quote) < need {
			return 0, 0, false, 0, fmt.Errorf("quote needed %d: %w", need, ErrInsufficientBalance)
		}
	} else {
		need := plan.baseFilled
		if willRest {
			need += plan.remaining
		}
		if p.ledger.Available(cap.Owner, custodian.Base) < need {
			return 0, 0, false, 0, fmt.Errorf("base needed %d: %w", need, ErrInsufficientBalance)
		}
	}

	p.applyEvictions(&plan)
	p.applyFills(&plan, cap.Owner, clientID, isBid, true, nowMs)

	if willRest {
		id, err := p.restOrder(cap.Owner, clientID, price, plan.remaining, isBid, expireTs)
		if err != nil {
			// Funds were checked against the full plan; a failure here is an
			// accounting bug, not a caller error.
			panic(fmt.Sprintf("clob: rest after fund check failed: %v", err))
		}
		return plan.baseFilled, plan.quoteFilled, true, id, nil
	}
	return plan.baseFilled, plan.quoteFilled, false, 0, nil
}

// PlaceMarketOrder executes an immediate-or-cancel marketable order funded
// entirely from the supplied coins; it never rests. The returned coins carry
// the input value adjusted by fills and taker fees.
func (p *Pool) PlaceMarketOrder(
	cap custodian.AccountCap,
	clientID, quantity uint64,
	isBid bool,
	baseIn, quoteIn custodian.Coin,
	nowMs uint64,
) (baseOut, quoteOut custodian.Coin, err error) {
	baseOut, quoteOut, _, err = p.PlaceMarketOrderWithMetadata(cap, clientID, quantity, isBid, baseIn, quoteIn, nowMs)
	return baseOut, quoteOut, err
}

// PlaceMarketOrderWithMetadata additionally reports one record per fill.
func (p *Pool) PlaceMarketOrderWithMetadata(
	cap custodian.AccountCap,
	clientID, quantity uint64,
	isBid bool,
	baseIn, quoteIn custodian.Coin,
	nowMs uint64,
) (baseOut, quoteOut custodian.Coin, fills []Fill, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.verifyCap(cap); err != nil {
		return baseIn, quoteIn, nil, err
	}
	if baseIn.Asset != custodian.Base || quoteIn.Asset != custodian.Quote {
		return baseIn, quoteIn, nil, fmt.Errorf("market order: mismatched coins: %w", ErrInvalidQuantity)
	}
	if err := p.validateQuantity(quantity); err != nil {
		return baseIn, quoteIn, nil, err
	}

	limit := uint64(math.MaxUint64)
	if !isBid {
		limit = 0
		if baseIn.Amount < quantity {
			return baseIn, quoteIn, nil, fmt.Errorf("market sell of %d, coin %d: %w",
				quantity, baseIn.Amount, ErrInsufficientBalance)
		}
	}

	plan, err := p.planMatch(matchRequest{
		taker:      cap.Owner,
		isBid:      isBid,
		limitPrice: limit,
		quantity:   quantity,
		nowMs:      nowMs,
	})
	if err != nil {
		return baseIn, quoteIn, nil, err
	}

	if isBid {
		cost := plan.quoteFilled + plan.fees
		if quoteIn.Amount < cost {
			return baseIn, quoteIn, nil, fmt.Errorf("market buy costs %d, coin %d: %w",
				cost, quoteIn.Amount, ErrInsufficientBalance)
		}
		p.applyEvictions(&plan)
		fills = p.applyFills(&plan, cap.Owner, clientID, true, false, nowMs)
		baseOut = custodian.BaseCoin(baseIn.Amount + plan.baseFilled)
		quoteOut = custodian.QuoteCoin(quoteIn.Amount - cost)
		return baseOut, quoteOut, fills, nil
	}

	p.applyEvictions(&plan)
	fills = p.applyFills(&plan, cap.Owner, clientID, false, false, nowMs)
	baseOut = custodian.BaseCoin(baseIn.Amount - plan.baseFilled)
	quoteOut = custodian.QuoteCoin(quoteIn.Amount + plan.quoteFilled - plan.fees)
	return baseOut, quoteOut, fills, nil
}

// SwapExactBaseForQuote sells exactly quantity base from baseIn against the
// bid side, never resting. Returns the leftover base and the quote proceeds
// net of taker fees.
func (p *Pool) SwapExactBaseForQuote(
	cap custodian.AccountCap,
	clientID, quantity uint64,
	baseIn custodian.Coin,
	nowMs uint64,
) (baseOut, quoteOut custodian.Coin, err error) {
	baseOut, quoteOut, _, err = p.SwapExactBaseForQuoteWithMetadata(cap, clientID, quantity, baseIn, nowMs)
	return baseOut, quoteOut, err
}

// SwapExactBaseForQuoteWithMetadata additionally reports per-fill records.
func (p *Pool) SwapExactBaseForQuoteWithMetadata(
	cap custodian.AccountCap,
	clientID, quantity uint64,
	baseIn custodian.Coin,
	nowMs uint64,
) (baseOut, quoteOut custodian.Coin, fills []Fill, err error) {
	baseOut, quoteOut, fills, err = p.PlaceMarketOrderWithMetadata(
		cap, clientID, quantity, false, baseIn, custodian.QuoteCoin(0), nowMs)
	return baseOut, quoteOut, fills, err
}

// SwapExactQuoteForBase spends up to quantity quote from quoteIn buying base
// off the ask side, never resting. Matching converts the budget tick by tick,
// filling whole lots plus a final partial lot when the budget affords a
// fraction of one, and stops when it cannot buy a single base unit (fee
// included) at the best price. Returns the base bought and the unspent quote.
func (p *Pool) SwapExactQuoteForBase(
	cap custodian.AccountCap,
	clientID, quantity uint64,
	quoteIn custodian.Coin,
	nowMs uint64,
) (baseOut, quoteOut custodian.Coin, err error) {
	baseOut, quoteOut, _, err = p.SwapExactQuoteForBaseWithMetadata(cap, clientID, quantity, quoteIn, nowMs)
	return baseOut, quoteOut, err
}

// SwapExactQuoteForBaseWithMetadata additionally reports per-fill records.
func (p *Pool) SwapExactQuoteForBaseWithMetadata(
	cap custodian.AccountCap,
	clientID, quantity uint64,
	quoteIn custodian.Coin,
	nowMs uint64,
) (baseOut, quoteOut custodian.Coin, fills []Fill, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.verifyCap(cap); err != nil {
		return custodian.BaseCoin(0), quoteIn, nil, err
	}
	if quoteIn.Asset != custodian.Quote {
		return custodian.BaseCoin(0), quoteIn, nil, fmt.Errorf("swap: quote coin required: %w", ErrInvalidQuantity)
	}
	if quantity == 0 {
		return custodian.BaseCoin(0), quoteIn, nil, fmt.Errorf("swap: zero quote budget: %w", ErrInvalidQuantity)
	}
	if quoteIn.Amount < quantity {
		return custodian.BaseCoin(0), quoteIn, nil, fmt.Errorf("swap budget %d, coin %d: %w",
			quantity, quoteIn.Amount, ErrInsufficientBalance)
	}

	plan, err := p.planMatch(matchRequest{
		taker:      cap.Owner,
		isBid:      true,
		limitPrice: math.MaxUint64,
		quoteMode:  true,
		budget:     quantity,
		nowMs:      nowMs,
	})
	if err != nil {
		return custodian.BaseCoin(0), quoteIn, nil, err
	}

	p.applyEvictions(&plan)
	fills = p.applyFills(&plan, cap.Owner, clientID, true, false, nowMs)

	spent := quantity - plan.quoteLeft
	baseOut = custodian.BaseCoin(plan.baseFilled)
	quoteOut = custodian.QuoteCoin(quoteIn.Amount - spent)
	return baseOut, quoteOut, fills, nil
}
