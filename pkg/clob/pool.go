package clob

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepdex/deepdex/pkg/clob/book"
	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

// Pool is one trading pair: an order book, its custodian ledger, the fee
// accumulator, and the account capabilities registered against it. All
// exported operations serialize on the pool mutex and either complete fully
// or fail with zero state change (ordinary limit orders may partially fill
// and rest, which is their contract, not a partial failure).
type Pool struct {
	mu sync.Mutex

	id         uuid.UUID
	params     Params
	ownerToken [32]byte

	book   *book.Book
	ledger *custodian.Ledger
	caps   map[common.Address][32]byte

	// Independent monotonic sequences per side; the id high bit carries the
	// side so cancellation decodes it without a lookup.
	nextBidSeq uint64
	nextAskSeq uint64

	feeBalance uint64 // quote units retained by the protocol

	log  *zap.Logger
	sink TradeSink
}

type Option func(*Pool)

func WithLogger(log *zap.Logger) Option { return func(p *Pool) { p.log = log } }
func WithTradeSink(sink TradeSink) Option {
	return func(p *Pool) { p.sink = sink }
}

// NewPool creates a pool and mints the capability that gates fee withdrawal.
// Configuration is fixed for the pool's lifetime.
func NewPool(params Params, opts ...Option) (*Pool, custodian.PoolOwnerCap, error) {
	if err := params.Validate(); err != nil {
		return nil, custodian.PoolOwnerCap{}, err
	}
	p := &Pool{
		id:         uuid.New(),
		params:     params,
		book:       book.New(),
		ledger:     custodian.NewLedger(),
		caps:       make(map[common.Address][32]byte),
		nextBidSeq: 1,
		nextAskSeq: 1,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	ownerCap, err := custodian.IssuePoolOwnerCap(p.id)
	if err != nil {
		return nil, custodian.PoolOwnerCap{}, err
	}
	p.ownerToken = ownerCap.Token
	p.log.Info("pool_created",
		zap.String("pool", p.id.String()),
		zap.String("symbol", params.Symbol),
		zap.Uint64("tick_size", params.TickSize),
		zap.Uint64("lot_size", params.LotSize),
		zap.Uint64("taker_fee_rate", params.TakerFeeRate),
		zap.Uint64("maker_rebate_rate", params.MakerRebateRate))
	return p, ownerCap, nil
}

func (p *Pool) ID() uuid.UUID  { return p.id }
func (p *Pool) Params() Params { return p.params }

// CreateAccount mints and registers the capability for an account. One
// capability per account; subsequent calls fail.
func (p *Pool) CreateAccount(owner common.Address) (custodian.AccountCap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.caps[owner]; exists {
		return custodian.AccountCap{}, fmt.Errorf("account %s already registered", owner.Hex())
	}
	cap, err := custodian.IssueAccountCap(owner)
	if err != nil {
		return custodian.AccountCap{}, err
	}
	p.caps[owner] = cap.Token
	return cap, nil
}

// verifyCap holds the pool to the capability contract: the token must equal
// the one issued for the account, compared in constant time.
func (p *Pool) verifyCap(cap custodian.AccountCap) error {
	token, ok := p.caps[cap.Owner]
	if !ok || subtle.ConstantTimeCompare(token[:], cap.Token[:]) != 1 {
		return ErrIncorrectCapability
	}
	return nil
}

// DepositBase credits a base coin to the account's available balance.
func (p *Pool) DepositBase(cap custodian.AccountCap, coin custodian.Coin) error {
	return p.deposit(cap, coin, custodian.Base)
}

// DepositQuote credits a quote coin to the account's available balance.
func (p *Pool) DepositQuote(cap custodian.AccountCap, coin custodian.Coin) error {
	return p.deposit(cap, coin, custodian.Quote)
}

func (p *Pool) deposit(cap custodian.AccountCap, coin custodian.Coin, asset custodian.Asset) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.verifyCap(cap); err != nil {
		return err
	}
	if coin.Asset != asset {
		return fmt.Errorf("deposit: %s coin required: %w", asset, ErrInvalidQuantity)
	}
	p.ledger.Deposit(cap.Owner, coin)
	p.log.Debug("deposit",
		zap.String("account", cap.Owner.Hex()),
		zap.String("asset", asset.String()),
		zap.Uint64("amount", coin.Amount))
	return nil
}

// WithdrawBase moves base from available balance into a coin for the caller.
func (p *Pool) WithdrawBase(cap custodian.AccountCap, amount uint64) (custodian.Coin, error) {
	return p.withdraw(cap, custodian.Base, amount)
}

// WithdrawQuote moves quote from available balance into a coin for the caller.
func (p *Pool) WithdrawQuote(cap custodian.AccountCap, amount uint64) (custodian.Coin, error) {
	return p.withdraw(cap, custodian.Quote, amount)
}

func (p *Pool) withdraw(cap custodian.AccountCap, asset custodian.Asset, amount uint64) (custodian.Coin, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.verifyCap(cap); err != nil {
		return custodian.Coin{}, err
	}
	coin, err := p.ledger.Withdraw(cap.Owner, asset, amount)
	if err != nil {
		return custodian.Coin{}, err
	}
	p.log.Debug("withdraw",
		zap.String("account", cap.Owner.Hex()),
		zap.String("asset", asset.String()),
		zap.Uint64("amount", amount))
	return coin, nil
}

// WithdrawFees hands the accumulated protocol fees to the pool owner.
// Only the capability minted at pool creation is accepted.
func (p *Pool) WithdrawFees(ownerCap custodian.PoolOwnerCap) (custodian.Coin, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ownerCap.PoolID != p.id ||
		subtle.ConstantTimeCompare(ownerCap.Token[:], p.ownerToken[:]) != 1 {
		return custodian.Coin{}, ErrIncorrectCapability
	}
	coin := custodian.QuoteCoin(p.feeBalance)
	p.feeBalance = 0
	p.log.Info("fees_withdrawn",
		zap.String("pool", p.id.String()),
		zap.Uint64("amount", coin.Amount))
	return coin, nil
}

// Stat returns the pool configuration and running totals.
func (p *Pool) Stat() PoolStat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStat{
		ID:         p.id,
		Params:     p.params,
		FeeBalance: p.feeBalance,
		OpenOrders: p.book.Len(),
		NextBidSeq: p.nextBidSeq,
		NextAskSeq: p.nextAskSeq,
	}
}

// validatePrice enforces the tick grid.
func (p *Pool) validatePrice(price uint64) error {
	if price == 0 || price%p.params.TickSize != 0 {
		return fmt.Errorf("price %d, tick %d: %w", price, p.params.TickSize, ErrInvalidPrice)
	}
	return nil
}

// validateQuantity enforces the lot grid and minimum size.
func (p *Pool) validateQuantity(qty uint64) error {
	if qty == 0 || qty%p.params.LotSize != 0 || qty < p.params.MinSize {
		return fmt.Errorf("quantity %d, lot %d, min %d: %w",
			qty, p.params.LotSize, p.params.MinSize, ErrInvalidQuantity)
	}
	return nil
}

// mustLedger panics on a ledger failure during the apply phase. The planning
// pass validated every movement, so a failure here is a broken invariant,
// not a caller error.
func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("clob: ledger invariant violated: %v", err))
	}
}
