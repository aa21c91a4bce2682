package clob

import (
	"fmt"
	"sync"

	"github.com/deepdex/deepdex/pkg/clob/custodian"
)

// Registry holds every live pool keyed by symbol. Operations on different
// pools proceed concurrently; each pool serializes its own operations.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// CreatePool creates and registers a pool, returning it together with the
// owner capability that gates fee withdrawal.
func (r *Registry) CreatePool(params Params, opts ...Option) (*Pool, custodian.PoolOwnerCap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[params.Symbol]; exists {
		return nil, custodian.PoolOwnerCap{}, fmt.Errorf("pool %s already registered", params.Symbol)
	}
	pool, ownerCap, err := NewPool(params, opts...)
	if err != nil {
		return nil, custodian.PoolOwnerCap{}, err
	}
	r.pools[params.Symbol] = pool
	return pool, ownerCap, nil
}

// Register adds an existing pool, e.g. one restored from storage.
func (r *Registry) Register(pool *Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbol := pool.Params().Symbol
	if _, exists := r.pools[symbol]; exists {
		return fmt.Errorf("pool %s already registered", symbol)
	}
	r.pools[symbol] = pool
	return nil
}

// Pool looks a pool up by symbol.
func (r *Registry) Pool(symbol string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool, ok := r.pools[symbol]
	if !ok {
		return nil, fmt.Errorf("pool %s not found", symbol)
	}
	return pool, nil
}

// List returns all registered pools.
func (r *Registry) List() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pool, 0, len(r.pools))
	for _, pool := range r.pools {
		out = append(out, pool)
	}
	return out
}

// Count returns the number of registered pools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
