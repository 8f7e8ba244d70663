package ledger

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceCache memoizes derived balances. Entries are only ever dropped, never
// adjusted: a balance is recomputed from the log after any append to its account.
type BalanceCache struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	gen      map[uuid.UUID]uint64
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		balances: make(map[uuid.UUID]decimal.Decimal),
		gen:      make(map[uuid.UUID]uint64),
	}
}

// lookup returns the cached balance, if any, and the account's generation to pass
// back to store.
func (c *BalanceCache) lookup(account uuid.UUID) (decimal.Decimal, bool, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[account]
	return b, ok, c.gen[account]
}

// store keeps a computed balance unless the account was invalidated since gen was read.
func (c *BalanceCache) store(account uuid.UUID, balance decimal.Decimal, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[account] != gen {
		return
	}
	c.balances[account] = balance
}

// Invalidate drops the cached balances of the given accounts.
func (c *BalanceCache) Invalidate(accounts ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range accounts {
		delete(c.balances, a)
		c.gen[a]++
	}
}

func (c *BalanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.balances)
}
