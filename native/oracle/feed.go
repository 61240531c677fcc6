package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

// Quote is a single observation reported by an upstream price feed. Price is
// expressed in the feed's own decimals; the router normalizes it before use.
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Decimals: q.Decimals, UpdatedAt: q.UpdatedAt}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// Feed resolves the latest observation for a single asset. Implementations
// wrap whatever feed network the deployment consumes; the router only relies
// on this contract.
type Feed interface {
	Latest() (Quote, error)
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	quote Quote
	set   bool
}

func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the provided observation.
func (f *ManualFeed) Set(price *big.Int, decimals uint8, ts time.Time) {
	if f == nil || price == nil {
		return
	}
	f.mu.Lock()
	f.quote = Quote{Price: new(big.Int).Set(price), Decimals: decimals, UpdatedAt: ts}
	f.set = true
	f.mu.Unlock()
}

var errNoObservation = errors.New("oracle: manual feed has no observation")

// Latest returns the stored observation.
func (f *ManualFeed) Latest() (Quote, error) {
	if f == nil {
		return Quote{}, errNoObservation
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return Quote{}, errNoObservation
	}
	return f.quote.Clone(), nil
}
