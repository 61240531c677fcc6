package oracle

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"musd/crypto"
	"musd/native/common"
	"musd/observability/metrics"
)

var (
	ErrFeedNotEnabled       = errors.New("oracle: price feed not enabled")
	ErrFeedAlreadyEnabled   = errors.New("oracle: price feed already registered")
	ErrInvalidPrice         = errors.New("oracle: feed price must be positive")
	ErrStalePrice           = errors.New("oracle: feed price is stale")
	ErrCircuitBreakerActive = errors.New("oracle: deviation circuit breaker active")
	ErrDeviationBounds      = errors.New("oracle: deviation threshold out of bounds")
)

var basisPoints = big.NewInt(10_000)

// priceDecimals is the internal fixed-point precision every feed is
// normalized to before any downstream arithmetic.
const priceDecimals = 18

// Deviation thresholds are administratively bounded to [1%, 50%].
const (
	minDeviationBps = 100
	maxDeviationBps = 5_000
)

type feedEntry struct {
	feed           Feed
	enabled        bool
	lastAccepted   *big.Int
	maxAge         time.Duration
	deviationBps   uint64
	breakerEnabled bool
}

// Router wraps per-asset feeds with staleness detection and a deviation
// circuit breaker. Safe reads refuse to act on a price that jumped too far
// from the last acknowledged one; the unsafe path exists for callers, chiefly
// liquidation, that must never be blocked by the breaker.
type Router struct {
	mu        sync.RWMutex
	admin     *common.Authority
	feeds     map[string]*feedEntry
	now       func() time.Time
	telemetry *metrics.RiskMetrics
}

// NewRouter constructs a router whose privileged operations are gated by the
// supplied authority set.
func NewRouter(admin *common.Authority) *Router {
	return &Router{
		admin:     admin,
		feeds:     make(map[string]*feedEntry),
		now:       time.Now,
		telemetry: metrics.Risk(),
	}
}

func normalizeSymbol(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// RegisterFeed wires a feed for the asset and seeds the acknowledged price
// from a live read so the first safe read cannot spuriously trip the breaker.
func (r *Router) RegisterFeed(caller crypto.Address, asset string, feed Feed, maxAge time.Duration, deviationBps uint64) error {
	if r == nil {
		return ErrFeedNotEnabled
	}
	if err := r.admin.Require(caller); err != nil {
		return err
	}
	if deviationBps < minDeviationBps || deviationBps > maxDeviationBps {
		return ErrDeviationBounds
	}
	symbol := normalizeSymbol(asset)
	if symbol == "" || feed == nil {
		return ErrFeedNotEnabled
	}
	quote, err := feed.Latest()
	if err != nil {
		return err
	}
	seed, err := normalizePrice(quote)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.feeds[symbol]; exists {
		return ErrFeedAlreadyEnabled
	}
	r.feeds[symbol] = &feedEntry{
		feed:           feed,
		enabled:        true,
		lastAccepted:   seed,
		maxAge:         maxAge,
		deviationBps:   deviationBps,
		breakerEnabled: true,
	}
	return nil
}

// SetFeedEnabled flips the active flag without discarding the entry, so the
// acknowledged price survives a temporary disable.
func (r *Router) SetFeedEnabled(caller crypto.Address, asset string, enabled bool) error {
	if err := r.admin.Require(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.feeds[normalizeSymbol(asset)]
	if !ok {
		return ErrFeedNotEnabled
	}
	entry.enabled = enabled
	return nil
}

// SetMaxDeviation updates the breaker threshold within the allowed bounds.
func (r *Router) SetMaxDeviation(caller crypto.Address, asset string, deviationBps uint64) error {
	if err := r.admin.Require(caller); err != nil {
		return err
	}
	if deviationBps < minDeviationBps || deviationBps > maxDeviationBps {
		return ErrDeviationBounds
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.feeds[normalizeSymbol(asset)]
	if !ok {
		return ErrFeedNotEnabled
	}
	entry.deviationBps = deviationBps
	return nil
}

// SetBreakerEnabled toggles deviation enforcement on the safe read path.
func (r *Router) SetBreakerEnabled(caller crypto.Address, asset string, enabled bool) error {
	if err := r.admin.Require(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.feeds[normalizeSymbol(asset)]
	if !ok {
		return ErrFeedNotEnabled
	}
	entry.breakerEnabled = enabled
	return nil
}

// SetMaxAge updates the staleness window for the asset.
func (r *Router) SetMaxAge(caller crypto.Address, asset string, maxAge time.Duration) error {
	if err := r.admin.Require(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.feeds[normalizeSymbol(asset)]
	if !ok {
		return ErrFeedNotEnabled
	}
	entry.maxAge = maxAge
	return nil
}

// Price returns the normalized live price, enforcing validity, staleness and
// the deviation breaker. It never advances the acknowledged price.
func (r *Router) Price(asset string) (*big.Int, error) {
	return r.read(asset, true)
}

// PriceUnsafe returns the normalized live price with the same validity and
// staleness checks but never fails on deviation. Blocking liquidation during
// a real crash is worse for solvency than proceeding during a feed glitch.
func (r *Router) PriceUnsafe(asset string) (*big.Int, error) {
	return r.read(asset, false)
}

func (r *Router) read(asset string, enforceBreaker bool) (*big.Int, error) {
	if r == nil {
		return nil, ErrFeedNotEnabled
	}
	symbol := normalizeSymbol(asset)
	r.mu.RLock()
	entry, ok := r.feeds[symbol]
	if !ok || !entry.enabled {
		r.mu.RUnlock()
		return nil, ErrFeedNotEnabled
	}
	feed := entry.feed
	maxAge := entry.maxAge
	breaker := entry.breakerEnabled
	deviationBps := entry.deviationBps
	var acknowledged *big.Int
	if entry.lastAccepted != nil {
		acknowledged = new(big.Int).Set(entry.lastAccepted)
	}
	r.mu.RUnlock()

	quote, err := feed.Latest()
	if err != nil {
		return nil, err
	}
	price, err := normalizePrice(quote)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && r.now().Sub(quote.UpdatedAt) > maxAge {
		r.telemetry.ObserveStaleRejection(symbol)
		return nil, ErrStalePrice
	}
	if enforceBreaker && breaker && acknowledged != nil && acknowledged.Sign() > 0 {
		if deviationExceeds(price, acknowledged, deviationBps) {
			r.telemetry.ObserveBreakerTrip(symbol)
			return nil, ErrCircuitBreakerActive
		}
	}
	return price, nil
}

// UpdatePrice re-reads the feed and advances the acknowledged price
// unconditionally. The returned flag reports whether the update itself was a
// large deviation, letting operators alert on the step without blocking it.
func (r *Router) UpdatePrice(caller crypto.Address, asset string) (bool, error) {
	if err := r.admin.Require(caller); err != nil {
		return false, err
	}
	symbol := normalizeSymbol(asset)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.feeds[symbol]
	if !ok || !entry.enabled {
		return false, ErrFeedNotEnabled
	}
	quote, err := entry.feed.Latest()
	if err != nil {
		return false, err
	}
	price, err := normalizePrice(quote)
	if err != nil {
		return false, err
	}
	deviated := false
	if entry.lastAccepted != nil && entry.lastAccepted.Sign() > 0 {
		deviated = deviationExceeds(price, entry.lastAccepted, entry.deviationBps)
	}
	entry.lastAccepted = price
	return deviated, nil
}

// ResetLastKnownPrice force-syncs the acknowledged price from the live feed.
func (r *Router) ResetLastKnownPrice(caller crypto.Address, asset string) error {
	_, err := r.UpdatePrice(caller, asset)
	return err
}

// LastAcknowledged exposes the acknowledged price for monitoring surfaces.
func (r *Router) LastAcknowledged(asset string) (*big.Int, error) {
	if r == nil {
		return nil, ErrFeedNotEnabled
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.feeds[normalizeSymbol(asset)]
	if !ok || entry.lastAccepted == nil {
		return nil, ErrFeedNotEnabled
	}
	return new(big.Int).Set(entry.lastAccepted), nil
}

// ValueUSD converts an asset amount to its USD value in 1e18 fixed point
// using the safe price path.
func (r *Router) ValueUSD(asset string, amount *big.Int, assetDecimals uint8) (*big.Int, error) {
	price, err := r.Price(asset)
	if err != nil {
		return nil, err
	}
	return scaleValue(price, amount, assetDecimals), nil
}

// ValueUSDUnsafe converts an asset amount to USD using the unsafe price path.
func (r *Router) ValueUSDUnsafe(asset string, amount *big.Int, assetDecimals uint8) (*big.Int, error) {
	price, err := r.PriceUnsafe(asset)
	if err != nil {
		return nil, err
	}
	return scaleValue(price, amount, assetDecimals), nil
}

func scaleValue(price, amount *big.Int, assetDecimals uint8) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(price, amount)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(assetDecimals)), nil)
	return value.Quo(value, scale)
}

func normalizePrice(quote Quote) (*big.Int, error) {
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	price := new(big.Int).Set(quote.Price)
	switch {
	case quote.Decimals < priceDecimals:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(priceDecimals-quote.Decimals)), nil)
		price.Mul(price, shift)
	case quote.Decimals > priceDecimals:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quote.Decimals-priceDecimals)), nil)
		price.Quo(price, shift)
	}
	if price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	return price, nil
}

// deviationExceeds reports whether price moved more than thresholdBps away
// from the acknowledged reference, symmetric in both directions.
func deviationExceeds(price, reference *big.Int, thresholdBps uint64) bool {
	if reference == nil || reference.Sign() == 0 {
		return false
	}
	diff := new(big.Int).Sub(price, reference)
	diff.Abs(diff)
	diff.Mul(diff, basisPoints)
	limit := new(big.Int).Mul(reference, new(big.Int).SetUint64(thresholdBps))
	return diff.Cmp(limit) > 0
}
