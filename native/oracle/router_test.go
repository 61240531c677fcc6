package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"musd/crypto"
	"musd/native/common"
)

var (
	testAdmin    = crypto.MustModuleAddress("oracle-test-admin")
	testStranger = crypto.MustModuleAddress("oracle-test-stranger")
)

func newTestRouter(t *testing.T, base time.Time) *Router {
	t.Helper()
	router := NewRouter(common.NewAuthority(testAdmin))
	router.now = func() time.Time { return base }
	return router
}

func dollars(amount int64) *big.Int {
	value := big.NewInt(amount)
	return value.Mul(value, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestRegisterFeedSeedsAcknowledged(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base)

	if err := router.RegisterFeed(testAdmin, "weth", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	acknowledged, err := router.LastAcknowledged("WETH")
	if err != nil {
		t.Fatalf("last acknowledged: %v", err)
	}
	if acknowledged.Cmp(dollars(2_000)) != 0 {
		t.Fatalf("unexpected seed %s", acknowledged)
	}
	if err := router.RegisterFeed(testAdmin, "WETH", feed, 5*time.Minute, 500); !errors.Is(err, ErrFeedAlreadyEnabled) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}

func TestRegisterFeedValidation(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base)

	if err := router.RegisterFeed(testStranger, "WETH", feed, time.Minute, 500); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := router.RegisterFeed(testAdmin, "WETH", feed, time.Minute, 50); !errors.Is(err, ErrDeviationBounds) {
		t.Fatalf("expected deviation bounds error for 50 bps, got %v", err)
	}
	if err := router.RegisterFeed(testAdmin, "WETH", feed, time.Minute, 6_000); !errors.Is(err, ErrDeviationBounds) {
		t.Fatalf("expected deviation bounds error for 6000 bps, got %v", err)
	}
}

func TestPriceRejectsStaleQuotes(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base.Add(-10*time.Minute))

	if err := router.RegisterFeed(testAdmin, "WETH", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	if _, err := router.Price("WETH"); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale error, got %v", err)
	}
	// Staleness applies to both paths; only the breaker is path-dependent.
	if _, err := router.PriceUnsafe("WETH"); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale error on unsafe path, got %v", err)
	}
}

func TestBreakerTripsOnDeviation(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base)

	if err := router.RegisterFeed(testAdmin, "WETH", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}

	// 25% crash, far past the 5% threshold.
	feed.Set(big.NewInt(1_500), 0, base)
	if _, err := router.Price("WETH"); !errors.Is(err, ErrCircuitBreakerActive) {
		t.Fatalf("expected breaker trip, got %v", err)
	}
	price, err := router.PriceUnsafe("WETH")
	if err != nil {
		t.Fatalf("unsafe price: %v", err)
	}
	if price.Cmp(dollars(1_500)) != 0 {
		t.Fatalf("unexpected unsafe price %s", price)
	}

	deviated, err := router.UpdatePrice(testAdmin, "WETH")
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if !deviated {
		t.Fatalf("expected deviated acknowledgement")
	}
	price, err = router.Price("WETH")
	if err != nil {
		t.Fatalf("price after acknowledgement: %v", err)
	}
	if price.Cmp(dollars(1_500)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestBreakerAllowsSmallMoves(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base)

	if err := router.RegisterFeed(testAdmin, "WETH", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	// 4% move stays inside the 5% threshold.
	feed.Set(big.NewInt(1_920), 0, base)
	if _, err := router.Price("WETH"); err != nil {
		t.Fatalf("price within threshold: %v", err)
	}
	// The acknowledged price does not advance on reads.
	acknowledged, err := router.LastAcknowledged("WETH")
	if err != nil {
		t.Fatalf("last acknowledged: %v", err)
	}
	if acknowledged.Cmp(dollars(2_000)) != 0 {
		t.Fatalf("acknowledged price advanced to %s", acknowledged)
	}
}

func TestNormalizePriceDecimals(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	// 2000 USD expressed with 8 feed decimals.
	feed.Set(new(big.Int).Mul(big.NewInt(2_000), big.NewInt(100_000_000)), 8, base)

	if err := router.RegisterFeed(testAdmin, "WBTC", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	price, err := router.Price("WBTC")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(dollars(2_000)) != 0 {
		t.Fatalf("unexpected normalized price %s", price)
	}
}

func TestValueUSDScalesAssetDecimals(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base)

	if err := router.RegisterFeed(testAdmin, "WETH", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	// 1.5 units of an 18-decimal asset at 2000 USD.
	amount := new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	value, err := router.ValueUSD("WETH", amount, 18)
	if err != nil {
		t.Fatalf("value usd: %v", err)
	}
	if value.Cmp(dollars(3_000)) != 0 {
		t.Fatalf("unexpected value %s", value)
	}
}

func TestSetFeedEnabledPreservesAcknowledged(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	router := newTestRouter(t, base)
	feed := NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, base)

	if err := router.RegisterFeed(testAdmin, "WETH", feed, 5*time.Minute, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	if err := router.SetFeedEnabled(testAdmin, "WETH", false); err != nil {
		t.Fatalf("disable feed: %v", err)
	}
	if _, err := router.Price("WETH"); !errors.Is(err, ErrFeedNotEnabled) {
		t.Fatalf("expected disabled feed error, got %v", err)
	}
	if err := router.SetFeedEnabled(testAdmin, "WETH", true); err != nil {
		t.Fatalf("re-enable feed: %v", err)
	}
	acknowledged, err := router.LastAcknowledged("WETH")
	if err != nil {
		t.Fatalf("last acknowledged: %v", err)
	}
	if acknowledged.Cmp(dollars(2_000)) != 0 {
		t.Fatalf("acknowledged price lost across disable, got %s", acknowledged)
	}
}
