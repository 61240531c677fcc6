package liquidation

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"musd/crypto"
	"musd/native/borrow"
	"musd/native/collateral"
	"musd/native/common"
	"musd/native/oracle"
	"musd/storage"
)

var (
	testAdmin      = crypto.MustModuleAddress("liq-test-admin")
	testBorrower   = crypto.MustModuleAddress("liq-test-borrower")
	testLiquidator = crypto.MustModuleAddress("liq-test-liquidator")
	borrowAddr     = crypto.MustModuleAddress("borrow")
	liqAddr        = crypto.MustModuleAddress("liquidation")
)

type mockToken struct {
	balances map[string]*big.Int
}

func newMockToken() *mockToken {
	return &mockToken{balances: make(map[string]*big.Int)}
}

func (m *mockToken) balanceOf(addr crypto.Address) *big.Int {
	balance, ok := m.balances[string(addr.Bytes())]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockToken) credit(addr crypto.Address, amount *big.Int) {
	m.balances[string(addr.Bytes())] = new(big.Int).Add(m.balanceOf(addr), amount)
}

func (m *mockToken) Mint(to crypto.Address, amount *big.Int) error {
	m.credit(to, amount)
	return nil
}

func (m *mockToken) Burn(from crypto.Address, amount *big.Int) error {
	balance := m.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return errors.New("mock token: insufficient balance")
	}
	m.balances[string(from.Bytes())] = balance.Sub(balance, amount)
	return nil
}

type liquidationEnv struct {
	engine *Engine
	debt   *borrow.Engine
	ledger *collateral.Ledger
	feed   *oracle.ManualFeed
	token  *mockToken
	pauses *common.PauseSet
}

func dollars(amount int64) *big.Int {
	value := big.NewInt(amount)
	return value.Mul(value, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func weth(amount int64) *big.Int {
	return dollars(amount)
}

// newLiquidationEnv wires the real collateral ledger, price router and debt
// engine, then puts the borrower at exactly full capacity: 10 WETH at 2000
// USD backing a 16000 debt.
func newLiquidationEnv(t *testing.T) *liquidationEnv {
	t.Helper()
	authority := common.NewAuthority(testAdmin)

	ledger := collateral.NewLedger(authority)
	ledger.SetState(collateral.NewStore(storage.NewMemDB()))
	if err := ledger.AddAsset(testAdmin, collateral.AssetConfig{
		Symbol:                  "WETH",
		Enabled:                 true,
		BorrowFactorBps:         8_000,
		LiquidationThresholdBps: 8_500,
		LiquidationPenaltyBps:   500,
		Decimals:                18,
	}); err != nil {
		t.Fatalf("add asset: %v", err)
	}

	router := oracle.NewRouter(authority)
	feed := oracle.NewManualFeed()
	feed.Set(big.NewInt(2_000), 0, time.Now())
	if err := router.RegisterFeed(testAdmin, "WETH", feed, time.Hour, 500); err != nil {
		t.Fatalf("register feed: %v", err)
	}

	token := newMockToken()
	pauses := common.NewPauseSet()

	debt := borrow.NewEngine(borrowAddr, authority)
	debt.SetState(borrow.NewStore(storage.NewMemDB()))
	debt.SetToken(token)
	debt.SetPriceRouter(router)
	debt.SetCollateralLedger(ledger)
	debt.SetPauses(pauses)

	engine := NewEngine(liqAddr, authority)
	engine.SetDebtLedger(debt)
	engine.SetCollateralLedger(ledger)
	engine.SetPriceRouter(router)
	engine.SetToken(token)

	if err := ledger.AuthorizeMover(testAdmin, liqAddr); err != nil {
		t.Fatalf("authorize mover: %v", err)
	}
	if err := debt.AuthorizeLiquidator(testAdmin, liqAddr); err != nil {
		t.Fatalf("authorize liquidator: %v", err)
	}

	if err := ledger.Deposit(testBorrower, "WETH", weth(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := debt.Borrow(testBorrower, dollars(16_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	token.credit(testLiquidator, dollars(20_000))

	return &liquidationEnv{
		engine: engine,
		debt:   debt,
		ledger: ledger,
		feed:   feed,
		token:  token,
		pauses: pauses,
	}
}

func (env *liquidationEnv) crashPrice(t *testing.T, price int64) {
	t.Helper()
	env.feed.Set(big.NewInt(price), 0, time.Now())
}

func TestLiquidateUnderwaterPosition(t *testing.T) {
	env := newLiquidationEnv(t)
	// 2000 -> 1500 trips the breaker, yet liquidation proceeds on the unsafe
	// path. Weighted collateral 12750 against 16000 debt: HF 0.79.
	env.crashPrice(t, 1_500)

	event, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(8_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if event.Repaid.Cmp(dollars(8_000)) != 0 {
		t.Fatalf("unexpected repaid %s", event.Repaid)
	}
	// 8000 repaid at a 5% penalty over a 1500 price: 5.6 WETH.
	wantSeized := new(big.Int).Mul(big.NewInt(56), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	if event.Seized.Cmp(wantSeized) != 0 {
		t.Fatalf("unexpected seized %s, want %s", event.Seized, wantSeized)
	}

	seized, err := env.ledger.BalanceOf(testLiquidator, "WETH")
	if err != nil {
		t.Fatalf("liquidator balance: %v", err)
	}
	if seized.Cmp(wantSeized) != 0 {
		t.Fatalf("collateral not transferred, got %s", seized)
	}
	remaining, err := env.debt.AccountDebt(testBorrower)
	if err != nil {
		t.Fatalf("account debt: %v", err)
	}
	if remaining.Cmp(dollars(8_000)) != 0 {
		t.Fatalf("unexpected remaining debt %s", remaining)
	}
	if got := env.token.balanceOf(testLiquidator); got.Cmp(dollars(12_000)) != 0 {
		t.Fatalf("repayment not burned, liquidator holds %s", got)
	}

	events := env.engine.RecentEvents()
	if len(events) != 1 || events[0].ID != event.ID {
		t.Fatalf("event not recorded")
	}
}

func TestLiquidateHealthyPosition(t *testing.T) {
	env := newLiquidationEnv(t)
	// Small dip: weighted collateral 16150 still covers the 16000 debt.
	env.crashPrice(t, 1_900)
	if _, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(1_000)); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("expected healthy position error, got %v", err)
	}
}

func TestCloseFactorLimitsPartialLiquidation(t *testing.T) {
	env := newLiquidationEnv(t)
	env.crashPrice(t, 1_500)

	// HF 0.79 sits above the 0.5 full-liquidation threshold, so at most half
	// of the 16000 debt may be repaid per call.
	if _, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(8_001)); !errors.Is(err, ErrExceedsCloseFactor) {
		t.Fatalf("expected close factor error, got %v", err)
	}
	if _, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(8_000)); err != nil {
		t.Fatalf("liquidate at close factor: %v", err)
	}
}

func TestDeepUnderwaterAllowsFullLiquidation(t *testing.T) {
	env := newLiquidationEnv(t)
	// Weighted collateral 5950 against 16000 debt: HF 0.37, below the full
	// threshold, so the close factor no longer applies.
	env.crashPrice(t, 700)

	event, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(16_000))
	if err != nil {
		t.Fatalf("full liquidation: %v", err)
	}
	if event.Repaid.Cmp(dollars(16_000)) != 0 {
		t.Fatalf("unexpected repaid %s", event.Repaid)
	}
	remaining, err := env.debt.AccountDebt(testBorrower)
	if err != nil {
		t.Fatalf("account debt: %v", err)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("expected zero debt, got %s", remaining)
	}
}

func TestSeizeCappedAtBorrowerBalance(t *testing.T) {
	env := newLiquidationEnv(t)
	// At 100 USD the penalty-priced seize for 16000 repaid would be 168 WETH;
	// the borrower only holds 10.
	env.crashPrice(t, 100)

	event, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(16_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if event.Seized.Cmp(weth(10)) != 0 {
		t.Fatalf("expected seize capped at 10 WETH, got %s", event.Seized)
	}
}

func TestSelfLiquidationRefused(t *testing.T) {
	env := newLiquidationEnv(t)
	env.crashPrice(t, 1_500)
	env.token.credit(testBorrower, dollars(8_000))
	if _, err := env.engine.Liquidate(testBorrower, testBorrower, "WETH", dollars(8_000)); !errors.Is(err, ErrCannotSelfLiquidate) {
		t.Fatalf("expected self-liquidation error, got %v", err)
	}
}

func TestLiquidateAssetNotHeld(t *testing.T) {
	env := newLiquidationEnv(t)
	if err := env.ledger.AddAsset(testAdmin, collateral.AssetConfig{
		Symbol:                  "WBTC",
		Enabled:                 true,
		BorrowFactorBps:         7_000,
		LiquidationThresholdBps: 7_500,
		LiquidationPenaltyBps:   800,
		Decimals:                8,
	}); err != nil {
		t.Fatalf("add asset: %v", err)
	}
	env.crashPrice(t, 1_500)
	if _, err := env.engine.Liquidate(testLiquidator, testBorrower, "WBTC", dollars(1_000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral error, got %v", err)
	}
}

func TestLiquidationProceedsWhileBorrowPaused(t *testing.T) {
	env := newLiquidationEnv(t)
	env.crashPrice(t, 1_500)
	// Pausing user-facing modules must never block deleveraging.
	env.pauses.SetPaused("borrow", true)
	env.pauses.SetPaused("liquidation", true)
	event, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(8_000))
	if err != nil {
		t.Fatalf("liquidate while paused: %v", err)
	}
	if event.Repaid.Cmp(dollars(8_000)) != 0 {
		t.Fatalf("unexpected repaid %s", event.Repaid)
	}
}

func TestRecentEventsConcurrentWithLiquidation(t *testing.T) {
	env := newLiquidationEnv(t)
	env.crashPrice(t, 1_500)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			env.engine.RecentEvents()
		}
	}()
	if _, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", dollars(8_000)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	<-done

	if events := env.engine.RecentEvents(); len(events) != 1 {
		t.Fatalf("expected one recorded event, got %d", len(events))
	}
}

func TestDustRepayLeavesStateUntouched(t *testing.T) {
	env := newLiquidationEnv(t)
	env.crashPrice(t, 1_500)

	// 1000 wei of repay prices to less than one collateral unit; the call
	// must refuse before burning or writing down debt.
	if _, err := env.engine.Liquidate(testLiquidator, testBorrower, "WETH", big.NewInt(1_000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral error, got %v", err)
	}

	remaining, err := env.debt.AccountDebt(testBorrower)
	if err != nil {
		t.Fatalf("account debt: %v", err)
	}
	if remaining.Cmp(dollars(16_000)) != 0 {
		t.Fatalf("debt changed on failed liquidation: %s", remaining)
	}
	if got := env.token.balanceOf(testLiquidator); got.Cmp(dollars(20_000)) != 0 {
		t.Fatalf("repayment burned on failed liquidation, liquidator holds %s", got)
	}
	balance, err := env.ledger.BalanceOf(testBorrower, "WETH")
	if err != nil {
		t.Fatalf("borrower balance: %v", err)
	}
	if balance.Cmp(weth(10)) != 0 {
		t.Fatalf("collateral moved on failed liquidation: %s", balance)
	}
}
