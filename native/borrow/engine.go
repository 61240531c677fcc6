package borrow

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"musd/crypto"
	"musd/native/collateral"
	"musd/native/common"
	"musd/native/oracle"
	"musd/observability/metrics"
)

var (
	errNilState                 = errors.New("borrow: state not configured")
	errNotWired                 = errors.New("borrow: collaborator modules not wired")
	ErrInvalidAmount            = errors.New("borrow: amount must be positive")
	ErrBelowMinDebt             = errors.New("borrow: resulting debt below protocol minimum")
	ErrExceedsBorrowCapacity    = errors.New("borrow: exceeds borrow capacity")
	ErrNoDebt                   = errors.New("borrow: no outstanding debt")
	ErrWithdrawalWouldLiquidate = errors.New("borrow: withdrawal would leave position unhealthy")
	ErrExceedsReserves          = errors.New("borrow: amount exceeds accrued reserves")
	ErrReserveMintBlocked       = errors.New("borrow: reserve withdrawal blocked by token supply cap")
	ErrRateBounds               = errors.New("borrow: rate out of bounds")
	ErrReserveShareBounds       = errors.New("borrow: reserve share out of bounds")
)

const moduleName = "borrow"

// maxFixedRateBps bounds the administratively settable fixed rate to 100% APR.
const maxFixedRateBps = 10_000

// maxHealthFactor is the sentinel returned for debt-free positions.
var maxHealthFactor = new(big.Int).SetUint64(math.MaxUint64)

// Token is the stable-token collaborator. Mint may fail on a supply cap or a
// compliance block; Burn requires prior allowance. The engine never assumes
// either succeeds.
type Token interface {
	Mint(to crypto.Address, amount *big.Int) error
	Burn(from crypto.Address, amount *big.Int) error
}

// YieldRouter forwards the staker share of newly accrued interest to the
// yield-distribution collaborator. The call may fail; the engine absorbs the
// failure into reserves rather than failing the caller's operation.
type YieldRouter interface {
	ReceiveInterest(amount *big.Int) error
}

type engineState interface {
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(pos *Position) error
	DeletePosition(addr crypto.Address) error
	GetGlobal() (*GlobalLedger, error)
	PutGlobal(global *GlobalLedger) error
}

// Engine is the debt ledger: it extends synthetic-dollar debt against
// deposited collateral, accrues interest on every mutating call and
// re-validates the health factor on every debt or collateral change.
type Engine struct {
	state         engineState
	moduleAddress crypto.Address
	admin         *common.Authority
	delegates     *common.Authority
	liquidators   *common.Authority
	token         Token
	vault         YieldRouter
	prices        *oracle.Router
	collateral    *collateral.Ledger

	rateBps         uint64
	rateModel       RateModel
	supplyCap       *big.Int
	minDebt         *big.Int
	reserveShareBps uint64

	pauses    common.PauseView
	entry     *common.OpLock
	now       func() time.Time
	telemetry *metrics.RiskMetrics
	log       *slog.Logger
}

// NewEngine constructs a debt ledger identified by the supplied module
// address and gated by the admin authority set.
func NewEngine(moduleAddr crypto.Address, admin *common.Authority) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		admin:         admin,
		delegates:     common.NewAuthority(),
		liquidators:   common.NewAuthority(),
		minDebt:       big.NewInt(0),
		entry:         common.NewOpLock(),
		now:           time.Now,
		telemetry:     metrics.Risk(),
		log:           slog.Default(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken wires the stable-token collaborator.
func (e *Engine) SetToken(token Token) { e.token = token }

// SetYieldRouter wires the yield-distribution collaborator. A nil router
// retains all interest in reserves.
func (e *Engine) SetYieldRouter(vault YieldRouter) { e.vault = vault }

// SetPriceRouter wires the price safety layer.
func (e *Engine) SetPriceRouter(prices *oracle.Router) { e.prices = prices }

// SetCollateralLedger wires the collateral ledger.
func (e *Engine) SetCollateralLedger(ledger *collateral.Ledger) { e.collateral = ledger }

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// ModuleAddress returns the identity the engine uses when acting as a
// collateral-ledger mover.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// AuthorizeDelegate admits a caller to the borrowFor/repayFor permission set.
func (e *Engine) AuthorizeDelegate(caller, delegate crypto.Address) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	e.delegates.Add(delegate)
	return nil
}

// AuthorizeLiquidator admits a module address to the reduceDebt permission set.
func (e *Engine) AuthorizeLiquidator(caller, liquidator crypto.Address) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	e.liquidators.Add(liquidator)
	return nil
}

// SetFixedRate updates the fixed annual rate, bounded to maxFixedRateBps.
func (e *Engine) SetFixedRate(caller crypto.Address, rateBps uint64) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	if rateBps > maxFixedRateBps {
		return ErrRateBounds
	}
	e.rateBps = rateBps
	return nil
}

// SetRateModel plugs in a utilization-based curve. The fixed rate applies
// whenever the model is nil.
func (e *Engine) SetRateModel(caller crypto.Address, model RateModel) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	e.rateModel = model
	return nil
}

// SetSupplyCap records the theoretical stable-token supply used as the
// utilization denominator.
func (e *Engine) SetSupplyCap(caller crypto.Address, cap *big.Int) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	if cap == nil {
		e.supplyCap = nil
		return nil
	}
	e.supplyCap = new(big.Int).Set(cap)
	return nil
}

// SetMinDebt updates the protocol minimum position size.
func (e *Engine) SetMinDebt(caller crypto.Address, minDebt *big.Int) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	if minDebt == nil || minDebt.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.minDebt = new(big.Int).Set(minDebt)
	return nil
}

// SetReserveShare updates the share of new interest retained by reserves.
func (e *Engine) SetReserveShare(caller crypto.Address, bps uint64) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	if bps > 10_000 {
		return ErrReserveShareBounds
	}
	e.reserveShareBps = bps
	return nil
}

// Borrow mints the requested amount to the caller and increases their debt,
// provided the post-borrow debt stays within risk-weighted capacity.
func (e *Engine) Borrow(caller crypto.Address, amount *big.Int) error {
	return e.borrowInto(caller, caller, amount)
}

// BorrowFor lets a delegated caller (e.g. a looping strategy) borrow against
// another account's position. Proceeds flow to the caller, debt mutates on
// the named account.
func (e *Engine) BorrowFor(caller, account crypto.Address, amount *big.Int) error {
	if err := e.delegates.Require(caller); err != nil {
		return err
	}
	return e.borrowInto(account, caller, amount)
}

func (e *Engine) borrowInto(account, recipient crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil || e.prices == nil || e.collateral == nil {
		return errNotWired
	}
	if err := e.entry.Acquire(); err != nil {
		return err
	}
	defer e.entry.Release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return err
	}
	e.accrue(global, pos)

	priorDebt := pos.Total()
	postDebt := new(big.Int).Add(priorDebt, amount)
	if e.minDebt != nil && e.minDebt.Sign() > 0 && postDebt.Cmp(e.minDebt) < 0 {
		return ErrBelowMinDebt
	}

	capacity, err := e.weightedCollateralUSD(account, borrowFactor, false)
	if err != nil {
		return err
	}
	if postDebt.Cmp(capacity) > 0 {
		return ErrExceedsBorrowCapacity
	}

	pos.Principal = new(big.Int).Add(pos.Principal, amount)
	global.TotalDebt = new(big.Int).Add(global.TotalDebt, amount)
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.state.PutGlobal(global); err != nil {
		return err
	}

	if err := e.token.Mint(recipient, amount); err != nil {
		// The mint is the last step; undo the ledger mutation so a refused
		// mint leaves no phantom debt.
		pos.Principal = new(big.Int).Sub(pos.Principal, amount)
		global.TotalDebt = new(big.Int).Sub(global.TotalDebt, amount)
		if pos.Total().Sign() == 0 {
			if delErr := e.state.DeletePosition(account); delErr != nil {
				return delErr
			}
		} else if putErr := e.state.PutPosition(pos); putErr != nil {
			return putErr
		}
		if putErr := e.state.PutGlobal(global); putErr != nil {
			return putErr
		}
		return fmt.Errorf("borrow: mint: %w", err)
	}

	e.telemetry.SetGlobalDebt(tokenUnits(global.TotalDebt))
	return nil
}

// Repay burns up to the caller's outstanding debt from the caller's balance.
// A repay that would leave a sub-minimum remainder is upgraded to a full
// repay. Returns the amount actually repaid.
func (e *Engine) Repay(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return e.repayFrom(caller, caller, amount)
}

// RepayFor lets a delegated caller repay another account's debt from the
// caller's own balance.
func (e *Engine) RepayFor(caller, account crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.delegates.Require(caller); err != nil {
		return nil, err
	}
	return e.repayFrom(account, caller, amount)
}

func (e *Engine) repayFrom(account, payer crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.token == nil {
		return nil, errNotWired
	}
	if err := e.entry.Acquire(); err != nil {
		return nil, err
	}
	defer e.entry.Release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	e.accrue(global, pos)

	debt := pos.Total()
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	repay := new(big.Int).Set(amount)
	if repay.Cmp(debt) > 0 {
		repay.Set(debt)
	}
	residual := new(big.Int).Sub(debt, repay)
	if residual.Sign() > 0 && e.minDebt != nil && e.minDebt.Sign() > 0 && residual.Cmp(e.minDebt) < 0 {
		// Dust remainder: upgrade to a full repay.
		repay.Set(debt)
	}

	// The burn runs before the ledger write so a refused burn leaves no
	// state change; the entry lock keeps the pre-write window unobservable.
	if err := e.token.Burn(payer, repay); err != nil {
		return nil, fmt.Errorf("borrow: burn: %w", err)
	}

	e.applyRepayment(pos, repay)
	e.reduceGlobalDebt(global, repay)
	if err := e.persistPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobal(global); err != nil {
		return nil, err
	}
	e.telemetry.SetGlobalDebt(tokenUnits(global.TotalDebt))
	return repay, nil
}

// ReduceDebt writes down an account's debt during liquidation. Restricted to
// the liquidation module; never pause-guarded and free of the minimum-debt
// floor so a liquidation may fully zero a position. Returns the amount
// actually reduced.
func (e *Engine) ReduceDebt(caller, account crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.liquidators.Require(caller); err != nil {
		return nil, err
	}
	if err := e.entry.Acquire(); err != nil {
		return nil, err
	}
	defer e.entry.Release()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	e.accrue(global, pos)

	debt := pos.Total()
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	reduced := new(big.Int).Set(amount)
	if reduced.Cmp(debt) > 0 {
		reduced.Set(debt)
	}

	e.applyRepayment(pos, reduced)
	e.reduceGlobalDebt(global, reduced)
	if err := e.persistPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobal(global); err != nil {
		return nil, err
	}
	e.telemetry.SetGlobalDebt(tokenUnits(global.TotalDebt))
	return reduced, nil
}

// WithdrawCollateral releases collateral back to the caller after verifying
// the post-withdrawal health factor on safe prices.
func (e *Engine) WithdrawCollateral(caller crypto.Address, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.prices == nil || e.collateral == nil {
		return errNotWired
	}
	if err := e.entry.Acquire(); err != nil {
		return err
	}
	defer e.entry.Release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	e.accrue(global, pos)

	debt := pos.Total()
	if debt.Sign() > 0 {
		cfg, err := e.collateral.AssetConfigOf(asset)
		if err != nil {
			return err
		}
		withdrawn, err := e.prices.ValueUSD(cfg.Symbol, amount, cfg.Decimals)
		if err != nil {
			return err
		}
		weighted, err := e.weightedCollateralUSD(caller, liquidationThreshold, false)
		if err != nil {
			return err
		}
		weighted.Sub(weighted, bpsShare(withdrawn, cfg.LiquidationThresholdBps))
		if weighted.Sign() < 0 {
			weighted.SetInt64(0)
		}
		if healthFactorBps(weighted, debt).Cmp(basisPoints) < 0 {
			return ErrWithdrawalWouldLiquidate
		}
	}

	if err := e.persistPosition(pos); err != nil {
		return err
	}
	if err := e.state.PutGlobal(global); err != nil {
		return err
	}
	return e.collateral.Withdraw(e.moduleAddress, caller, asset, amount)
}

// WithdrawReserves mints accrued reserves to the recipient. A refused mint
// (e.g. exhausted supply cap) leaves reserves untouched and fails with a
// distinct condition.
func (e *Engine) WithdrawReserves(caller, recipient crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.admin.Require(caller); err != nil {
		return nil, err
	}
	if e.token == nil {
		return nil, errNotWired
	}
	if err := e.entry.Acquire(); err != nil {
		return nil, err
	}
	defer e.entry.Release()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	e.accrue(global, nil)
	if global.Reserves.Cmp(amount) < 0 {
		return nil, ErrExceedsReserves
	}
	if err := e.token.Mint(recipient, amount); err != nil {
		return nil, ErrReserveMintBlocked
	}
	global.Reserves = new(big.Int).Sub(global.Reserves, amount)
	if err := e.state.PutGlobal(global); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// HealthFactor computes the account's health in basis points on safe prices.
// It may fail with the oracle's breaker error; liquidation decisions use
// HealthFactorUnsafe instead.
func (e *Engine) HealthFactor(account crypto.Address) (*big.Int, error) {
	return e.healthFactor(account, false)
}

// HealthFactorUnsafe computes health on the unsafe price path. It never fails
// on deviation, which keeps liquidation executable exactly when prices move
// fastest.
func (e *Engine) HealthFactorUnsafe(account crypto.Address) (*big.Int, error) {
	return e.healthFactor(account, true)
}

func (e *Engine) healthFactor(account crypto.Address, usePriceUnsafe bool) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.prices == nil || e.collateral == nil {
		return nil, errNotWired
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	debt := e.projectedDebt(pos, global)
	if debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	weighted, err := e.weightedCollateralUSD(account, liquidationThreshold, usePriceUnsafe)
	if err != nil {
		return nil, err
	}
	return healthFactorBps(weighted, debt), nil
}

// AccountDebt reports principal plus interest including pending accrual,
// without mutating the position.
func (e *Engine) AccountDebt(account crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return e.projectedDebt(pos, global), nil
}

// GlobalDebt reports the aggregate outstanding debt.
func (e *Engine) GlobalDebt() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(global.TotalDebt), nil
}

// Reserves reports the protocol-retained interest available for withdrawal.
func (e *Engine) Reserves() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(global.Reserves), nil
}

// --- accrual ---

// accrue runs before any other logic on every mutating call. The aggregate
// and the position accrue independently against the same rate and clock,
// which is why the aggregate only tracks the per-position sum within a
// bounded tolerance.
func (e *Engine) accrue(global *GlobalLedger, pos *Position) {
	nowTs := uint64(e.now().Unix())
	rate := e.currentRateBps(global)

	if gDelta := accrualDelta(global.TotalDebt, rate, elapsedSince(global.LastAccrual, nowTs)); gDelta.Sign() > 0 {
		global.TotalDebt = new(big.Int).Add(global.TotalDebt, gDelta)
	}
	if nowTs > global.LastAccrual {
		global.LastAccrual = nowTs
	}

	if pos == nil {
		return
	}
	delta := accrualDelta(pos.Total(), rate, elapsedSince(pos.LastAccrual, nowTs))
	if delta.Sign() > 0 {
		pos.Interest = new(big.Int).Add(pos.Interest, delta)
		e.distributeInterest(global, delta)
		e.telemetry.AddInterestAccrued(tokenUnits(delta))
	}
	if nowTs > pos.LastAccrual {
		pos.LastAccrual = nowTs
	}
}

// distributeInterest retains the reserve share and routes the remainder to
// the yield vault. A refused routing call must not fail the caller's
// operation: the reserve share substitutes for the routed share and the
// failure surfaces as an observability signal only.
func (e *Engine) distributeInterest(global *GlobalLedger, delta *big.Int) {
	reserveShare := bpsShare(delta, e.reserveShareBps)
	routed := new(big.Int).Sub(delta, reserveShare)
	global.Reserves = new(big.Int).Add(global.Reserves, reserveShare)
	e.telemetry.AddReservesRetained(tokenUnits(reserveShare))
	if routed.Sign() <= 0 {
		return
	}
	if e.vault == nil {
		global.Reserves.Add(global.Reserves, routed)
		return
	}
	if err := e.vault.ReceiveInterest(routed); err != nil {
		global.Reserves.Add(global.Reserves, routed)
		e.telemetry.ObserveRoutingFailure()
		e.log.Warn("interest routing failed, retained in reserves",
			"amount", routed.String(), "error", err)
	}
}

func (e *Engine) currentRateBps(global *GlobalLedger) uint64 {
	if e.rateModel != nil {
		return e.rateModel.BorrowRateBps(utilizationBps(global.TotalDebt, e.supplyCap))
	}
	return e.rateBps
}

// projectedDebt applies the pending accrual virtually so read paths observe
// current debt without mutating the position.
func (e *Engine) projectedDebt(pos *Position, global *GlobalLedger) *big.Int {
	total := pos.Total()
	nowTs := uint64(e.now().Unix())
	delta := accrualDelta(total, e.currentRateBps(global), elapsedSince(pos.LastAccrual, nowTs))
	return total.Add(total, delta)
}

// --- collateral valuation ---

func borrowFactor(cfg *collateral.AssetConfig) uint64 { return cfg.BorrowFactorBps }

func liquidationThreshold(cfg *collateral.AssetConfig) uint64 {
	return cfg.LiquidationThresholdBps
}

func (e *Engine) weightedCollateralUSD(account crypto.Address, factor func(*collateral.AssetConfig) uint64, usePriceUnsafe bool) (*big.Int, error) {
	configs, err := e.collateral.TrackedAssets()
	if err != nil {
		return nil, err
	}
	sum := big.NewInt(0)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		balance, err := e.collateral.BalanceOf(account, cfg.Symbol)
		if err != nil {
			return nil, err
		}
		if balance.Sign() == 0 {
			continue
		}
		var value *big.Int
		if usePriceUnsafe {
			value, err = e.prices.ValueUSDUnsafe(cfg.Symbol, balance, cfg.Decimals)
		} else {
			value, err = e.prices.ValueUSD(cfg.Symbol, balance, cfg.Decimals)
		}
		if err != nil {
			return nil, err
		}
		sum.Add(sum, bpsShare(value, factor(cfg)))
	}
	return sum, nil
}

func healthFactorBps(weightedCollateral, debt *big.Int) *big.Int {
	hf := new(big.Int).Mul(weightedCollateral, basisPoints)
	return hf.Quo(hf, debt)
}

// --- helpers ---

func (e *Engine) ensureGlobal() (*GlobalLedger, error) {
	global, err := e.state.GetGlobal()
	if err != nil {
		return nil, err
	}
	if global == nil {
		global = &GlobalLedger{}
	}
	if global.TotalDebt == nil {
		global.TotalDebt = big.NewInt(0)
	}
	if global.Reserves == nil {
		global.Reserves = big.NewInt(0)
	}
	return global, nil
}

func (e *Engine) ensurePosition(addr crypto.Address) (*Position, error) {
	pos, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr, LastAccrual: uint64(e.now().Unix())}
	}
	if pos.Principal == nil {
		pos.Principal = big.NewInt(0)
	}
	if pos.Interest == nil {
		pos.Interest = big.NewInt(0)
	}
	return pos, nil
}

// applyRepayment retires accrued interest before principal.
func (e *Engine) applyRepayment(pos *Position, amount *big.Int) {
	fromInterest := new(big.Int).Set(amount)
	if fromInterest.Cmp(pos.Interest) > 0 {
		fromInterest.Set(pos.Interest)
	}
	pos.Interest = new(big.Int).Sub(pos.Interest, fromInterest)
	fromPrincipal := new(big.Int).Sub(amount, fromInterest)
	pos.Principal = new(big.Int).Sub(pos.Principal, fromPrincipal)
	if pos.Principal.Sign() < 0 {
		pos.Principal.SetInt64(0)
	}
}

func (e *Engine) reduceGlobalDebt(global *GlobalLedger, amount *big.Int) {
	global.TotalDebt = new(big.Int).Sub(global.TotalDebt, amount)
	if global.TotalDebt.Sign() < 0 {
		global.TotalDebt.SetInt64(0)
	}
}

// persistPosition stores the position, resetting it to empty once both
// principal and interest reach zero.
func (e *Engine) persistPosition(pos *Position) error {
	if pos.Total().Sign() == 0 {
		return e.state.DeletePosition(pos.Address)
	}
	return e.state.PutPosition(pos)
}

func elapsedSince(last, now uint64) uint64 {
	if now <= last {
		return 0
	}
	return now - last
}

func tokenUnits(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), big.NewFloat(1e18)).Float64()
	return units
}
