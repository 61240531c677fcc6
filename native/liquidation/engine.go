package liquidation

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"musd/crypto"
	"musd/native/borrow"
	"musd/native/collateral"
	"musd/native/common"
	"musd/native/oracle"
	"musd/observability/metrics"
)

var (
	errNotWired               = errors.New("liquidation: collaborator modules not wired")
	ErrInvalidAmount          = errors.New("liquidation: amount must be positive")
	ErrPositionHealthy        = errors.New("liquidation: position is not liquidatable")
	ErrExceedsCloseFactor     = errors.New("liquidation: repay exceeds close factor")
	ErrCannotSelfLiquidate    = errors.New("liquidation: borrower cannot liquidate own position")
	ErrInsufficientCollateral = errors.New("liquidation: borrower holds none of the requested asset")
	ErrFactorBounds           = errors.New("liquidation: factor out of bounds")
)

const (
	defaultCloseFactorBps        = 5_000
	defaultFullThresholdBps      = 5_000
	healthyThresholdBps          = 10_000
	recentEventCap               = 128
	basisPointsDenominatorUint64 = 10_000
)

var basisPoints = big.NewInt(10_000)

// debtLedger is the slice of the debt engine the liquidation path needs.
type debtLedger interface {
	HealthFactorUnsafe(account crypto.Address) (*big.Int, error)
	AccountDebt(account crypto.Address) (*big.Int, error)
	ReduceDebt(caller, account crypto.Address, amount *big.Int) (*big.Int, error)
}

// Engine executes liquidations: it burns repayment from the liquidator,
// writes the borrower's debt down and transfers penalty-priced collateral.
// Eligibility and seize pricing deliberately run on the unsafe price path so
// liquidation stays executable while the circuit breaker is tripped.
type Engine struct {
	debt       debtLedger
	collateral *collateral.Ledger
	prices     *oracle.Router
	token      borrow.Token

	moduleAddress    crypto.Address
	admin            *common.Authority
	closeFactorBps   uint64
	fullThresholdBps uint64

	entry     *common.OpLock
	now       func() time.Time
	telemetry *metrics.RiskMetrics
	log       *slog.Logger

	recentMu sync.Mutex
	recent   []*Event
}

// NewEngine constructs a liquidation engine acting under the supplied module
// address. The address must be authorized as a debt-ledger liquidator and a
// collateral-ledger mover before the first call.
func NewEngine(moduleAddr crypto.Address, admin *common.Authority) *Engine {
	return &Engine{
		moduleAddress:    moduleAddr,
		admin:            admin,
		closeFactorBps:   defaultCloseFactorBps,
		fullThresholdBps: defaultFullThresholdBps,
		entry:            common.NewOpLock(),
		now:              time.Now,
		telemetry:        metrics.Risk(),
		log:              slog.Default(),
	}
}

func (e *Engine) SetDebtLedger(debt debtLedger) { e.debt = debt }

func (e *Engine) SetCollateralLedger(l *collateral.Ledger) { e.collateral = l }

func (e *Engine) SetPriceRouter(prices *oracle.Router) { e.prices = prices }

func (e *Engine) SetToken(token borrow.Token) { e.token = token }

// ModuleAddress returns the identity the engine acts under.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// SetCloseFactor updates the per-call repay cap applied above the full
// liquidation threshold.
func (e *Engine) SetCloseFactor(caller crypto.Address, bps uint64) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	if bps == 0 || bps > basisPointsDenominatorUint64 {
		return ErrFactorBounds
	}
	e.closeFactorBps = bps
	return nil
}

// SetFullLiquidationThreshold updates the health factor below which the
// close factor no longer applies and the whole debt is repayable at once.
func (e *Engine) SetFullLiquidationThreshold(caller crypto.Address, bps uint64) error {
	if err := e.admin.Require(caller); err != nil {
		return err
	}
	if bps > healthyThresholdBps {
		return ErrFactorBounds
	}
	e.fullThresholdBps = bps
	return nil
}

// Liquidate repays up to repayAmount of the borrower's debt from the
// caller's balance and seizes the requested collateral asset at a
// penalty-discounted price. Returns the executed event record.
func (e *Engine) Liquidate(caller, borrower crypto.Address, asset string, repayAmount *big.Int) (*Event, error) {
	if e == nil || e.debt == nil || e.collateral == nil || e.prices == nil || e.token == nil {
		return nil, errNotWired
	}
	if err := e.entry.Acquire(); err != nil {
		return nil, err
	}
	defer e.entry.Release()
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if caller.Equal(borrower) {
		return nil, ErrCannotSelfLiquidate
	}

	health, err := e.debt.HealthFactorUnsafe(borrower)
	if err != nil {
		return nil, err
	}
	if health.Cmp(basisPoints) >= 0 {
		return nil, ErrPositionHealthy
	}
	debtTotal, err := e.debt.AccountDebt(borrower)
	if err != nil {
		return nil, err
	}
	repay := new(big.Int).Set(repayAmount)
	if repay.Cmp(debtTotal) > 0 {
		repay.Set(debtTotal)
	}
	// Above the full-liquidation threshold only a close-factor slice of the
	// debt may be retired per call. Deeply underwater positions are exempt so
	// they can be closed in one shot.
	if health.Cmp(new(big.Int).SetUint64(e.fullThresholdBps)) >= 0 {
		maxRepay := bpsShare(debtTotal, e.closeFactorBps)
		if repay.Cmp(maxRepay) > 0 {
			return nil, ErrExceedsCloseFactor
		}
	}

	cfg, err := e.collateral.AssetConfigOf(asset)
	if err != nil {
		return nil, err
	}
	balance, err := e.collateral.BalanceOf(borrower, cfg.Symbol)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrInsufficientCollateral
	}
	price, err := e.prices.PriceUnsafe(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	seize := seizeAmount(repay, price, cfg.LiquidationPenaltyBps, cfg.Decimals)
	if seize.Cmp(balance) > 0 {
		seize.Set(balance)
	}
	// A repay too small to seize a single collateral unit must fail before
	// any burn or debt write-down, so nothing commits.
	if seize.Sign() == 0 {
		return nil, ErrInsufficientCollateral
	}

	if err := e.token.Burn(caller, repay); err != nil {
		return nil, fmt.Errorf("liquidation: burn: %w", err)
	}
	repaid, err := e.debt.ReduceDebt(e.moduleAddress, borrower, repay)
	if err != nil {
		return nil, err
	}
	if err := e.collateral.Seize(e.moduleAddress, borrower, caller, cfg.Symbol, seize); err != nil {
		return nil, err
	}

	e.telemetry.ObserveLiquidation(cfg.Symbol)
	event := &Event{
		ID:              uuid.New(),
		Liquidator:      caller,
		Borrower:        borrower,
		Asset:           cfg.Symbol,
		Repaid:          repaid,
		Seized:          seize,
		HealthFactorBps: health,
		Timestamp:       e.now(),
	}
	e.recordEvent(event)
	e.log.Info("liquidation executed",
		"borrower", borrower.String(),
		"liquidator", caller.String(),
		"asset", cfg.Symbol,
		"repaid", repaid.String(),
		"seized", seize.String(),
		"health_bps", health.String())
	return event.Clone(), nil
}

// RecentEvents returns the most recent liquidation records, newest last.
func (e *Engine) RecentEvents() []*Event {
	if e == nil {
		return nil
	}
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	out := make([]*Event, len(e.recent))
	for i, event := range e.recent {
		out[i] = event.Clone()
	}
	return out
}

func (e *Engine) recordEvent(event *Event) {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	e.recent = append(e.recent, event)
	if len(e.recent) > recentEventCap {
		e.recent = e.recent[len(e.recent)-recentEventCap:]
	}
}

// seizeAmount prices the repaid debt into collateral units with the penalty
// applied: repay×(10000+penalty)×10^decimals / (10000×price). Prices arrive
// normalized to 18 decimals, matching the debt unit.
func seizeAmount(repay, price *big.Int, penaltyBps uint64, assetDecimals uint8) *big.Int {
	if price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	seize := new(big.Int).Mul(repay, new(big.Int).SetUint64(basisPointsDenominatorUint64+penaltyBps))
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(assetDecimals)), nil)
	seize.Mul(seize, scale)
	seize.Quo(seize, basisPoints)
	seize.Quo(seize, price)
	return seize
}

func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}
