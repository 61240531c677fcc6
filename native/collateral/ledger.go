package collateral

import (
	"errors"
	"math/big"
	"strings"

	"musd/crypto"
	"musd/native/common"
)

var (
	ErrNilState              = errors.New("collateral: state not configured")
	ErrInvalidAmount         = errors.New("collateral: amount must be positive")
	ErrAssetNotSupported     = errors.New("collateral: asset not supported")
	ErrAssetAlreadySupported = errors.New("collateral: asset already supported")
	ErrTooManyTokens         = errors.New("collateral: tracked asset cap reached")
	ErrInsufficientBalance   = errors.New("collateral: insufficient deposited balance")
	ErrInvalidRiskParameters = errors.New("collateral: invalid risk parameters")
)

// maxTrackedAssets caps the asset registry. Disabling an asset keeps it in the
// tracked set so a later re-enable cannot re-breach the cap.
const maxTrackedAssets = 50

// AssetConfig carries the per-asset risk parameters consulted by the debt
// ledger and the liquidation engine. All factors are expressed in basis
// points of the asset's USD price.
type AssetConfig struct {
	Symbol                  string
	Enabled                 bool
	BorrowFactorBps         uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	Decimals                uint8
}

// Clone returns a deep copy of the asset configuration.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *AssetConfig) validate() error {
	if c == nil || strings.TrimSpace(c.Symbol) == "" {
		return ErrInvalidRiskParameters
	}
	if c.BorrowFactorBps > 10_000 || c.LiquidationThresholdBps > 10_000 || c.LiquidationPenaltyBps > 10_000 {
		return ErrInvalidRiskParameters
	}
	if c.LiquidationThresholdBps < c.BorrowFactorBps {
		return ErrInvalidRiskParameters
	}
	return nil
}

// ledgerState is the narrow persistence contract the ledger mutates through.
type ledgerState interface {
	GetAssetConfig(symbol string) (*AssetConfig, error)
	PutAssetConfig(cfg *AssetConfig) error
	ListAssetSymbols() ([]string, error)
	GetBalance(addr crypto.Address, symbol string) (*big.Int, error)
	PutBalance(addr crypto.Address, symbol string, amount *big.Int) error
}

// Ledger tracks per-account, per-asset deposited collateral. Deposits are
// open to any account; withdrawals and seizures only flow through registered
// mover modules (the debt ledger and the liquidation engine), which alone
// know whether the mutation is health-factor-safe.
type Ledger struct {
	state  ledgerState
	admin  *common.Authority
	movers *common.Authority
}

func NewLedger(admin *common.Authority) *Ledger {
	return &Ledger{admin: admin, movers: common.NewAuthority()}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// AuthorizeMover admits a module address to the withdraw/seize permission set.
func (l *Ledger) AuthorizeMover(caller, mover crypto.Address) error {
	if err := l.admin.Require(caller); err != nil {
		return err
	}
	l.movers.Add(mover)
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// AddAsset registers a new collateral asset. Registration never alters
// existing balances, only future risk computation.
func (l *Ledger) AddAsset(caller crypto.Address, cfg AssetConfig) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.admin.Require(caller); err != nil {
		return err
	}
	cfg.Symbol = normalizeSymbol(cfg.Symbol)
	if err := cfg.validate(); err != nil {
		return err
	}
	existing, err := l.state.GetAssetConfig(cfg.Symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAssetAlreadySupported
	}
	symbols, err := l.state.ListAssetSymbols()
	if err != nil {
		return err
	}
	if len(symbols) >= maxTrackedAssets {
		return ErrTooManyTokens
	}
	return l.state.PutAssetConfig(&cfg)
}

// UpdateAsset replaces the risk parameters of a tracked asset.
func (l *Ledger) UpdateAsset(caller crypto.Address, cfg AssetConfig) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.admin.Require(caller); err != nil {
		return err
	}
	cfg.Symbol = normalizeSymbol(cfg.Symbol)
	if err := cfg.validate(); err != nil {
		return err
	}
	existing, err := l.state.GetAssetConfig(cfg.Symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrAssetNotSupported
	}
	return l.state.PutAssetConfig(&cfg)
}

// SetAssetEnabled flags an asset active or inactive. Disabling never removes
// the asset from the tracked set.
func (l *Ledger) SetAssetEnabled(caller crypto.Address, symbol string, enabled bool) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.admin.Require(caller); err != nil {
		return err
	}
	cfg, err := l.state.GetAssetConfig(normalizeSymbol(symbol))
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrAssetNotSupported
	}
	cfg.Enabled = enabled
	return l.state.PutAssetConfig(cfg)
}

// Deposit credits collateral to the account. Any account may deposit into an
// enabled asset; no risk check applies on the way in.
func (l *Ledger) Deposit(account crypto.Address, symbol string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cfg, err := l.state.GetAssetConfig(normalizeSymbol(symbol))
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Enabled {
		return ErrAssetNotSupported
	}
	balance, err := l.balance(account, cfg.Symbol)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return l.state.PutBalance(account, cfg.Symbol, balance)
}

// Withdraw debits collateral from the account. Restricted to mover modules:
// only the debt ledger knows whether the withdrawal leaves the position
// healthy.
func (l *Ledger) Withdraw(caller, account crypto.Address, symbol string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.movers.Require(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized := normalizeSymbol(symbol)
	cfg, err := l.state.GetAssetConfig(normalized)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrAssetNotSupported
	}
	balance, err := l.balance(account, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	return l.state.PutBalance(account, normalized, balance)
}

// Seize moves collateral from a liquidated account to the liquidator.
// Restricted to mover modules; liquidation is the sole flow allowed to pull
// collateral out of an unhealthy position.
func (l *Ledger) Seize(caller, from, to crypto.Address, symbol string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.movers.Require(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized := normalizeSymbol(symbol)
	fromBal, err := l.balance(from, normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.balance(to, normalized)
	if err != nil {
		return err
	}
	fromBal.Sub(fromBal, amount)
	toBal.Add(toBal, amount)
	if err := l.state.PutBalance(from, normalized, fromBal); err != nil {
		return err
	}
	return l.state.PutBalance(to, normalized, toBal)
}

// BalanceOf reports the deposited amount for the account and asset.
func (l *Ledger) BalanceOf(account crypto.Address, symbol string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.balance(account, normalizeSymbol(symbol))
}

// AssetConfigOf returns the tracked configuration for the symbol.
func (l *Ledger) AssetConfigOf(symbol string) (*AssetConfig, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	cfg, err := l.state.GetAssetConfig(normalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrAssetNotSupported
	}
	return cfg.Clone(), nil
}

// TrackedAssets lists every registered configuration, enabled or not.
func (l *Ledger) TrackedAssets() ([]*AssetConfig, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	symbols, err := l.state.ListAssetSymbols()
	if err != nil {
		return nil, err
	}
	configs := make([]*AssetConfig, 0, len(symbols))
	for _, symbol := range symbols {
		cfg, err := l.state.GetAssetConfig(symbol)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

func (l *Ledger) balance(account crypto.Address, symbol string) (*big.Int, error) {
	balance, err := l.state.GetBalance(account, symbol)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}
