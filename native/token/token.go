package token

import (
	"errors"
	"math/big"
	"sync"

	"musd/crypto"
)

var (
	errNilState              = errors.New("token: state not configured")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrSupplyCapExceeded     = errors.New("token: supply cap exceeded")
	ErrUnauthorizedMinter    = errors.New("token: caller is not an authorized minter")
	ErrInvalidSupplyCapValue = errors.New("token: supply cap must be non-negative")
)

type tokenState interface {
	GetBalance(addr crypto.Address) (*big.Int, error)
	PutBalance(addr crypto.Address, balance *big.Int) error
	GetSupply() (*big.Int, error)
	PutSupply(supply *big.Int) error
}

// Ledger is the synthetic-dollar token: an 18-decimal mint/burn ledger with
// an optional hard supply cap. Minting is reserved for protocol modules.
type Ledger struct {
	mu        sync.Mutex
	state     tokenState
	supplyCap *big.Int
	minters   map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{minters: make(map[string]struct{})}
}

func (l *Ledger) SetState(state tokenState) { l.state = state }

// SetSupplyCap installs a hard cap on total supply. Nil removes the cap.
func (l *Ledger) SetSupplyCap(cap *big.Int) error {
	if cap != nil && cap.Sign() < 0 {
		return ErrInvalidSupplyCapValue
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cap == nil {
		l.supplyCap = nil
		return nil
	}
	l.supplyCap = new(big.Int).Set(cap)
	return nil
}

// AuthorizeMinter admits a module address to the mint/burn permission set.
func (l *Ledger) AuthorizeMinter(minter crypto.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minters[string(minter.Bytes())] = struct{}{}
}

// Minter binds the ledger to one authorized module identity so collaborators
// can hold a plain mint/burn handle without carrying the caller address.
func (l *Ledger) Minter(module crypto.Address) *Minter {
	return &Minter{ledger: l, module: module}
}

// Minter is a mint/burn handle acting under a fixed module address.
type Minter struct {
	ledger *Ledger
	module crypto.Address
}

func (m *Minter) Mint(to crypto.Address, amount *big.Int) error {
	return m.ledger.Mint(m.module, to, amount)
}

func (m *Minter) Burn(from crypto.Address, amount *big.Int) error {
	return m.ledger.Burn(m.module, from, amount)
}

// Mint credits newly issued tokens to the recipient, enforcing the supply
// cap atomically with the supply update.
func (l *Ledger) Mint(caller, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.minters[string(caller.Bytes())]; !ok {
		return ErrUnauthorizedMinter
	}
	supply, err := l.supply()
	if err != nil {
		return err
	}
	nextSupply := new(big.Int).Add(supply, amount)
	if l.supplyCap != nil && nextSupply.Cmp(l.supplyCap) > 0 {
		return ErrSupplyCapExceeded
	}
	balance, err := l.balance(to)
	if err != nil {
		return err
	}
	if err := l.state.PutBalance(to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.state.PutSupply(nextSupply)
}

// Burn retires tokens from the holder's balance.
func (l *Ledger) Burn(caller, from crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.minters[string(caller.Bytes())]; !ok {
		return ErrUnauthorizedMinter
	}
	balance, err := l.balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.supply()
	if err != nil {
		return err
	}
	if err := l.state.PutBalance(from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	nextSupply := new(big.Int).Sub(supply, amount)
	if nextSupply.Sign() < 0 {
		nextSupply.SetInt64(0)
	}
	return l.state.PutSupply(nextSupply)
}

// Transfer moves tokens between holders without touching supply.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := l.balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.balance(to)
	if err != nil {
		return err
	}
	if err := l.state.PutBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.PutBalance(to, new(big.Int).Add(toBalance, amount))
}

// BalanceOf reports the holder's balance.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr)
}

// Supply reports the outstanding token supply.
func (l *Ledger) Supply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply()
}

func (l *Ledger) balance(addr crypto.Address) (*big.Int, error) {
	balance, err := l.state.GetBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) supply() (*big.Int, error) {
	supply, err := l.state.GetSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return supply, nil
}
