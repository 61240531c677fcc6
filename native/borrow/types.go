package borrow

import (
	"math/big"

	"musd/crypto"
)

// Position tracks the outstanding debt of a single account. Principal and
// accrued interest are kept separately so repayments can retire interest
// first; both are denominated in stable-token base units (1e18 = one dollar).
type Position struct {
	Address crypto.Address
	// Principal is the borrowed amount net of repayments.
	Principal *big.Int
	// Interest is the accrued, not yet repaid interest.
	Interest *big.Int
	// LastAccrual is the unix time of the most recent accrual touch.
	LastAccrual uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, LastAccrual: p.LastAccrual}
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	}
	if p.Interest != nil {
		clone.Interest = new(big.Int).Set(p.Interest)
	}
	return clone
}

// Total returns principal plus accrued interest.
func (p *Position) Total() *big.Int {
	total := new(big.Int)
	if p == nil {
		return total
	}
	if p.Principal != nil {
		total.Add(total, p.Principal)
	}
	if p.Interest != nil {
		total.Add(total, p.Interest)
	}
	return total
}

// GlobalLedger aggregates debt across all positions. It accrues against the
// same rate and clock as the individual positions but independently of them,
// so it tracks the per-position sum within a small bounded tolerance rather
// than exactly.
type GlobalLedger struct {
	// TotalDebt is the running aggregate of outstanding debt.
	TotalDebt *big.Int
	// Reserves is the protocol-retained share of accrued interest.
	Reserves *big.Int
	// LastAccrual is the unix time of the most recent aggregate accrual.
	LastAccrual uint64
}

// Clone returns a deep copy of the global ledger entry.
func (g *GlobalLedger) Clone() *GlobalLedger {
	if g == nil {
		return nil
	}
	clone := &GlobalLedger{LastAccrual: g.LastAccrual}
	if g.TotalDebt != nil {
		clone.TotalDebt = new(big.Int).Set(g.TotalDebt)
	}
	if g.Reserves != nil {
		clone.Reserves = new(big.Int).Set(g.Reserves)
	}
	return clone
}
