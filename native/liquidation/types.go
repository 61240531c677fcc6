package liquidation

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"musd/crypto"
)

// Event records one executed liquidation for audit surfaces.
type Event struct {
	ID              uuid.UUID
	Liquidator      crypto.Address
	Borrower        crypto.Address
	Asset           string
	Repaid          *big.Int
	Seized          *big.Int
	HealthFactorBps *big.Int
	Timestamp       time.Time
}

func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Repaid != nil {
		clone.Repaid = new(big.Int).Set(e.Repaid)
	}
	if e.Seized != nil {
		clone.Seized = new(big.Int).Set(e.Seized)
	}
	if e.HealthFactorBps != nil {
		clone.HealthFactorBps = new(big.Int).Set(e.HealthFactorBps)
	}
	return &clone
}
