package borrow

import "math/big"

var basisPoints = big.NewInt(10_000)

const secondsPerYear = 31_536_000

// accrualCapBps bounds a single accrual step to 10% of the outstanding
// balance, independent of how large the unaccrued gap is. An extreme gap then
// costs a fixed fraction instead of a compounding blowup.
const accrualCapBps = 1_000

func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

// accrualDelta computes simple interest over the elapsed window, capped at
// accrualCapBps of the outstanding balance.
func accrualDelta(outstanding *big.Int, rateBps uint64, elapsedSeconds uint64) *big.Int {
	if outstanding == nil || outstanding.Sign() <= 0 || rateBps == 0 || elapsedSeconds == 0 {
		return big.NewInt(0)
	}
	delta := new(big.Int).Mul(outstanding, new(big.Int).SetUint64(rateBps))
	delta.Mul(delta, new(big.Int).SetUint64(elapsedSeconds))
	delta.Quo(delta, basisPoints)
	delta.Quo(delta, big.NewInt(secondsPerYear))
	cap := bpsShare(outstanding, accrualCapBps)
	if delta.Cmp(cap) > 0 {
		return cap
	}
	return delta
}

// utilizationBps computes outstanding debt relative to the theoretical
// supply, clamped to 10000.
func utilizationBps(totalDebt, supplyCap *big.Int) uint64 {
	if totalDebt == nil || totalDebt.Sign() <= 0 || supplyCap == nil || supplyCap.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Int).Mul(totalDebt, basisPoints)
	ratio.Quo(ratio, supplyCap)
	if !ratio.IsUint64() || ratio.Uint64() > 10_000 {
		return 10_000
	}
	return ratio.Uint64()
}
