package borrow

// RateModel derives an annual borrow rate from pool utilization. It is pure
// and pluggable; when no model is configured the engine falls back to its
// fixed rate.
type RateModel interface {
	BorrowRateBps(utilizationBps uint64) uint64
}

// KinkedRateModel is the stock utilization curve: a base rate, a gentle slope
// up to the kink and a steep slope beyond it to pull utilization back down.
// All parameters are expressed in basis points; the kink is a utilization
// level in basis points.
type KinkedRateModel struct {
	BaseRateBps uint64
	Slope1Bps   uint64
	Slope2Bps   uint64
	KinkBps     uint64
}

// NewKinkedRateModel constructs a model with the provided curve parameters.
// A 2% base rate is expressed as 200 and an 80% kink as 8000.
func NewKinkedRateModel(baseRateBps, slope1Bps, slope2Bps, kinkBps uint64) *KinkedRateModel {
	if kinkBps == 0 || kinkBps > 10_000 {
		kinkBps = 10_000
	}
	return &KinkedRateModel{
		BaseRateBps: baseRateBps,
		Slope1Bps:   slope1Bps,
		Slope2Bps:   slope2Bps,
		KinkBps:     kinkBps,
	}
}

// BorrowRateBps evaluates the curve at the supplied utilization.
func (m *KinkedRateModel) BorrowRateBps(utilization uint64) uint64 {
	if m == nil {
		return 0
	}
	if utilization > 10_000 {
		utilization = 10_000
	}
	if utilization <= m.KinkBps {
		// Linear region before the kink.
		return m.BaseRateBps + m.Slope1Bps*utilization/m.KinkBps
	}
	rate := m.BaseRateBps + m.Slope1Bps
	excess := utilization - m.KinkBps
	span := uint64(10_000) - m.KinkBps
	if span == 0 {
		return rate
	}
	return rate + m.Slope2Bps*excess/span
}

// DefaultRateModel provides a reasonable starting configuration featuring a
// kinked curve with a modest base rate.
var DefaultRateModel = NewKinkedRateModel(200, 1_500, 6_000, 8_000)
