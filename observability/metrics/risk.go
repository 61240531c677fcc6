package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RiskMetrics tracks the observability signals emitted by the collateral,
// borrow, oracle and liquidation modules. Routine rejections and
// invariant-threatening patterns (breaker trips, routing failures) are kept on
// separate series so monitoring can tell them apart.
type RiskMetrics struct {
	breakerTrips     *prometheus.CounterVec
	staleRejections  *prometheus.CounterVec
	routingFailures  prometheus.Counter
	liquidations     *prometheus.CounterVec
	interestAccrued  prometheus.Counter
	reservesRetained prometheus.Counter
	globalDebt       prometheus.Gauge
}

var (
	riskOnce     sync.Once
	riskRegistry *RiskMetrics
)

func Risk() *RiskMetrics {
	riskOnce.Do(func() {
		riskRegistry = &RiskMetrics{
			breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "musd_oracle_breaker_trips_total",
				Help: "Count of safe price reads rejected by the deviation circuit breaker.",
			}, []string{"asset"}),
			staleRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "musd_oracle_stale_rejections_total",
				Help: "Count of price reads rejected because the feed exceeded its staleness window.",
			}, []string{"asset"}),
			routingFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "musd_borrow_interest_routing_failures_total",
				Help: "Count of interest distributions absorbed into reserves after the yield vault rejected them.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "musd_liquidations_total",
				Help: "Count of executed liquidations segmented by seized collateral asset.",
			}, []string{"asset"}),
			interestAccrued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "musd_borrow_interest_accrued_total",
				Help: "Cumulative interest accrued across all positions, in stable-token base units.",
			}),
			reservesRetained: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "musd_borrow_reserves_retained_total",
				Help: "Cumulative interest retained by protocol reserves, in stable-token base units.",
			}),
			globalDebt: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "musd_borrow_global_debt",
				Help: "Current aggregate outstanding debt tracked by the debt ledger.",
			}),
		}
		prometheus.MustRegister(
			riskRegistry.breakerTrips,
			riskRegistry.staleRejections,
			riskRegistry.routingFailures,
			riskRegistry.liquidations,
			riskRegistry.interestAccrued,
			riskRegistry.reservesRetained,
			riskRegistry.globalDebt,
		)
	})
	return riskRegistry
}

func normalizeAsset(asset string) string {
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func (m *RiskMetrics) ObserveBreakerTrip(asset string) {
	if m == nil {
		return
	}
	m.breakerTrips.WithLabelValues(normalizeAsset(asset)).Inc()
}

func (m *RiskMetrics) ObserveStaleRejection(asset string) {
	if m == nil {
		return
	}
	m.staleRejections.WithLabelValues(normalizeAsset(asset)).Inc()
}

func (m *RiskMetrics) ObserveRoutingFailure() {
	if m == nil {
		return
	}
	m.routingFailures.Inc()
}

func (m *RiskMetrics) ObserveLiquidation(asset string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(normalizeAsset(asset)).Inc()
}

func (m *RiskMetrics) AddInterestAccrued(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.interestAccrued.Add(units)
}

func (m *RiskMetrics) AddReservesRetained(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.reservesRetained.Add(units)
}

func (m *RiskMetrics) SetGlobalDebt(units float64) {
	if m == nil {
		return
	}
	m.globalDebt.Set(units)
}
