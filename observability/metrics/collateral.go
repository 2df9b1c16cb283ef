package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CollateralMetrics tracks accounting engine activity and the global solvency
// snapshot.
type CollateralMetrics struct {
	operations      *prometheus.CounterVec
	liquidations    prometheus.Counter
	quotaThrottles  prometheus.Counter
	debtSupply      prometheus.Gauge
	collateralValue prometheus.Gauge
}

var (
	collateralOnce     sync.Once
	collateralRegistry *CollateralMetrics
)

func Collateral() *CollateralMetrics {
	collateralOnce.Do(func() {
		collateralRegistry = &CollateralMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "collateral_operations_total",
				Help: "Count of engine operations by kind and outcome.",
			}, []string{"op", "outcome"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_liquidations_total",
				Help: "Count of completed liquidations.",
			}),
			quotaThrottles: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_quota_throttles_total",
				Help: "Count of mints rejected by the issuance quota.",
			}),
			debtSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "collateral_debt_supply_usd",
				Help: "Outstanding debt token supply in whole dollars.",
			}),
			collateralValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "collateral_value_usd",
				Help: "Total USD value of collateral held in custody.",
			}),
		}
		prometheus.MustRegister(
			collateralRegistry.operations,
			collateralRegistry.liquidations,
			collateralRegistry.quotaThrottles,
			collateralRegistry.debtSupply,
			collateralRegistry.collateralValue,
		)
	})
	return collateralRegistry
}

// RecordOperation increments the engine operation counter.
func (m *CollateralMetrics) RecordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// RecordLiquidation counts a completed liquidation.
func (m *CollateralMetrics) RecordLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// RecordQuotaThrottle counts a mint rejected by the issuance quota.
func (m *CollateralMetrics) RecordQuotaThrottle() {
	if m == nil {
		return
	}
	m.quotaThrottles.Inc()
}

// SetSolvency publishes the global solvency snapshot. Values arrive as 1e18
// fixed-point wei and are rendered as whole dollars for the gauge.
func (m *CollateralMetrics) SetSolvency(collateralValueWei, debtSupplyWei *big.Int) {
	if m == nil {
		return
	}
	m.collateralValue.Set(weiToDollars(collateralValueWei))
	m.debtSupply.Set(weiToDollars(debtSupplyWei))
}

func weiToDollars(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18),
	).Float64()
	return value
}
