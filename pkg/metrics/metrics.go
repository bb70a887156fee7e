// Package metrics provides Prometheus metrics for the betting engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics collects and exposes engine-related Prometheus metrics.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Staking metrics
	StakesTotal *prometheus.CounterVec
	StakeSize   *prometheus.HistogramVec
	KellyEdge   *prometheus.HistogramVec

	// Portfolio metrics
	OptimizationsTotal *prometheus.CounterVec
	OptimizationTime   *prometheus.HistogramVec
	PortfolioSharpe    prometheus.Gauge
	Diversification    prometheus.Gauge
	AllocatedStake     prometheus.Gauge

	// Execution metrics
	ExecutionsTotal *prometheus.CounterVec
	ExecutionTime   *prometheus.HistogramVec
	LegsPlaced      *prometheus.CounterVec
	ExecutionProfit *prometheus.HistogramVec

	// Safety metrics
	KillSwitchActive prometheus.Gauge
	KillSwitchTrips  prometheus.Counter

	// Bookmaker metrics
	BetRequestsTotal *prometheus.CounterVec
	Bankroll         prometheus.Gauge
}

// New creates an engine metrics collector backed by a private registry.
func New() *EngineMetrics {
	registry := prometheus.NewRegistry()

	m := &EngineMetrics{
		registry: registry,

		StakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_stakes_total",
				Help: "Total number of stakes sized",
			},
			[]string{"method"},
		),
		StakeSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betengine_stake_size",
				Help:    "Stake sizes in account currency",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"method"},
		),
		KellyEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betengine_kelly_edge",
				Help:    "Edge of sized opportunities",
				Buckets: prometheus.LinearBuckets(0, 0.02, 15),
			},
			[]string{"method"},
		),

		OptimizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_optimizations_total",
				Help: "Total number of portfolio optimizations",
			},
			[]string{"outcome"},
		),
		OptimizationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betengine_optimization_seconds",
				Help:    "Portfolio optimization wall time",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"outcome"},
		),
		PortfolioSharpe: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betengine_portfolio_sharpe",
			Help: "Sharpe ratio of the last optimized portfolio",
		}),
		Diversification: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betengine_portfolio_positions",
			Help: "Number of positions in the last optimized portfolio",
		}),
		AllocatedStake: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betengine_allocated_stake",
			Help: "Total stake allocated by the last optimization",
		}),

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_executions_total",
				Help: "Total number of arbitrage executions by status",
			},
			[]string{"status"},
		),
		ExecutionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betengine_execution_seconds",
				Help:    "Arbitrage execution wall time",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"status"},
		),
		LegsPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_legs_total",
				Help: "Total arbitrage legs by bookmaker and outcome",
			},
			[]string{"bookmaker", "outcome"},
		),
		ExecutionProfit: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betengine_execution_profit",
				Help:    "Expected profit of executed arbitrages",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"status"},
		),

		KillSwitchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betengine_kill_switch_active",
			Help: "Whether the kill switch is currently active (0 or 1)",
		}),
		KillSwitchTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "betengine_kill_switch_trips_total",
			Help: "Total number of kill switch activations",
		}),

		BetRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_bet_requests_total",
				Help: "Total bet placement requests by bookmaker and status",
			},
			[]string{"bookmaker", "status"},
		),
		Bankroll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betengine_bankroll",
			Help: "Current bankroll in account currency",
		}),
	}

	m.registerAll()
	return m
}

func (m *EngineMetrics) registerAll() {
	m.registry.MustRegister(
		m.StakesTotal,
		m.StakeSize,
		m.KellyEdge,
		m.OptimizationsTotal,
		m.OptimizationTime,
		m.PortfolioSharpe,
		m.Diversification,
		m.AllocatedStake,
		m.ExecutionsTotal,
		m.ExecutionTime,
		m.LegsPlaced,
		m.ExecutionProfit,
		m.KillSwitchActive,
		m.KillSwitchTrips,
		m.BetRequestsTotal,
		m.Bankroll,
	)
}

// Registry returns the prometheus registry.
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStake records a sized stake.
func (m *EngineMetrics) RecordStake(method string, stake, edge float64) {
	m.StakesTotal.WithLabelValues(method).Inc()
	if stake > 0 {
		m.StakeSize.WithLabelValues(method).Observe(stake)
	}
	if edge > 0 {
		m.KellyEdge.WithLabelValues(method).Observe(edge)
	}
}

// RecordOptimization records a portfolio optimization run.
func (m *EngineMetrics) RecordOptimization(outcome string, durationSec, sharpe, totalStake float64, positions int) {
	m.OptimizationsTotal.WithLabelValues(outcome).Inc()
	m.OptimizationTime.WithLabelValues(outcome).Observe(durationSec)
	m.PortfolioSharpe.Set(sharpe)
	m.Diversification.Set(float64(positions))
	m.AllocatedStake.Set(totalStake)
}

// RecordExecution records an arbitrage execution result.
func (m *EngineMetrics) RecordExecution(status string, durationSec, expectedProfit float64) {
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionTime.WithLabelValues(status).Observe(durationSec)
	m.ExecutionProfit.WithLabelValues(status).Observe(expectedProfit)
}

// RecordLeg records a single leg placement outcome.
func (m *EngineMetrics) RecordLeg(bookmaker, outcome string) {
	m.LegsPlaced.WithLabelValues(bookmaker, outcome).Inc()
}

// SetKillSwitch updates the kill switch gauge, counting activations.
func (m *EngineMetrics) SetKillSwitch(active bool) {
	if active {
		m.KillSwitchActive.Set(1)
		m.KillSwitchTrips.Inc()
	} else {
		m.KillSwitchActive.Set(0)
	}
}

// RecordBetRequest records a bookmaker placement attempt.
func (m *EngineMetrics) RecordBetRequest(bookmaker, status string) {
	m.BetRequestsTotal.WithLabelValues(bookmaker, status).Inc()
}

// SetBankroll updates the bankroll gauge.
func (m *EngineMetrics) SetBankroll(bankroll float64) {
	m.Bankroll.Set(bankroll)
}
