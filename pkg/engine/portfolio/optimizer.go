// Package portfolio computes correlation-aware stake allocations over
// simultaneous betting opportunities by maximizing the portfolio Sharpe
// ratio under per-position and aggregate caps.
package portfolio

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/engine"
)

// Config holds the optimizer parameters. Zero values are replaced with the
// defaults below.
type Config struct {
	// KellyFraction scales the single-opportunity degenerate case.
	KellyFraction float64 // default 0.25
	// MaxPositionSize caps any single position's share of the portfolio.
	MaxPositionSize float64 // default 0.25
	// PortfolioFraction is the share of the bankroll the whole portfolio may
	// commit. This cap, not the optimizer, is the actual safety backstop.
	PortfolioFraction float64 // default 0.05
	// RiskFreeRate is the Sharpe objective baseline.
	RiskFreeRate float64
	// MinStake drops dust allocations from the result.
	MinStake float64 // default 0.01 currency units
	// MaxIterations bounds the solver loop.
	MaxIterations int // default 200
	// Tolerance is the gradient-norm convergence threshold.
	Tolerance float64 // default 1e-6
}

// DefaultConfig returns the standard optimizer parameters.
func DefaultConfig() Config {
	return Config{
		KellyFraction:     0.25,
		MaxPositionSize:   0.25,
		PortfolioFraction: 0.05,
		MinStake:          0.01,
		MaxIterations:     200,
		Tolerance:         1e-6,
	}
}

// Allocation is one sized position in the optimized portfolio.
type Allocation struct {
	Opportunity engine.Opportunity `json:"opportunity"`
	Weight      float64            `json:"weight"` // share of portfolio budget
	Stake       float64            `json:"stake"`  // currency units
}

// Metrics summarizes a portfolio's risk/return profile. They are computed
// from the full weight vector, before dust filtering.
type Metrics struct {
	ExpectedReturn  float64 `json:"expected_return"`
	Volatility      float64 `json:"volatility"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	Diversification int     `json:"diversification"` // surviving allocation count
}

// Result pairs the filtered allocations with the portfolio metrics.
type Result struct {
	Allocations []Allocation `json:"allocations"`
	Metrics     Metrics      `json:"metrics"`
}

// TotalStake sums the committed stakes across allocations.
func (r Result) TotalStake() float64 {
	var total float64
	for _, a := range r.Allocations {
		total += a.Stake
	}
	return total
}

// Optimizer computes max-Sharpe allocations. It is stateless apart from its
// configuration and safe for concurrent use.
type Optimizer struct {
	cfg Config
	log *zap.Logger
}

// New creates an optimizer, filling unset config fields with defaults.
func New(cfg Config, log *zap.Logger) *Optimizer {
	defaults := DefaultConfig()
	if cfg.KellyFraction == 0 {
		cfg.KellyFraction = defaults.KellyFraction
	}
	if cfg.MaxPositionSize == 0 {
		cfg.MaxPositionSize = defaults.MaxPositionSize
	}
	if cfg.PortfolioFraction == 0 {
		cfg.PortfolioFraction = defaults.PortfolioFraction
	}
	if cfg.MinStake == 0 {
		cfg.MinStake = defaults.MinStake
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = defaults.Tolerance
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Optimizer{cfg: cfg, log: log}
}

// Optimize computes the stake allocation for the given opportunities. A nil
// correlation matrix means independent opportunities (identity). The result
// never commits more than PortfolioFraction of the bankroll in total, and no
// single stake exceeds MaxPositionSize of the committed budget.
func (o *Optimizer) Optimize(opps []engine.Opportunity, bankroll float64, corr [][]float64) Result {
	switch len(opps) {
	case 0:
		return Result{}
	case 1:
		return o.single(opps[0], bankroll)
	}

	n := len(opps)
	evs := make([]float64, n)
	for i, opp := range opps {
		evs[i] = opp.ExpectedValue()
	}

	cov, degenerate := o.covariance(opps, corr)

	var weights []float64
	if degenerate {
		// All-zero variance or NaN covariance: no basis for risk weighting.
		// Deterministic equal-weight fallback rather than propagating NaN.
		o.log.Warn("degenerate covariance, falling back to equal weights",
			zap.Int("opportunities", n))
		weights = equalWeights(n)
	} else {
		var converged bool
		weights, converged = o.maximizeSharpe(evs, cov)
		if !converged {
			o.log.Warn("sharpe optimization did not converge, using best iterate",
				zap.Int("opportunities", n),
				zap.Int("max_iterations", o.cfg.MaxIterations))
		}
	}

	metrics := o.metricsFor(weights, evs, cov)

	budget := bankroll * o.cfg.PortfolioFraction
	allocations := make([]Allocation, 0, n)
	for i, w := range weights {
		stake := w * budget
		if stake < o.cfg.MinStake {
			continue
		}
		allocations = append(allocations, Allocation{
			Opportunity: opps[i],
			Weight:      w,
			Stake:       stake,
		})
	}
	metrics.Diversification = len(allocations)

	return Result{Allocations: allocations, Metrics: metrics}
}

// single handles the N=1 degenerate case: plain fractional-Kelly sizing
// expressed as a bankroll weight clamped to the position cap.
func (o *Optimizer) single(opp engine.Opportunity, bankroll float64) Result {
	weight := 0.0
	if b := opp.Odds - 1; b > 0 {
		if edge := opp.Edge(); edge > 0 {
			weight = edge / b * o.cfg.KellyFraction
		}
	}
	if weight > o.cfg.MaxPositionSize {
		weight = o.cfg.MaxPositionSize
	}

	stake := weight * bankroll
	if stake < o.cfg.MinStake {
		return Result{Metrics: Metrics{ExpectedReturn: opp.ExpectedValue()}}
	}

	ev := opp.ExpectedValue()
	vol := math.Sqrt(opp.Probability*(1-opp.Probability)) * (opp.Odds - 1)
	return Result{
		Allocations: []Allocation{{Opportunity: opp, Weight: weight, Stake: stake}},
		Metrics: Metrics{
			ExpectedReturn:  ev,
			Volatility:      vol,
			SharpeRatio:     sharpe(ev, vol, o.cfg.RiskFreeRate),
			Diversification: 1,
		},
	}
}

// PortfolioMetrics recomputes the risk/return metrics for an
// already-decided allocation, with weights derived from stake shares.
func (o *Optimizer) PortfolioMetrics(allocations []Allocation, corr [][]float64) Metrics {
	n := len(allocations)
	if n == 0 {
		return Metrics{}
	}

	var total float64
	for _, a := range allocations {
		total += a.Stake
	}
	if total <= 0 {
		return Metrics{}
	}

	opps := make([]engine.Opportunity, n)
	evs := make([]float64, n)
	weights := make([]float64, n)
	for i, a := range allocations {
		opps[i] = a.Opportunity
		evs[i] = a.Opportunity.ExpectedValue()
		weights[i] = a.Stake / total
	}

	cov, degenerate := o.covariance(opps, corr)
	if degenerate {
		return Metrics{
			ExpectedReturn:  dot(weights, evs),
			Diversification: n,
		}
	}
	m := o.metricsFor(weights, evs, cov)
	m.Diversification = n
	return m
}

// covariance builds the covariance matrix from the per-opportunity variance
// proxy var_i = p(1-p)(odds-1)^2 and the supplied correlation matrix
// (identity when nil). The degenerate flag is set when the matrix carries no
// usable risk information.
func (o *Optimizer) covariance(opps []engine.Opportunity, corr [][]float64) (*mat.SymDense, bool) {
	n := len(opps)
	sd := make([]float64, n)
	var maxSD float64
	for i, opp := range opps {
		sd[i] = math.Sqrt(opp.Probability*(1-opp.Probability)) * (opp.Odds - 1)
		if sd[i] > maxSD {
			maxSD = sd[i]
		}
	}

	cov := mat.NewSymDense(n, nil)
	bad := maxSD <= 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			rho := 0.0
			if i == j {
				rho = 1.0
			} else if corr != nil && i < len(corr) && j < len(corr[i]) {
				rho = corr[i][j]
			}
			v := sd[i] * sd[j] * rho
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad = true
				v = 0
			}
			cov.SetSym(i, j, v)
		}
	}
	return cov, bad
}

// metricsFor evaluates return, volatility, and Sharpe for a weight vector.
func (o *Optimizer) metricsFor(weights, evs []float64, cov *mat.SymDense) Metrics {
	w := mat.NewVecDense(len(weights), weights)
	er := dot(weights, evs)
	variance := mat.Inner(w, cov, w)
	vol := 0.0
	if variance > 0 {
		vol = math.Sqrt(variance)
	}
	return Metrics{
		ExpectedReturn: er,
		Volatility:     vol,
		SharpeRatio:    sharpe(er, vol, o.cfg.RiskFreeRate),
	}
}

// sharpe returns 0 rather than dividing by zero volatility.
func sharpe(expectedReturn, volatility, riskFree float64) float64 {
	if volatility <= 0 {
		return 0
	}
	return (expectedReturn - riskFree) / volatility
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}
