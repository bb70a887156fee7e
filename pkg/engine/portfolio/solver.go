package portfolio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// maximizeSharpe solves
//
//	max_w (w·ev - rf) / sqrt(wᵀ Σ w)
//	s.t.  Σw = 1, 0 <= w_i <= bound
//
// by projected gradient ascent from an equal-weight start, projecting each
// iterate back onto the capped simplex. When the configured cap cannot hold
// the unit sum (cap*n < 1) the box is relaxed to [0,1]; the aggregate
// portfolio budget still limits realized stakes. Returns the best iterate
// found and whether the loop converged; the caller treats non-convergence as
// a warning, not an error.
func (o *Optimizer) maximizeSharpe(evs []float64, cov *mat.SymDense) ([]float64, bool) {
	n := len(evs)
	bound := o.cfg.MaxPositionSize
	if bound*float64(n) < 1 {
		bound = 1
	}

	w := equalWeights(n)
	best := append([]float64(nil), w...)
	bestScore := o.sharpeAt(w, evs, cov)

	step := 0.5
	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		grad := o.sharpeGradient(w, evs, cov)

		gradNorm := norm(grad)
		if gradNorm < o.cfg.Tolerance {
			return best, true
		}

		candidate := make([]float64, n)
		for i := range w {
			candidate[i] = w[i] + step*grad[i]/gradNorm
		}
		projectCappedSimplex(candidate, bound)

		score := o.sharpeAt(candidate, evs, cov)
		if score > bestScore {
			bestScore = score
			copy(best, candidate)
			w = candidate
		} else {
			// No improvement at this step size; shrink and retry from the
			// current point.
			step *= 0.5
			if step < o.cfg.Tolerance {
				return best, true
			}
		}
	}
	return best, false
}

// sharpeAt evaluates the objective at w.
func (o *Optimizer) sharpeAt(weights, evs []float64, cov *mat.SymDense) float64 {
	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, cov, w)
	vol := 0.0
	if variance > 0 {
		vol = math.Sqrt(variance)
	}
	return sharpe(dot(weights, evs), vol, o.cfg.RiskFreeRate)
}

// sharpeGradient is the analytic gradient of the Sharpe objective:
//
//	∇S = ev/σ - (w·ev - rf) · Σw / σ³
//
// At zero volatility the direction of expected value is used instead.
func (o *Optimizer) sharpeGradient(weights, evs []float64, cov *mat.SymDense) []float64 {
	n := len(weights)
	w := mat.NewVecDense(n, weights)

	variance := mat.Inner(w, cov, w)
	if variance <= 0 {
		return append([]float64(nil), evs...)
	}
	vol := math.Sqrt(variance)

	var covW mat.VecDense
	covW.MulVec(cov, w)

	excess := dot(weights, evs) - o.cfg.RiskFreeRate
	grad := make([]float64, n)
	for i := 0; i < n; i++ {
		grad[i] = evs[i]/vol - excess*covW.AtVec(i)/(vol*vol*vol)
	}
	return grad
}

// projectCappedSimplex projects y in place onto
// {w : Σw = 1, 0 <= w_i <= bound} via bisection on the shift ν in
// w_i = clip(y_i - ν, 0, bound). The clipped sum is monotone in ν, so the
// bisection always brackets the unit-sum root when the set is feasible.
func projectCappedSimplex(y []float64, bound float64) {
	lo, hi := y[0], y[0]
	for _, v := range y[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	lo -= bound + 1
	hi += 1

	for iter := 0; iter < 100; iter++ {
		nu := (lo + hi) / 2
		sum := 0.0
		for _, v := range y {
			sum += clip(v-nu, 0, bound)
		}
		if sum > 1 {
			lo = nu
		} else {
			hi = nu
		}
	}

	nu := (lo + hi) / 2
	for i, v := range y {
		y[i] = clip(v-nu, 0, bound)
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
