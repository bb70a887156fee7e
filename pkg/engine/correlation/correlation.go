// Package correlation estimates pairwise correlation between betting
// opportunities from market and team metadata. It is rule-based: no price
// history is consulted, only the identity of the market, the teams, and the
// league.
package correlation

import (
	"math"

	"github.com/oddsforge/betengine/pkg/engine"
)

// Pairwise rule values, evaluated in priority order.
const (
	corrMutuallyExclusive = -1.0 // same market, different selection
	corrDuplicate         = 1.0  // same market, same selection
	corrSharedTeam        = 0.5  // a team appears in both matches
	corrSameLeague        = 0.3
	corrCrossLeague       = 0.1 // both leagues known, different
	corrUnknown           = 0.0 // insufficient metadata
)

// Estimator computes correlation matrices for opportunity sets.
// It is stateless and safe for concurrent use.
type Estimator struct{}

// NewEstimator creates a rule-based correlation estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Matrix returns the symmetric correlation matrix for the given
// opportunities, indexed by list order. Empty for no opportunities,
// [[1.0]] for a single one. Each unordered pair is evaluated once and
// mirrored, so symmetry holds by construction.
func (e *Estimator) Matrix(opps []engine.Opportunity) [][]float64 {
	n := len(opps)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := e.pairwise(opps[i], opps[j])
			m[i][j] = rho
			m[j][i] = rho
		}
	}
	return m
}

// pairwise applies the correlation rules in priority order; the first
// matching rule wins.
func (e *Estimator) pairwise(a, b engine.Opportunity) float64 {
	if a.MarketID == b.MarketID {
		if a.Selection != b.Selection {
			return corrMutuallyExclusive
		}
		return corrDuplicate
	}

	if sharesTeam(a, b) {
		return corrSharedTeam
	}

	leagueA := normalizeName(a.League)
	leagueB := normalizeName(b.League)
	switch {
	case leagueA == "" || leagueB == "":
		return corrUnknown
	case leagueA == leagueB:
		return corrSameLeague
	default:
		return corrCrossLeague
	}
}

// sharesTeam reports whether any team name appears in both matches.
func sharesTeam(a, b engine.Opportunity) bool {
	teamsA := []string{normalizeName(a.Home), normalizeName(a.Away)}
	teamsB := []string{normalizeName(b.Home), normalizeName(b.Away)}
	for _, ta := range teamsA {
		if ta == "" {
			continue
		}
		for _, tb := range teamsB {
			if ta == tb {
				return true
			}
		}
	}
	return false
}

// DiversificationScore summarizes how independent a set of opportunities is:
// 1 - mean(|off-diagonal correlation|). A fully independent set scores 1.0;
// a set of duplicates or mutually exclusive outcomes scores 0.0. Sets of
// fewer than two opportunities score 0.0 since diversification is undefined.
func (e *Estimator) DiversificationScore(opps []engine.Opportunity) float64 {
	n := len(opps)
	if n <= 1 {
		return 0.0
	}
	m := e.Matrix(opps)
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sum += math.Abs(m[i][j])
			count++
		}
	}
	return 1 - sum/float64(count)
}
