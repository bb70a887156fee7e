// Package staking provides single-opportunity stake sizing primitives:
// fractional Kelly and its CVaR-adjusted, growth-optimal, and
// performance-adaptive variants. All functions are pure and total on
// well-formed numeric input; domain validation of probabilities and odds is
// an upstream concern.
package staking

import (
	"github.com/oddsforge/betengine/pkg/engine"
)

// Config holds the staking parameters. Zero values are replaced with the
// defaults below.
type Config struct {
	KellyFraction    float64 // fraction of full Kelly to stake (default 0.25)
	MaxStakeFraction float64 // per-bet cap as fraction of bankroll (default 0.05)
}

// DefaultConfig returns the conservative defaults: quarter Kelly, 5% cap.
func DefaultConfig() Config {
	return Config{
		KellyFraction:    0.25,
		MaxStakeFraction: 0.05,
	}
}

// Sizer computes stakes under a fixed configuration. It holds no mutable
// state and is safe for concurrent use.
type Sizer struct {
	cfg Config
}

// NewSizer creates a sizer, filling unset config fields with defaults.
func NewSizer(cfg Config) *Sizer {
	defaults := DefaultConfig()
	if cfg.KellyFraction == 0 {
		cfg.KellyFraction = defaults.KellyFraction
	}
	if cfg.MaxStakeFraction == 0 {
		cfg.MaxStakeFraction = defaults.MaxStakeFraction
	}
	return &Sizer{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Sizer) Config() Config {
	return s.cfg
}

// rawKelly returns the full-Kelly fraction edge/b, or 0 when the bet has no
// positive edge or no payout. Kelly is defined as zero, never negative.
func rawKelly(winProb, odds float64) float64 {
	b := odds - 1
	if b <= 0 {
		return 0
	}
	edge := winProb - 1/odds
	if edge <= 0 {
		return 0
	}
	return edge / b
}

// clampStake bounds a stake to [0, maxFraction*bankroll].
func clampStake(stake, bankroll, maxFraction float64) float64 {
	if stake <= 0 {
		return 0
	}
	if limit := maxFraction * bankroll; stake > limit {
		return limit
	}
	return stake
}

// FractionalKelly returns the fractional-Kelly stake for a single bet,
// capped at MaxStakeFraction of the bankroll.
func (s *Sizer) FractionalKelly(winProb, odds, bankroll float64) float64 {
	stake := rawKelly(winProb, odds) * s.cfg.KellyFraction * bankroll
	return clampStake(stake, bankroll, s.cfg.MaxStakeFraction)
}

// CVaRAdjustedStake de-risks the fractional-Kelly stake linearly in the loss
// probability: stake * (1 - 0.5*(1-p)). A certain winner keeps the full
// stake; a coin flip keeps 75% of it.
func (s *Sizer) CVaRAdjustedStake(winProb, odds, bankroll float64) float64 {
	base := s.FractionalKelly(winProb, odds, bankroll)
	adjusted := base * (1 - 0.5*(1-winProb))
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// GeometricMeanStake sizes for maximal long-run logarithmic growth. The
// optimum coincides with the Kelly fraction, so the derivation is shared;
// degenerate inputs (certain outcomes, no payout) stake nothing.
func (s *Sizer) GeometricMeanStake(winProb, odds, bankroll float64) float64 {
	if winProb <= 0 || winProb >= 1 || odds <= 1 {
		return 0
	}
	return s.FractionalKelly(winProb, odds, bankroll)
}

// DynamicStake scales the fractional-Kelly stake by recent realized
// performance. The win rate over the last window entries of recentPnL
// (positive = win) raises the stake by up to 20% on a hot streak and cuts it
// by up to 40% on a cold one. Empty history leaves the base stake unchanged.
// The result is re-clamped to the per-bet cap.
func (s *Sizer) DynamicStake(winProb, odds, bankroll float64, recentPnL []float64, window int) float64 {
	base := s.FractionalKelly(winProb, odds, bankroll)
	if len(recentPnL) == 0 || window <= 0 {
		return base
	}

	if len(recentPnL) > window {
		recentPnL = recentPnL[len(recentPnL)-window:]
	}
	wins := 0
	for _, pnl := range recentPnL {
		if pnl > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(recentPnL))

	multiplier := 1.0
	switch {
	case winRate > 0.6:
		boost := (winRate - 0.6) * 0.5
		if boost > 0.2 {
			boost = 0.2
		}
		multiplier = 1 + boost
	case winRate < 0.4:
		cut := (0.4 - winRate) * 1.0
		if cut > 0.4 {
			cut = 0.4
		}
		multiplier = 1 - cut
	}

	return clampStake(base*multiplier, bankroll, s.cfg.MaxStakeFraction)
}

// ProportionalAllocate splits MaxStakeFraction of the bankroll across bets
// in proportion to their positive expected value. It is the lightweight
// alternative to full portfolio optimization. Returns an all-zero vector
// when no bet has positive EV.
func (s *Sizer) ProportionalAllocate(opps []engine.Opportunity, bankroll float64) []float64 {
	stakes := make([]float64, len(opps))
	evs := make([]float64, len(opps))
	var total float64
	for i, o := range opps {
		if ev := o.ExpectedValue(); ev > 0 {
			evs[i] = ev
			total += ev
		}
	}
	if total <= 0 {
		return stakes
	}
	budget := bankroll * s.cfg.MaxStakeFraction
	for i := range opps {
		stakes[i] = budget * (evs[i] / total)
	}
	return stakes
}
