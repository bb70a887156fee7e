// Package engine holds the core betting types and the decision cycle that
// wires correlation estimation, portfolio optimization, and execution.
package engine

import (
	"fmt"
	"time"
)

// Opportunity is a candidate bet produced by an upstream odds/model scan.
// It is immutable once constructed and consumed within a single cycle.
type Opportunity struct {
	ID          string  `json:"id"`
	MarketID    string  `json:"market_id"`
	Selection   string  `json:"selection"`
	Probability float64 `json:"probability"` // model-estimated win probability
	Odds        float64 `json:"odds"`        // decimal odds, >= 1.0

	// Optional metadata used only by correlation heuristics.
	Home   string `json:"home,omitempty"`
	Away   string `json:"away,omitempty"`
	League string `json:"league,omitempty"`
}

// ExpectedValue returns the mean return per unit staked:
// p*(odds-1) - (1-p).
func (o Opportunity) ExpectedValue() float64 {
	return o.Probability*(o.Odds-1) - (1 - o.Probability)
}

// Edge is the difference between the model probability and the
// bookmaker-implied probability 1/odds. Zero when odds are degenerate.
func (o Opportunity) Edge() float64 {
	if o.Odds <= 0 {
		return 0
	}
	return o.Probability - 1/o.Odds
}

// Leg is one bet on one outcome at one bookmaker, part of a multi-leg
// arbitrage structure.
type Leg struct {
	Bookmaker string  `json:"bookmaker"`
	MarketID  string  `json:"market_id"`
	Selection string  `json:"selection"`
	Odds      float64 `json:"odds"`
	Stake     float64 `json:"stake"`
}

// ArbitrageOpportunity aggregates mutually exclusive legs whose combined
// payout is positive regardless of outcome.
type ArbitrageOpportunity struct {
	ID           string  `json:"id"`
	Legs         []Leg   `json:"legs"`
	ProfitMargin float64 `json:"profit_margin"` // fraction, > 0 required for execution
}

// IdempotencyKey derives the per-leg placement key. The same
// opportunity/selection pair always maps to the same key, so a replayed
// placement cannot double-book a leg.
func (a ArbitrageOpportunity) IdempotencyKey(leg Leg) string {
	return fmt.Sprintf("%s_%s", a.ID, leg.Selection)
}

// TotalStake sums the precomputed stakes across all legs.
func (a ArbitrageOpportunity) TotalStake() float64 {
	var total float64
	for _, leg := range a.Legs {
		total += leg.Stake
	}
	return total
}

// ExpectedProfit is the guaranteed profit implied by the margin.
func (a ArbitrageOpportunity) ExpectedProfit() float64 {
	return a.TotalStake() * a.ProfitMargin
}

// ExecutionStatus is the terminal classification of one execution attempt.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusPartial ExecutionStatus = "partial" // some legs live and unhedged
	StatusFailed  ExecutionStatus = "failed"
	StatusTimeout ExecutionStatus = "timeout"
)

// LegResult records the outcome of a single leg placement.
type LegResult struct {
	Bookmaker string  `json:"bookmaker"`
	Selection string  `json:"selection"`
	Stake     float64 `json:"stake"`
	Odds      float64 `json:"odds"`
	BetID     string  `json:"bet_id,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ExecutionResult is created fresh per execution attempt and never mutated
// after return. Persistence is the caller's concern.
type ExecutionResult struct {
	AttemptID     string          `json:"attempt_id"`
	OpportunityID string          `json:"opportunity_id"`
	Status        ExecutionStatus `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	LegsPlaced    []LegResult     `json:"legs_placed"`
	LegsFailed    []LegResult     `json:"legs_failed"`
	ExecutionTime time.Duration   `json:"execution_time"`
	SuccessRate   float64         `json:"success_rate"`
	Timestamp     time.Time       `json:"timestamp"`
}
