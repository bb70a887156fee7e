// Package backtest replays historical bet records to compare staking
// strategies on realized bankroll evolution.
package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsforge/betengine/pkg/engine/staking"
)

// BetRecord is one settled historical bet: the model probability and odds
// at placement time plus the realized outcome.
type BetRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	MarketID    string    `json:"market_id"`
	Selection   string    `json:"selection"`
	Probability float64   `json:"probability"`
	Odds        float64   `json:"odds"`
	Won         bool      `json:"won"`
}

// LoadRecords reads a JSON array of bet records from a file.
func LoadRecords(path string) ([]BetRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	var records []BetRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}

// Strategy sizes each bet given the current bankroll and recent results.
type Strategy interface {
	Name() string
	Stake(record BetRecord, bankroll float64, recentPnL []float64) float64
}

// Result summarizes one strategy's run over the record set.
type Result struct {
	Strategy       string          `json:"strategy"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	FinalBalance   decimal.Decimal `json:"final_balance"`
	TotalReturn    float64         `json:"total_return"` // fraction
	TotalBets      int             `json:"total_bets"`
	SkippedBets    int             `json:"skipped_bets"` // zero-stake decisions
	WinningBets    int             `json:"winning_bets"`
	WinRate        float64         `json:"win_rate"`
	MaxDrawdown    float64         `json:"max_drawdown"` // fraction of peak
	EquityCurve    []float64       `json:"equity_curve,omitempty"`
}

// Run replays the records under the given strategy.
func Run(strategy Strategy, records []BetRecord, initialBalance float64) Result {
	result := Result{
		Strategy:       strategy.Name(),
		InitialBalance: decimal.NewFromFloat(initialBalance),
	}

	bankroll := initialBalance
	peak := initialBalance
	var recentPnL []float64

	for _, record := range records {
		stake := strategy.Stake(record, bankroll, recentPnL)
		if stake <= 0 || stake > bankroll {
			result.SkippedBets++
			continue
		}

		result.TotalBets++
		var pnl float64
		if record.Won {
			pnl = stake * (record.Odds - 1)
			result.WinningBets++
		} else {
			pnl = -stake
		}
		bankroll += pnl
		recentPnL = append(recentPnL, pnl)

		if bankroll > peak {
			peak = bankroll
		}
		if peak > 0 {
			drawdown := (peak - bankroll) / peak
			if drawdown > result.MaxDrawdown {
				result.MaxDrawdown = drawdown
			}
		}
		result.EquityCurve = append(result.EquityCurve, bankroll)

		if bankroll <= 0 {
			bankroll = 0
			break
		}
	}

	result.FinalBalance = decimal.NewFromFloat(bankroll)
	if initialBalance > 0 {
		result.TotalReturn = (bankroll - initialBalance) / initialBalance
	}
	if result.TotalBets > 0 {
		result.WinRate = float64(result.WinningBets) / float64(result.TotalBets)
	}
	return result
}

// RunAll replays the records under every strategy.
func RunAll(strategies []Strategy, records []BetRecord, initialBalance float64) []Result {
	results := make([]Result, 0, len(strategies))
	for _, s := range strategies {
		results = append(results, Run(s, records, initialBalance))
	}
	return results
}

// FlatStrategy stakes a fixed fraction of the initial bankroll.
type FlatStrategy struct {
	Fraction float64
	initial  float64
}

// NewFlatStrategy creates a flat staking strategy.
func NewFlatStrategy(fraction, initialBalance float64) *FlatStrategy {
	return &FlatStrategy{Fraction: fraction, initial: initialBalance}
}

func (s *FlatStrategy) Name() string { return "flat" }

func (s *FlatStrategy) Stake(record BetRecord, bankroll float64, _ []float64) float64 {
	return math.Min(s.Fraction*s.initial, bankroll)
}

// SizerStrategy wraps one of the engine staking methods.
type SizerStrategy struct {
	method string
	sizer  *staking.Sizer
	window int
}

// NewSizerStrategy creates a strategy around the named staking method:
// kelly, cvar, geometric, or dynamic.
func NewSizerStrategy(method string, sizer *staking.Sizer) *SizerStrategy {
	if sizer == nil {
		sizer = staking.NewSizer(staking.DefaultConfig())
	}
	return &SizerStrategy{method: method, sizer: sizer, window: 20}
}

func (s *SizerStrategy) Name() string { return s.method }

func (s *SizerStrategy) Stake(record BetRecord, bankroll float64, recentPnL []float64) float64 {
	switch s.method {
	case "cvar":
		return s.sizer.CVaRAdjustedStake(record.Probability, record.Odds, bankroll)
	case "geometric":
		return s.sizer.GeometricMeanStake(record.Probability, record.Odds, bankroll)
	case "dynamic":
		return s.sizer.DynamicStake(record.Probability, record.Odds, bankroll, recentPnL, s.window)
	default:
		return s.sizer.FractionalKelly(record.Probability, record.Odds, bankroll)
	}
}
