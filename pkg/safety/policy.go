package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BetLimits defines the placement limits enforced on top of the kill switch.
type BetLimits struct {
	// Per-bet limits
	MaxStake decimal.Decimal
	MinStake decimal.Decimal

	// Exposure limits
	MaxMarketExposure decimal.Decimal // max open stake per market
	MaxTotalExposure  decimal.Decimal // max open stake across all markets

	// Daily limits
	MaxDailyLoss  decimal.Decimal
	MaxDailyStake decimal.Decimal
	MaxDailyBets  int

	// Cooldown after a losing settlement
	CooldownAfterLoss time.Duration

	// Market restrictions
	AllowedLeagues []string
	BlockedMarkets []string
}

// DefaultBetLimits returns conservative default limits.
func DefaultBetLimits() *BetLimits {
	return &BetLimits{
		MaxStake:          decimal.NewFromInt(500),
		MinStake:          decimal.NewFromInt(1),
		MaxMarketExposure: decimal.NewFromInt(1000),
		MaxTotalExposure:  decimal.NewFromInt(5000),
		MaxDailyLoss:      decimal.NewFromInt(500),
		MaxDailyStake:     decimal.NewFromInt(10_000),
		MaxDailyBets:      100,
		CooldownAfterLoss: 15 * time.Minute,
	}
}

// PolicyEngine enforces bet limits and tracks exposure state. It sits in
// front of the executor: every leg is checked before placement and recorded
// after.
type PolicyEngine struct {
	limits *BetLimits

	mu           sync.RWMutex
	exposure     map[string]decimal.Decimal // market -> open stake
	dailyLoss    decimal.Decimal
	dailyStake   decimal.Decimal
	dailyBets    int
	lastLossTime time.Time
	lastBetDay   int
}

// NewPolicyEngine creates a policy engine with the given limits, defaulting
// when nil.
func NewPolicyEngine(limits *BetLimits) *PolicyEngine {
	if limits == nil {
		limits = DefaultBetLimits()
	}
	return &PolicyEngine{
		limits:     limits,
		exposure:   make(map[string]decimal.Decimal),
		lastBetDay: time.Now().YearDay(),
	}
}

// CheckBet validates a prospective bet against the limits.
func (p *PolicyEngine) CheckBet(marketID, league string, stake float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDailyIfNeeded()

	if err := p.checkMarketAllowed(marketID, league); err != nil {
		return err
	}

	s := decimal.NewFromFloat(stake)
	if s.GreaterThan(p.limits.MaxStake) {
		return fmt.Errorf("stake %s exceeds max %s", s, p.limits.MaxStake)
	}
	if s.LessThan(p.limits.MinStake) {
		return fmt.Errorf("stake %s below min %s", s, p.limits.MinStake)
	}

	if p.dailyBets >= p.limits.MaxDailyBets {
		return fmt.Errorf("daily bet limit reached: %d", p.limits.MaxDailyBets)
	}
	if p.dailyStake.Add(s).GreaterThan(p.limits.MaxDailyStake) {
		return fmt.Errorf("would exceed daily stake limit %s", p.limits.MaxDailyStake)
	}
	if p.dailyLoss.GreaterThan(p.limits.MaxDailyLoss) {
		return fmt.Errorf("daily loss limit exceeded: %s", p.dailyLoss)
	}

	if p.exposure[marketID].Add(s).GreaterThan(p.limits.MaxMarketExposure) {
		return fmt.Errorf("market exposure would exceed limit %s", p.limits.MaxMarketExposure)
	}
	if p.totalExposure().Add(s).GreaterThan(p.limits.MaxTotalExposure) {
		return fmt.Errorf("total exposure would exceed limit %s", p.limits.MaxTotalExposure)
	}

	if !p.lastLossTime.IsZero() && time.Since(p.lastLossTime) < p.limits.CooldownAfterLoss {
		remaining := p.limits.CooldownAfterLoss - time.Since(p.lastLossTime)
		return fmt.Errorf("in cooldown after loss, %v remaining", remaining.Round(time.Second))
	}

	return nil
}

// RecordBet records a placed bet.
func (p *PolicyEngine) RecordBet(marketID string, stake float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDailyIfNeeded()
	s := decimal.NewFromFloat(stake)
	p.exposure[marketID] = p.exposure[marketID].Add(s)
	p.dailyStake = p.dailyStake.Add(s)
	p.dailyBets++
}

// RecordSettlement records a settled bet, releasing its exposure. pnl is
// the realized profit, negative on a loss.
func (p *PolicyEngine) RecordSettlement(marketID string, stake, pnl float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := decimal.NewFromFloat(stake)
	remaining := p.exposure[marketID].Sub(s)
	if remaining.IsPositive() {
		p.exposure[marketID] = remaining
	} else {
		delete(p.exposure, marketID)
	}

	if pnl < 0 {
		p.dailyLoss = p.dailyLoss.Add(decimal.NewFromFloat(-pnl))
		p.lastLossTime = time.Now()
	}
}

// MarketExposure returns the open stake in a market.
func (p *PolicyEngine) MarketExposure(marketID string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exposure[marketID]
}

// TotalExposure returns the open stake across all markets.
func (p *PolicyEngine) TotalExposure() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalExposure()
}

// PolicyStatus summarizes the current policy state for reporting surfaces.
type PolicyStatus struct {
	TotalExposure  string `json:"total_exposure"`
	MaxExposure    string `json:"max_exposure"`
	DailyLoss      string `json:"daily_loss"`
	MaxDailyLoss   string `json:"max_daily_loss"`
	DailyStake     string `json:"daily_stake"`
	MaxDailyStake  string `json:"max_daily_stake"`
	DailyBets      int    `json:"daily_bets"`
	MaxDailyBets   int    `json:"max_daily_bets"`
	InCooldown     bool   `json:"in_cooldown"`
	CooldownRemain string `json:"cooldown_remaining,omitempty"`
}

// Status returns the current policy status.
func (p *PolicyEngine) Status() PolicyStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := PolicyStatus{
		TotalExposure: p.totalExposure().String(),
		MaxExposure:   p.limits.MaxTotalExposure.String(),
		DailyLoss:     p.dailyLoss.String(),
		MaxDailyLoss:  p.limits.MaxDailyLoss.String(),
		DailyStake:    p.dailyStake.String(),
		MaxDailyStake: p.limits.MaxDailyStake.String(),
		DailyBets:     p.dailyBets,
		MaxDailyBets:  p.limits.MaxDailyBets,
	}
	if !p.lastLossTime.IsZero() && time.Since(p.lastLossTime) < p.limits.CooldownAfterLoss {
		status.InCooldown = true
		status.CooldownRemain = (p.limits.CooldownAfterLoss - time.Since(p.lastLossTime)).Round(time.Second).String()
	}
	return status
}

func (p *PolicyEngine) resetDailyIfNeeded() {
	now := time.Now()
	if p.lastBetDay != now.YearDay() {
		p.dailyLoss = decimal.Zero
		p.dailyStake = decimal.Zero
		p.dailyBets = 0
		p.lastBetDay = now.YearDay()
	}
}

func (p *PolicyEngine) totalExposure() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.exposure {
		total = total.Add(e)
	}
	return total
}

func (p *PolicyEngine) checkMarketAllowed(marketID, league string) error {
	for _, blocked := range p.limits.BlockedMarkets {
		if marketID == blocked {
			return fmt.Errorf("market %s is blocked", marketID)
		}
	}

	if len(p.limits.AllowedLeagues) > 0 {
		for _, allowed := range p.limits.AllowedLeagues {
			if league == allowed {
				return nil
			}
		}
		return fmt.Errorf("league %q is not in allowed list", league)
	}
	return nil
}
