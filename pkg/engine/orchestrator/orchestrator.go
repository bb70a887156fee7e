// Package orchestrator coordinates the betting decision cycle: opportunity
// intake, correlation estimation, portfolio optimization, and arbitrage
// execution, gated by the kill switch.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/bookmaker"
	"github.com/oddsforge/betengine/pkg/engine"
	"github.com/oddsforge/betengine/pkg/engine/arbitrage"
	"github.com/oddsforge/betengine/pkg/engine/correlation"
	"github.com/oddsforge/betengine/pkg/engine/portfolio"
	"github.com/oddsforge/betengine/pkg/engine/staking"
	"github.com/oddsforge/betengine/pkg/metrics"
	"github.com/oddsforge/betengine/pkg/safety"
)

// OpportunitySource supplies candidate bets for a decision cycle. Odds feed
// adapters and model scanners implement this.
type OpportunitySource interface {
	Fetch(ctx context.Context) ([]engine.Opportunity, error)
}

// KillSwitch gates live allocation and execution.
type KillSwitch interface {
	IsKillSwitchActive(ctx context.Context) bool
}

// Config configures the decision cycle.
type Config struct {
	// Bankroll is the starting bankroll.
	Bankroll float64
	// MinEdge filters opportunities below this edge before optimization.
	MinEdge float64
	// CycleInterval paces the Start loop.
	CycleInterval time.Duration
	// DryRun disables the kill-switch gate on allocation; execution still
	// routes through the executor's own dry-run handling.
	DryRun bool
}

// DefaultConfig returns default cycle configuration.
func DefaultConfig() Config {
	return Config{
		Bankroll:      10_000,
		MinEdge:       0.01,
		CycleInterval: time.Minute,
		DryRun:        true,
	}
}

// Orchestrator runs the decision cycle.
type Orchestrator struct {
	config    Config
	estimator *correlation.Estimator
	sizer     *staking.Sizer
	optimizer *portfolio.Optimizer
	executor  *arbitrage.Executor
	registry  *bookmaker.Registry
	safety    KillSwitch
	policy    *safety.PolicyEngine
	metrics   *metrics.EngineMetrics
	log       *zap.Logger

	mu       sync.RWMutex
	bankroll float64
	running  bool
	stopCh   chan struct{}
	lastRun  time.Time

	// Callbacks
	onAllocation func(portfolio.Result)
	onExecution  func(engine.ExecutionResult)
	onError      func(error)
}

// New creates an orchestrator. estimator, sizer, and optimizer fall back to
// defaults when nil; executor, registry, and safety are required for
// execution paths but may be nil in allocation-only setups.
func New(
	config Config,
	estimator *correlation.Estimator,
	sizer *staking.Sizer,
	optimizer *portfolio.Optimizer,
	executor *arbitrage.Executor,
	registry *bookmaker.Registry,
	safety KillSwitch,
	m *metrics.EngineMetrics,
	log *zap.Logger,
) *Orchestrator {
	if estimator == nil {
		estimator = correlation.NewEstimator()
	}
	if sizer == nil {
		sizer = staking.NewSizer(staking.DefaultConfig())
	}
	if optimizer == nil {
		optimizer = portfolio.New(portfolio.DefaultConfig(), log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		config:    config,
		estimator: estimator,
		sizer:     sizer,
		optimizer: optimizer,
		executor:  executor,
		registry:  registry,
		safety:    safety,
		metrics:   m,
		log:       log,
		bankroll:  config.Bankroll,
		stopCh:    make(chan struct{}),
	}
}

// SetPolicy installs a bet policy engine checked before every execution.
func (o *Orchestrator) SetPolicy(p *safety.PolicyEngine) {
	o.policy = p
}

// Policy returns the installed policy engine, nil when none is set.
func (o *Orchestrator) Policy() *safety.PolicyEngine {
	return o.policy
}

// OnAllocation sets a callback invoked after each allocation cycle.
func (o *Orchestrator) OnAllocation(fn func(portfolio.Result)) {
	o.onAllocation = fn
}

// OnExecution sets a callback invoked after each arbitrage execution.
func (o *Orchestrator) OnExecution(fn func(engine.ExecutionResult)) {
	o.onExecution = fn
}

// OnError sets a callback for cycle errors.
func (o *Orchestrator) OnError(fn func(error)) {
	o.onError = fn
}

// Bankroll returns the current bankroll.
func (o *Orchestrator) Bankroll() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bankroll
}

// SetBankroll replaces the bankroll, typically after settlement sync.
func (o *Orchestrator) SetBankroll(bankroll float64) {
	o.mu.Lock()
	o.bankroll = bankroll
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.SetBankroll(bankroll)
	}
}

// Start runs the decision cycle on the configured interval until the
// context is cancelled or Stop is called. source supplies opportunities.
func (o *Orchestrator) Start(ctx context.Context, source OpportunitySource) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.log.Info("decision cycle started",
		zap.Duration("interval", o.config.CycleInterval),
		zap.Bool("dry_run", o.config.DryRun))

	ticker := time.NewTicker(o.config.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.stopCh:
			return nil
		case <-ticker.C:
			if err := o.RunOnce(ctx, source); err != nil {
				o.handleError(err)
			}
		}
	}
}

// Stop signals the Start loop to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		close(o.stopCh)
	}
}

// IsRunning reports whether the Start loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// LastRun returns the time of the last completed cycle.
func (o *Orchestrator) LastRun() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastRun
}

// RunOnce executes a single decision cycle: fetch, allocate, report.
func (o *Orchestrator) RunOnce(ctx context.Context, source OpportunitySource) error {
	opps, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching opportunities: %w", err)
	}

	result, err := o.Allocate(ctx, opps)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.lastRun = time.Now()
	o.mu.Unlock()

	o.log.Info("cycle complete",
		zap.Int("candidates", len(opps)),
		zap.Int("allocations", len(result.Allocations)),
		zap.Float64("total_stake", result.TotalStake()),
		zap.Float64("sharpe", result.Metrics.SharpeRatio))
	return nil
}

// Allocate filters the candidates, estimates correlations, and runs the
// portfolio optimizer against the current bankroll. Live allocation is
// refused while the kill switch is active.
func (o *Orchestrator) Allocate(ctx context.Context, opps []engine.Opportunity) (portfolio.Result, error) {
	if !o.config.DryRun && o.safety != nil && o.safety.IsKillSwitchActive(ctx) {
		return portfolio.Result{}, fmt.Errorf("kill switch active, allocation refused")
	}

	candidates := make([]engine.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if opp.Edge() >= o.config.MinEdge {
			candidates = append(candidates, opp)
		}
	}
	if len(candidates) < len(opps) {
		o.log.Debug("filtered low-edge opportunities",
			zap.Int("in", len(opps)), zap.Int("kept", len(candidates)))
	}

	corr := o.estimator.Matrix(candidates)

	start := time.Now()
	result := o.optimizer.Optimize(candidates, o.Bankroll(), corr)
	elapsed := time.Since(start)

	if o.metrics != nil {
		outcome := "optimized"
		if len(result.Allocations) == 0 {
			outcome = "empty"
		}
		o.metrics.RecordOptimization(outcome, elapsed.Seconds(),
			result.Metrics.SharpeRatio, result.TotalStake(), len(result.Allocations))
	}
	if o.onAllocation != nil {
		o.onAllocation(result)
	}
	return result, nil
}

// ExecuteArbitrage routes an arbitrage opportunity through the executor
// using the registered bookmaker clients.
func (o *Orchestrator) ExecuteArbitrage(ctx context.Context, opp engine.ArbitrageOpportunity) (engine.ExecutionResult, error) {
	if o.executor == nil || o.registry == nil {
		return engine.ExecutionResult{}, fmt.Errorf("execution not configured")
	}

	if o.policy != nil {
		for _, leg := range opp.Legs {
			if err := o.policy.CheckBet(leg.MarketID, "", leg.Stake); err != nil {
				return engine.ExecutionResult{}, fmt.Errorf("policy violation on %s/%s: %w",
					leg.Bookmaker, leg.Selection, err)
			}
		}
	}

	result := o.executor.Execute(ctx, opp, o.registry.Clients())

	if o.policy != nil {
		for _, leg := range result.LegsPlaced {
			o.policy.RecordBet(legMarket(opp, leg), leg.Stake)
		}
	}

	if o.metrics != nil {
		o.metrics.RecordExecution(string(result.Status),
			result.ExecutionTime.Seconds(), opp.ExpectedProfit())
		for _, leg := range result.LegsPlaced {
			o.metrics.RecordLeg(leg.Bookmaker, "placed")
		}
		for _, leg := range result.LegsFailed {
			o.metrics.RecordLeg(leg.Bookmaker, "failed")
		}
	}
	if o.onExecution != nil {
		o.onExecution(result)
	}
	return result, nil
}

// PlaceAllocations places each allocation as a single value bet with the
// named bookmaker. Placement is refused while the kill switch is active in
// live mode. Individual bet failures are logged and skipped; the receipts
// for the bets that went through are returned.
func (o *Orchestrator) PlaceAllocations(ctx context.Context, bookmakerName string, result portfolio.Result) ([]bookmaker.BetReceipt, error) {
	if o.registry == nil {
		return nil, fmt.Errorf("execution not configured")
	}
	if !o.config.DryRun && o.safety != nil && o.safety.IsKillSwitchActive(ctx) {
		return nil, fmt.Errorf("kill switch active, placement refused")
	}
	client, err := o.registry.Get(bookmakerName)
	if err != nil {
		return nil, err
	}

	var receipts []bookmaker.BetReceipt
	for _, alloc := range result.Allocations {
		opp := alloc.Opportunity
		if o.policy != nil {
			if err := o.policy.CheckBet(opp.MarketID, opp.League, alloc.Stake); err != nil {
				o.log.Warn("allocation blocked by policy",
					zap.String("market", opp.MarketID), zap.Error(err))
				continue
			}
		}

		receipt, err := client.PlaceBet(ctx, bookmaker.BetRequest{
			MarketID:       opp.MarketID,
			Selection:      opp.Selection,
			Stake:          alloc.Stake,
			Odds:           opp.Odds,
			IdempotencyKey: fmt.Sprintf("%s_%s", opp.ID, opp.Selection),
		})
		if err != nil {
			o.log.Warn("value bet failed",
				zap.String("market", opp.MarketID), zap.Error(err))
			if o.metrics != nil {
				o.metrics.RecordBetRequest(bookmakerName, "failed")
			}
			continue
		}

		if o.policy != nil {
			o.policy.RecordBet(opp.MarketID, alloc.Stake)
		}
		if o.metrics != nil {
			o.metrics.RecordBetRequest(bookmakerName, "placed")
		}
		receipts = append(receipts, *receipt)
	}
	return receipts, nil
}

// SizeStake sizes a single stake with the named method against the current
// bankroll. Method names match the staking API surface.
func (o *Orchestrator) SizeStake(method string, winProb, odds float64, recentPnL []float64) (float64, error) {
	bankroll := o.Bankroll()
	var stake float64

	switch method {
	case "kelly", "":
		stake = o.sizer.FractionalKelly(winProb, odds, bankroll)
	case "cvar":
		stake = o.sizer.CVaRAdjustedStake(winProb, odds, bankroll)
	case "geometric":
		stake = o.sizer.GeometricMeanStake(winProb, odds, bankroll)
	case "dynamic":
		stake = o.sizer.DynamicStake(winProb, odds, bankroll, recentPnL, 20)
	default:
		return 0, fmt.Errorf("unknown staking method %q", method)
	}

	if o.metrics != nil {
		edge := winProb - 1/odds
		m := method
		if m == "" {
			m = "kelly"
		}
		o.metrics.RecordStake(m, stake, edge)
	}
	return stake, nil
}

func legMarket(opp engine.ArbitrageOpportunity, res engine.LegResult) string {
	for _, leg := range opp.Legs {
		if leg.Bookmaker == res.Bookmaker && leg.Selection == res.Selection {
			return leg.MarketID
		}
	}
	return ""
}

func (o *Orchestrator) handleError(err error) {
	o.log.Error("cycle error", zap.Error(err))
	if o.onError != nil {
		o.onError(err)
	}
}
