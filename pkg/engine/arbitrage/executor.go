// Package arbitrage executes multi-leg arbitrage opportunities across
// independent bookmaker clients: concurrent fan-out of all legs, a joint
// deadline, and conservative outcome classification. One execution attempt
// per opportunity; the whole arbitrage is never retried automatically, since
// a retry could double-place legs.
package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/bookmaker"
	"github.com/oddsforge/betengine/pkg/engine"
	"github.com/oddsforge/betengine/pkg/notify"
)

// KillSwitch gates live placements. The read must never block execution on
// infrastructure failures; implementations resolve to a safe last-known
// value instead of erroring.
type KillSwitch interface {
	IsKillSwitchActive(ctx context.Context) bool
}

// Config holds the executor parameters.
type Config struct {
	// Timeout is the joint deadline for all legs of one opportunity.
	Timeout time.Duration // default 5s
	// DryRun simulates placements instead of calling bookmakers.
	DryRun bool
}

// DefaultConfig returns the standard executor parameters.
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second, DryRun: true}
}

// Executor places arbitrage legs concurrently and classifies the outcome.
// It holds no per-execution state and is safe for concurrent use across
// decision cycles.
type Executor struct {
	cfg      Config
	safety   KillSwitch
	notifier notify.Notifier
	log      *zap.Logger
}

// NewExecutor creates an executor. A nil notifier falls back to the log
// sink; a nil safety gate disables the kill-switch check and is only
// acceptable together with DryRun.
func NewExecutor(cfg Config, safety KillSwitch, notifier notify.Notifier, log *zap.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Executor{cfg: cfg, safety: safety, notifier: notifier, log: log}
}

// Execute runs one placement attempt for the opportunity against the given
// clients. The clients map is read-only for the duration of the call. No
// error escapes: every failure mode is folded into the returned result, and
// exactly one notification is emitted for the terminal outcome.
func (e *Executor) Execute(ctx context.Context, opp engine.ArbitrageOpportunity, clients map[string]bookmaker.Client) engine.ExecutionResult {
	start := time.Now()
	result := engine.ExecutionResult{
		AttemptID:     uuid.New().String(),
		OpportunityID: opp.ID,
		Timestamp:     start,
	}

	if err := validate(opp, clients); err != nil {
		result.Status = engine.StatusFailed
		result.Reason = err.Error()
		result.ExecutionTime = time.Since(start)
		e.notifyOutcome(ctx, opp, result)
		return result
	}

	if !e.cfg.DryRun && e.safety != nil && e.safety.IsKillSwitchActive(ctx) {
		result.Status = engine.StatusFailed
		result.Reason = "kill switch active"
		result.ExecutionTime = time.Since(start)
		e.notifyOutcome(ctx, opp, result)
		return result
	}

	// Fan out all legs before awaiting any of them: arbitrage economics
	// depend on minimizing the window between the first and last placement.
	// Leg contexts are canceled on return rather than sharing the joint
	// deadline, so the timer below always classifies the outcome first and a
	// deadline-racing leg error cannot turn a TIMEOUT into a PARTIAL.
	legCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan engine.LegResult, len(opp.Legs))
	for _, leg := range opp.Legs {
		go func(leg engine.Leg) {
			outcomes <- e.placeLeg(legCtx, opp, leg, clients[leg.Bookmaker])
		}(leg)
	}

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()

	var placed, failed []engine.LegResult
	timedOut := false
collect:
	for received := 0; received < len(opp.Legs); received++ {
		select {
		case legRes := <-outcomes:
			if legRes.Error == "" {
				placed = append(placed, legRes)
			} else {
				failed = append(failed, legRes)
			}
		case <-timer.C:
			timedOut = true
			break collect
		case <-ctx.Done():
			timedOut = true
			break collect
		}
	}

	if timedOut {
		// The joint deadline was missed. Legs that did complete are not
		// reported as placed: nothing can be asserted about the in-flight
		// remainder, and TIMEOUT must stay distinct from PARTIAL. Results
		// arriving after this point land in the buffered channel and are
		// discarded.
		result.Status = engine.StatusTimeout
		result.Reason = fmt.Sprintf("joint deadline %s exceeded", e.cfg.Timeout)
		result.ExecutionTime = time.Since(start)
		e.notifyOutcome(ctx, opp, result)
		return result
	}

	result.LegsPlaced = placed
	result.LegsFailed = failed
	result.SuccessRate = float64(len(placed)) / float64(len(opp.Legs))
	result.ExecutionTime = time.Since(start)

	switch {
	case len(placed) == len(opp.Legs):
		result.Status = engine.StatusSuccess
	case len(placed) > 0:
		result.Status = engine.StatusPartial
	default:
		result.Status = engine.StatusFailed
		result.Reason = "all legs failed"
	}

	e.notifyOutcome(ctx, opp, result)
	return result
}

// validate rejects malformed opportunities before any client call.
func validate(opp engine.ArbitrageOpportunity, clients map[string]bookmaker.Client) error {
	if len(opp.Legs) < 2 {
		return fmt.Errorf("arbitrage requires at least 2 legs, got %d", len(opp.Legs))
	}
	if opp.ProfitMargin <= 0 {
		return fmt.Errorf("non-positive profit margin %.4f", opp.ProfitMargin)
	}
	for _, leg := range opp.Legs {
		if _, ok := clients[leg.Bookmaker]; !ok {
			return fmt.Errorf("no client for bookmaker %q", leg.Bookmaker)
		}
	}
	return nil
}

// placeLeg places one leg, folding any client error into the leg result so
// sibling legs are never aborted.
func (e *Executor) placeLeg(ctx context.Context, opp engine.ArbitrageOpportunity, leg engine.Leg, client bookmaker.Client) engine.LegResult {
	legRes := engine.LegResult{
		Bookmaker: leg.Bookmaker,
		Selection: leg.Selection,
		Stake:     leg.Stake,
		Odds:      leg.Odds,
	}

	if e.cfg.DryRun {
		legRes.BetID = "dry_" + opp.IdempotencyKey(leg)
		return legRes
	}

	receipt, err := client.PlaceBet(ctx, bookmaker.BetRequest{
		MarketID:       leg.MarketID,
		Selection:      leg.Selection,
		Stake:          leg.Stake,
		Odds:           leg.Odds,
		IdempotencyKey: opp.IdempotencyKey(leg),
	})
	if err != nil {
		e.log.Warn("leg placement failed",
			zap.String("opportunity", opp.ID),
			zap.String("bookmaker", leg.Bookmaker),
			zap.Error(err))
		legRes.Error = err.Error()
		return legRes
	}
	legRes.BetID = receipt.BetID
	return legRes
}

// notifyOutcome emits the single notification for a terminal result.
func (e *Executor) notifyOutcome(ctx context.Context, opp engine.ArbitrageOpportunity, result engine.ExecutionResult) {
	alert := notify.Alert{
		Source:    "arbitrage_executor",
		Timestamp: time.Now(),
		Fields: map[string]any{
			"attempt_id":     result.AttemptID,
			"opportunity_id": result.OpportunityID,
			"status":         string(result.Status),
			"execution_ms":   result.ExecutionTime.Milliseconds(),
		},
	}

	switch result.Status {
	case engine.StatusSuccess:
		alert.Level = notify.LevelInfo
		alert.Message = fmt.Sprintf("arbitrage %s executed: %d legs, expected profit %.2f",
			opp.ID, len(result.LegsPlaced), opp.ExpectedProfit())
		alert.Fields["legs_placed"] = len(result.LegsPlaced)
		alert.Fields["expected_profit"] = opp.ExpectedProfit()
	case engine.StatusPartial:
		// The guaranteed-profit property is broken: some legs are live and
		// unhedged. This is the most safety-critical signal in the system.
		alert.Level = notify.LevelCritical
		alert.ManualReview = true
		alert.Message = fmt.Sprintf("arbitrage %s PARTIALLY placed: %d of %d legs live and unhedged, manual review required",
			opp.ID, len(result.LegsPlaced), len(opp.Legs))
		alert.Fields["legs_placed"] = len(result.LegsPlaced)
		alert.Fields["legs_failed"] = len(result.LegsFailed)
	case engine.StatusTimeout:
		alert.Level = notify.LevelWarning
		alert.Message = fmt.Sprintf("arbitrage %s timed out: %s", opp.ID, result.Reason)
	default:
		alert.Level = notify.LevelWarning
		alert.Message = fmt.Sprintf("arbitrage %s failed: %s", opp.ID, result.Reason)
		alert.Fields["reason"] = result.Reason
	}

	if err := e.notifier.SendAlert(ctx, alert); err != nil {
		e.log.Warn("failed to send execution alert", zap.Error(err))
	}
}
