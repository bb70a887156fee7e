package arbitrage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oddsforge/betengine/pkg/bookmaker"
	"github.com/oddsforge/betengine/pkg/engine"
	"github.com/oddsforge/betengine/pkg/notify"
)

// mockBookmaker implements bookmaker.Client for testing.
type mockBookmaker struct {
	name string

	mu    sync.Mutex
	calls int
	keys  []string

	err   error         // returned after any delay
	delay time.Duration // placement latency
	block bool          // never resolve until ctx is done
}

func (m *mockBookmaker) Name() string { return m.name }

func (m *mockBookmaker) PlaceBet(ctx context.Context, req bookmaker.BetRequest) (*bookmaker.BetReceipt, error) {
	m.mu.Lock()
	m.calls++
	m.keys = append(m.keys, req.IdempotencyKey)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &bookmaker.BetReceipt{
		BetID:     "bet_" + req.IdempotencyKey,
		Bookmaker: m.name,
		Stake:     req.Stake,
		Odds:      req.Odds,
		PlacedAt:  time.Now(),
	}, nil
}

func (m *mockBookmaker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockBookmaker) recordedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// mockNotifier records alerts.
type mockNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (m *mockNotifier) SendAlert(_ context.Context, alert notify.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockNotifier) recorded() []notify.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Alert(nil), m.alerts...)
}

// mockKillSwitch is a fixed kill-switch state.
type mockKillSwitch struct{ active bool }

func (m *mockKillSwitch) IsKillSwitchActive(context.Context) bool { return m.active }

func threeLegOpportunity() engine.ArbitrageOpportunity {
	return engine.ArbitrageOpportunity{
		ID:           "arb-1",
		ProfitMargin: 0.021,
		Legs: []engine.Leg{
			{Bookmaker: "alpha", MarketID: "m1", Selection: "home", Odds: 3.1, Stake: 33},
			{Bookmaker: "beta", MarketID: "m1", Selection: "draw", Odds: 3.4, Stake: 30},
			{Bookmaker: "gamma", MarketID: "m1", Selection: "away", Odds: 2.9, Stake: 37},
		},
	}
}

func liveExecutor(notifier notify.Notifier) *Executor {
	return NewExecutor(Config{Timeout: time.Second, DryRun: false}, &mockKillSwitch{}, notifier, nil)
}

func TestExecute_AllLegsSucceed(t *testing.T) {
	notifier := &mockNotifier{}
	exec := liveExecutor(notifier)

	clients := map[string]bookmaker.Client{
		"alpha": &mockBookmaker{name: "alpha"},
		"beta":  &mockBookmaker{name: "beta"},
		"gamma": &mockBookmaker{name: "gamma"},
	}
	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusSuccess {
		t.Fatalf("status = %s, want success (reason: %s)", result.Status, result.Reason)
	}
	if len(result.LegsPlaced) != 3 {
		t.Errorf("legs placed = %d, want 3", len(result.LegsPlaced))
	}
	if result.SuccessRate != 1.0 {
		t.Errorf("success rate = %v, want 1.0", result.SuccessRate)
	}
	for _, leg := range result.LegsPlaced {
		if leg.BetID == "" {
			t.Errorf("leg %s/%s missing bet id", leg.Bookmaker, leg.Selection)
		}
	}

	alerts := notifier.recorded()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(alerts))
	}
	if alerts[0].Level != notify.LevelInfo || alerts[0].ManualReview {
		t.Errorf("success alert misclassified: %+v", alerts[0])
	}
}

func TestExecute_PartialFailure(t *testing.T) {
	notifier := &mockNotifier{}
	exec := liveExecutor(notifier)

	clients := map[string]bookmaker.Client{
		"alpha": &mockBookmaker{name: "alpha"},
		"beta":  &mockBookmaker{name: "beta", err: errors.New("insufficient funds")},
		"gamma": &mockBookmaker{name: "gamma"},
	}
	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusPartial {
		t.Fatalf("status = %s, want partial", result.Status)
	}
	if len(result.LegsPlaced) != 2 || len(result.LegsFailed) != 1 {
		t.Errorf("placed/failed = %d/%d, want 2/1", len(result.LegsPlaced), len(result.LegsFailed))
	}
	if result.LegsFailed[0].Error == "" {
		t.Error("failed leg should carry the error message")
	}

	alerts := notifier.recorded()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(alerts))
	}
	if !alerts[0].ManualReview {
		t.Error("partial outcome must be flagged for manual review")
	}
	if alerts[0].Level != notify.LevelCritical {
		t.Errorf("partial alert level = %s, want critical", alerts[0].Level)
	}
}

func TestExecute_AllLegsFail(t *testing.T) {
	notifier := &mockNotifier{}
	exec := liveExecutor(notifier)

	clients := map[string]bookmaker.Client{
		"alpha": &mockBookmaker{name: "alpha", err: errors.New("rejected")},
		"beta":  &mockBookmaker{name: "beta", err: errors.New("rejected")},
		"gamma": &mockBookmaker{name: "gamma", err: errors.New("rejected")},
	}
	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.SuccessRate != 0 {
		t.Errorf("success rate = %v, want 0", result.SuccessRate)
	}
}

func TestExecute_Timeout(t *testing.T) {
	notifier := &mockNotifier{}
	exec := NewExecutor(Config{Timeout: 50 * time.Millisecond, DryRun: false}, &mockKillSwitch{}, notifier, nil)

	clients := map[string]bookmaker.Client{
		"alpha": &mockBookmaker{name: "alpha"},
		"beta":  &mockBookmaker{name: "beta", block: true},
		"gamma": &mockBookmaker{name: "gamma"},
	}
	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusTimeout {
		t.Fatalf("status = %s, want timeout", result.Status)
	}
	// Conservative reporting: completed legs are not claimed once the joint
	// deadline is missed.
	if len(result.LegsPlaced) != 0 {
		t.Errorf("timeout must report no legs placed, got %d", len(result.LegsPlaced))
	}
	if len(notifier.recorded()) != 1 {
		t.Errorf("expected exactly 1 notification, got %d", len(notifier.recorded()))
	}
}

func TestExecute_ValidationRejectsBeforeAnyCall(t *testing.T) {
	cases := []struct {
		name string
		opp  engine.ArbitrageOpportunity
	}{
		{
			name: "single leg",
			opp: engine.ArbitrageOpportunity{
				ID:           "arb-short",
				ProfitMargin: 0.02,
				Legs:         []engine.Leg{{Bookmaker: "alpha", Selection: "home", Odds: 2.0, Stake: 50}},
			},
		},
		{
			name: "non-positive margin",
			opp: func() engine.ArbitrageOpportunity {
				o := threeLegOpportunity()
				o.ProfitMargin = -0.01
				return o
			}(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			exec := liveExecutor(notifier)
			alpha := &mockBookmaker{name: "alpha"}
			beta := &mockBookmaker{name: "beta"}
			gamma := &mockBookmaker{name: "gamma"}
			clients := map[string]bookmaker.Client{"alpha": alpha, "beta": beta, "gamma": gamma}

			result := exec.Execute(context.Background(), tc.opp, clients)

			if result.Status != engine.StatusFailed {
				t.Fatalf("status = %s, want failed", result.Status)
			}
			if result.Reason == "" {
				t.Error("validation failure must carry a reason")
			}
			if alpha.callCount()+beta.callCount()+gamma.callCount() != 0 {
				t.Error("validation failure must not invoke any bookmaker")
			}
			if len(notifier.recorded()) != 1 {
				t.Errorf("expected exactly 1 notification, got %d", len(notifier.recorded()))
			}
		})
	}
}

func TestExecute_MissingBookmakerClient(t *testing.T) {
	notifier := &mockNotifier{}
	exec := liveExecutor(notifier)

	clients := map[string]bookmaker.Client{
		"alpha": &mockBookmaker{name: "alpha"},
		"beta":  &mockBookmaker{name: "beta"},
		// gamma missing
	}
	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
}

func TestExecute_KillSwitchBlocksLivePlacement(t *testing.T) {
	notifier := &mockNotifier{}
	exec := NewExecutor(Config{Timeout: time.Second, DryRun: false}, &mockKillSwitch{active: true}, notifier, nil)

	alpha := &mockBookmaker{name: "alpha"}
	beta := &mockBookmaker{name: "beta"}
	gamma := &mockBookmaker{name: "gamma"}
	clients := map[string]bookmaker.Client{"alpha": alpha, "beta": beta, "gamma": gamma}

	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Reason != "kill switch active" {
		t.Errorf("reason = %q", result.Reason)
	}
	if alpha.callCount()+beta.callCount()+gamma.callCount() != 0 {
		t.Error("kill switch must prevent all bookmaker calls")
	}
}

func TestExecute_DryRunPlacesNothing(t *testing.T) {
	notifier := &mockNotifier{}
	exec := NewExecutor(Config{Timeout: time.Second, DryRun: true}, &mockKillSwitch{active: true}, notifier, nil)

	alpha := &mockBookmaker{name: "alpha"}
	beta := &mockBookmaker{name: "beta"}
	gamma := &mockBookmaker{name: "gamma"}
	clients := map[string]bookmaker.Client{"alpha": alpha, "beta": beta, "gamma": gamma}

	result := exec.Execute(context.Background(), threeLegOpportunity(), clients)

	if result.Status != engine.StatusSuccess {
		t.Fatalf("dry run status = %s, want success", result.Status)
	}
	if alpha.callCount()+beta.callCount()+gamma.callCount() != 0 {
		t.Error("dry run must not call real bookmakers")
	}
	for _, leg := range result.LegsPlaced {
		if leg.BetID == "" {
			t.Error("dry run legs should carry synthetic bet ids")
		}
	}
}

func TestExecute_IdempotencyKeysDeterministic(t *testing.T) {
	opp := threeLegOpportunity()

	run := func() []string {
		alpha := &mockBookmaker{name: "alpha"}
		beta := &mockBookmaker{name: "beta"}
		gamma := &mockBookmaker{name: "gamma"}
		clients := map[string]bookmaker.Client{"alpha": alpha, "beta": beta, "gamma": gamma}
		exec := liveExecutor(&mockNotifier{})
		exec.Execute(context.Background(), opp, clients)
		keys := append(alpha.recordedKeys(), beta.recordedKeys()...)
		return append(keys, gamma.recordedKeys()...)
	}

	first := run()
	second := run()
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 keys per run, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("key %d differs across replays: %q vs %q", i, first[i], second[i])
		}
	}
	if first[0] != "arb-1_home" {
		t.Errorf("key derivation changed: got %q, want arb-1_home", first[0])
	}
}

func TestMonitor(t *testing.T) {
	exec := liveExecutor(&mockNotifier{})
	opp := threeLegOpportunity()
	clients := map[string]bookmaker.Client{
		"alpha": &mockBookmaker{name: "alpha"},
		"beta":  &mockBookmaker{name: "beta"},
		"gamma": &mockBookmaker{name: "gamma"},
	}

	if !exec.Monitor(context.Background(), opp, clients, 50*time.Millisecond, 10*time.Millisecond) {
		t.Error("valid opportunity should survive the monitoring window")
	}

	// A missing client invalidates the opportunity immediately.
	delete(clients, "gamma")
	if exec.Monitor(context.Background(), opp, clients, 50*time.Millisecond, 10*time.Millisecond) {
		t.Error("invalid opportunity must fail monitoring")
	}

	// Canceled context aborts monitoring.
	clients["gamma"] = &mockBookmaker{name: "gamma"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if exec.Monitor(ctx, opp, clients, time.Second, 10*time.Millisecond) {
		t.Error("canceled context must abort monitoring")
	}
}
