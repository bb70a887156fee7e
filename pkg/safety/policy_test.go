package safety

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPolicyCheckBet_StakeBounds(t *testing.T) {
	p := NewPolicyEngine(DefaultBetLimits())

	if err := p.CheckBet("m1", "EPL", 100); err != nil {
		t.Errorf("normal stake rejected: %v", err)
	}
	if err := p.CheckBet("m1", "EPL", 501); err == nil {
		t.Error("stake above max must be rejected")
	}
	if err := p.CheckBet("m1", "EPL", 0.5); err == nil {
		t.Error("stake below min must be rejected")
	}
}

func TestPolicyCheckBet_MarketExposure(t *testing.T) {
	limits := DefaultBetLimits()
	limits.MaxMarketExposure = decimal.NewFromInt(300)
	p := NewPolicyEngine(limits)

	p.RecordBet("m1", 250)
	if err := p.CheckBet("m1", "EPL", 100); err == nil {
		t.Error("bet pushing market exposure past limit must be rejected")
	}
	if err := p.CheckBet("m2", "EPL", 100); err != nil {
		t.Errorf("other market should be unaffected: %v", err)
	}
}

func TestPolicyCheckBet_TotalExposure(t *testing.T) {
	limits := DefaultBetLimits()
	limits.MaxTotalExposure = decimal.NewFromInt(400)
	p := NewPolicyEngine(limits)

	p.RecordBet("m1", 200)
	p.RecordBet("m2", 150)
	if err := p.CheckBet("m3", "EPL", 100); err == nil {
		t.Error("bet pushing total exposure past limit must be rejected")
	}
}

func TestPolicyCheckBet_DailyBetCount(t *testing.T) {
	limits := DefaultBetLimits()
	limits.MaxDailyBets = 2
	p := NewPolicyEngine(limits)

	p.RecordBet("m1", 10)
	p.RecordBet("m2", 10)
	if err := p.CheckBet("m3", "EPL", 10); err == nil {
		t.Error("bet past daily count limit must be rejected")
	}
}

func TestPolicyCooldownAfterLoss(t *testing.T) {
	limits := DefaultBetLimits()
	limits.CooldownAfterLoss = time.Hour
	p := NewPolicyEngine(limits)

	p.RecordBet("m1", 100)
	p.RecordSettlement("m1", 100, -100)

	err := p.CheckBet("m2", "EPL", 50)
	if err == nil {
		t.Fatal("bet during cooldown must be rejected")
	}
	if !strings.Contains(err.Error(), "cooldown") {
		t.Errorf("error = %v, want cooldown mention", err)
	}

	status := p.Status()
	if !status.InCooldown || status.CooldownRemain == "" {
		t.Errorf("status = %+v, want cooldown reported", status)
	}
}

func TestPolicySettlementReleasesExposure(t *testing.T) {
	p := NewPolicyEngine(DefaultBetLimits())

	p.RecordBet("m1", 200)
	if got := p.MarketExposure("m1"); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("exposure = %s, want 200", got)
	}

	p.RecordSettlement("m1", 200, 150)
	if got := p.MarketExposure("m1"); !got.IsZero() {
		t.Errorf("exposure after settlement = %s, want 0", got)
	}
	if got := p.TotalExposure(); !got.IsZero() {
		t.Errorf("total exposure = %s, want 0", got)
	}
}

func TestPolicyMarketRestrictions(t *testing.T) {
	limits := DefaultBetLimits()
	limits.BlockedMarkets = []string{"m-blocked"}
	limits.AllowedLeagues = []string{"EPL"}
	p := NewPolicyEngine(limits)

	if err := p.CheckBet("m-blocked", "EPL", 50); err == nil {
		t.Error("blocked market must be rejected")
	}
	if err := p.CheckBet("m1", "NBA", 50); err == nil {
		t.Error("league outside allowlist must be rejected")
	}
	if err := p.CheckBet("m1", "EPL", 50); err != nil {
		t.Errorf("allowed league rejected: %v", err)
	}
}
