package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oddsforge/betengine/pkg/bookmaker"
)

func TestPlaceBet_DebitsBalance(t *testing.T) {
	bm := New(DefaultConfig("betfair"))
	ctx := context.Background()

	receipt, err := bm.PlaceBet(ctx, bookmaker.BetRequest{
		MarketID:  "mkt-1",
		Selection: "home",
		Stake:     250,
		Odds:      2.1,
	})
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if receipt.BetID == "" {
		t.Error("receipt must carry a bet id")
	}
	if receipt.Bookmaker != "betfair" {
		t.Errorf("bookmaker = %q, want betfair", receipt.Bookmaker)
	}

	acct := bm.Account()
	wantBalance := decimal.NewFromInt(9_750)
	if !acct.Balance.Equal(wantBalance) {
		t.Errorf("balance = %s, want %s", acct.Balance, wantBalance)
	}
	if !acct.Exposure.Equal(decimal.NewFromInt(250)) {
		t.Errorf("exposure = %s, want 250", acct.Exposure)
	}
	if len(acct.Bets) != 1 {
		t.Fatalf("open bets = %d, want 1", len(acct.Bets))
	}
}

func TestPlaceBet_ValidatesRequest(t *testing.T) {
	bm := New(DefaultConfig("betfair"))
	ctx := context.Background()

	cases := []struct {
		name string
		req  bookmaker.BetRequest
	}{
		{"zero stake", bookmaker.BetRequest{MarketID: "m", Selection: "home", Stake: 0, Odds: 2.0}},
		{"odds at evens floor", bookmaker.BetRequest{MarketID: "m", Selection: "home", Stake: 10, Odds: 1.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := bm.PlaceBet(ctx, tc.req); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestPlaceBet_InsufficientBalance(t *testing.T) {
	cfg := DefaultConfig("betfair")
	cfg.InitialBalance = decimal.NewFromInt(100)
	bm := New(cfg)

	_, err := bm.PlaceBet(context.Background(), bookmaker.BetRequest{
		MarketID: "m", Selection: "home", Stake: 150, Odds: 2.0,
	})
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if !bm.Account().Balance.Equal(decimal.NewFromInt(100)) {
		t.Error("rejected bet must not touch the balance")
	}
}

func TestPlaceBet_IdempotencyKeyReplays(t *testing.T) {
	bm := New(DefaultConfig("betfair"))
	ctx := context.Background()
	req := bookmaker.BetRequest{
		MarketID: "m", Selection: "home", Stake: 100, Odds: 2.0,
		IdempotencyKey: "arb-1_home",
	}

	first, err := bm.PlaceBet(ctx, req)
	if err != nil {
		t.Fatalf("first placement: %v", err)
	}
	second, err := bm.PlaceBet(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.BetID != second.BetID {
		t.Errorf("replay returned a new bet: %s vs %s", first.BetID, second.BetID)
	}
	if got := bm.Account(); len(got.Bets) != 1 || !got.Exposure.Equal(decimal.NewFromInt(100)) {
		t.Errorf("replay must not double the ledger: bets=%d exposure=%s", len(got.Bets), got.Exposure)
	}
}

func TestPlaceBet_FailureInjection(t *testing.T) {
	cfg := DefaultConfig("betfair")
	cfg.FailEvery = 2
	bm := New(cfg)
	ctx := context.Background()

	req := bookmaker.BetRequest{MarketID: "m", Selection: "home", Stake: 10, Odds: 2.0}
	if _, err := bm.PlaceBet(ctx, req); err != nil {
		t.Fatalf("first placement should succeed: %v", err)
	}
	if _, err := bm.PlaceBet(ctx, req); err == nil {
		t.Fatal("second placement should be rejected")
	}
	if _, err := bm.PlaceBet(ctx, req); err != nil {
		t.Fatalf("third placement should succeed: %v", err)
	}
}

func TestSettle(t *testing.T) {
	bm := New(DefaultConfig("betfair"))
	ctx := context.Background()

	receipt, err := bm.PlaceBet(ctx, bookmaker.BetRequest{
		MarketID: "m", Selection: "home", Stake: 100, Odds: 2.5,
	})
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	if err := bm.Settle(receipt.BetID, true); err != nil {
		t.Fatalf("settle: %v", err)
	}
	acct := bm.Account()
	// 10000 - 100 stake + 250 payout.
	if !acct.Balance.Equal(decimal.NewFromInt(10_150)) {
		t.Errorf("balance after win = %s, want 10150", acct.Balance)
	}
	if !acct.Exposure.IsZero() {
		t.Errorf("exposure after settle = %s, want 0", acct.Exposure)
	}

	if err := bm.Settle(receipt.BetID, true); err == nil {
		t.Error("settling twice must fail")
	}
}

func TestSettle_Loss(t *testing.T) {
	bm := New(DefaultConfig("betfair"))
	receipt, err := bm.PlaceBet(context.Background(), bookmaker.BetRequest{
		MarketID: "m", Selection: "away", Stake: 100, Odds: 3.0,
	})
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if err := bm.Settle(receipt.BetID, false); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := bm.Account().Balance; !got.Equal(decimal.NewFromInt(9_900)) {
		t.Errorf("balance after loss = %s, want 9900", got)
	}
}
