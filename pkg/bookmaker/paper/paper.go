// Package paper provides a simulated bookmaker for dry-run operation.
// Bets settle instantly against an in-memory account ledger, with optional
// failure injection for exercising partial-fill and timeout handling.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oddsforge/betengine/pkg/bookmaker"
)

// Config controls the simulator.
type Config struct {
	// Name is the bookmaker identifier bets are routed by.
	Name string
	// InitialBalance seeds the simulated account.
	InitialBalance decimal.Decimal
	// Latency is slept before each placement to mimic network round trips.
	Latency time.Duration
	// FailEvery rejects every Nth placement when > 0.
	FailEvery int
}

// DefaultConfig returns a simulator with a 10k balance and no injected faults.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:           name,
		InitialBalance: decimal.NewFromInt(10_000),
	}
}

// Bet is a settled simulated bet.
type Bet struct {
	ID             string          `json:"id"`
	MarketID       string          `json:"market_id"`
	Selection      string          `json:"selection"`
	Stake          decimal.Decimal `json:"stake"`
	Odds           decimal.Decimal `json:"odds"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	PlacedAt       time.Time       `json:"placed_at"`
}

// Account is the simulated bookmaker account.
type Account struct {
	ID             string          `json:"id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Exposure       decimal.Decimal `json:"exposure"`
	Bets           []Bet           `json:"bets"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Bookmaker is the paper bookmaker engine.
type Bookmaker struct {
	config *Config

	mu       sync.RWMutex
	account  *Account
	byKey    map[string]*bookmaker.BetReceipt
	attempts int

	onBet func(Bet)
}

var _ bookmaker.Client = (*Bookmaker)(nil)

// New creates a paper bookmaker.
func New(config *Config) *Bookmaker {
	if config == nil {
		config = DefaultConfig("paper")
	}
	return &Bookmaker{
		config: config,
		account: &Account{
			ID:             uuid.New().String(),
			InitialBalance: config.InitialBalance,
			Balance:        config.InitialBalance,
			Bets:           make([]Bet, 0),
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		},
		byKey: make(map[string]*bookmaker.BetReceipt),
	}
}

// OnBet sets a callback invoked after each accepted bet.
func (b *Bookmaker) OnBet(fn func(Bet)) {
	b.onBet = fn
}

// Name returns the configured bookmaker identifier.
func (b *Bookmaker) Name() string {
	return b.config.Name
}

// PlaceBet accepts a bet against the simulated balance. Replays with a known
// idempotency key return the original receipt without touching the ledger.
func (b *Bookmaker) PlaceBet(ctx context.Context, req bookmaker.BetRequest) (*bookmaker.BetReceipt, error) {
	if b.config.Latency > 0 {
		select {
		case <-time.After(b.config.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.IdempotencyKey != "" {
		if receipt, ok := b.byKey[req.IdempotencyKey]; ok {
			return receipt, nil
		}
	}

	b.attempts++
	if b.config.FailEvery > 0 && b.attempts%b.config.FailEvery == 0 {
		return nil, fmt.Errorf("simulated rejection for %s/%s", req.MarketID, req.Selection)
	}

	if req.Stake <= 0 {
		return nil, fmt.Errorf("stake must be positive")
	}
	if req.Odds <= 1 {
		return nil, fmt.Errorf("odds must exceed 1.0")
	}

	stake := decimal.NewFromFloat(req.Stake)
	if stake.GreaterThan(b.account.Balance) {
		return nil, fmt.Errorf("insufficient balance: have %s, need %s", b.account.Balance, stake)
	}

	bet := Bet{
		ID:             uuid.New().String(),
		MarketID:       req.MarketID,
		Selection:      req.Selection,
		Stake:          stake,
		Odds:           decimal.NewFromFloat(req.Odds),
		IdempotencyKey: req.IdempotencyKey,
		PlacedAt:       time.Now(),
	}

	b.account.Balance = b.account.Balance.Sub(stake)
	b.account.Exposure = b.account.Exposure.Add(stake)
	b.account.Bets = append(b.account.Bets, bet)
	b.account.UpdatedAt = time.Now()

	receipt := &bookmaker.BetReceipt{
		BetID:     bet.ID,
		Bookmaker: b.config.Name,
		Stake:     req.Stake,
		Odds:      req.Odds,
		PlacedAt:  bet.PlacedAt,
	}
	if req.IdempotencyKey != "" {
		b.byKey[req.IdempotencyKey] = receipt
	}

	if b.onBet != nil {
		b.onBet(bet)
	}
	return receipt, nil
}

// Settle resolves a bet by ID. Winning bets credit stake times odds back to
// the balance; losing bets only release the exposure.
func (b *Bookmaker) Settle(betID string, won bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, bet := range b.account.Bets {
		if bet.ID != betID {
			continue
		}
		b.account.Exposure = b.account.Exposure.Sub(bet.Stake)
		if won {
			b.account.Balance = b.account.Balance.Add(bet.Stake.Mul(bet.Odds))
		}
		b.account.Bets = append(b.account.Bets[:i], b.account.Bets[i+1:]...)
		b.account.UpdatedAt = time.Now()
		return nil
	}
	return fmt.Errorf("bet %s not found", betID)
}

// Account returns a copy of the current account state.
func (b *Bookmaker) Account() Account {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := *b.account
	snapshot.Bets = make([]Bet, len(b.account.Bets))
	copy(snapshot.Bets, b.account.Bets)
	return snapshot
}
