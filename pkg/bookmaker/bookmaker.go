// Package bookmaker defines the capability interface the engine uses to
// place bets, plus a registry mapping bookmaker names to implementations.
// Concrete adapters (REST bookmakers, the paper simulator) live in
// subpackages and stay interchangeable behind this interface.
package bookmaker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// BetRequest describes a single bet placement.
type BetRequest struct {
	MarketID  string  `json:"market_id"`
	Selection string  `json:"selection"`
	Stake     float64 `json:"stake"`
	Odds      float64 `json:"odds"`

	// IdempotencyKey guarantees at-most-one real placement per logical bet
	// even under caller retries. Empty means the caller accepts duplicates.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// BetReceipt is the bookmaker's acknowledgement of a placed bet.
type BetReceipt struct {
	BetID     string    `json:"bet_id"`
	Bookmaker string    `json:"bookmaker"`
	Stake     float64   `json:"stake"`
	Odds      float64   `json:"odds"`
	PlacedAt  time.Time `json:"placed_at"`
}

// Client is the one capability the engine requires of a bookmaker.
// Failures surface as errors; the executor converts them into per-leg
// failure records.
type Client interface {
	// Name returns the bookmaker identifier used in arbitrage legs.
	Name() string
	// PlaceBet places a bet and returns the bookmaker-assigned receipt.
	PlaceBet(ctx context.Context, req BetRequest) (*BetReceipt, error)
}

// Registry maps bookmaker names to client implementations. Registration
// happens at startup; lookups during execution are read-only.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under its own name, replacing any previous entry.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
}

// Get returns the client for a bookmaker name.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("bookmaker %q not registered", name)
	}
	return c, nil
}

// Clients returns a snapshot of the registered clients keyed by name.
// The snapshot is safe to read during a concurrent execution.
func (r *Registry) Clients() map[string]Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Client, len(r.clients))
	for name, c := range r.clients {
		out[name] = c
	}
	return out
}

// Names lists registered bookmaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
