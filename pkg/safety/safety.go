// Package safety implements the kill switch gating all live bet placement.
// State lives in two backing stores: a fast shared store (redis) that wins
// when reachable, and a local durable file that is the fallback of record
// when it is not. The read path never returns an error; on total store
// unavailability it resolves to inactive only when no prior local record
// exists.
package safety

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoRecord indicates a store that is reachable but holds no state yet.
var ErrNoRecord = errors.New("no kill switch record")

// State is the durable kill-switch state.
type State struct {
	Active    bool      `json:"active"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists kill-switch state. Implementations must tolerate
// concurrent reads from multiple decision cycles.
type Store interface {
	Read(ctx context.Context) (State, error)
	Write(ctx context.Context, state State) error
}

// Manager resolves the kill switch across the shared and local stores.
type Manager struct {
	shared Store // priority when reachable; may be nil
	local  Store // fallback of record; may be nil
	log    *zap.Logger
}

// NewManager creates a manager over the given stores. Either store may be
// nil; with both nil the switch reads as permanently inactive, which is only
// acceptable for dry-run setups.
func NewManager(shared, local Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{shared: shared, local: local, log: log}
}

// IsKillSwitchActive resolves the current state. The shared store wins when
// reachable; otherwise the last known local value applies. The check is
// performed per decision, never cached across calls.
func (m *Manager) IsKillSwitchActive(ctx context.Context) bool {
	return m.State(ctx).Active
}

// State returns the resolved kill-switch state for reporting surfaces.
func (m *Manager) State(ctx context.Context) State {
	if m.shared != nil {
		state, err := m.shared.Read(ctx)
		switch {
		case err == nil:
			return state
		case errors.Is(err, ErrNoRecord):
			// Shared store reachable and empty: authoritative inactive.
			return State{}
		default:
			m.log.Warn("shared kill switch store unreachable, using local record", zap.Error(err))
		}
	}

	if m.local != nil {
		state, err := m.local.Read(ctx)
		if err == nil {
			return state
		}
		if !errors.Is(err, ErrNoRecord) {
			m.log.Warn("local kill switch store unreadable", zap.Error(err))
		}
	}

	// No record anywhere: not active.
	return State{}
}

// Activate trips the kill switch in both stores. The write succeeds if at
// least one store accepts it.
func (m *Manager) Activate(ctx context.Context, reason string) error {
	return m.write(ctx, State{Active: true, Reason: reason, UpdatedAt: time.Now()})
}

// Deactivate clears the kill switch in both stores.
func (m *Manager) Deactivate(ctx context.Context, reason string) error {
	return m.write(ctx, State{Active: false, Reason: reason, UpdatedAt: time.Now()})
}

func (m *Manager) write(ctx context.Context, state State) error {
	var firstErr error
	wrote := false
	for _, store := range []Store{m.shared, m.local} {
		if store == nil {
			continue
		}
		if err := store.Write(ctx, state); err != nil {
			m.log.Warn("kill switch store write failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		wrote = true
	}
	if !wrote {
		if firstErr != nil {
			return fmt.Errorf("kill switch not persisted: %w", firstErr)
		}
		return errors.New("kill switch has no backing store")
	}
	return nil
}
