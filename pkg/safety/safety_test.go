package safety

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// stubStore is an in-memory Store with injectable failures.
type stubStore struct {
	state    State
	hasState bool
	readErr  error
	writeErr error
	writes   int
}

func (s *stubStore) Read(context.Context) (State, error) {
	if s.readErr != nil {
		return State{}, s.readErr
	}
	if !s.hasState {
		return State{}, ErrNoRecord
	}
	return s.state, nil
}

func (s *stubStore) Write(_ context.Context, state State) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.state = state
	s.hasState = true
	s.writes++
	return nil
}

func TestManager_SharedStoreWins(t *testing.T) {
	shared := &stubStore{state: State{Active: true, Reason: "ops halt"}, hasState: true}
	local := &stubStore{state: State{Active: false}, hasState: true}
	m := NewManager(shared, local, nil)

	if !m.IsKillSwitchActive(context.Background()) {
		t.Error("shared store says active; manager must agree")
	}
}

func TestManager_SharedEmptyIsAuthoritative(t *testing.T) {
	// Shared store reachable but empty: inactive, even though the local
	// record says active (a stale local trip cleared centrally).
	shared := &stubStore{}
	local := &stubStore{state: State{Active: true}, hasState: true}
	m := NewManager(shared, local, nil)

	if m.IsKillSwitchActive(context.Background()) {
		t.Error("reachable empty shared store must read as inactive")
	}
}

func TestManager_FallsBackToLocalOnOutage(t *testing.T) {
	shared := &stubStore{readErr: errors.New("connection refused")}
	local := &stubStore{state: State{Active: true, Reason: "tripped before outage"}, hasState: true}
	m := NewManager(shared, local, nil)

	if !m.IsKillSwitchActive(context.Background()) {
		t.Error("must honor the last known local record when shared store is down")
	}
}

func TestManager_NoRecordAnywhereIsInactive(t *testing.T) {
	shared := &stubStore{readErr: errors.New("connection refused")}
	local := &stubStore{}
	m := NewManager(shared, local, nil)

	if m.IsKillSwitchActive(context.Background()) {
		t.Error("no record anywhere must default to inactive")
	}
}

func TestManager_ReadNeverPanicsWithNilStores(t *testing.T) {
	m := NewManager(nil, nil, nil)
	if m.IsKillSwitchActive(context.Background()) {
		t.Error("storeless manager must read inactive")
	}
}

func TestManager_ActivateWritesBothStores(t *testing.T) {
	shared := &stubStore{}
	local := &stubStore{}
	m := NewManager(shared, local, nil)

	if err := m.Activate(context.Background(), "manual halt"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if shared.writes != 1 || local.writes != 1 {
		t.Errorf("writes shared/local = %d/%d, want 1/1", shared.writes, local.writes)
	}
	if !shared.state.Active || shared.state.Reason != "manual halt" {
		t.Errorf("shared state = %+v", shared.state)
	}

	if err := m.Deactivate(context.Background(), "resolved"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if shared.state.Active || local.state.Active {
		t.Error("deactivate must clear both stores")
	}
}

func TestManager_ActivateSucceedsWithOneStoreDown(t *testing.T) {
	shared := &stubStore{writeErr: errors.New("connection refused")}
	local := &stubStore{}
	m := NewManager(shared, local, nil)

	if err := m.Activate(context.Background(), "halt"); err != nil {
		t.Fatalf("activate should succeed via local store: %v", err)
	}
	if !local.state.Active {
		t.Error("local store should carry the trip")
	}
}

func TestManager_ActivateFailsWhenAllStoresDown(t *testing.T) {
	shared := &stubStore{writeErr: errors.New("down")}
	local := &stubStore{writeErr: errors.New("disk full")}
	m := NewManager(shared, local, nil)

	if err := m.Activate(context.Background(), "halt"); err == nil {
		t.Error("activate must fail when nothing persisted the trip")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kill_switch.json")
	store := NewFileStore(path)
	ctx := context.Background()

	if _, err := store.Read(ctx); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("missing file should be ErrNoRecord, got %v", err)
	}

	want := State{Active: true, Reason: "drill", UpdatedAt: time.Now().UTC()}
	if err := store.Write(ctx, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Active != want.Active || got.Reason != want.Reason {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}

	// Overwrite clears the trip.
	if err := store.Write(ctx, State{Active: false, Reason: "cleared"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = store.Read(ctx)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if got.Active {
		t.Error("overwrite should have cleared the switch")
	}
}
