package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oddsforge/betengine/pkg/engine/orchestrator"
	"github.com/oddsforge/betengine/pkg/engine/portfolio"
	"github.com/oddsforge/betengine/pkg/safety"
)

type memStore struct {
	state    safety.State
	hasState bool
}

func (s *memStore) Read(context.Context) (safety.State, error) {
	if !s.hasState {
		return safety.State{}, safety.ErrNoRecord
	}
	return s.state, nil
}

func (s *memStore) Write(_ context.Context, state safety.State) error {
	s.state = state
	s.hasState = true
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	orch := orchestrator.New(orchestrator.DefaultConfig(), nil, nil, nil, nil, nil, nil, nil, nil)
	sm := safety.NewManager(&memStore{}, &memStore{}, nil)
	return NewServer("0", orch, sm, nil, nil, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStake(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/stake", stakeRequest{
		Method: "kelly", Probability: 0.55, Odds: 2.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp stakeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stake <= 0 {
		t.Errorf("stake = %.4f, want > 0", resp.Stake)
	}
	if resp.Method != "kelly" {
		t.Errorf("method = %q", resp.Method)
	}
}

func TestStake_Validation(t *testing.T) {
	s := newTestServer(t)

	cases := []stakeRequest{
		{Probability: 0, Odds: 2.0},
		{Probability: 1.2, Odds: 2.0},
		{Probability: 0.5, Odds: 1.0},
		{Method: "martingale", Probability: 0.5, Odds: 2.0},
	}
	for i, req := range cases {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/stake", req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, rec.Code)
		}
	}
}

func TestPortfolio(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{
		"opportunities": []map[string]interface{}{
			{"id": "o1", "market_id": "m1", "selection": "home", "probability": 0.55, "odds": 2.0},
			{"id": "o2", "market_id": "m2", "selection": "home", "probability": 0.52, "odds": 2.1},
		},
	}
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/portfolio", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result portfolio.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Allocations) == 0 {
		t.Error("expected allocations")
	}
}

func TestPortfolio_RejectsBadOpportunity(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{
		"opportunities": []map[string]interface{}{
			{"id": "o1", "market_id": "m1", "selection": "home", "probability": 1.5, "odds": 2.0},
		},
	}
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/portfolio", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSafetyLifecycle(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/safety", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get state: %d", rec.Code)
	}
	var state safety.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Active {
		t.Fatal("kill switch should start inactive")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/safety/activate", safetyRequest{Reason: "drill"})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: %d, body %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state.Active || state.Reason != "drill" {
		t.Errorf("state after activate = %+v", state)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/safety/deactivate", safetyRequest{Reason: "drill over"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Active {
		t.Error("kill switch should be inactive after deactivate")
	}
}

func TestSafetyActivate_RequiresReason(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/safety/activate", safetyRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Running {
		t.Error("orchestrator loop should not be running")
	}
	if resp.Bankroll != orchestrator.DefaultConfig().Bankroll {
		t.Errorf("bankroll = %.0f", resp.Bankroll)
	}
}

func TestExecute_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/arbitrage/execute", map[string]interface{}{
		"id": "arb-1",
		"legs": []map[string]interface{}{
			{"bookmaker": "alpha", "market_id": "m1", "selection": "home", "odds": 2.1, "stake": 100},
			{"bookmaker": "beta", "market_id": "m1", "selection": "away", "odds": 2.1, "stake": 100},
		},
		"profit_margin": 0.02,
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 (%s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, fmt.Sprintf("/api/v1/%s", "nope"), nil)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
