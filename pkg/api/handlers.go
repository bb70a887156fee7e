package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/engine"
)

type stakeRequest struct {
	Method      string    `json:"method"` // kelly, cvar, geometric, dynamic
	Probability float64   `json:"probability"`
	Odds        float64   `json:"odds"`
	RecentPnL   []float64 `json:"recent_pnl,omitempty"`
}

type stakeResponse struct {
	Method string  `json:"method"`
	Stake  float64 `json:"stake"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "betengine",
	})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Probability <= 0 || req.Probability >= 1 {
		respondError(w, http.StatusBadRequest, "probability must be in (0, 1)")
		return
	}
	if req.Odds <= 1 {
		respondError(w, http.StatusBadRequest, "odds must exceed 1.0")
		return
	}

	stake, err := s.orch.SizeStake(req.Method, req.Probability, req.Odds, req.RecentPnL)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	method := req.Method
	if method == "" {
		method = "kelly"
	}
	respondJSON(w, http.StatusOK, stakeResponse{Method: method, Stake: stake})
}

type portfolioRequest struct {
	Opportunities []engine.Opportunity `json:"opportunities"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	for _, opp := range req.Opportunities {
		if opp.Probability <= 0 || opp.Probability >= 1 || opp.Odds <= 1 {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("opportunity %s: probability must be in (0, 1) and odds above 1.0", opp.ID))
			return
		}
	}

	result, err := s.orch.Allocate(r.Context(), req.Opportunities)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var opp engine.ArbitrageOpportunity
	if err := json.NewDecoder(r.Body).Decode(&opp); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	result, err := s.orch.ExecuteArbitrage(r.Context(), opp)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePolicyStatus(w http.ResponseWriter, r *http.Request) {
	policy := s.orch.Policy()
	if policy == nil {
		respondError(w, http.StatusNotFound, "no bet policy configured")
		return
	}
	respondJSON(w, http.StatusOK, policy.Status())
}

type safetyRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleSafetyState(w http.ResponseWriter, r *http.Request) {
	if s.safety == nil {
		respondError(w, http.StatusNotFound, "safety manager not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.safety.State(r.Context()))
}

func (s *Server) handleSafetyActivate(w http.ResponseWriter, r *http.Request) {
	s.setSafety(w, r, true)
}

func (s *Server) handleSafetyDeactivate(w http.ResponseWriter, r *http.Request) {
	s.setSafety(w, r, false)
}

func (s *Server) setSafety(w http.ResponseWriter, r *http.Request, activate bool) {
	if s.safety == nil {
		respondError(w, http.StatusNotFound, "safety manager not configured")
		return
	}

	var req safetyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}

	var err error
	if activate {
		err = s.safety.Activate(r.Context(), req.Reason)
	} else {
		err = s.safety.Deactivate(r.Context(), req.Reason)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("kill switch changed via api",
		zap.Bool("active", activate), zap.String("reason", req.Reason))
	if s.hub != nil {
		s.hub.BroadcastSafety(activate, req.Reason)
	}
	respondJSON(w, http.StatusOK, s.safety.State(r.Context()))
}

type statusResponse struct {
	Running    bool      `json:"running"`
	Bankroll   float64   `json:"bankroll"`
	LastRun    time.Time `json:"last_run,omitempty"`
	Bookmakers []string  `json:"bookmakers"`
	KillSwitch bool      `json:"kill_switch"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Running:  s.orch.IsRunning(),
		Bankroll: s.orch.Bankroll(),
		LastRun:  s.orch.LastRun(),
	}
	if s.registry != nil {
		resp.Bookmakers = s.registry.Names()
	}
	if s.safety != nil {
		resp.KillSwitch = s.safety.IsKillSwitchActive(r.Context())
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
