package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"order-sync/internal/domain"
	"order-sync/internal/health"
)

type HealthService interface {
	Report() health.Report
	Chaos(ctx context.Context) (domain.ChaosState, error)
	SetChaos(ctx context.Context, enabled bool) (health.Report, error)
}

type HealthHandler struct {
	monitor HealthService
}

func NewHealthHandler(m HealthService) *HealthHandler { return &HealthHandler{monitor: m} }

func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Report())
}

func (h *HealthHandler) GetChaos(w http.ResponseWriter, r *http.Request) {
	st, err := h.monitor.Chaos(r.Context())
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "chaos_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": st.Enabled, "checked_at": st.CheckedAt})
}

// SetChaos accepts {"enabled": bool} or {"chaos_enabled": bool}.
func (h *HealthHandler) SetChaos(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled      *bool `json:"enabled"`
		ChaosEnabled *bool `json:"chaos_enabled"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	var enabled bool
	switch {
	case body.Enabled != nil:
		enabled = *body.Enabled
	case body.ChaosEnabled != nil:
		enabled = *body.ChaosEnabled
	default:
		writeProblem(w, http.StatusBadRequest, "bad_request", "enabled is required")
		return
	}
	rep, err := h.monitor.SetChaos(r.Context(), enabled)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "chaos_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
