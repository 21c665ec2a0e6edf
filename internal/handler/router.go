package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if b := h.BoardHandler; b != nil {
		mux.HandleFunc("GET /api/v1/view", b.GetView)
		mux.HandleFunc("GET /api/v1/orders/{order_id}", b.GetOrder)
		mux.HandleFunc("POST /api/v1/orders/{order_id}/{direction}", b.Move)
	}
	if hh := h.HealthHandler; hh != nil {
		mux.HandleFunc("GET /api/v1/health", hh.GetHealth)
		mux.HandleFunc("GET /api/v1/chaos", hh.GetChaos)
		mux.HandleFunc("POST /api/v1/chaos", hh.SetChaos)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
