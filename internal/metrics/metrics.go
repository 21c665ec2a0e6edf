// Package metrics holds the Prometheus collectors shared by the sync components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts reconciled events by kind (snapshot|push|manual) and result.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sync_events_total",
		Help: "Reconciled events by kind and result",
	}, []string{"kind", "result"})

	RecordsKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_sync_records",
		Help: "Orders currently held in the view",
	})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_sync_fetch_duration_seconds",
		Help:    "Snapshot fetch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"source", "result"})

	PushState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "order_sync_push_state",
		Help: "1 for the current push connection state",
	}, []string{"state"})

	PushReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sync_push_reconnects_total",
		Help: "Push transport reconnect attempts",
	}, []string{"transport"})

	PushDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sync_push_dropped_total",
		Help: "Push payloads dropped before reconciliation",
	}, []string{"reason"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sync_override_commands_total",
		Help: "Operator commands by direction and result",
	}, []string{"direction", "result"})

	ProbeLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "order_sync_probe_latency_seconds",
		Help: "Latest health probe latency per service",
	}, []string{"service"})

	ProbeHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "order_sync_probe_healthy",
		Help: "1 when the latest probe reported healthy",
	}, []string{"service"})

	LatencyAlert = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_sync_latency_alert",
		Help: "1 while the designated service exceeds its latency threshold",
	})

	ChaosEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_sync_chaos_enabled",
		Help: "1 while fault injection is enabled",
	})
)

// SetPushState marks exactly one state label as active.
func SetPushState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "backing_off"} {
		v := 0.0
		if s == state {
			v = 1
		}
		PushState.WithLabelValues(s).Set(v)
	}
}

func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
