// Package health probes the backend services and drives the chaos toggle.
// It only reports; order state never depends on it.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
	"order-sync/internal/metrics"
)

// Probe is one service health endpoint.
type Probe struct {
	Name string
	URL  string
}

// Report is the latest probe cycle, replaced wholesale on every cycle.
type Report struct {
	Services         []domain.HealthSnapshot `json:"services"`
	Healthy          int                     `json:"healthy"`
	Total            int                     `json:"total"`
	LatencyService   string                  `json:"latency_service,omitempty"`
	Latency          time.Duration           `json:"latency_ns"`
	LatencyThreshold time.Duration           `json:"latency_threshold_ns"`
	LatencyAlert     bool                    `json:"latency_alert"`
	Chaos            domain.ChaosState       `json:"chaos"`
	CheckedAt        time.Time               `json:"checked_at"`
}

// Service returns the snapshot for one service.
func (r Report) Service(name string) (domain.HealthSnapshot, bool) {
	for _, s := range r.Services {
		if s.Service == name {
			return s, true
		}
	}
	return domain.HealthSnapshot{}, false
}

type Option func(*Monitor)

func WithHTTPClient(hc *http.Client) Option   { return func(m *Monitor) { m.hc = hc } }
func WithInterval(d time.Duration) Option     { return func(m *Monitor) { m.interval = d } }
func WithProbeTimeout(d time.Duration) Option { return func(m *Monitor) { m.timeout = d } }
func WithLogger(lg *logger.Logger) Option     { return func(m *Monitor) { m.lg = lg } }
func WithClock(now func() time.Time) Option   { return func(m *Monitor) { m.now = now } }

// WithLatencyAlert designates the service whose probe latency is compared to threshold.
func WithLatencyAlert(service string, threshold time.Duration) Option {
	return func(m *Monitor) { m.latencySvc, m.threshold = service, threshold }
}

// WithChaos points the toggle at a control endpoint base, e.g. http://host:8005/notifications.
func WithChaos(baseURL string) Option {
	return func(m *Monitor) { m.chaosURL = strings.TrimRight(baseURL, "/") }
}

type Monitor struct {
	hc         *http.Client
	probes     []Probe
	interval   time.Duration
	timeout    time.Duration
	latencySvc string
	threshold  time.Duration
	chaosURL   string
	lg         *logger.Logger
	now        func() time.Time

	mu     sync.RWMutex
	report Report
}

func New(probes []Probe, opts ...Option) *Monitor {
	m := &Monitor{
		hc:        http.DefaultClient,
		probes:    probes,
		interval:  15 * time.Second,
		timeout:   5 * time.Second,
		threshold: time.Second,
		lg:        logger.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.report = Report{Total: len(probes), LatencyService: m.latencySvc, LatencyThreshold: m.threshold}
	for _, p := range probes {
		m.report.Services = append(m.report.Services, domain.HealthSnapshot{Service: p.Name, Status: domain.Unknown})
	}
	return m
}

// Report returns a copy of the latest cycle. A chaos reading older than one
// probe interval (plus the probe timeout) is reported as unknown.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.report
	r.Services = append([]domain.HealthSnapshot(nil), m.report.Services...)
	if r.Chaos.Known && m.now().Sub(r.Chaos.CheckedAt) > m.interval+m.timeout {
		r.Chaos = domain.ChaosState{}
	}
	return r
}

// ProbeAll checks every service concurrently. A failing probe marks only its own service degraded.
func (m *Monitor) ProbeAll(ctx context.Context) Report {
	m.mu.Lock()
	for i := range m.report.Services {
		m.report.Services[i].Status = domain.Checking
	}
	m.mu.Unlock()

	results := make([]domain.HealthSnapshot, len(m.probes))
	var g errgroup.Group
	for i, p := range m.probes {
		g.Go(func() error {
			results[i] = m.probe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	healthy := 0
	var (
		latency   time.Duration
		latencyOK = true
	)
	for _, s := range results {
		if s.Status == domain.Healthy {
			healthy++
		}
		metrics.ProbeHealthy.WithLabelValues(s.Service).Set(metrics.Bool(s.Status == domain.Healthy))
		metrics.ProbeLatency.WithLabelValues(s.Service).Set(s.Latency.Seconds())
		if s.Service == m.latencySvc {
			latency = s.Latency
			// a refused connection answers fast; it is not a good latency
			latencyOK = s.Status == domain.Healthy
		}
	}
	alert := m.latencySvc != "" && (latency > m.threshold || !latencyOK)
	metrics.LatencyAlert.Set(metrics.Bool(alert))
	if alert {
		m.lg.Warn("latency_threshold_exceeded", map[string]any{
			"service": m.latencySvc, "latency_ms": latency.Milliseconds(),
			"threshold_ms": m.threshold.Milliseconds(), "healthy": latencyOK,
		})
	}

	m.mu.Lock()
	m.report.Services = results
	m.report.Healthy = healthy
	m.report.Latency = latency
	m.report.LatencyAlert = alert
	m.report.CheckedAt = m.now()
	m.mu.Unlock()
	return m.Report()
}

type healthBody struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func (m *Monitor) probe(ctx context.Context, p Probe) domain.HealthSnapshot {
	snap := domain.HealthSnapshot{Service: p.Name, Status: domain.Degraded}
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, p.URL, nil)
	if err != nil {
		snap.Error = err.Error()
		snap.CheckedAt = m.now()
		return snap
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		snap.Latency = time.Since(start)
		snap.Error = err.Error()
		snap.CheckedAt = m.now()
		m.lg.Warn("probe_failed", map[string]any{"service": p.Name, "error": err.Error()})
		return snap
	}
	defer resp.Body.Close()

	var body healthBody
	decErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	snap.Latency = time.Since(start)
	snap.CheckedAt = m.now()
	snap.Dependencies = body.Dependencies

	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snap.Error = fmt.Sprintf("status %d", resp.StatusCode)
	case decErr != nil:
		snap.Status = domain.Unknown
		snap.Error = "unreadable health body"
	default:
		switch domain.HealthStatus(body.Status) {
		case domain.Healthy, domain.Degraded:
			snap.Status = domain.HealthStatus(body.Status)
		default:
			snap.Status = domain.Unknown
		}
	}
	return snap
}

type chaosBody struct {
	Enabled      *bool `json:"enabled"`
	ChaosEnabled *bool `json:"chaos_enabled"`
}

// Chaos reads the fault-injection flag. On failure the state becomes unknown.
func (m *Monitor) Chaos(ctx context.Context) (domain.ChaosState, error) {
	st, err := m.readChaos(ctx)
	m.mu.Lock()
	m.report.Chaos = st
	m.mu.Unlock()
	metrics.ChaosEnabled.Set(metrics.Bool(st.Enabled))
	return st, err
}

func (m *Monitor) readChaos(ctx context.Context) (domain.ChaosState, error) {
	if m.chaosURL == "" {
		return domain.ChaosState{}, errors.New("chaos endpoint not configured")
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, m.chaosURL+"/chaos", nil)
	if err != nil {
		return domain.ChaosState{}, err
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return domain.ChaosState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.ChaosState{}, fmt.Errorf("chaos: unexpected status %d", resp.StatusCode)
	}
	var b chaosBody
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return domain.ChaosState{}, fmt.Errorf("chaos: %w", err)
	}
	st := domain.ChaosState{Known: true, CheckedAt: m.now()}
	switch {
	case b.Enabled != nil:
		st.Enabled = *b.Enabled
	case b.ChaosEnabled != nil:
		st.Enabled = *b.ChaosEnabled
	default:
		return domain.ChaosState{}, errors.New("chaos: flag missing from response")
	}
	return st, nil
}

// SetChaos toggles fault injection and immediately re-probes every service.
func (m *Monitor) SetChaos(ctx context.Context, enabled bool) (Report, error) {
	if m.chaosURL == "" {
		return m.Report(), errors.New("chaos endpoint not configured")
	}
	action := "disable"
	if enabled {
		action = "enable"
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, m.chaosURL+"/chaos/"+action, nil)
	if err != nil {
		return m.Report(), err
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return m.Report(), fmt.Errorf("chaos %s: %w", action, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return m.Report(), fmt.Errorf("chaos %s: unexpected status %d", action, resp.StatusCode)
	}
	m.lg.Info("chaos_toggled", map[string]any{"enabled": enabled})

	if _, err := m.Chaos(ctx); err != nil {
		m.lg.Warn("chaos_read_failed", map[string]any{"error": err.Error()})
	}
	return m.ProbeAll(ctx), nil
}

// Run probes immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		m.cycle(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) {
	r := m.ProbeAll(ctx)
	if m.chaosURL != "" {
		if _, err := m.Chaos(ctx); err != nil {
			m.lg.Warn("chaos_read_failed", map[string]any{"error": err.Error()})
		}
	}
	m.lg.Debug("probe_cycle", map[string]any{"healthy": r.Healthy, "total": r.Total})
}
