// Package poller fetches full snapshots of the order list for a viewer scope.
package poller

import (
	"context"
	"errors"
	"time"

	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
	"order-sync/internal/metrics"
)

// BoardInterval is the operator board refresh period.
const BoardInterval = 5 * time.Second

// Scope selects what a snapshot covers. An empty OrderID means every order on the board.
type Scope struct {
	OrderID string
}

func (s Scope) Board() bool { return s.OrderID == "" }

// Source returns the authoritative order list in arrival order.
type Source interface {
	FetchOrders(ctx context.Context, scope Scope) ([]domain.Order, error)
	Name() string
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option { return func(p *Poller) { p.interval = d } }
func WithTimeout(d time.Duration) Option  { return func(p *Poller) { p.timeout = d } }
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}
func WithLogger(lg *logger.Logger) Option { return func(p *Poller) { p.lg = lg } }

type Poller struct {
	src      Source
	scope    Scope
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	lg       *logger.Logger
}

// New builds a poller. Board scopes poll every BoardInterval by default;
// single-order scopes poll on demand only.
func New(src Source, scope Scope, opts ...Option) *Poller {
	p := &Poller{
		src:     src,
		scope:   scope,
		timeout: 5 * time.Second,
		now:     time.Now,
		lg:      logger.Nop(),
	}
	if scope.Board() {
		p.interval = BoardInterval
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Interval is zero for on-demand scopes.
func (p *Poller) Interval() time.Duration { return p.interval }

func (p *Poller) Scope() Scope { return p.scope }

// Fetch performs one snapshot read. Any failure comes back as *domain.TransientFetchError.
func (p *Poller) Fetch(ctx context.Context) (domain.SnapshotEvent, error) {
	started := p.now()
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	orders, err := p.src.FetchOrders(fctx, p.scope)
	elapsed := p.now().Sub(started)
	if err != nil {
		var fe *domain.TransientFetchError
		if !errors.As(err, &fe) {
			fe = &domain.TransientFetchError{Op: p.src.Name(), Err: err}
		}
		metrics.FetchDuration.WithLabelValues(p.src.Name(), "error").Observe(elapsed.Seconds())
		p.lg.Warn("snapshot_fetch_failed", map[string]any{
			"source": p.src.Name(), "order_id": p.scope.OrderID, "error": fe.Error(),
		})
		return domain.SnapshotEvent{}, fe
	}
	metrics.FetchDuration.WithLabelValues(p.src.Name(), "ok").Observe(elapsed.Seconds())
	p.lg.Debug("snapshot_fetched", map[string]any{
		"source": p.src.Name(), "orders": len(orders), "duration_ms": elapsed.Milliseconds(),
	})
	return domain.SnapshotEvent{Orders: orders, StartedAt: started, CompletedAt: p.now()}, nil
}
