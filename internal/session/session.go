// Package session runs one viewer session: a single loop that owns the
// reconciliation engine and feeds it from the poller, the push listener and
// the override controller. Renderers read the published View.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
	"order-sync/internal/engine"
	"order-sync/internal/listener"
	"order-sync/internal/override"
	"order-sync/internal/poller"
)

// FallbackInterval is how often a single-order session polls while its push
// channel is not connected.
const FallbackInterval = 5 * time.Second

type Option func(*Session)

func WithListener(l *listener.Listener) Option { return func(s *Session) { s.listener = l } }

// WithOverride enables operator commands through mover.
func WithOverride(mover override.Mover, opts ...override.Option) Option {
	return func(s *Session) { s.mover, s.overrideOpts = mover, opts }
}

func WithLogger(lg *logger.Logger) Option         { return func(s *Session) { s.lg = lg } }
func WithClock(now func() time.Time) Option       { return func(s *Session) { s.now = now } }
func WithFallbackInterval(d time.Duration) Option { return func(s *Session) { s.fallback = d } }

type fetchResult struct {
	ev  domain.SnapshotEvent
	err error
}

type Session struct {
	id       string
	poller   *poller.Poller
	listener *listener.Listener
	ctrl     *override.Controller
	lg       *logger.Logger
	now      func() time.Time
	fallback time.Duration

	mover        override.Mover
	overrideOpts []override.Option

	view     atomic.Pointer[engine.View]
	lastCmd  atomic.Pointer[override.Result]
	refreshQ chan chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

func New(p *poller.Poller, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		poller:   p,
		lg:       logger.Nop(),
		now:      time.Now,
		fallback: FallbackInterval,
		refreshQ: make(chan chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.lg = s.lg.With(map[string]any{"session_id": s.id})
	if s.mover != nil {
		s.ctrl = override.New(s.mover, s.Status, s.overrideOpts...)
	}
	s.view.Store(engine.New().View())
	return s
}

func (s *Session) ID() string { return s.id }

// View is the latest immutable view. Safe from any goroutine.
func (s *Session) View() *engine.View { return s.view.Load() }

// Status reads the current status from the published view.
func (s *Session) Status(orderID string) (domain.Status, bool) {
	r, ok := s.View().Record(orderID)
	if !ok {
		return "", false
	}
	return r.Status, true
}

// Override is nil unless the session was built WithOverride.
func (s *Session) Override() *override.Controller { return s.ctrl }

// Issue sends an operator command through the override controller.
func (s *Session) Issue(ctx context.Context, orderID string, dir domain.Direction) error {
	if s.ctrl == nil {
		return errors.New("session has no override controller")
	}
	return s.ctrl.Issue(ctx, orderID, dir)
}

// LastCommand is the backend's answer to the most recent operator command.
func (s *Session) LastCommand() (override.Result, bool) {
	r := s.lastCmd.Load()
	if r == nil {
		return override.Result{}, false
	}
	return *r, true
}

// Refresh asks for an immediate snapshot. The returned channel is closed
// once a fetch started after this call has been applied, or when the session ends.
func (s *Session) Refresh(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	select {
	case s.refreshQ <- ch:
	case <-s.done:
		close(ch)
	case <-ctx.Done():
		close(ch)
	}
	return ch
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close ends a running session and waits for its teardown.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, running := s.cancel, s.running
	s.mu.Unlock()
	if !running {
		return
	}
	cancel()
	<-s.done
}

// Run drives the session until ctx ends or Close is called. It may be called once.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		cancel()
		return domain.ErrSessionClosed
	}
	s.running, s.cancel = true, cancel
	s.mu.Unlock()
	defer close(s.done)
	defer cancel()

	l := &loop{
		s:       s,
		ctx:     ctx,
		eng:     engine.New(engine.WithClock(s.now), engine.WithLogger(s.lg)),
		fetches: make(chan fetchResult, 1),
		conn:    domain.ConnectionState{State: domain.Disconnected},
	}
	s.lg.Info("session_started", map[string]any{"order_id": s.poller.Scope().OrderID, "interval_ms": s.poller.Interval().Milliseconds()})
	err := l.run()
	l.teardown()
	s.lg.Info("session_closed", nil)
	return err
}
