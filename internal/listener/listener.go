// Package listener follows the push channel of one order.
package listener

import (
	"context"
	"sync"
	"time"

	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
	"order-sync/internal/metrics"
)

// Update is delivered for every accepted push event and every visible
// connection state change. Event is nil for state-only updates.
type Update struct {
	Event *domain.PushEvent
	Conn  domain.ConnectionState
}

type Option func(*Listener)

func WithLogger(lg *logger.Logger) Option { return func(l *Listener) { l.lg = lg } }

func WithClock(now func() time.Time) Option { return func(l *Listener) { l.now = now } }

type Listener struct {
	tr  Transport
	lg  *logger.Logger
	now func() time.Time
}

func New(tr Transport, opts ...Option) *Listener {
	l := &Listener{tr: tr, lg: logger.Nop(), now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Subscription is a cancellable, finite stream of push events for one order.
// It ends after a terminal status, on Close, or when the parent context ends;
// Updates is closed in every case.
type Subscription struct {
	orderID string
	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	mu    sync.Mutex
	state domain.ConnectionState
}

func (l *Listener) Subscribe(ctx context.Context, orderID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		orderID: orderID,
		updates: make(chan Update, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   domain.ConnectionState{State: domain.Disconnected},
	}
	frames := make(chan Frame, 16)
	trDone := make(chan struct{})
	go func() {
		defer close(trDone)
		if err := l.tr.Run(ctx, orderID, frames); err != nil && ctx.Err() == nil {
			l.lg.Error("push_transport_stopped", err, map[string]any{"order_id": orderID, "transport": l.tr.Name()})
		}
	}()
	go func() {
		defer close(s.done)
		defer close(s.updates)
		defer func() { <-trDone }()
		defer cancel()
		l.pump(ctx, s, frames, trDone)
		s.setState(domain.ConnectionState{State: domain.Disconnected})
		metrics.SetPushState(string(domain.Disconnected))
	}()
	return s
}

func (l *Listener) pump(ctx context.Context, s *Subscription, frames <-chan Frame, trDone <-chan struct{}) {
	for {
		var f Frame
		select {
		case <-ctx.Done():
			return
		case <-trDone:
			return
		case f = <-frames:
		}

		if f.Payload == nil {
			if next, visible := s.transition(f); visible {
				metrics.SetPushState(string(next.State))
				if next.State == domain.BackingOff {
					metrics.PushReconnects.WithLabelValues(l.tr.Name()).Inc()
					l.lg.Warn("push_backing_off", map[string]any{
						"order_id": s.orderID, "retries": next.Retries, "error": next.LastError,
					})
				}
				if !s.send(ctx, Update{Conn: next}) {
					return
				}
			}
			continue
		}

		ev, ok := ParsePayload(s.orderID, f.Payload, l.now())
		if !ok {
			metrics.PushDropped.WithLabelValues("malformed").Inc()
			l.lg.Debug("push_payload_dropped", map[string]any{"order_id": s.orderID, "bytes": len(f.Payload)})
			continue
		}
		if !s.send(ctx, Update{Event: &ev, Conn: s.State()}) {
			return
		}
		if ev.Status.Terminal() {
			l.lg.Info("push_terminal", map[string]any{"order_id": s.orderID, "status": ev.Status})
			return
		}
	}
}

// transition folds a state frame into the connection state. A reconnect after
// backing off stays invisible until it succeeds.
func (s *Subscription) transition(f Frame) (domain.ConnectionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	switch f.State {
	case domain.Connecting:
		if s.state.State == domain.BackingOff || s.state.State == domain.Connecting {
			return s.state, false
		}
		next.State = domain.Connecting
	case domain.Connected:
		next = domain.ConnectionState{State: domain.Connected, Retries: s.state.Retries}
	case domain.BackingOff:
		next.State = domain.BackingOff
		next.Retries++
		next.NextRetry = f.RetryAt
		if f.Err != nil {
			next.LastError = (&domain.ChannelError{OrderID: s.orderID, Err: f.Err}).Error()
		}
	default:
		return s.state, false
	}
	if next == s.state {
		return s.state, false
	}
	s.state = next
	return next, true
}

func (s *Subscription) send(ctx context.Context, u Update) bool {
	select {
	case s.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) setState(cs domain.ConnectionState) {
	s.mu.Lock()
	s.state = cs
	s.mu.Unlock()
}

func (s *Subscription) OrderID() string { return s.orderID }

// Updates is closed when the subscription ends.
func (s *Subscription) Updates() <-chan Update { return s.updates }

// Done is closed once the subscription and its transport have stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the subscription down and waits for it. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	for range s.updates {
	}
	<-s.done
}
