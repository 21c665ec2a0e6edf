package session

import (
	"context"
	"time"

	"order-sync/internal/domain"
	"order-sync/internal/engine"
	"order-sync/internal/listener"
	"order-sync/internal/metrics"
	"order-sync/internal/override"
	"order-sync/internal/poller"
)

// loop holds the state only the session goroutine touches.
type loop struct {
	s       *Session
	ctx     context.Context
	eng     *engine.Engine
	refresh poller.Refresher
	fetches chan fetchResult

	sub      *listener.Subscription
	updates  <-chan listener.Update
	conn     domain.ConnectionState
	terminal bool

	highlight *time.Timer
}

func (l *loop) run() error {
	s := l.s
	scope := s.poller.Scope()

	var tick <-chan time.Time
	if iv := s.poller.Interval(); iv > 0 {
		t := time.NewTicker(iv)
		defer t.Stop()
		tick = t.C
	}
	var fallback <-chan time.Time
	if !scope.Board() {
		if s.listener != nil {
			l.sub = s.listener.Subscribe(l.ctx, scope.OrderID)
			l.updates = l.sub.Updates()
		}
		if s.fallback > 0 {
			t := time.NewTicker(s.fallback)
			defer t.Stop()
			fallback = t.C
		}
	}
	var results <-chan override.Result
	if s.ctrl != nil {
		results = s.ctrl.Results()
	}

	l.requestRefresh(nil)
	l.publish()

	for {
		select {
		case <-l.ctx.Done():
			return nil

		case <-tick:
			l.requestRefresh(nil)

		case <-fallback:
			if !l.terminal && l.conn.State != domain.Connected {
				l.requestRefresh(nil)
			}

		case r := <-l.fetches:
			l.applyFetch(r)

		case u, ok := <-l.updates:
			if !ok {
				l.updates = nil
				l.s.lg.Info("push_subscription_ended", map[string]any{"order_id": l.sub.OrderID(), "terminal": l.terminal})
				l.conn = domain.ConnectionState{State: domain.Disconnected}
				l.publish()
				continue
			}
			l.applyPush(u)

		case r := <-results:
			l.applyCommand(r)

		case ch := <-s.refreshQ:
			l.requestRefresh(func() { close(ch) })

		case <-l.highlightC():
			l.highlight = nil
			if l.eng.Expire() {
				l.publish()
			}
		}
	}
}

func (l *loop) requestRefresh(done func()) {
	if l.refresh.Request(done) {
		l.startFetch()
	}
}

func (l *loop) startFetch() {
	go func() {
		ev, err := l.s.poller.Fetch(l.ctx)
		select {
		case l.fetches <- fetchResult{ev: ev, err: err}:
		case <-l.ctx.Done():
		}
	}()
}

func (l *loop) applyFetch(r fetchResult) {
	// a fetch resolving after teardown started is dropped
	if l.ctx.Err() != nil || l.eng.Closed() {
		return
	}
	if r.err != nil {
		l.eng.NoteFetchFailure(r.err, l.s.now())
	} else {
		res, err := l.eng.Apply(r.ev)
		if err == nil && !res.Empty() {
			l.s.lg.Debug("snapshot_applied", map[string]any{
				"new": len(res.New), "changed": len(res.Changed), "discarded": len(res.Discarded),
			})
		}
		l.noteTerminal()
	}
	done, again := l.refresh.Finish()
	if again {
		l.startFetch()
	}
	l.publish()
	for _, f := range done {
		f()
	}
}

func (l *loop) applyPush(u listener.Update) {
	l.conn = u.Conn
	if u.Event != nil {
		if _, err := l.eng.Apply(*u.Event); err != nil {
			return
		}
		if u.Event.Status.Terminal() {
			// converge the rest of the record with the backend once the order settles
			l.requestRefresh(nil)
		}
		l.noteTerminal()
	}
	l.publish()
}

func (l *loop) applyCommand(r override.Result) {
	res := r
	l.s.lastCmd.Store(&res)
	if r.Err == nil {
		if _, err := l.eng.Apply(domain.ManualEvent{Order: r.Order, Direction: r.Direction, AppliedAt: r.At}); err != nil {
			return
		}
		l.noteTerminal()
	} else {
		l.s.lg.Warn("command_failed", map[string]any{"order_id": r.OrderID, "direction": r.Direction, "error": r.Err.Error()})
	}
	ctrl, id := l.s.ctrl, r.OrderID
	l.requestRefresh(func() { ctrl.Release(id) })
	l.publish()
}

// noteTerminal tracks whether a single-order session has settled.
func (l *loop) noteTerminal() {
	id := l.s.poller.Scope().OrderID
	if id == "" {
		return
	}
	st, ok := l.eng.Status(id)
	l.terminal = ok && st.Terminal()
}

func (l *loop) highlightC() <-chan time.Time {
	if l.highlight == nil {
		return nil
	}
	return l.highlight.C
}

// publish stores a fresh view and arms the highlight timer for the next expiry.
func (l *loop) publish() {
	v := l.eng.View().WithConnection(l.conn)
	l.s.view.Store(v)
	metrics.SetPushState(string(l.conn.State))

	if l.highlight != nil {
		l.highlight.Stop()
		l.highlight = nil
	}
	if next, ok := l.eng.NextExpiry(); ok {
		d := next.Sub(l.s.now())
		if d < 0 {
			d = 0
		}
		l.highlight = time.NewTimer(d)
	}
}

func (l *loop) teardown() {
	if l.sub != nil {
		l.sub.Close()
	}
	if l.s.ctrl != nil {
		l.s.ctrl.Close()
	}
	if l.highlight != nil {
		l.highlight.Stop()
	}
	l.eng.Close()
	l.conn = domain.ConnectionState{State: domain.Disconnected}
	l.s.view.Store(l.eng.View())
	for _, f := range l.refresh.Drain() {
		f()
	}
	// release anything queued on Refresh while we were tearing down
	for {
		select {
		case ch := <-l.s.refreshQ:
			close(ch)
		default:
			return
		}
	}
}
