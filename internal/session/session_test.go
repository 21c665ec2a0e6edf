package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/internal/domain"
	"order-sync/internal/listener"
	"order-sync/internal/poller"
)

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeSource struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
	calls  int
	block  chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchOrders(ctx context.Context, _ poller.Scope) ([]domain.Order, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	out := append([]domain.Order(nil), f.orders...)
	err := f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, err
}

func (f *fakeSource) set(orders ...domain.Order) {
	f.mu.Lock()
	f.orders = orders
	f.mu.Unlock()
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func order(id string, st domain.Status) domain.Order {
	return domain.Order{ID: id, StudentID: "S1", Status: st,
		Items: []domain.OrderItem{{MenuItemID: "ITEM-KEBAB", Quantity: 1}}}
}

type fakeMover struct {
	mu   sync.Mutex
	resp map[string]domain.Order
}

func (m *fakeMover) Move(_ context.Context, id string, dir domain.Direction) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.resp[id]
	if !ok {
		return domain.Order{}, &domain.TransitionError{OrderID: id, Direction: dir, Reason: "rejected"}
	}
	return o, nil
}

// pushTransport replays frames and then blocks; runs counts subscriptions.
type pushTransport struct {
	frames []listener.Frame
	runs   atomic.Int32
}

func (p *pushTransport) Name() string { return "fake" }

func (p *pushTransport) Run(ctx context.Context, _ string, out chan<- listener.Frame) error {
	p.runs.Add(1)
	for _, f := range p.frames {
		select {
		case out <- f:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func payload(st domain.Status) listener.Frame {
	return listener.Frame{Payload: []byte(`{"order_id":"O1","status":"` + string(st) + `"}`)}
}

func start(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
}

func statusOf(s *Session, id string) domain.Status {
	st, _ := s.Status(id)
	return st
}

func TestBoardSessionPollsAndHighlights(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusPending)}}
	s := New(poller.New(src, poller.Scope{}, poller.WithInterval(20*time.Millisecond)))
	start(t, s)

	require.Eventually(t, func() bool { return s.View().IsHighlighted("O1") }, wait, tick)
	assert.Equal(t, 1, s.View().Summary.Active)

	src.set(order("O1", domain.StatusPending), order("O2", domain.StatusReady))
	require.Eventually(t, func() bool { return statusOf(s, "O2") == domain.StatusReady }, wait, tick)
	assert.Equal(t, 1, s.View().Summary.Ready)

	// highlights clear on their own, not with the next poll
	require.Eventually(t, func() bool { return len(s.View().Highlighted) == 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestFetchFailureKeepsViewAndMarksStale(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusInKitchen)}}
	s := New(poller.New(src, poller.Scope{}, poller.WithInterval(10*time.Millisecond)))
	start(t, s)
	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusInKitchen }, wait, tick)

	src.mu.Lock()
	src.err = assert.AnError
	src.mu.Unlock()
	require.Eventually(t, func() bool { return s.View().Stale }, wait, tick)
	assert.Equal(t, domain.StatusInKitchen, statusOf(s, "O1"))

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	require.Eventually(t, func() bool { return !s.View().Stale }, wait, tick)
}

func TestManualRevertThenSnapshotConfirms(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusStockVerified)}}
	mover := &fakeMover{resp: map[string]domain.Order{"O1": order("O1", domain.StatusPending)}}
	s := New(poller.New(src, poller.Scope{}, poller.WithInterval(time.Hour)), WithOverride(mover))
	start(t, s)
	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusStockVerified }, wait, tick)

	src.set(order("O1", domain.StatusPending))
	calls := src.Calls()
	require.NoError(t, s.Override().Revert(context.Background(), "O1"))

	require.Eventually(t, func() bool { return !s.Override().InFlight("O1") }, wait, tick)
	assert.Greater(t, src.Calls(), calls, "command forces a refresh")
	assert.Equal(t, domain.StatusPending, statusOf(s, "O1"))

	last, ok := s.LastCommand()
	require.True(t, ok)
	assert.NoError(t, last.Err)
}

func TestSnapshotOverridesUnconfirmedManualResult(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusInKitchen)}}
	// backend answers ready but never persists it
	mover := &fakeMover{resp: map[string]domain.Order{"O1": order("O1", domain.StatusReady)}}
	s := New(poller.New(src, poller.Scope{}, poller.WithInterval(time.Hour)), WithOverride(mover))
	start(t, s)
	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusInKitchen }, wait, tick)

	require.NoError(t, s.Override().Advance(context.Background(), "O1"))
	require.Eventually(t, func() bool { return !s.Override().InFlight("O1") }, wait, tick)
	assert.Equal(t, domain.StatusInKitchen, statusOf(s, "O1"))
}

func TestRejectedCommandStillRefreshesAndReleases(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusInKitchen)}}
	s := New(poller.New(src, poller.Scope{}, poller.WithInterval(time.Hour)), WithOverride(&fakeMover{}))
	start(t, s)
	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusInKitchen }, wait, tick)

	calls := src.Calls()
	require.NoError(t, s.Override().Advance(context.Background(), "O1"))
	require.Eventually(t, func() bool { return !s.Override().InFlight("O1") }, wait, tick)
	assert.Greater(t, src.Calls(), calls)

	last, ok := s.LastCommand()
	require.True(t, ok)
	assert.ErrorIs(t, last.Err, domain.ErrIllegalTransition)
	assert.Equal(t, domain.StatusInKitchen, statusOf(s, "O1"))
}

func TestPushErrorFallsBackToPolling(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusPending)}}
	tr := &pushTransport{frames: []listener.Frame{
		{State: domain.Connecting},
		{State: domain.Connected},
		payload(domain.StatusStockVerified),
		{State: domain.BackingOff, Err: assert.AnError},
	}}
	s := New(poller.New(src, poller.Scope{OrderID: "O1"}),
		WithListener(listener.New(tr)), WithFallbackInterval(10*time.Millisecond))
	start(t, s)

	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusStockVerified }, wait, tick)
	require.Eventually(t, func() bool { return s.View().Connection.State == domain.BackingOff }, wait, tick)

	src.set(order("O1", domain.StatusReady))
	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusReady }, wait, tick)
	rec, _ := s.View().Record("O1")
	assert.Equal(t, domain.ViaPoll, rec.LastSeenVia)

	// settled: the fallback stops polling
	calls := src.Calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, src.Calls())
}

func TestTerminalPushEndsSubscriptionAndPollsOnce(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{{ID: "O1", Status: domain.StatusInKitchen}}}
	tr := &pushTransport{frames: []listener.Frame{
		{State: domain.Connecting},
		{State: domain.Connected},
		payload(domain.StatusReady),
	}}
	s := New(poller.New(src, poller.Scope{OrderID: "O1"}),
		WithListener(listener.New(tr)), WithFallbackInterval(time.Hour))
	start(t, s)

	require.Eventually(t, func() bool { return statusOf(s, "O1") == domain.StatusReady }, wait, tick)
	require.Eventually(t, func() bool { return s.View().Connection.State == domain.Disconnected }, wait, tick)
	require.Eventually(t, func() bool { return src.Calls() >= 2 }, wait, tick)

	// The kitchen reverts the order after the customer saw it ready. The customer
	// session does not resubscribe and the snapshot cannot regress a terminal record.
	src.set(order("O1", domain.StatusInKitchen))
	<-s.Refresh(context.Background())
	assert.Equal(t, domain.StatusReady, statusOf(s, "O1"))
	assert.EqualValues(t, 1, tr.runs.Load())

	rec, _ := s.View().Record("O1")
	assert.False(t, rec.Partial, "snapshot filled in the line items")
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	src := &fakeSource{orders: []domain.Order{order("O1", domain.StatusPending)}, block: make(chan struct{})}
	s := New(poller.New(src, poller.Scope{}, poller.WithInterval(time.Hour)))
	go func() { _ = s.Run(context.Background()) }()
	require.Eventually(t, func() bool { return src.Calls() == 1 }, wait, tick)

	s.Close()
	close(src.block)
	assert.Empty(t, s.View().Records)

	select {
	case <-s.Refresh(context.Background()):
	case <-time.After(wait):
		t.Fatal("Refresh after close must not block")
	}
	assert.ErrorIs(t, s.Run(context.Background()), domain.ErrSessionClosed)
}
