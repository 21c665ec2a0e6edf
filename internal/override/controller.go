// Package override issues operator advance/revert commands to the kitchen.
//
// The controller never touches the view. It reports the backend's answer on
// Results; the session loop applies it and forces a refresh, then calls Release.
package override

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
	"order-sync/internal/metrics"
)

// Mover is the kitchen control surface.
type Mover interface {
	Move(ctx context.Context, orderID string, dir domain.Direction) (domain.Order, error)
}

// StatusLookup reports the status currently shown for an order.
type StatusLookup func(orderID string) (domain.Status, bool)

// Result is the outcome of one backend call. Order is set only when Err is nil.
type Result struct {
	OrderID   string
	Direction domain.Direction
	Order     domain.Order
	Err       error
	At        time.Time
}

type Option func(*Controller)

func WithLimiter(l *rate.Limiter) Option    { return func(c *Controller) { c.limiter = l } }
func WithTimeout(d time.Duration) Option    { return func(c *Controller) { c.timeout = d } }
func WithLogger(lg *logger.Logger) Option   { return func(c *Controller) { c.lg = lg } }
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

type Controller struct {
	mover   Mover
	lookup  StatusLookup
	limiter *rate.Limiter
	timeout time.Duration
	lg      *logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]domain.Direction
	results  chan Result
	closed   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func New(mover Mover, lookup StatusLookup, opts ...Option) *Controller {
	c := &Controller{
		mover:    mover,
		lookup:   lookup,
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		timeout:  5 * time.Second,
		lg:       logger.Nop(),
		now:      time.Now,
		inFlight: make(map[string]domain.Direction),
		results:  make(chan Result, 16),
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Advance(ctx context.Context, orderID string) error {
	return c.Issue(ctx, orderID, domain.Advance)
}

func (c *Controller) Revert(ctx context.Context, orderID string) error {
	return c.Issue(ctx, orderID, domain.Revert)
}

// Issue validates the command against the shown status and sends it in the
// background. The returned error covers only local rejection; the backend's
// answer arrives on Results.
func (c *Controller) Issue(ctx context.Context, orderID string, dir domain.Direction) error {
	from, ok := c.lookup(orderID)
	if !ok {
		metrics.Commands.WithLabelValues(string(dir), "unknown_order").Inc()
		return &domain.TransitionError{OrderID: orderID, Direction: dir, Reason: "order is not on the board", Err: domain.ErrUnknownOrder}
	}
	if _, ok := domain.LegalManualTransition(from, dir); !ok {
		metrics.Commands.WithLabelValues(string(dir), "illegal").Inc()
		return &domain.TransitionError{OrderID: orderID, Direction: dir, From: from, Reason: "not allowed from this status"}
	}

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return domain.ErrSessionClosed
	default:
	}
	if _, busy := c.inFlight[orderID]; busy {
		c.mu.Unlock()
		metrics.Commands.WithLabelValues(string(dir), "in_flight").Inc()
		return domain.ErrCommandInFlight
	}
	if !c.limiter.Allow() {
		c.mu.Unlock()
		metrics.Commands.WithLabelValues(string(dir), "throttled").Inc()
		return domain.ErrThrottled
	}
	c.inFlight[orderID] = dir
	c.wg.Add(1)
	c.mu.Unlock()

	c.lg.Info("override_issued", map[string]any{"order_id": orderID, "direction": dir, "from": from})
	go c.call(context.WithoutCancel(ctx), orderID, dir)
	return nil
}

func (c *Controller) call(ctx context.Context, orderID string, dir domain.Direction) {
	defer c.wg.Done()
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	o, err := c.mover.Move(cctx, orderID, dir)
	res := Result{OrderID: orderID, Direction: dir, Err: err, At: c.now()}
	if err == nil {
		res.Order = o
		metrics.Commands.WithLabelValues(string(dir), "ok").Inc()
	} else {
		metrics.Commands.WithLabelValues(string(dir), "rejected").Inc()
		c.lg.Warn("override_rejected", map[string]any{"order_id": orderID, "direction": dir, "error": err.Error()})
	}

	select {
	case c.results <- res:
	case <-c.closed:
	}
}

// Results delivers backend answers in completion order.
func (c *Controller) Results() <-chan Result { return c.results }

// Release clears the in-flight flag once the follow-up refresh has completed.
func (c *Controller) Release(orderID string) {
	c.mu.Lock()
	delete(c.inFlight, orderID)
	c.mu.Unlock()
}

func (c *Controller) InFlight(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[orderID]
	return ok
}

// Close refuses new commands and waits for outstanding calls. Results still
// undelivered are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.once.Do(func() { close(c.closed) })
	c.mu.Unlock()
	c.wg.Wait()
}
