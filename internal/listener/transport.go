package listener

import (
	"context"
	"time"

	"order-sync/internal/domain"
)

// Frame is one item produced by a Transport: either a raw payload or a
// connection state change (Payload nil).
type Frame struct {
	Payload []byte
	State   domain.ConnState
	Err     error
	RetryAt time.Time
}

// Transport delivers raw status payloads for one order.
//
// Reconnection belongs to the transport: after a failure it reports BackingOff,
// waits its own retry delay and connects again. Listener relies on this and
// never schedules reconnects itself; events missed while disconnected are
// recovered by the next snapshot, not by the push channel.
//
// Run blocks until ctx is cancelled and never closes out.
type Transport interface {
	Run(ctx context.Context, orderID string, out chan<- Frame) error
	Name() string
}

func emit(ctx context.Context, out chan<- Frame, f Frame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func stateFrame(s domain.ConnState) Frame { return Frame{State: s} }

func backoffFrame(err error, retry time.Duration) Frame {
	return Frame{State: domain.BackingOff, Err: err, RetryAt: time.Now().Add(retry)}
}

// sleep waits d or until ctx ends; false means ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
