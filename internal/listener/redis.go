package listener

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"order-sync/internal/domain"
)

// ChannelName is the pub/sub channel the kitchen workers publish status changes on.
func ChannelName(orderID string) string { return "order:" + orderID }

// pubSub is the part of *redis.PubSub the transport uses.
type pubSub interface {
	Receive(ctx context.Context) (any, error)
	Close() error
}

// RedisTransport subscribes straight to the backend's pub/sub channel.
// go-redis redials and resubscribes on the next Receive after a failure.
type RedisTransport struct {
	subscribe func(ctx context.Context, channel string) pubSub
	retry     time.Duration
}

func NewRedisTransport(rdb *redis.Client, retry time.Duration) *RedisTransport {
	if retry <= 0 {
		retry = 3 * time.Second
	}
	return &RedisTransport{
		subscribe: func(ctx context.Context, channel string) pubSub { return rdb.Subscribe(ctx, channel) },
		retry:     retry,
	}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Run(ctx context.Context, orderID string, out chan<- Frame) error {
	if !emit(ctx, out, stateFrame(domain.Connecting)) {
		return nil
	}
	ps := t.subscribe(ctx, ChannelName(orderID))
	defer ps.Close()

	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !emit(ctx, out, backoffFrame(err, t.retry)) || !sleep(ctx, t.retry) {
				return nil
			}
			if !emit(ctx, out, stateFrame(domain.Connecting)) {
				return nil
			}
			continue
		}
		var f Frame
		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			f = stateFrame(domain.Connected)
		case *redis.Message:
			f = Frame{Payload: []byte(m.Payload)}
		default:
			continue
		}
		if !emit(ctx, out, f) {
			return nil
		}
	}
}
