package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-sync/internal/connections/rabbitmq"
	"order-sync/internal/domain"
)

// fanoutConn is the part of a broker connection the transport uses.
type fanoutConn interface {
	SubscribeFanout(exchange, tag string) (*rabbitmq.Consumer, error)
	Ping() error
	Close()
}

// AMQPTransport consumes status notifications from the broker's fanout
// exchange and keeps the ones for the subscribed order.
type AMQPTransport struct {
	dial     func() (fanoutConn, error)
	exchange string
	retry    time.Duration
}

func NewAMQPTransport(dial func() (*rabbitmq.Client, error), exchange string, retry time.Duration) *AMQPTransport {
	if exchange == "" {
		exchange = "notifications_fanout"
	}
	if retry <= 0 {
		retry = 3 * time.Second
	}
	return &AMQPTransport{
		dial: func() (fanoutConn, error) {
			c, err := dial()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		exchange: exchange,
		retry:    retry,
	}
}

func (t *AMQPTransport) Name() string { return "amqp" }

func (t *AMQPTransport) Run(ctx context.Context, orderID string, out chan<- Frame) error {
	for {
		if !emit(ctx, out, stateFrame(domain.Connecting)) {
			return nil
		}
		err := t.consume(ctx, orderID, out)
		if ctx.Err() != nil {
			return nil
		}
		if !emit(ctx, out, backoffFrame(err, t.retry)) || !sleep(ctx, t.retry) {
			return nil
		}
	}
}

func (t *AMQPTransport) consume(ctx context.Context, orderID string, out chan<- Frame) error {
	cli, err := t.dial()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer cli.Close()

	cons, err := cli.SubscribeFanout(t.exchange, "order-sync-"+orderID)
	if err != nil {
		return err
	}
	if !emit(ctx, out, stateFrame(domain.Connected)) {
		return ctx.Err()
	}
	// the channel can outlive a dead connection until the next heartbeat
	alive := time.NewTicker(t.retry)
	defer alive.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-alive.C:
			if err := cli.Ping(); err != nil {
				return err
			}
		case e := <-cons.Closed:
			if e != nil {
				return fmt.Errorf("channel closed: %d %s", e.Code, e.Reason)
			}
			return errors.New("channel closed")
		case tag := <-cons.Cancel:
			return fmt.Errorf("consumer %s cancelled", tag)
		case d, ok := <-cons.Deliveries:
			if !ok {
				return errors.New("deliveries closed")
			}
			if !forOrder(d.Body, orderID) {
				continue
			}
			if !emit(ctx, out, Frame{Payload: d.Body}) {
				return ctx.Err()
			}
		}
	}
}

// forOrder keeps malformed bodies so the listener can count them as dropped.
func forOrder(body []byte, orderID string) bool {
	var m struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return true
	}
	return m.OrderID == orderID
}
