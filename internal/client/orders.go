package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"order-sync/internal/domain"
)

// Gateway limits for one submission.
const (
	MaxLines    = 20
	MaxQuantity = 10
	MaxNoteLen  = 500
)

// Cart is a pending submission. It is never modified by Submit, so a rejected
// cart can be amended and resubmitted as is.
type Cart struct {
	Items []domain.OrderItem
	Note  string
}

// Validate applies the gateway's schema before anything is sent.
func (c Cart) Validate() error {
	if len(c.Items) == 0 || len(c.Items) > MaxLines {
		return &domain.OrderError{Detail: fmt.Sprintf("an order needs 1 to %d lines, got %d", MaxLines, len(c.Items))}
	}
	for _, it := range c.Items {
		if it.MenuItemID == "" {
			return &domain.OrderError{Detail: "menu item id is empty"}
		}
		if it.Quantity < 1 || it.Quantity > MaxQuantity {
			return &domain.OrderError{Detail: fmt.Sprintf("quantity for %s must be 1..%d", it.MenuItemID, MaxQuantity)}
		}
	}
	if utf8.RuneCountInString(c.Note) > MaxNoteLen {
		return &domain.OrderError{Detail: fmt.Sprintf("special notes exceed %d characters", MaxNoteLen)}
	}
	return nil
}

// Placed is the gateway's acceptance of an order.
type Placed struct {
	OrderID        string
	Status         domain.Status
	Message        string
	IdempotencyKey string
	EstimatedWait  time.Duration
}

type OrderClient struct {
	q        requester
	maxTries uint
	newKey   func() string
}

func NewOrderClient(baseURL string, hc *http.Client) *OrderClient {
	return &OrderClient{q: newRequester(baseURL, hc), maxTries: 3, newKey: uuid.NewString}
}

// Submit places the cart with a fresh idempotency key. Transport failures and
// 5xx answers are retried with the same key so the gateway can replay its
// first answer instead of creating a second order.
func (c *OrderClient) Submit(ctx context.Context, token string, cart Cart) (Placed, error) {
	if err := cart.Validate(); err != nil {
		return Placed{}, err
	}
	key := c.newKey()
	req := domain.CreateOrderRequest{Items: cart.Items}
	if cart.Note != "" {
		n := cart.Note
		req.SpecialNotes = &n
	}
	h := bearer(token)
	h.Set("Idempotency-Key", key)

	op := func() (Placed, error) {
		resp, err := c.q.do(ctx, http.MethodPost, "/orders", req, h)
		if err != nil {
			return Placed{}, &domain.OrderError{Detail: "gateway unreachable", Err: err}
		}
		if !resp.ok() {
			msg, _ := resp.detail()
			oe := &domain.OrderError{Status: resp.Status, Detail: msg}
			if resp.Status >= 500 {
				return Placed{}, oe
			}
			return Placed{}, backoff.Permanent(oe)
		}
		var cr domain.CreateOrderResponse
		if err := resp.decode(&cr); err != nil {
			return Placed{}, backoff.Permanent(&domain.OrderError{Status: resp.Status, Detail: "malformed gateway response", Err: err})
		}
		st, _ := domain.ParseStatus(cr.Status)
		p := Placed{OrderID: cr.OrderID, Status: st, Message: cr.Message, IdempotencyKey: key}
		if cr.EstimatedWaitSeconds != nil {
			p.EstimatedWait = time.Duration(*cr.EstimatedWaitSeconds) * time.Second
		}
		return p, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	p, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		var oe *domain.OrderError
		if errors.As(err, &oe) {
			return Placed{}, oe
		}
		return Placed{}, &domain.OrderError{Detail: "submission aborted", Err: err}
	}
	return p, nil
}
