package client

import (
	"context"
	"net/http"
	"net/url"

	"order-sync/internal/domain"
)

// KitchenClient drives the kitchen control surface.
type KitchenClient struct {
	q requester
}

func NewKitchenClient(baseURL string, hc *http.Client) *KitchenClient {
	return &KitchenClient{q: newRequester(baseURL, hc)}
}

func (c *KitchenClient) Advance(ctx context.Context, orderID string) (domain.Order, error) {
	return c.move(ctx, orderID, domain.Advance)
}

func (c *KitchenClient) Revert(ctx context.Context, orderID string) (domain.Order, error) {
	return c.move(ctx, orderID, domain.Revert)
}

// Move issues one operator command and returns the order as the backend now sees it.
// Every failure is a *domain.TransitionError.
func (c *KitchenClient) Move(ctx context.Context, orderID string, dir domain.Direction) (domain.Order, error) {
	return c.move(ctx, orderID, dir)
}

func (c *KitchenClient) move(ctx context.Context, orderID string, dir domain.Direction) (domain.Order, error) {
	path := "/kitchen/orders/" + url.PathEscape(orderID) + "/" + string(dir)
	resp, err := c.q.do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return domain.Order{}, &domain.TransitionError{OrderID: orderID, Direction: dir, Reason: "kitchen unreachable", Err: err}
	}
	if !resp.ok() {
		msg, _ := resp.detail()
		te := &domain.TransitionError{OrderID: orderID, Direction: dir, Reason: msg}
		if resp.Status == http.StatusNotFound {
			te.Err = domain.ErrUnknownOrder
		}
		return domain.Order{}, te
	}
	var dto domain.OrderDTO
	if err := resp.decode(&dto); err != nil {
		return domain.Order{}, &domain.TransitionError{OrderID: orderID, Direction: dir, Reason: "malformed kitchen response", Err: err}
	}
	o := dto.ToOrder()
	if o.ID == "" {
		o.ID = orderID
	}
	if !o.Status.Valid() {
		return domain.Order{}, &domain.TransitionError{OrderID: orderID, Direction: dir, Reason: "kitchen returned unknown status " + string(o.Status)}
	}
	return o, nil
}
