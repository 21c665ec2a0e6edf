package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"order-sync/internal/domain"
	"order-sync/internal/poller"
)

// KitchenHTTP reads snapshots from the kitchen service API.
type KitchenHTTP struct {
	base   string
	client *http.Client
}

func NewKitchenHTTP(baseURL string, client *http.Client) *KitchenHTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &KitchenHTTP{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (k *KitchenHTTP) Name() string { return "kitchen_http" }

func (k *KitchenHTTP) FetchOrders(ctx context.Context, scope poller.Scope) ([]domain.Order, error) {
	if scope.Board() {
		var rows []domain.OrderDTO
		if _, err := k.get(ctx, "/kitchen/all-orders", &rows); err != nil {
			return nil, err
		}
		out := make([]domain.Order, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.ToOrder())
		}
		return out, nil
	}

	var row domain.OrderDTO
	found, err := k.get(ctx, "/kitchen/orders/"+url.PathEscape(scope.OrderID), &row)
	if err != nil {
		return nil, err
	}
	if !found {
		// not yet persisted by the kitchen; the next poll will see it
		return []domain.Order{}, nil
	}
	return []domain.Order{row.ToOrder()}, nil
}

func (k *KitchenHTTP) get(ctx context.Context, path string, out any) (bool, error) {
	op := "GET " + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.base+path, nil)
	if err != nil {
		return false, &domain.TransientFetchError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := k.client.Do(req)
	if err != nil {
		return false, &domain.TransientFetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, &domain.TransientFetchError{
			Op: op, Status: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, &domain.TransientFetchError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return true, nil
}
