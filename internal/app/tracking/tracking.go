// Package tracking follows one customer order from submission to a terminal status.
package tracking

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"order-sync/internal/app"
	"order-sync/internal/client"
	"order-sync/internal/common/logger"
	"order-sync/internal/config"
	"order-sync/internal/domain"
	"order-sync/internal/engine"
)

const pollView = 250 * time.Millisecond

// Request is either a cart to submit or an existing order to follow.
type Request struct {
	Creds   app.Credentials
	Cart    client.Cart
	OrderID string
}

// Run submits the cart when no order id is given and prints status changes
// until the order settles or ctx ends.
func Run(ctx context.Context, cfg *config.Config, req Request, out io.Writer) error {
	lg := logger.New("tracking")
	orderID := req.OrderID
	if orderID == "" {
		tok, err := app.Login(ctx, cfg, req.Creds)
		if err != nil {
			return err
		}
		oc := client.NewOrderClient(cfg.Services.Gateway, &http.Client{Timeout: 10 * time.Second})
		placed, err := oc.Submit(ctx, tok.Access, req.Cart)
		if err != nil {
			return err
		}
		orderID = placed.OrderID
		lg.Info("order_submitted", map[string]any{"order_id": orderID, "idempotency_key": placed.IdempotencyKey})
		fmt.Fprintf(out, "order %s accepted (%s)\n", orderID, placed.Status)
		if placed.EstimatedWait > 0 {
			fmt.Fprintf(out, "estimated wait %s\n", placed.EstimatedWait)
		}
	}

	s, cleanup, err := app.TrackSession(ctx, cfg, orderID, lg)
	if err != nil {
		return err
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		defer s.Close()
		return follow(gctx, s.View, orderID, out)
	})
	return g.Wait()
}

// follow prints each visible change and returns once the order is terminal.
func follow(ctx context.Context, view func() *engine.View, orderID string, out io.Writer) error {
	t := time.NewTicker(pollView)
	defer t.Stop()
	var (
		lastStatus domain.Status
		lastConn   domain.ConnState
		lastErr    string
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		v := view()
		if v == nil {
			continue
		}
		if v.Connection.State != lastConn {
			lastConn = v.Connection.State
			fmt.Fprintf(out, "live updates: %s\n", describeConn(v.Connection))
		}
		rec, ok := v.Record(orderID)
		if !ok {
			if v.Stale && v.LastFetchError != lastErr {
				lastErr = v.LastFetchError
				fmt.Fprintf(out, "status unavailable: %s\n", lastErr)
			}
			continue
		}
		if rec.Status != lastStatus {
			lastStatus = rec.Status
			fmt.Fprintf(out, "%s  %s\n", v.GeneratedAt.Format(time.TimeOnly), rec.Status)
		}
		if rec.Status.Terminal() {
			return nil
		}
	}
}

func describeConn(cs domain.ConnectionState) string {
	switch cs.State {
	case domain.BackingOff:
		return fmt.Sprintf("reconnecting (attempt %d): %s", cs.Retries, cs.LastError)
	default:
		return string(cs.State)
	}
}
