// Package monitor prints the service health panel and toggles chaos mode.
package monitor

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"order-sync/internal/app"
	"order-sync/internal/common/logger"
	"order-sync/internal/config"
	"order-sync/internal/domain"
	"order-sync/internal/health"
)

const watch = 500 * time.Millisecond

// SetChaos toggles fault injection once and prints the resulting report.
func SetChaos(ctx context.Context, cfg *config.Config, enabled bool, out io.Writer) error {
	m := app.Monitor(cfg, logger.New("monitor"))
	r, err := m.SetChaos(ctx, enabled)
	if err != nil {
		return err
	}
	return Render(out, r)
}

// Run probes on the configured interval and prints every completed cycle.
func Run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	m := app.Monitor(cfg, logger.New("monitor"))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error {
		t := time.NewTicker(watch)
		defer t.Stop()
		var last time.Time
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
			}
			r := m.Report()
			if r.CheckedAt.IsZero() || !r.CheckedAt.After(last) || r.Total == 0 {
				continue
			}
			last = r.CheckedAt
			if err := Render(out, r); err != nil {
				return err
			}
		}
	})
	return g.Wait()
}

// Render writes one report as a table.
func Render(w io.Writer, r health.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s  %d/%d healthy", r.CheckedAt.Format(time.TimeOnly), r.Healthy, r.Total)
	switch {
	case !r.Chaos.Known:
		fmt.Fprint(tw, "  chaos: unknown")
	case r.Chaos.Enabled:
		fmt.Fprint(tw, "  chaos: ON")
	default:
		fmt.Fprint(tw, "  chaos: off")
	}
	fmt.Fprintln(tw)
	if r.LatencyAlert {
		if s, ok := r.Service(r.LatencyService); ok && s.Status != domain.Healthy {
			fmt.Fprintf(tw, "! %s is %s: %s\n", r.LatencyService, s.Status, s.Error)
		} else {
			fmt.Fprintf(tw, "! %s latency %s exceeds %s\n", r.LatencyService, r.Latency.Round(time.Millisecond), r.LatencyThreshold)
		}
	}
	for _, s := range r.Services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Service, s.Status, s.Latency.Round(time.Millisecond), s.Error)
	}
	return tw.Flush()
}
