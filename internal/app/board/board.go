// Package board runs the operator board in a terminal.
package board

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"order-sync/internal/app"
	"order-sync/internal/common/logger"
	"order-sync/internal/config"
)

const redraw = time.Second

// Run logs in as an operator and redraws the board until ctx ends.
func Run(ctx context.Context, cfg *config.Config, creds app.Credentials, out io.Writer) error {
	lg := logger.New("board")
	tok, err := app.Login(ctx, cfg, creds)
	if err != nil {
		return err
	}
	if err := tok.RequireAdmin(time.Now()); err != nil {
		return err
	}
	lg.Info("operator_logged_in", map[string]any{"student_id": tok.StudentID})

	s, cleanup, err := app.BoardSession(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		t := time.NewTicker(redraw)
		defer t.Stop()
		var last time.Time
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-s.Done():
				return nil
			case <-t.C:
				v := s.View()
				if v == nil || !v.GeneratedAt.After(last) {
					continue
				}
				last = v.GeneratedAt
				_, _ = io.WriteString(out, "\033[H\033[2J")
				if err := Render(out, v); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}
