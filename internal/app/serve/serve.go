// Package serve runs the operator board and the health monitor behind the JSON API.
package serve

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"order-sync/internal/app"
	"order-sync/internal/common/httpx"
	"order-sync/internal/common/logger"
	"order-sync/internal/config"
	"order-sync/internal/handler"
)

func Run(ctx context.Context, cfg *config.Config, creds app.Credentials) error {
	lg := logger.New("serve")
	tok, err := app.Login(ctx, cfg, creds)
	if err != nil {
		return err
	}
	if err := tok.RequireAdmin(time.Now()); err != nil {
		return err
	}

	board, cleanup, err := app.BoardSession(ctx, cfg, logger.New("board"))
	if err != nil {
		return err
	}
	defer cleanup()
	mon := app.Monitor(cfg, logger.New("monitor"))

	h := handler.New(board, mon)
	srv := httpx.New(cfg.HTTP.Addr, handler.Router(h), lg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return board.Run(gctx) })
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	lg.Info("board_session_ready", map[string]any{"session_id": board.ID(), "operator": tok.StudentID})
	return g.Wait()
}
