package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"order-sync/internal/app/board"
	"order-sync/internal/app/monitor"
	"order-sync/internal/app/serve"
	"order-sync/internal/app/tracking"
	"order-sync/internal/client"
	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
)

func NewBoardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the live kitchen board (operators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(os.Stderr)
			return board.Run(cmd.Context(), opts.cfg, opts.creds(), cmd.OutOrStdout())
		},
	}
}

type trackOptions struct {
	OrderID string
	Items   []string
	Note    string
}

func NewTrackCommand(opts *RootOptions) *cobra.Command {
	t := &trackOptions{}
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Place an order and follow it until it is ready",
		Long: `Place an order and follow its status until it is ready or failed.

Example:
  order-sync track --student-id s-42 --item burger=2 --item fries=1 --note "no onions"
  order-sync track --order 7f1c9a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(os.Stderr)
			req := tracking.Request{Creds: opts.creds(), OrderID: t.OrderID}
			if t.OrderID == "" {
				items, err := parseItems(t.Items)
				if err != nil {
					return err
				}
				req.Cart = client.Cart{Items: items, Note: t.Note}
			}
			return tracking.Run(cmd.Context(), opts.cfg, req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&t.OrderID, "order", "", "follow an existing order instead of placing one")
	cmd.Flags().StringArrayVar(&t.Items, "item", nil, "menu item as id=quantity, repeatable")
	cmd.Flags().StringVar(&t.Note, "note", "", "special notes for the kitchen")
	cmd.MarkFlagsMutuallyExclusive("order", "item")
	return cmd
}

// parseItems turns "burger=2" flags into order lines; a bare id means quantity 1.
func parseItems(raw []string) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(raw))
	for _, r := range raw {
		id, qty, found := strings.Cut(r, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid item %q", r)
		}
		n := 1
		if found {
			v, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil {
				return nil, fmt.Errorf("invalid quantity in %q: %w", r, err)
			}
			n = v
		}
		items = append(items, domain.OrderItem{MenuItemID: id, Quantity: n})
	}
	return items, nil
}

func NewMonitorCommand(opts *RootOptions) *cobra.Command {
	var chaos string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch service health, or toggle chaos mode with --chaos on|off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(os.Stderr)
			switch chaos {
			case "":
				return monitor.Run(cmd.Context(), opts.cfg, cmd.OutOrStdout())
			case "on", "off":
				return monitor.SetChaos(cmd.Context(), opts.cfg, chaos == "on", cmd.OutOrStdout())
			default:
				return fmt.Errorf("invalid --chaos %q: must be on or off", chaos)
			}
		},
	}
	cmd.Flags().StringVar(&chaos, "chaos", "", "enable (on) or disable (off) fault injection and exit")
	return cmd
}

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the board and health monitor behind the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := logger.New("bootstrap")
			lg.Info("service_started", map[string]any{"service": "serve", "addr": opts.cfg.HTTP.Addr})
			if err := serve.Run(cmd.Context(), opts.cfg, opts.creds()); err != nil {
				lg.Error("fatal", err, nil)
				return err
			}
			return nil
		},
	}
}
