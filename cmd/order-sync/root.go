package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"order-sync/internal/app"
	"order-sync/internal/common/logger"
	"order-sync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	StudentID  string
	Password   string

	cfg *config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "order-sync",
		Short: "Live order status for the campus kitchen",
		Long: `order-sync keeps a live view of order status by merging kitchen snapshots,
push notifications and operator commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") {
				level = opts.LogLevel
			}
			logger.SetLevel(level)
			if opts.Password == "" {
				opts.Password = os.Getenv("ORDER_SYNC_PASSWORD")
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml (default: search working directory)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "debug | info | warn | error")
	cmd.PersistentFlags().StringVar(&opts.StudentID, "student-id", "", "login identity")
	cmd.PersistentFlags().StringVar(&opts.Password, "password", "", "login password (or ORDER_SYNC_PASSWORD)")

	cmd.AddCommand(NewBoardCommand(opts))
	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	return cmd
}

func (o *RootOptions) creds() app.Credentials {
	return app.Credentials{StudentID: o.StudentID, Password: o.Password}
}

// loadConfig reads the given file, else the first config found nearby, else env only.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	found, err := config.FindConfig()
	if errors.Is(err, fs.ErrNotExist) {
		return config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	return config.Load(found)
}
