package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"relaygram/pkg/channel/telegram"
	"relaygram/pkg/config"
	"relaygram/pkg/logger"
	"relaygram/pkg/relay"

	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the relay service",
	Long:  "Runs the relay loop: Telegram long polling, webhook exchange, and action dispatch, with optional health endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.relay")

		adapter, err := telegram.NewAdapter(cfg.Telegram, log)
		if err != nil {
			return fmt.Errorf("configure telegram channel: %w", err)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := relay.NewService(cfg, []relay.Channel{adapter}, log)
		if err != nil {
			return fmt.Errorf("initialize relay service: %w", err)
		}

		log.Info("Relay started", "channel", adapter.Name(), "backend", cfg.Backend.URL, "ops_enabled", cfg.Ops.Enabled)
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay runtime failed: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.SilenceUsage = true
}
