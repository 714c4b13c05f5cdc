package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatbridge/pkg/bridge"
	"chatbridge/pkg/config"
	"chatbridge/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the messaging bridge",
	Long:  "Loads configuration, starts the configured channel adapters, and serves provider webhooks.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := bridge.NewService(cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize bridge service", "error", err)
			return
		}

		log.Info("Bridge starting", "channels", svc.Registry().Channels())
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Bridge runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
