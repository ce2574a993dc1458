package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/events"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a headless campaign worker pool",
	Long:  "Dequeues and executes campaign jobs without the control API. Events are forwarded to the configured webhook; scale out by running more worker processes against the same postgres queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var extra []events.Publisher
		if cfg.Events.WebhookURL != "" {
			forwarder := events.NewWebhookForwarder(cfg.Events.WebhookURL, cfg.Events.BufferSize)
			defer forwarder.Close()
			extra = append(extra, forwarder)
			zap.L().Info("event webhook enabled", zap.String("url", cfg.Events.WebhookURL))
		}

		env, err := initEnv(ctx, extra...)
		if err != nil {
			return err
		}
		defer env.Close()

		startStaleRequeuer(ctx, env.Queue)

		env.Pool.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
