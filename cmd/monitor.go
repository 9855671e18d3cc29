package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/learning"
	"github.com/aegis-advisory/guidance-cli/internal/store"
)

var monitorOnce bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the retrain monitor",
	Long:  "Watches recent learning events on a timer and triggers the configured retraining action when yield falls below the floor, confidence trends down, or enough new events accumulate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		var retrainer learning.Retrainer = learning.LogRetrainer{}
		if cfg.Monitor.WebhookURL != "" {
			retrainer = &learning.WebhookRetrainer{URL: cfg.Monitor.WebhookURL}
		}

		m := learning.NewMonitor(st, retrainer, cfg.Monitor)

		if monitorOnce {
			return m.Tick(ctx)
		}

		m.Run(ctx)
		zap.L().Info("monitor exited")
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single evaluation tick and exit")
	rootCmd.AddCommand(monitorCmd)
}
