package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/quiet-hours/internal/trigger"
)

var schedule string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fire dispatch ticks on a cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		t, cleanup, err := newTrigger(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		expr := schedule
		if expr == "" {
			expr = cfg.Cron.Schedule
		}

		s, err := trigger.NewScheduler(expr, t, cfg.Dispatcher.ClaimTTL, log)
		if err != nil {
			return err
		}

		log.Info("Trigger started", "schedule", expr, "direct", direct)
		s.Run(ctx)
		log.Info("Trigger stopped")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&schedule, "schedule", "", "cron expression, overrides cron.schedule")
}
