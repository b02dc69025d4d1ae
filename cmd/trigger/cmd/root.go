package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/quiet-hours/internal/app"
	"github.com/jwalitptl/quiet-hours/internal/config"
	"github.com/jwalitptl/quiet-hours/internal/trigger"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

var (
	cfgFile string
	direct  bool

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger drives quiet-hours reminder dispatch",
	Long: `trigger is the external timer for the quiet-hours reminder dispatcher.

By default every tick calls the API's process-notifications endpoint with the
cron secret. With --direct it opens the configured store itself and runs the
dispatcher in-process, which needs no running API.

Common workflows:

  Run one tick now:
    trigger once

  Run on the configured schedule (default every minute):
    trigger run

  Follow dispatch outcomes published to Redis:
    trigger watch

  Mint a user token for the API:
    trigger token --user <uuid>

Configuration is read from config.yaml (., ./config, /app/config) or --config,
with QH_* environment overrides such as QH_CRON_SECRET and QH_CRON_API_URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfigFrom(cfgFile)
		if err != nil {
			return err
		}
		log = logger.New(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches for config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&direct, "direct", false, "run the dispatcher in-process instead of calling the API")

	rootCmd.AddCommand(onceCmd, runCmd, watchCmd, tokenCmd)
}

// newTrigger returns the trigger selected by --direct and a cleanup func.
func newTrigger(ctx context.Context) (trigger.Trigger, func(), error) {
	if !direct {
		timeout := cfg.Dispatcher.DeliveryTimeout + time.Duration(cfg.Server.TimeoutSeconds)*time.Second
		return trigger.NewHTTPTrigger(cfg.Cron.APIURL, cfg.Cron.Secret, timeout), func() {}, nil
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return trigger.NewDirectTrigger(a.Dispatcher), func() { _ = a.Close() }, nil
}
