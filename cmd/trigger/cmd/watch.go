package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/pkg/messaging"
	"github.com/jwalitptl/quiet-hours/pkg/messaging/redis"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print dispatch outcomes published to Redis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return errors.New("redis is not enabled (set redis.enabled or QH_REDIS_ENABLED)")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log, nil)
		if err != nil {
			return err
		}
		defer broker.Close()

		msgs, err := broker.Subscribe(ctx, cfg.Redis.Channel)
		if err != nil {
			return err
		}

		for raw := range msgs {
			var o model.Outcome
			typ, err := messaging.DecodeMessage(raw, &o)
			if err != nil {
				log.Warn("Skipping undecodable message", "error", err.Error())
				continue
			}
			if typ != messaging.OutcomeMessageType {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", o.Status, o.NotificationID, o.UserID, o.Detail)
		}
		return nil
	},
}
