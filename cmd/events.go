/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/types"
)

// eventsCmd groups task event tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect task events",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log every task event published to the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Connect(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() {
			_ = broker.Close()
		}()

		publisher := mq.NewTaskEventPublisher(broker, cfg.MQ.TaskEventsChannel)
		log.Info("watching task events", slog.String("backend", cfg.MQ.Backend), slog.String("channel", cfg.MQ.TaskEventsChannel))

		err = publisher.SubscribeTaskEvents(ctx, func(ctx context.Context, event types.TaskEvent) error {
			log.Info("task event",
				slog.String("type", string(event.Type)),
				slog.Int("task_id", event.TaskID),
				slog.Int("owner_id", event.OwnerID),
				slog.Time("occurred_at", event.OccurredAt),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
