/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/events"
	"github.com/reclutas/apiserver/internal/logging"
	"github.com/reclutas/apiserver/internal/mq"
	"github.com/reclutas/apiserver/internal/notify"
)

// workerCmd consumes interview events and emails candidates.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume interview events and send notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is required for the worker")
		}
		defer broker.Close()

		notifier := notify.NewEmailNotifier(cfg.SMTP, logger)
		if notifier == nil {
			logger.Warn("SMTP not configured, events are only logged")
		}

		handle := func(ctx context.Context, event events.Event) error {
			logger.Info("interview event",
				"type", event.Type,
				"event_id", event.ID,
				"entrevista_id", event.Interview.ID,
				"recluta_id", event.Candidate.ID)
			if notifier == nil {
				return nil
			}
			return notifier.Handle(ctx, event)
		}
		drop := func(msg mq.Message, err error) {
			logger.Warn("dropping undecodable message", "message_id", msg.ID, "error", err)
		}

		logger.Info("worker started", "backend", broker.Name(), "channel", cfg.MQ.Channel)
		err = events.NewPublisher(broker, cfg.MQ.Channel).Subscribe(ctx, handle, drop)
		if errors.Is(err, context.Canceled) {
			logger.Info("worker stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
