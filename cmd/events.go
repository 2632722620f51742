package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

// eventsTailCmd logs every account event on the configured channel until
// interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print account events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(cmd.OutOrStdout(), cfg.LogLevel)

		backend, err := mq.NewBackend(cmd.Context(), cfg.Events)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("EVENTS_BACKEND is none; nothing to tail")
		}
		broker := mq.New(backend)
		defer broker.Close()

		err = broker.Subscribe(cmd.Context(), cfg.Events.Channel, func(ctx context.Context, msg mq.Message) error {
			ev, err := mq.DecodeAccountEvent(msg)
			if err != nil {
				logger.WarnContext(ctx, "undecodable message", "id", msg.ID, "error", err)
				return nil
			}
			logger.InfoContext(ctx, "account event",
				"id", msg.ID,
				"type", ev.Type,
				"user_id", ev.UserID,
				"token_version", ev.TokenVersion,
				"occurred_at", ev.OccurredAt,
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
