package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/client"
	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/logging"
)

func watchCMD() *cobra.Command {
	var server, username, status string
	var interval time.Duration
	var stream bool
	var watch = &cobra.Command{
		Use:   "watch",
		Short: "Follow the escalation queue as an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("warn", "console")
			if err != nil {
				return err
			}
			defer logger.Sync()

			password := os.Getenv("HELPDESK_OPERATOR_PASSWORD")
			if password == "" {
				return errors.New("HELPDESK_OPERATOR_PASSWORD is not set")
			}

			out := cmd.OutOrStdout()
			filter := domain.EscalationFilter{Status: domain.Status(status)}
			panel := client.New(server, client.WithLogger(logger)).NewOperatorPanel(
				client.WithPollInterval(interval),
				client.WithFilter(filter),
				client.OnUpdate(func(list *domain.EscalationListResponse) { printQueue(out, list) }),
			)

			ctx := cmd.Context()
			if err := panel.Login(ctx, username, password); err != nil {
				return err
			}

			if stream {
				return watchStream(ctx, panel, out, logger)
			}
			panel.SetVisible(true)
			return ignoreCanceled(panel.Run(ctx))
		},
	}
	watch.Flags().StringVarP(&server, "server", "s", "http://localhost:8000", "helpdesk server URL")
	watch.Flags().StringVarP(&username, "user", "u", "", "operator username")
	watch.Flags().StringVar(&status, "status", "", "only show tickets with this status")
	watch.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval")
	watch.Flags().BoolVar(&stream, "stream", false, "follow the push channel instead of polling")
	watch.MarkFlagRequired("user")
	return watch
}

// watchStream refreshes the queue on every pushed ticket event
func watchStream(ctx context.Context, panel *client.OperatorPanel, out io.Writer, logger *zap.Logger) error {
	for {
		err := panel.Watch(ctx, func(e *domain.TicketEvent) {
			fmt.Fprintf(out, "%s ticket %s -> %s\n", e.UpdatedAt.Format(time.TimeOnly), e.EscalationID, e.Status)
			if _, err := panel.Refresh(ctx); err != nil {
				logger.Warn("refresh failed", zap.Error(err))
			}
		})
		if ctx.Err() != nil || !panel.LoggedIn() {
			return ignoreCanceled(err)
		}
		logger.Warn("event stream ended, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

func printQueue(out io.Writer, list *domain.EscalationListResponse) {
	fmt.Fprintf(out, "--- %d tickets, %d pending ---\n", list.Total, list.PendingCount)
	for _, esc := range list.Escalations {
		fmt.Fprintf(out, "%s  %-11s  %s  %s\n",
			esc.ID, esc.Status, esc.CreatedAt.Format(time.DateTime), esc.Reason)
	}
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
