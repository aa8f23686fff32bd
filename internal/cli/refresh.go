package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jobcost/internal/amqp"
)

var errNoBroker = errors.New("AMQP_URL is not set")

func newRefreshCommand(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the running dashboard to reload its cost data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), a, reason, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "cli", "reason recorded with the refresh")

	return cmd
}

func runRefresh(ctx context.Context, a *app, reason string, out io.Writer) error {
	if a.cfg.AMQPURL == "" {
		return errNoBroker
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.logger)
	if err != nil {
		return fmt.Errorf("connect refresh queue: %w", err)
	}
	defer client.Close()

	if err := client.PublishRefresh(ctx, reason); err != nil {
		return err
	}
	fmt.Fprintf(out, "Refresh requested on %s\n", a.cfg.AMQPQueue)
	return nil
}
