package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/database"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
)

func eventsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Billing event stream",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print billing events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rdb, err := database.NewRedis(&cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "Listening on %s, Ctrl-C to stop\n", pubsub.ChannelBillingEvents)
			err = pubsub.NewSubscriber(rdb).Subscribe(ctx, func(e *pubsub.BillingEvent) {
				fmt.Printf("%s %-22s parent=%d installments=[%s] amount=%d %s\n",
					e.OccurredAt.Format(time.RFC3339), e.Type, e.ParentID,
					joinInt64(e.InstallmentIDs), e.Amount, e.Reason)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	})

	return cmd
}
