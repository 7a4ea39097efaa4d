package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qs3c/installment_billing/internal/service"
)

func chargeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "charge [installment-id]",
		Short: "Attempt an off-session charge for one installment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid installment id %q", args[0])
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			outcome, err := a.charges.AttemptCharge(context.Background(), id)
			if err != nil {
				return err
			}
			if err := printJSON(outcome); err != nil {
				return err
			}
			if outcome.Status == service.ChargeFailed {
				return fmt.Errorf("charge failed: %s", outcome.Reason)
			}
			return nil
		},
	}
}

func chargeOverdueCmd(configPath *string) *cobra.Command {
	var markOverdue bool

	cmd := &cobra.Command{
		Use:   "charge-overdue",
		Short: "Charge every pending installment that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()

			if markOverdue {
				n, err := a.plans.MarkOverduePayments(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Marked %d payments overdue\n", n)
			}

			result, err := a.charges.ChargeOverdue(ctx)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().BoolVar(&markOverdue, "mark-overdue", true, "Flag pending payments with past-due installments as overdue first")
	return cmd
}
