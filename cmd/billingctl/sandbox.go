package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qs3c/installment_billing/internal/processor"
)

func sandboxCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Drive the sandbox payment processor",
	}

	var apply bool

	payLink := &cobra.Command{
		Use:   "pay-link [link-id]",
		Short: "Complete a sandbox payment link and emit its webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, sb, err := loadSandbox(*configPath)
			if err != nil {
				return err
			}
			payload, header, err := sb.PayLink(args[0])
			if err != nil {
				return err
			}
			return deliverEvent(a, payload, header, apply)
		},
	}
	payLink.Flags().BoolVar(&apply, "apply", true, "Run the webhook reconciler on the event instead of only printing it")
	cmd.AddCommand(payLink)

	chargeEvent := &cobra.Command{
		Use:   "charge-event [installment-id]",
		Short: "Emit the payment_intent.succeeded webhook for a sandbox charge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid installment id %q", args[0])
			}
			a, sb, err := loadSandbox(*configPath)
			if err != nil {
				return err
			}
			key, err := a.charges.ChargeKey(context.Background(), id)
			if err != nil {
				return err
			}
			payload, header, err := sb.ChargeEvent(key)
			if err != nil {
				return err
			}
			return deliverEvent(a, payload, header, apply)
		},
	}
	chargeEvent.Flags().BoolVar(&apply, "apply", true, "Run the webhook reconciler on the event instead of only printing it")
	cmd.AddCommand(chargeEvent)

	cmd.AddCommand(&cobra.Command{
		Use:   "charges",
		Short: "List charges recorded by the sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sb, err := loadSandbox(*configPath)
			if err != nil {
				return err
			}
			charges, err := sb.Charges()
			if err != nil {
				return err
			}
			return printJSON(charges)
		},
	})

	return cmd
}

func loadSandbox(configPath string) (*app, *processor.Sandbox, error) {
	a, err := loadApp(configPath)
	if err != nil {
		return nil, nil, err
	}
	sb, err := processor.AsSandbox(a.proc)
	if err != nil {
		return nil, nil, err
	}
	return a, sb, nil
}

func deliverEvent(a *app, payload []byte, header string, apply bool) error {
	if !apply {
		fmt.Printf("%s: %s\n%s\n", processor.SignatureHeader, header, payload)
		return nil
	}
	result, err := a.webhooks.HandleEvent(context.Background(), payload, header)
	if err != nil {
		return err
	}
	return printJSON(result)
}
