package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/pkg/jwt"
)

func tokenCmd(configPath *string) *cobra.Command {
	var (
		staffID int64
		actor   string
		hours   int
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff JWT for the billing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if hours <= 0 {
				hours = cfg.JWT.ExpireHours
			}

			token, err := jwt.GenerateToken(staffID, actor, cfg.JWT.Secret, hours)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&staffID, "staff-id", 0, "Staff member id")
	cmd.Flags().StringVar(&actor, "actor", "", "Actor recorded on manual adjustments, e.g. an e-mail address")
	cmd.Flags().IntVar(&hours, "hours", 0, "Lifetime in hours (default jwt.expire_hours)")
	return cmd
}
