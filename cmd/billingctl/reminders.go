package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/pkg/money"
	"github.com/qs3c/installment_billing/internal/service"
)

func remindersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Recurring payment reminder operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send every reminder that is due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			result, err := a.reminders.RunDue(context.Background())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	})

	var limit int
	due := &cobra.Command{
		Use:   "due",
		Short: "List schedules that the next run would process",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			schedules, err := a.reminders.DueSchedules(context.Background(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE\tPARENT\tINSTALLMENTS\tTOTAL\tSENT\tNEXT")
			for _, s := range schedules {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%d/%d\t%s\n",
					s.ID, s.ParentID, len(s.InstallmentIDs),
					money.Format(s.CombinedTotal, a.cfg.Processor.Currency),
					s.SentCount, s.MaxReminders, s.NextSendAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	due.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum schedules (0 uses billing.reminder_batch_limit)")
	cmd.AddCommand(due)

	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Installment schedule tools",
	}

	var (
		req      dto.CreatePlanRequest
		total    string
		amount   string
		currency string
	)
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Print the installments a plan would generate",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.TotalAmount, err = money.Parse(total); err != nil {
				return fmt.Errorf("invalid --total: %w", err)
			}
			if amount != "" {
				if req.InstallmentAmount, err = money.Parse(amount); err != nil {
					return fmt.Errorf("invalid --amount: %w", err)
				}
			}

			installments, err := service.NewPlanService(nil, nil).Preview(&req)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tDUE\tAMOUNT")
			for _, item := range dto.NewSchedulePreview(installments) {
				fmt.Fprintf(w, "%d\t%s\t%s\n", item.InstallmentNumber, item.DueDate, money.Format(item.Amount, currency))
			}
			fmt.Fprintf(w, "\tTOTAL\t%s\n", money.Format(req.TotalAmount, currency))
			return w.Flush()
		},
	}

	preview.Flags().StringVar(&total, "total", "", "Plan total in major units, e.g. 1000.00")
	preview.Flags().StringVar(&amount, "amount", "", "Per-installment amount (default total/count rounded down)")
	preview.Flags().IntVar(&req.InstallmentCount, "count", 1, "Number of installments")
	preview.Flags().StringVar(&req.StartDate, "start", time.Now().UTC().Format("2006-01-02"), "First due date (YYYY-MM-DD)")
	preview.Flags().StringVar(&req.IntervalUnit, "unit", "month", "Interval unit: day, week, month")
	preview.Flags().IntVar(&req.IntervalCount, "every", 1, "Interval count")
	preview.Flags().StringVar(&currency, "currency", "usd", "Currency for display")
	_ = preview.MarkFlagRequired("total")
	cmd.AddCommand(preview)

	return cmd
}

// joinInt64 逗号分隔输出 ID
func joinInt64(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
