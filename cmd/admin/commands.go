package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"famledger/internal/app"
	"famledger/internal/domain/amortization"
	"famledger/internal/domain/paymentplan"
	"famledger/internal/models"
	"famledger/internal/shared/batch"
	"famledger/internal/shared/config"
	"famledger/internal/shared/dateutil"
	"famledger/internal/shared/logging"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Management commands for the famledger scheduler",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newRunCommand(),
		newPlanCommand(),
		newAccountsCommand(),
	)
	return rootCmd
}

// withDeps loads configuration and builds the dependencies for one command.
func withDeps(cmd *cobra.Command, fn func(ctx context.Context, deps *app.Dependencies) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.NewWithOutput(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, cmd.ErrOrStderr())

	ctx := cmd.Context()
	deps, err := app.NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(ctx, deps)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.DB == nil {
					return fmt.Errorf("migrate requires the %q store driver", config.StorePostgres)
				}
				if err := deps.DB.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
				return nil
			})
		},
	}
}

func newRunCommand() *cobra.Command {
	var date string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run a scheduled job once (recurring, autopayoff or reminders)",
		Example: `  admin run recurring
  admin run autopayoff --date 2024-03-15
  admin run reminders --timeout 5m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				var clock dateutil.Clock
				if date != "" {
					d, err := dateutil.Parse(date)
					if err != nil {
						return err
					}
					clock = dateutil.FixedClock{Date: d}
				}

				jobs := deps.Jobs(clock)
				job, ok := jobs[args[0]]
				if !ok {
					return fmt.Errorf("unknown job %q (available: %s)", args[0], strings.Join(jobNames(jobs), ", "))
				}

				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				result, err := job.Run(ctx)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), job.Name(), result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "run as of this date (YYYY-MM-DD) instead of today")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "timeout for the run")
	return cmd
}

func jobNames[T any](jobs map[string]T) []string {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printResult(out io.Writer, name string, r *batch.Result) {
	fmt.Fprintf(out, "%s: processed=%d succeeded=%d skipped=%d failed=%d\n",
		name, r.Processed, r.Succeeded, r.Skipped, r.Failed)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
}

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect credit card payment plans",
	}
	cmd.AddCommand(newPlanPreviewCommand(), newPlanUpcomingCommand())
	return cmd
}

type previewFlags struct {
	paymentType    string
	amount         string
	start          string
	billingDay     int
	installments   int
	feeRate        string
	monthlyPayment string
	interestRate   string
}

func (f previewFlags) request() (paymentplan.PlanRequest, decimal.Decimal, time.Time, error) {
	var req paymentplan.PlanRequest
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return req, decimal.Zero, time.Time{}, fmt.Errorf("invalid amount: %w", err)
	}
	start, err := dateutil.Parse(f.start)
	if err != nil {
		return req, decimal.Zero, time.Time{}, err
	}

	req.PaymentType = models.PaymentType(strings.ToUpper(f.paymentType))
	req.TotalInstallments = f.installments
	if req.InstallmentFeeRate, err = optionalDecimal(f.feeRate); err != nil {
		return req, decimal.Zero, time.Time{}, fmt.Errorf("invalid fee rate: %w", err)
	}
	if req.MonthlyPayment, err = optionalDecimal(f.monthlyPayment); err != nil {
		return req, decimal.Zero, time.Time{}, fmt.Errorf("invalid monthly payment: %w", err)
	}
	if req.InterestRate, err = optionalDecimal(f.interestRate); err != nil {
		return req, decimal.Zero, time.Time{}, fmt.Errorf("invalid interest rate: %w", err)
	}
	return req, amount, start, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func newPlanPreviewCommand() *cobra.Command {
	var f previewFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the schedule a plan would produce without saving it",
		Example: `  admin plan preview --type installment --amount 1200000 --start 2024-01-20 --billing-day 15 --installments 12 --fee-rate 0.005
  admin plan preview --type revolving --amount 1000000 --start 2024-01-10 --billing-day 25 --monthly-payment 100000 --interest-rate 0.15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, amount, start, err := f.request()
			if err != nil {
				return err
			}
			schedule, err := req.Schedule(amount, start, f.billingDay)
			if err != nil {
				return err
			}
			return printSchedule(cmd.OutOrStdout(), schedule)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.paymentType, "type", string(models.PaymentTypeInstallment), "plan type: installment or revolving")
	flags.StringVar(&f.amount, "amount", "", "original amount")
	flags.StringVar(&f.start, "start", "", "purchase date (YYYY-MM-DD)")
	flags.IntVar(&f.billingDay, "billing-day", 0, "card billing day (1-31)")
	flags.IntVar(&f.installments, "installments", 0, "installment count")
	flags.StringVar(&f.feeRate, "fee-rate", "", "installment fee rate per installment, as a fraction")
	flags.StringVar(&f.monthlyPayment, "monthly-payment", "", "revolving monthly payment")
	flags.StringVar(&f.interestRate, "interest-rate", "", "revolving annual interest rate, as a fraction")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("billing-day")
	return cmd
}

func printSchedule(out io.Writer, s *amortization.Schedule) error {
	fmt.Fprintf(out, "Type: %s  Original: %s  Total: %s  Payments: %d\n",
		s.PaymentType, s.OriginalAmount.StringFixed(2), s.TotalAmountWithFee.StringFixed(2), s.TotalInstallments)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "#\tDue\tPrincipal\tFee\tInterest\tTotal\tRemaining\t")
	for _, p := range s.Payments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			p.Number, p.DueDate.Format(dateutil.Layout),
			p.Principal.StringFixed(2), p.Fee.StringFixed(2), p.Interest.StringFixed(2),
			p.Total.StringFixed(2), p.RemainingAfter.StringFixed(2))
	}
	return w.Flush()
}

func newPlanUpcomingCommand() *cobra.Command {
	var userID int64
	var days int

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List pending plan payments due within a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				var (
					payments []*models.UpcomingPayment
					err      error
				)
				if userID > 0 {
					payments, err = deps.PaymentPlans.UpcomingPayments(ctx, userID, days)
				} else {
					payments, err = deps.PaymentPlans.DueSoon(ctx, days)
				}
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "USER\tPLAN\t#\tDUE\tAMOUNT")
				for _, p := range payments {
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
						p.UserID, p.PlanID, p.PaymentNumber, p.DueDate.Format(dateutil.Layout), p.TotalAmount.StringFixed(2))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "limit to one user")
	cmd.Flags().IntVar(&days, "days", 7, "window in days")
	return cmd
}

func newAccountsCommand() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List a user's accounts with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				accounts, err := deps.Accounts.ListAccountsByUserID(ctx, userID)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tCURRENCY\tBALANCE")
				for _, a := range accounts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Type, a.Currency, a.CurrentBalance.StringFixed(2))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "owner of the accounts")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
