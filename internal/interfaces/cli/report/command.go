// Package report implements read-only reports over the backend data.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warehouse-ops/ntconsole/internal/application/reconcile"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/config"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/database"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/repository"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Reports over tickets and line items",
	}
	cmd.AddCommand(newShiftsCommand())
	return cmd
}

type shiftsOptions struct {
	env        string
	configPath string
	date       string
	asJSON     bool
}

func newShiftsCommand() *cobra.Command {
	opts := &shiftsOptions{}
	cmd := &cobra.Command{
		Use:   "shifts",
		Short: "Count line items per shift and payment status",
		Long:  `Count the line items created on one business date per shift and payment status, with the number overdue right now.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShifts(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().StringVarP(&opts.date, "date", "d", "", "Business date, YYYY-MM-DD or DD.MM.YYYY (default: today)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runShifts(cmd *cobra.Command, opts *shiftsOptions) error {
	cfg, err := config.Load(opts.env, opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger, false); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := biztime.Init(cfg.Biz.Timezone); err != nil {
		return fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	now := biztime.NowUTC()
	date := opts.date
	if date == "" {
		date = biztime.FormatDate(now)
	}

	backend := repository.NewWarehouseBackend(db, nil, logger.NewLogger())
	_, items, err := reconcile.FetchAll(cmd.Context(), backend, cfg.Reconcile.FetchPageSize)
	if err != nil {
		return err
	}

	report, err := reconcile.ShiftSummary(items, date, now)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeShiftReport(cmd.OutOrStdout(), report)
}

var reportStatuses = []vo.PaymentStatus{vo.PaymentAwaiting, vo.PaymentPartiallyPaid, vo.PaymentPaid}

func writeShiftReport(out io.Writer, report reconcile.ShiftReport) error {
	fmt.Fprintf(out, "Line items created on %s\n\n", report.Date)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(w, "SHIFT\tTOTAL\t")
	for _, s := range reportStatuses {
		fmt.Fprintf(w, "%s\t", s)
	}
	fmt.Fprint(w, "OVERDUE\t\n")

	for _, c := range report.Shifts {
		fmt.Fprintf(w, "%d\t%d\t", int(c.Shift), c.Total)
		for _, s := range reportStatuses {
			fmt.Fprintf(w, "%d\t", c.ByStatus[s])
		}
		fmt.Fprintf(w, "%d\t\n", c.Overdue)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if report.Skipped > 0 {
		fmt.Fprintf(out, "\n%d line item(s) skipped: unreadable creation time\n", report.Skipped)
	}
	return nil
}
