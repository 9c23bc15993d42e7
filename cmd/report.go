package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatali-fataliyev/finance_analytics/api"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/fatali-fataliyev/finance_analytics/internal/config"
	"github.com/fatali-fataliyev/finance_analytics/internal/contextutil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	userID   string
	dateFrom string
	dateTo   string
	n        int
	daysBack int
}

func newReportCmd(configPath *string) *cobra.Command {
	opts := &reportOptions{}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print an analytics report for one user as JSON",
	}
	reportCmd.PersistentFlags().StringVar(&opts.userID, "user", "", "owner of the transactions")
	reportCmd.PersistentFlags().StringVar(&opts.dateFrom, "from", "", "lower bound, YYYY-MM-DD or RFC 3339")
	reportCmd.PersistentFlags().StringVar(&opts.dateTo, "to", "", "upper bound, YYYY-MM-DD or RFC 3339")
	_ = reportCmd.MarkPersistentFlagRequired("user")

	totalCmd := &cobra.Command{
		Use:   "total",
		Short: "Sum of all amounts in the range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, *configPath, opts, func(ctx context.Context, app *application, r budget.TimeRange) (any, error) {
				total, err := app.engine.TotalSpent(ctx, opts.userID, r)
				if err != nil {
					return nil, err
				}
				return api.TotalSpentResponse{TotalSpent: total.StringFixed(2)}, nil
			})
		},
	}

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Categories with the largest totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, *configPath, opts, func(ctx context.Context, app *application, r budget.TimeRange) (any, error) {
				top, err := app.engine.TopCategories(ctx, opts.userID, opts.n, r)
				if err != nil {
					return nil, err
				}
				return api.ListCategoryTotalsResponse{Categories: api.CategoryTotalsToHttp(top)}, nil
			})
		},
	}
	topCmd.Flags().IntVar(&opts.n, "n", api.DEFAULT_TOP_N, "number of categories")

	dailyCmd := &cobra.Command{
		Use:   "daily",
		Short: "Per day totals up to today, empty days included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, *configPath, opts, func(ctx context.Context, app *application, _ budget.TimeRange) (any, error) {
				days, err := app.engine.DailySpending(ctx, opts.userID, opts.daysBack)
				if err != nil {
					return nil, err
				}
				return api.ListDailyTotalsResponse{Days: api.DailyTotalsToHttp(days)}, nil
			})
		},
	}
	dailyCmd.Flags().IntVar(&opts.daysBack, "days-back", api.DEFAULT_DAYS_BACK, "days before today to include")

	forecastCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Linear forecast of the amount still to come this month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, *configPath, opts, func(ctx context.Context, app *application, r budget.TimeRange) (any, error) {
				forecast, err := app.engine.ForecastMonthEnd(ctx, opts.userID, r.From)
				if err != nil {
					return nil, err
				}
				return api.ForecastResponse{Forecast: forecast.StringFixed(2)}, nil
			})
		},
	}

	reportCmd.AddCommand(totalCmd, topCmd, dailyCmd, forecastCmd)
	return reportCmd
}

type reportFunc func(ctx context.Context, app *application, r budget.TimeRange) (any, error)

func runReport(cmd *cobra.Command, configPath string, opts *reportOptions, fn reportFunc) error {
	// Stdout carries the report only.
	cfg, err := loadConfig(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cfg.StorageType == config.StorageInMemory {
		return fmt.Errorf("report needs a persistent storage, STORAGE_TYPE=%s always starts empty", cfg.StorageType)
	}

	app, err := bootstrap(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	from, err := api.ParseDate(opts.dateFrom, false, app.api.Location)
	if err != nil {
		return err
	}
	to, err := api.ParseDate(opts.dateTo, true, app.api.Location)
	if err != nil {
		return err
	}

	ctx := contextutil.WithTraceID(cmd.Context(), uuid.NewString())
	ctx = contextutil.WithUserID(ctx, opts.userID)

	result, err := fn(ctx, app, budget.TimeRange{From: from, To: to})
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
