package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/report"
	"github.com/goodtune/ontime/internal/storage"
)

var (
	reportDaily      bool
	reportCumulative bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print online-time reports from the configured store",
	Long: `Print per-user online-time totals. With --daily or --cumulative the
report becomes a per-day series instead of an all-time total.`,
	Example: `  ontime -c config.yaml report
  ontime report --daily
  ontime report --cumulative`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportDaily, "daily", false, "Per-day totals instead of all-time totals")
	reportCmd.Flags().BoolVar(&reportCumulative, "cumulative", false, "Running per-day totals instead of all-time totals")
	reportCmd.MarkFlagsMutuallyExclusive("daily", "cumulative")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()

	dr, err := store.DateRange(ctx)
	if errors.Is(err, storage.ErrNoData) {
		fmt.Println("No online time recorded yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query date range: %w", err)
	}

	names, err := store.Names(ctx)
	if err != nil {
		return fmt.Errorf("failed to query display names: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("ONLINE TIME REPORT")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Range: %s .. %s\n\n", dr.First.Format(storage.DayFormat), dr.Last.Format(storage.DayFormat))

	if reportDaily || reportCumulative {
		daily := store.DailyTotals
		if reportCumulative {
			daily = store.CumulativeTotals
		}
		totals, err := daily(ctx)
		if err != nil {
			return fmt.Errorf("failed to query daily totals: %w", err)
		}
		for _, series := range report.Series(totals, names) {
			green.Println(series.Name)
			for _, p := range series.Points {
				fmt.Printf("  %s  %s\n", p.Day, report.FormatDuration(time.Duration(p.Seconds)*time.Second))
			}
			fmt.Println()
		}
		return nil
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		return fmt.Errorf("failed to query totals: %w", err)
	}
	for _, row := range report.Totals(totals, names) {
		green.Printf("%-24s", row.Name)
		fmt.Printf(" %s\n", report.FormatDuration(row.Total))
	}

	return nil
}
