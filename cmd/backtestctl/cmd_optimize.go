package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run a parameter sweep and print the ranked combinations",
	Long: `Run the base backtest once per parameter combination from a YAML job file
and rank the results by the objective metric.

Examples:
  backtestctl optimize --job jobs/sma-sweep.yaml
  backtestctl optimize --job jobs/sma-sweep.yaml --format json`,
	RunE: runOptimize,
}

var (
	optimizeJobPath string
	optimizeFormat  string
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVar(&optimizeJobPath, "job", "", "Optimization job file (required)")
	optimizeCmd.Flags().StringVar(&optimizeFormat, "format", "table", "Output format: table, json")
	optimizeCmd.MarkFlagRequired("job")
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	req, err := loadOptimizationJob(optimizeJobPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(0)
	defer cancel()

	a, err := loadApp(context.Background())
	if err != nil {
		return err
	}
	defer closeApp(context.Background(), a)

	result, err := a.Service.Optimize(ctx, req)
	if err != nil {
		return err
	}
	if optimizeFormat == "json" {
		return printJSON(cmd.OutOrStdout(), result)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\t%s\tPARAMS\tTRADES\tMAX DD\n", result.Objective)
	for _, r := range result.Ranked {
		fmt.Fprintf(w, "%d\t%.4f\t%v\t%d\t%.4f\n", r.Rank, r.Objective, r.Params, r.Metrics.TotalTrades, r.Metrics.MaxDrawdown)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nsweep %s: %d combinations, %d failed\n", result.SweepID, result.Combinations, len(result.Failures))
	return nil
}
