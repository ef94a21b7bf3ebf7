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

	"github.com/yourorg/backtest-service/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backtest and print its result",
	Long: `Run one backtest described by a YAML job file and print the result as JSON.
Interrupting the command cancels the backtest.

Examples:
  backtestctl run --job jobs/sma.yaml
  backtestctl run --job jobs/sma.yaml --full --timeout 10m`,
	RunE: runBacktest,
}

var (
	runJobPath string
	runFull    bool
	runTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runJobPath, "job", "", "Backtest job file (required)")
	runCmd.Flags().BoolVar(&runFull, "full", false, "Print trades and equity curves, not only metrics")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	runCmd.MarkFlagRequired("job")
}

// signalContext is cancelled on SIGINT or SIGTERM and after timeout when it is positive
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadBacktestJob(runJobPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(runTimeout)
	defer cancel()

	a, err := loadApp(context.Background())
	if err != nil {
		return err
	}
	defer closeApp(context.Background(), a)

	exec, err := a.Service.Submit(ctx, cfg)
	if err != nil {
		var verr *model.ConfigValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f.Field, f.Message)
			}
		}
		return err
	}

	final, err := a.Service.Wait(ctx, exec.ID)
	if err != nil {
		a.Service.Cancel(context.Background(), exec.ID)
		return fmt.Errorf("backtest %s did not finish: %w", exec.ID, err)
	}
	if final.Status != model.StatusCompleted {
		return fmt.Errorf("backtest %s %s: %s", final.ID, final.Status, final.Error)
	}

	result, err := a.Service.GetResult(ctx, exec.ID)
	if err != nil {
		return err
	}
	if runFull {
		return printJSON(cmd.OutOrStdout(), result)
	}
	return printJSON(cmd.OutOrStdout(), summarize(final, result))
}

type runSummary struct {
	ExecutionID string                              `json:"execution_id"`
	Strategy    string                              `json:"strategy"`
	Metrics     model.PerformanceMetrics            `json:"metrics"`
	Symbols     map[string]model.PerformanceMetrics `json:"symbols"`
	Failures    []model.SymbolFailure               `json:"failures,omitempty"`
}

func summarize(exec model.BacktestExecution, result *model.BacktestResult) runSummary {
	out := runSummary{
		ExecutionID: exec.ID,
		Strategy:    exec.Config.Strategy.Name,
		Metrics:     result.Metrics,
		Symbols:     make(map[string]model.PerformanceMetrics, len(result.Symbols)),
		Failures:    result.Failures,
	}
	for _, s := range result.Symbols {
		out.Symbols[s.Symbol] = s.Metrics
	}
	return out
}
