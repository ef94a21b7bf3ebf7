package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/app"
	"github.com/yourorg/backtest-service/internal/config"
)

var (
	configPath string
	logLevel   string
)

// rootCmd is the base command for the backtest CLI
var rootCmd = &cobra.Command{
	Use:   "backtestctl",
	Short: "Run backtests and parameter sweeps without the HTTP server",
	Long: `backtestctl drives the backtest engine in-process using the same configuration
as the server. Jobs are described in YAML files.

Example usage:
  backtestctl run --job jobs/sma.yaml
  backtestctl optimize --job jobs/sma-sweep.yaml
  backtestctl bars import --symbols AAPL,MSFT --timeframe 1d --start 2023-01-01 --end 2024-01-01
  backtestctl cache flush`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp reads the configuration and wires the engine. Callers must Close the result.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newCLILogger(logLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

// newCLILogger logs to stderr so stdout stays machine readable
func newCLILogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func closeApp(ctx context.Context, a *app.App) {
	if err := a.Close(ctx); err != nil {
		a.Logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	a.Logger.Sync()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
