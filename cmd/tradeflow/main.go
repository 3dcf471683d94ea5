// Command tradeflow runs the autonomous trading pipeline.
//
// Usage:
//
//	tradeflow init --config config.yaml
//	tradeflow run --config config.yaml
//	tradeflow report --config config.yaml
//
// Secrets are read from the environment (or a .env file):
//
//	TRADEFLOW_LLM_API_KEY, TRADEFLOW_POSTGRES_DSN, TRADEFLOW_REDIS_PASSWORD
//	BINANCE_API_KEY, BINANCE_API_SECRET, BYBIT_API_KEY, BYBIT_API_SECRET
//	TELEGRAM_BOT_TOKEN
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/config"
	"github.com/vadiminshakov/tradeflow/internal"
	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/report"
	"github.com/vadiminshakov/tradeflow/internal/services/oracle"
	"github.com/vadiminshakov/tradeflow/internal/setup"
	"github.com/vadiminshakov/tradeflow/internal/trace"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tradeflow",
		Short:        "Autonomous trading pipeline",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().String("config", "config.yaml", "Configuration file path")
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")

	root.AddCommand(newRunCmd(), newReportCmd(), newInitCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run trading cycles until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			cfg, err := loadConfig(cmd)
			if err != nil {
				logger.Error("failed to load config", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracePath, _ := cmd.Flags().GetString("trace")
			closeTrace, err := initTrace(ctx, tracePath)
			if err != nil {
				logger.Error("failed to init tracing", zap.Error(err))
				return err
			}
			defer closeTrace()

			app, err := internal.Build(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to build bot", zap.Error(err))
				return err
			}
			defer app.Close()

			logger.Info("tradeflow started",
				zap.String("version", version),
				zap.String("venue", cfg.Venue),
				zap.String("quote", cfg.Quote),
				zap.Duration("interval", cfg.Interval),
			)
			if err := app.Run(ctx); err != nil {
				logger.Error("bot stopped with error", zap.Error(err))
				return err
			}
			logger.Info("tradeflow stopped")
			return nil
		},
	}
	cmd.Flags().String("trace", "", "Write spans to this file, tracing is off when empty")
	return cmd
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print performance and open positions from storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := internal.OpenStorage(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			ledger, err := internal.RestoreLedger(ctx, cfg, store, zap.NewNop())
			if err != nil {
				return err
			}

			perf := ledger.Performance
			names := []string{oracle.NewRules().Name()}
			if cfg.Oracle.Enabled() {
				names = append(names, "llm:"+cfg.Oracle.Model)
			}
			strategies := make([]domain.StrategyAnalysis, 0, len(names))
			for _, name := range names {
				strategies = append(strategies, perf.AnalyzeStrategy(name))
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, report.Performance(perf.Metrics(), strategies))
			_, _ = fmt.Fprintln(out, report.Positions(ledger.Portfolio.Positions(), ledger.Portfolio.Cash(), cfg.Quote))
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return setup.RunTUI(path)
		},
	}
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, errors.Wrapf(err, "failed to load config %s", path)
	}
	return cfg, nil
}

// initTrace exports spans to path. The returned func flushes them.
func initTrace(ctx context.Context, path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open trace file")
	}
	if err := trace.Init(ctx, f, version); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to init tracer")
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = trace.Shutdown(shutdownCtx)
		_ = f.Close()
	}, nil
}
