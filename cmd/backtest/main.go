// backtest runs the breakout engine from the command line. Besides single
// runs it drives parameter sweeps, the step-wise optimizer, live signal
// checks, data audits and the ClickHouse candle import.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/clickhouse"
	"breakout-backtest/services/config"
	"breakout-backtest/services/logging"
	"breakout-backtest/services/server"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	configPath string
	csvPattern string
	symbol     string
	timeframe  string
	fromFlag   string
	toFlag     string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "backtest",
		Short:         "Event-driven breakout backtester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML/JSON config file")
	rootCmd.PersistentFlags().StringVar(&csvPattern, "csv", "", "CSV file or doublestar pattern; overrides data.source")
	rootCmd.PersistentFlags().StringVar(&symbol, "symbol", "", "symbol override")
	rootCmd.PersistentFlags().StringVar(&timeframe, "timeframe", "", "timeframe override")
	rootCmd.PersistentFlags().StringVar(&fromFlag, "from", "", "start UTC (YYYY-MM-DD HH:MM:SS), inclusive")
	rootCmd.PersistentFlags().StringVar(&toFlag, "to", "", "end UTC (YYYY-MM-DD HH:MM:SS), exclusive")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(resampleCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backtest engine %s\n", backtest.EngineVersion)
		},
	}
}

// env is what every command starts from.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if symbol != "" {
		cfg.Strategy.Symbol = symbol
	}
	if timeframe != "" {
		cfg.Strategy.Timeframe = timeframe
	}
	if csvPattern != "" {
		cfg.Data.Source, cfg.Data.CSVPath = "csv", csvPattern
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func parseWindow() (from, to time.Time, err error) {
	if fromFlag != "" {
		if from, err = time.ParseInLocation(timeLayout, fromFlag, time.UTC); err != nil {
			return from, to, fmt.Errorf("bad --from: %w", err)
		}
	}
	if toFlag != "" {
		if to, err = time.ParseInLocation(timeLayout, toFlag, time.UTC); err != nil {
			return from, to, fmt.Errorf("bad --to: %w", err)
		}
	}
	return from, to, nil
}

// loadCandles reads the configured source restricted to --from/--to.
func (e *env) loadCandles(ctx context.Context) ([]candles.Candle, error) {
	from, to, err := parseWindow()
	if err != nil {
		return nil, err
	}
	var src server.Source
	switch e.cfg.Data.Source {
	case "clickhouse":
		ch, err := clickhouse.NewClient(ctx, e.clickhouseOptions(), e.logger)
		if err != nil {
			return nil, err
		}
		defer ch.Close()
		src = ch
	default:
		src = server.CSVSource{Pattern: e.cfg.Data.CSVPath, Logger: e.logger}
	}

	start := time.Now()
	cs, err := src.LoadCandles(ctx, e.cfg.Strategy.Symbol, e.cfg.Strategy.Timeframe, from, to)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Loaded candles",
		zap.String("source", e.cfg.Data.Source),
		zap.Int("count", len(cs)),
		zap.Duration("took", time.Since(start)),
	)
	return cs, nil
}

func (e *env) clickhouseOptions() clickhouse.Options {
	return clickhouse.Options{
		Addr:        e.cfg.ClickHouse.Addr,
		Database:    e.cfg.ClickHouse.Database,
		Table:       e.cfg.ClickHouse.Table,
		Username:    e.cfg.ClickHouse.Username,
		Password:    e.cfg.ClickHouse.Password,
		DialTimeout: e.cfg.ClickHouse.DialTimeout,
	}
}
