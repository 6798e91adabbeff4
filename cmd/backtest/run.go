package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"breakout-backtest/services/arrowpipeline"
	"breakout-backtest/services/backtest"
	"breakout-backtest/services/notify"
	"breakout-backtest/services/report"
	"breakout-backtest/services/signals"
)

func runCmd() *cobra.Command {
	var (
		preset     string
		outCSV     string
		outArrow   string
		outEvents  string
		closeAtEnd bool
		notifyRun  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest the configured strategy once",
		Example: `  backtest run --csv 'data/**/*.csv' --out trades.csv
  backtest run --preset ema_crossover --from "2024-01-01 00:00:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			cfg := e.cfg.Strategy
			if preset != "" {
				if cfg, err = cfg.WithPreset(signals.Kind(preset)); err != nil {
					return err
				}
			}
			if closeAtEnd {
				cfg.Engine.CloseAtEnd = true
			}
			runner, err := backtest.New(cfg)
			if err != nil {
				return err
			}

			cs, err := e.loadCandles(cmd.Context())
			if err != nil {
				return err
			}
			start := time.Now()
			rep := runner.Run(cs)
			e.logger.Info("Backtest finished",
				zap.String("strategy", rep.Strategy),
				zap.Int("trades", rep.Result.TradeCount),
				zap.Duration("took", time.Since(start)),
			)
			if rep.Diagnostics.Reason != nil {
				return fmt.Errorf("backtest rejected the data: %w", rep.Diagnostics.Reason)
			}

			fmt.Print(report.FormatSummary(rep.Strategy, rep.Result))
			if rep.Open != nil {
				last := rep.Frame[len(rep.Frame)-1]
				fmt.Println(report.FormatOpen(rep.Open, last.Close, last.Time))
			}
			if rep.Diagnostics.UndefinedSkipped > 0 || rep.Diagnostics.DegenerateRejected > 0 {
				fmt.Printf("Skipped %d candles with undefined indicators, rejected %d degenerate entries\n",
					rep.Diagnostics.UndefinedSkipped, rep.Diagnostics.DegenerateRejected)
			}

			if outCSV != "" {
				if err := report.ExportCSV(outCSV, rep.Trades, rep.Result); err != nil {
					return err
				}
				fmt.Printf("Wrote %d trades to %s\n", len(rep.Trades), outCSV)
			}
			if outArrow != "" {
				pipe := arrowpipeline.NewPipeline(e.cfg.Arrow.BatchSize, e.logger)
				data, err := pipe.EncodeFrame(cfg.Symbol, rep.Frame)
				if err != nil {
					return err
				}
				if err := writeFile(outArrow, data); err != nil {
					return err
				}
			}
			if outEvents != "" {
				data, err := json.MarshalIndent(rep.Events, "", "  ")
				if err != nil {
					return err
				}
				if err := writeFile(outEvents, data); err != nil {
					return err
				}
			}

			if notifyRun {
				n, closeFn := notify.FromConfig(e.cfg, "backtest-cli", e.logger)
				defer closeFn()
				manifest := backtest.NewManifest(uuid.NewString(), cfg, cs)
				msg := notify.Message{
					Kind:    notify.KindResult,
					Symbol:  cfg.Symbol,
					Text:    notify.FormatResult(rep.Strategy, rep.Result),
					Payload: map[string]any{"manifest": manifest, "result": rep.Result},
				}
				if err := n.Notify(cmd.Context(), msg); err != nil {
					e.logger.Warn("Notification failed", zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "strategy preset applied over the loaded config: atr_breakout, ema_crossover, macd_crossover, bollinger_rsi")
	cmd.Flags().StringVarP(&outCSV, "out", "o", "", "trade ledger CSV path")
	cmd.Flags().StringVar(&outArrow, "arrow", "", "indicator frame Arrow IPC path")
	cmd.Flags().StringVar(&outEvents, "events", "", "event log JSON path")
	cmd.Flags().BoolVar(&closeAtEnd, "close-at-end", false, "close a trailing open position at the last close")
	cmd.Flags().BoolVar(&notifyRun, "notify", false, "send the result to the configured notifiers")
	return cmd
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", path, len(data))
	return nil
}
