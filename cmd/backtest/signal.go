package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/monitoring"
	"breakout-backtest/services/notify"
	"breakout-backtest/services/signals"
)

func signalCmd() *cobra.Command {
	var (
		every       time.Duration
		metricsAddr string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Inspect the latest candle and publish any breakout signal",
		Long: `Evaluates the breakout rule on the most recent candle of the configured
source. Non-zero signals are appended to the signal log and sent to Telegram
and Kafka when those are configured. With --every the check repeats until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			runner, err := backtest.New(e.cfg.Strategy)
			if err != nil {
				return err
			}
			n, closeFn := notify.FromConfig(e.cfg, "backtest-signal", e.logger)
			defer closeFn()

			metrics := monitoring.NewMetrics(e.cfg.Monitoring.Namespace)
			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadTimeout: 10 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						e.logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
				defer srv.Close()
			}

			ctx := cmd.Context()
			if !quiet {
				n.Notify(ctx, notify.Message{Kind: notify.KindText, Symbol: e.cfg.Strategy.Symbol, Text: notify.FormatStartup(e.cfg.Strategy)})
			}
			check := func() error {
				cs, err := e.loadCandles(ctx)
				if err != nil {
					return err
				}
				in, ok := runner.Inspect(cs)
				if !ok {
					e.logger.Warn("No inspection", zap.String("reason", in.Reason), zap.Int("candles", len(cs)))
					return nil
				}
				metrics.SignalsTotal.WithLabelValues(in.Signal.String()).Inc()
				return publish(ctx, e, n, in)
			}

			if err := check(); err != nil || every <= 0 {
				return err
			}
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := check(); err != nil {
						e.logger.Error("Signal check failed", zap.Error(err))
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "repeat the check at this interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "skip the startup notification")
	return cmd
}

func publish(ctx context.Context, e *env, n notify.Notifier, in signals.Inspection) error {
	cfg := e.cfg.Strategy
	e.logger.Info("Latest candle",
		zap.Time("time", in.Time),
		zap.String("signal", in.Signal.String()),
		zap.String("reason", in.Reason),
		zap.Float64("price", in.Price),
	)
	if in.Signal == signals.None {
		return nil
	}
	fmt.Println(notify.FormatSignal(cfg, in))
	msg := notify.Message{
		Kind:    notify.KindSignal,
		Symbol:  cfg.Symbol,
		Text:    notify.FormatSignal(cfg, in),
		Payload: notify.NewSignalEntry(cfg, in, time.Now()),
	}
	return n.Notify(ctx, msg)
}
