package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"breakout-backtest/services/candles"
	"breakout-backtest/services/clickhouse"
)

func ingestCmd() *cobra.Command {
	var (
		source    string
		schema    bool
		derive    []string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "ingest <csv-or-pattern>...",
		Short: "Load candle CSVs into ClickHouse over HTTP",
		Example: `  backtest ingest --schema 'data/BTCUSDT/1m/*.csv'
  backtest ingest --derive 5m --derive 15m data/btc_1m.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			ctx := cmd.Context()
			ch := e.cfg.ClickHouse
			if batchSize <= 0 {
				batchSize = ch.BatchSize
			}
			client := clickhouse.NewBatchClient(ch.HTTPURL, ch.Username, ch.Password, ch.Database+"."+ch.Table, batchSize, e.logger)

			if schema {
				if err := client.Exec(ctx, clickhouse.DatabaseSchema(ch.Database)); err != nil {
					return err
				}
				if err := client.Exec(ctx, clickhouse.Schema(ch.Database, ch.Table)); err != nil {
					return err
				}
				e.logger.Info("Schema ensured", zap.String("table", ch.Database+"."+ch.Table))
			}

			sym, interval := e.cfg.Strategy.Symbol, e.cfg.Strategy.Timeframe
			var total int
			for _, pattern := range args {
				files, err := candles.Glob(pattern)
				if err != nil {
					return err
				}
				for _, f := range files {
					cs, err := candles.LoadCSV(f)
					if err != nil {
						return err
					}
					if err := client.AddCandles(ctx, sym, interval, sourceLabel(source, f), cs); err != nil {
						return err
					}
					total += len(cs)
					e.logger.Info("Queued file", zap.String("file", f), zap.Int("candles", len(cs)))
				}
			}
			if err := client.Close(ctx); err != nil {
				return err
			}
			fmt.Printf("Ingested %d candles for %s %s\n", total, sym, interval)

			for _, d := range derive {
				step, err := candles.ParseStep(d)
				if err != nil {
					return err
				}
				if err := client.Exec(ctx, clickhouse.DeriveQuery(ch.Database, ch.Table, sym, d, step)); err != nil {
					return fmt.Errorf("derive %s: %w", d, err)
				}
				fmt.Printf("Derived %s from 1m\n", d)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "value for the source column (defaults to csv:<file>)")
	cmd.Flags().BoolVar(&schema, "schema", false, "create the database and table first")
	cmd.Flags().StringSliceVar(&derive, "derive", nil, "intervals to aggregate server-side from the ingested candles")
	cmd.Flags().IntVar(&batchSize, "batch", 0, "rows per insert (defaults to clickhouse.batchsize)")
	return cmd
}

// sourceLabel names where a row came from in the candle table.
func sourceLabel(source, file string) string {
	if source != "" {
		return source
	}
	return "csv:" + file
}

func resampleCmd() *cobra.Command {
	var (
		in  string
		out string
		dst string
	)

	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Aggregate a candle CSV into a coarser timeframe",
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := candles.ParseStep(dst)
			if err != nil {
				return err
			}
			cs, err := candles.LoadCSV(in)
			if err != nil {
				return err
			}
			start := time.Now()
			agg, err := candles.Resample(cs, step)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := candles.WriteCSV(f, agg); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("Resampled %d -> %d candles (%s) in %s\n", len(cs), len(agg), dst, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "input CSV")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output CSV")
	cmd.Flags().StringVar(&dst, "dst", "15m", "target timeframe")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}
