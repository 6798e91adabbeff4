package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/report"
	"breakout-backtest/services/sweep"
)

func sweepCmd() *cobra.Command {
	var (
		gridPath string
		workers  int
		top      int
		jsonOut  string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every combination of a parameter grid and rank by profit",
		Example: `  backtest sweep --grid grids/breakout.yaml --top 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			gf, err := sweep.LoadGrid(gridPath)
			if err != nil {
				return err
			}
			if top > 0 {
				gf.Options.Top = top
			}
			cs, err := e.loadCandles(cmd.Context())
			if err != nil {
				return err
			}

			total := int64(gf.Grid.Size())
			var done atomic.Int64
			pool := sweep.Pool{
				Workers: workers,
				Logger:  e.logger,
				OnResult: func(sweep.Outcome) {
					if n := done.Add(1); n%progressEvery(total) == 0 {
						e.logger.Info("Sweep progress", zap.Int64("done", n), zap.Int64("total", total))
					}
				},
			}
			start := time.Now()
			ranked, err := sweep.RunGrid(cmd.Context(), pool, cs, e.cfg.Strategy, gf.Grid, gf.Options)
			if err != nil {
				return err
			}
			e.logger.Info("Sweep finished",
				zap.Int("candidates", gf.Grid.Size()),
				zap.Int("ranked", len(ranked)),
				zap.Duration("took", time.Since(start)),
			)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tPARAMS\tTRADES\tWIN%\tPNL\tPF\tMAXDD")
			for i, o := range ranked {
				r := o.Result
				fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%.2f\t%.3f\t%.2f\n",
					i+1, o.Label, r.TradeCount, r.WinRate*100, r.TotalProfit, r.ProfitFactor, r.MaxDrawdown)
			}
			w.Flush()

			if jsonOut != "" {
				data, err := json.MarshalIndent(ranked, "", "  ")
				if err != nil {
					return err
				}
				return writeFile(jsonOut, data)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&gridPath, "grid", "g", "grid.yaml", "YAML grid file")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel backtests (0 = NumCPU)")
	cmd.Flags().IntVar(&top, "top", 0, "keep only the best N candidates")
	cmd.Flags().StringVar(&jsonOut, "json", "", "write the ranking as JSON")
	return cmd
}

func optimizeCmd() *cobra.Command {
	var (
		planPath string
		workers  int
		outCSV   string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Tune parameters one group at a time, keeping strict improvements",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			plan := sweep.DefaultPlan()
			if planPath != "" {
				if plan, err = sweep.LoadPlan(planPath); err != nil {
					return err
				}
			}
			cs, err := e.loadCandles(cmd.Context())
			if err != nil {
				return err
			}

			pool := sweep.Pool{Workers: workers, Logger: e.logger}
			opt, err := sweep.Optimize(cmd.Context(), pool, cs, e.cfg.Strategy, plan)
			if err != nil {
				return err
			}

			fmt.Print(report.FormatSummary("initial", opt.Initial))
			for _, s := range opt.Steps {
				mark := " "
				if s.Improved {
					mark = "*"
				}
				fmt.Printf("%s %-12s tried %3d  best %-28s pnl %.2f trades %d\n",
					mark, s.Name, s.Tried, s.BestLabel, s.Result.TotalProfit, s.Result.TradeCount)
			}
			fmt.Print(report.FormatSummary("optimized", opt.Result))

			best, err := json.MarshalIndent(opt.Config, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("Best config:\n%s\n", best)

			if outCSV != "" {
				rep, err := rerun(opt, cs)
				if err != nil {
					return err
				}
				return report.ExportCSV(outCSV, rep.Trades, rep.Result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "YAML optimizer plan (defaults to the built-in plan)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel backtests (0 = NumCPU)")
	cmd.Flags().StringVarP(&outCSV, "out", "o", "", "trade ledger CSV of the optimized config")
	return cmd
}

// progressEvery logs roughly every tenth of the grid.
func progressEvery(total int64) int64 {
	if total < 10 {
		return 1
	}
	return total / 10
}

func rerun(opt sweep.Optimization, cs []candles.Candle) (*backtest.Report, error) {
	r, err := backtest.New(opt.Config)
	if err != nil {
		return nil, err
	}
	return r.Run(cs), nil
}
