package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"breakout-backtest/services/candles"
)

// AuditResult is the outcome of one data quality check.
type AuditResult struct {
	CheckName string
	Status    string // PASS | WARN | FAIL
	Message   string
	Details   map[string]interface{}
}

func auditCmd() *cobra.Command {
	var (
		step      string
		maxAge    time.Duration
		reportOut string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run data quality checks on the configured candles",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			stepDur, err := candles.ParseStep(step)
			if err != nil {
				return err
			}
			cs, err := e.loadCandles(cmd.Context())
			if err != nil {
				return err
			}

			results := runAudit(cs, stepDur, maxAge, time.Now())
			writeAuditReport(os.Stdout, results)
			if reportOut != "" {
				var b strings.Builder
				writeAuditReport(&b, results)
				if err := writeFile(reportOut, []byte(b.String())); err != nil {
					return err
				}
			}
			for _, r := range results {
				if r.Status == "FAIL" {
					return fmt.Errorf("audit failed: %s", r.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&step, "step", "1m", "expected candle spacing")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "warn when the newest candle is older than this")
	cmd.Flags().StringVar(&reportOut, "report", "", "also write the report to this file")
	return cmd
}

func runAudit(cs []candles.Candle, step, maxAge time.Duration, now time.Time) []*AuditResult {
	results := []*AuditResult{orderCheck(cs), gapCheck(cs, step), anomalyCheck(cs)}
	if maxAge > 0 {
		results = append(results, freshnessCheck(cs, maxAge, now))
	}
	return results
}

func orderCheck(cs []candles.Candle) *AuditResult {
	r := &AuditResult{CheckName: "ordering", Status: "PASS", Message: "Open times strictly increase"}
	if err := candles.CheckOrder(cs); err != nil {
		r.Status, r.Message = "FAIL", err.Error()
	}
	r.Details = map[string]interface{}{"candles": len(cs), "checksum": candles.Checksum(cs)}
	return r
}

func gapCheck(cs []candles.Candle, step time.Duration) *AuditResult {
	gaps := candles.DetectGaps(cs, step)
	r := &AuditResult{CheckName: "missing_candles", Status: "PASS", Message: "No gaps found"}
	if len(gaps) > 0 {
		r.Status = "WARN"
		r.Message = fmt.Sprintf("Found %d gaps", len(gaps))
		r.Details = map[string]interface{}{"first_gap_after": gaps[0].UTC().Format(time.RFC3339)}
	}
	return r
}

// anomalyCheck flags candles that cannot be real prints.
func anomalyCheck(cs []candles.Candle) *AuditResult {
	counts := map[string]int{}
	for _, c := range cs {
		switch {
		case c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0:
			counts["non_positive_price"]++
		case c.High < c.Low:
			counts["high_below_low"]++
		case c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close:
			counts["body_outside_range"]++
		}
		if c.Volume < 0 {
			counts["negative_volume"]++
		}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	r := &AuditResult{CheckName: "anomalies", Status: "PASS", Message: "No anomalies found"}
	if total > 0 {
		r.Status = "FAIL"
		r.Message = fmt.Sprintf("Found %d anomalous candles", total)
		r.Details = map[string]interface{}{"anomaly_breakdown": counts}
	}
	return r
}

func freshnessCheck(cs []candles.Candle, maxAge time.Duration, now time.Time) *AuditResult {
	r := &AuditResult{CheckName: "freshness", Status: "PASS"}
	if len(cs) == 0 {
		r.Status, r.Message = "WARN", "No data"
		return r
	}
	age := now.Sub(cs[len(cs)-1].Time)
	r.Message = fmt.Sprintf("Newest candle is %s old", age.Round(time.Second))
	if age > maxAge {
		r.Status = "WARN"
	}
	return r
}

func writeAuditReport(w io.Writer, results []*AuditResult) {
	var pass, warn, fail int
	for _, r := range results {
		switch r.Status {
		case "PASS":
			pass++
		case "WARN":
			warn++
		case "FAIL":
			fail++
		}
	}
	fmt.Fprintf(w, "Data Quality Audit\n")
	fmt.Fprintf(w, "  Total checks: %d  passed: %d  warnings: %d  failed: %d\n", len(results), pass, warn, fail)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	for _, r := range results {
		fmt.Fprintf(w, "%-16s %-4s %s\n", r.CheckName, r.Status, r.Message)
		for k, v := range r.Details {
			fmt.Fprintf(w, "    %s: %v\n", k, v)
		}
	}
}
