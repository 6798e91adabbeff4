package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breakout-backtest/services/engine"
)

// Metrics owns a private registry so several services can coexist in one
// process (and in tests).
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	TradesTotal     *prometheus.CounterVec
	CandlesTotal    prometheus.Counter
	SweepCandidates prometheus.Counter
	JobsInFlight    prometheus.Gauge
	SignalsTotal    *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Backtest runs by status"},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single backtest run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "trades_total", Help: "Closed trades by direction and exit reason"},
			[]string{"direction", "reason"},
		),
		CandlesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "candles_processed_total", Help: "Candles fed to the engine"},
		),
		SweepCandidates: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "sweep_candidates_total", Help: "Sweep candidates evaluated"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "jobs_in_flight", Help: "Queued or running backtest jobs"},
		),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "signals_total", Help: "Latest-candle signals by direction"},
			[]string{"direction"},
		),
	}
	m.registry.MustRegister(
		m.RunsTotal, m.RunDuration, m.TradesTotal, m.CandlesTotal,
		m.SweepCandidates, m.JobsInFlight, m.SignalsTotal,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, took time.Duration, candles int, trades []engine.Trade) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(took.Seconds())
	m.CandlesTotal.Add(float64(candles))
	for _, t := range trades {
		m.TradesTotal.WithLabelValues(t.Direction.String(), string(t.ExitReason)).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
