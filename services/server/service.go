// Package server exposes backtests over HTTP (gin) and gRPC. HTTP jobs run
// asynchronously on a worker pool; gRPC calls run synchronously.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pb "breakout-backtest/proto"
	"breakout-backtest/services/arrowpipeline"
	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/indicators"
	"breakout-backtest/services/monitoring"
	"breakout-backtest/services/notify"
	"breakout-backtest/services/report"
	"breakout-backtest/services/signals"
	"breakout-backtest/services/storage"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrQueueFull      = errors.New("job queue is full")
	ErrStopped        = errors.New("service is stopped")
)

// Cache memoizes reports; storage.ResultCache implements it.
type Cache interface {
	Key(configHash, dataChecksum string) string
	Get(ctx context.Context, key string) (*backtest.Report, bool, error)
	Set(ctx context.Context, key string, rep *backtest.Report) error
}

// RunStore persists finished runs; storage.RunRepository implements it.
type RunStore interface {
	Save(ctx context.Context, rec storage.RunRecord) error
	List(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

// Artifacts uploads run exports; storage.ArtifactStore implements it.
type Artifacts interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Options wires the service. Only Base is required; nil collaborators are
// skipped.
type Options struct {
	Base      backtest.Config
	Source    Source
	Workers   int
	QueueSize int
	JobTTL    time.Duration
	MaxSweep  int

	Metrics   *monitoring.Metrics
	Arrow     *arrowpipeline.Pipeline
	Cache     Cache
	Runs      RunStore
	Artifacts Artifacts
	Notifier  notify.Notifier
	Logger    *zap.Logger
}

// BacktestService implements the gRPC backtesting service and backs the REST API
type BacktestService struct {
	pb.UnimplementedBacktestServiceServer

	opts    Options
	jobs    *jobRegistry
	queue   chan *Job
	metrics *monitoring.Metrics
	arrow   *arrowpipeline.Pipeline
	logger  *zap.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Result is one executed backtest with everything needed to render it.
type Result struct {
	JobID    string
	Report   *backtest.Report
	Manifest backtest.Manifest
	Cached   bool
	Took     time.Duration
}

func (r *Result) Response() *pb.BacktestResponse {
	return toResponse(r.JobID, r.Report, r.Manifest, r.Took)
}

// NewBacktestService creates a new backtesting service
func NewBacktestService(opts Options) *BacktestService {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxSweep <= 0 {
		opts.MaxSweep = 10000
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics("backtest")
	}
	if opts.Arrow == nil {
		opts.Arrow = arrowpipeline.NewPipeline(0, opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &BacktestService{
		opts:    opts,
		jobs:    newJobRegistry(opts.JobTTL),
		queue:   make(chan *Job, opts.QueueSize),
		metrics: opts.Metrics,
		arrow:   opts.Arrow,
		logger:  opts.Logger,
		done:    make(chan struct{}),
	}
}

func (s *BacktestService) Metrics() *monitoring.Metrics { return s.metrics }

// Start launches the job workers and the expiry loop. Workers exit once Stop
// has drained the queue; ctx is handed to every run.
func (s *BacktestService) Start(ctx context.Context) {
	s.logger.Info("Starting job workers", zap.Int("workers", s.opts.Workers))
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, &s.wg)
	}
	if s.opts.JobTTL > 0 {
		s.wg.Add(1)
		go s.expireLoop(ctx, &s.wg)
	}
}

// Stop refuses new jobs, drains the queue and waits for the workers.
func (s *BacktestService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.queue)
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit validates req and queues it. Config errors are reported here rather
// than through the job.
func (s *BacktestService) Submit(req *pb.BacktestRequest) (*Job, error) {
	if _, err := s.resolveConfig(req); err != nil {
		return nil, err
	}
	job := newJob(uuid.NewString(), req, time.Now().UTC())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return nil, ErrStopped
	}
	// Registered before queueing so a worker never sees an unknown job.
	s.jobs.add(job)
	s.metrics.JobsInFlight.Inc()
	select {
	case s.queue <- job:
	default:
		s.jobs.remove(job.ID)
		s.metrics.JobsInFlight.Dec()
		return nil, ErrQueueFull
	}
	s.logger.Info("Queued backtest job", zap.String("job_id", job.ID), zap.String("symbol", req.Symbol))
	return job, nil
}

func (s *BacktestService) Job(id string) (*Job, bool) { return s.jobs.get(id) }

// worker processes queued jobs
func (s *BacktestService) worker(ctx context.Context, workerID int, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range s.queue {
		s.logger.Debug("Worker processing job",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID),
		)
		s.process(ctx, job)
	}
}

func (s *BacktestService) process(ctx context.Context, job *Job) {
	defer s.metrics.JobsInFlight.Dec()
	job.set(JobRunning, nil)

	res, err := s.Run(ctx, job.ID, job.Request)
	if err != nil {
		s.logger.Error("Backtest job failed", zap.String("job_id", job.ID), zap.Error(err))
		job.set(JobFailed, func(j *Job) { j.err = err.Error() })
		return
	}
	arts := s.upload(ctx, res)
	job.set(JobCompleted, func(j *Job) {
		j.result = res
		j.artifacts = arts
	})
}

func (s *BacktestService) expireLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	tick := time.NewTicker(max(s.opts.JobTTL/4, time.Second))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case now := <-tick.C:
			if n := s.jobs.expire(now); n > 0 {
				s.logger.Debug("Expired finished jobs", zap.Int("count", n))
			}
		}
	}
}

// Run executes req synchronously. Input problems yield ErrInvalidRequest or a
// *backtest.ConfigError; data that cannot be backtested still returns a
// Result whose diagnostics carry the reason.
func (s *BacktestService) Run(ctx context.Context, jobID string, req *pb.BacktestRequest) (*Result, error) {
	start := time.Now()
	cfg, err := s.resolveConfig(req)
	if err != nil {
		return nil, err
	}
	runner, err := backtest.New(cfg)
	if err != nil {
		return nil, err
	}
	cs, err := s.loadCandles(ctx, cfg, req)
	if err != nil {
		s.metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	s.logger.Info("Starting backtest execution",
		zap.String("job_id", jobID),
		zap.String("symbol", cfg.Symbol),
		zap.String("timeframe", cfg.Timeframe),
		zap.String("strategy", string(cfg.Signals.Kind)),
		zap.Int("candles", len(cs)),
	)

	manifest := backtest.NewManifest(jobID, cfg, cs)
	rep, cached := s.fromCache(ctx, manifest)
	if cached {
		rep.Frame = indicators.Build(cs, cfg.Indicators)
	} else {
		rep = runner.Run(cs)
		if rep.Diagnostics.Reason == nil && s.opts.Cache != nil {
			key := s.opts.Cache.Key(manifest.ConfigHash, manifest.DataChecksum)
			if err := s.opts.Cache.Set(ctx, key, rep); err != nil {
				s.logger.Warn("Failed to cache report", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}

	res := &Result{JobID: jobID, Report: rep, Manifest: manifest, Cached: cached, Took: time.Since(start)}
	status := "completed"
	if rep.Diagnostics.Reason != nil {
		status = "rejected"
	}
	s.metrics.ObserveRun(status, res.Took, len(cs), rep.Trades)

	s.logger.Info("Backtest completed",
		zap.String("job_id", jobID),
		zap.Duration("execution_time", res.Took),
		zap.Bool("cached", cached),
		zap.Int("trades", rep.Result.TradeCount),
		zap.Float64("total_profit", rep.Result.TotalProfit),
		zap.String("reason", rep.Diagnostics.ReasonText),
	)

	s.persist(ctx, res)
	return res, nil
}

func (s *BacktestService) fromCache(ctx context.Context, m backtest.Manifest) (*backtest.Report, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}
	rep, ok, err := s.opts.Cache.Get(ctx, s.opts.Cache.Key(m.ConfigHash, m.DataChecksum))
	if err != nil || !ok {
		return nil, false
	}
	return rep, true
}

// resolveConfig layers the request over the service default: preset first,
// then the partial JSON config, then symbol and timeframe.
func (s *BacktestService) resolveConfig(req *pb.BacktestRequest) (backtest.Config, error) {
	if req == nil {
		return backtest.Config{}, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	cfg := s.opts.Base
	if req.Preset != "" {
		p, err := cfg.WithPreset(signals.Kind(req.Preset))
		if err != nil {
			return backtest.Config{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		cfg = p
	}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return backtest.Config{}, fmt.Errorf("%w: config: %v", ErrInvalidRequest, err)
		}
	}
	if req.Symbol != "" {
		cfg.Symbol = req.Symbol
	}
	if req.Timeframe != "" {
		cfg.Timeframe = req.Timeframe
	}
	if err := cfg.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return cfg, nil
}

func (s *BacktestService) loadCandles(ctx context.Context, cfg backtest.Config, req *pb.BacktestRequest) ([]candles.Candle, error) {
	if len(req.Candles) > 0 {
		return fromProtoCandles(req.Candles), nil
	}
	if s.opts.Source == nil {
		return nil, fmt.Errorf("%w: no candles supplied and no data source configured", ErrInvalidRequest)
	}
	var from, to time.Time
	if req.StartTime > 0 {
		from = time.UnixMilli(req.StartTime).UTC()
	}
	if req.EndTime > 0 {
		to = time.UnixMilli(req.EndTime).UTC()
	}
	cs, err := s.opts.Source.LoadCandles(ctx, cfg.Symbol, cfg.Timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}
	return cs, nil
}

// persist records a finished run. Failures are logged; the run itself stands.
func (s *BacktestService) persist(ctx context.Context, res *Result) {
	rep := res.Report
	if s.opts.Runs != nil {
		rec, err := storage.NewRunRecord(res.JobID, rep, time.Now())
		if err == nil {
			err = s.opts.Runs.Save(ctx, rec)
		}
		if err != nil {
			s.logger.Warn("Failed to store run", zap.String("job_id", res.JobID), zap.Error(err))
		}
	}

	name := fmt.Sprintf("%s %s %s", rep.Strategy, rep.Config.Symbol, rep.Config.Timeframe)
	err := s.opts.Notifier.Notify(ctx, notify.Message{
		Kind:    notify.KindResult,
		Symbol:  rep.Config.Symbol,
		Text:    notify.FormatResult(name, rep.Result),
		Payload: res.Response(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish result", zap.String("job_id", res.JobID), zap.Error(err))
	}
}

// upload stores the trade CSV and manifest of a job and returns their locations.
func (s *BacktestService) upload(ctx context.Context, res *Result) map[string]string {
	if s.opts.Artifacts == nil {
		return nil
	}
	var csv bytes.Buffer
	if err := report.WriteTradesCSV(&csv, res.Report.Trades, res.Report.Result); err != nil {
		s.logger.Warn("Failed to render trades", zap.String("job_id", res.JobID), zap.Error(err))
		return nil
	}
	manifest, _ := json.MarshalIndent(res.Manifest, "", "  ")

	out := make(map[string]string, 2)
	for _, a := range []struct {
		name, contentType string
		body              []byte
	}{
		{"trades.csv", "text/csv", csv.Bytes()},
		{"manifest.json", "application/json", manifest},
	} {
		loc, err := s.opts.Artifacts.Upload(ctx, res.JobID+"/"+a.name, a.contentType, bytes.NewReader(a.body))
		if err != nil {
			s.logger.Warn("Failed to upload artifact", zap.String("job_id", res.JobID), zap.String("name", a.name), zap.Error(err))
			continue
		}
		out[a.name] = loc
	}
	return out
}
