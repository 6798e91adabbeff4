package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"breakout-backtest/services/arrowpipeline"
	"breakout-backtest/services/backtest"
	"breakout-backtest/services/clickhouse"
	"breakout-backtest/services/config"
	"breakout-backtest/services/logging"
	"breakout-backtest/services/monitoring"
	"breakout-backtest/services/notify"
	"breakout-backtest/services/server"
	"breakout-backtest/services/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtesting service",
		zap.String("version", backtest.EngineVersion),
		zap.String("environment", cfg.Environment),
		zap.String("symbol", cfg.Strategy.Symbol),
		zap.String("strategy", string(cfg.Strategy.Signals.Kind)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := server.Options{
		Base:    cfg.Strategy,
		Workers: cfg.Engine.MaxWorkers,
		JobTTL:  cfg.Engine.JobTTL,
		Metrics: monitoring.NewMetrics(cfg.Monitoring.Namespace),
		Logger:  logger,
	}
	cleanup, err := wire(ctx, cfg, &opts, logger)
	defer cleanup()
	if err != nil {
		logger.Fatal("Failed to wire collaborators", zap.Error(err))
	}

	service := server.NewBacktestService(opts)
	service.Start(ctx)

	notifier := opts.Notifier
	if notifier != nil {
		notifier.Notify(ctx, notify.Message{Kind: notify.KindText, Symbol: cfg.Strategy.Symbol, Text: notify.FormatStartup(cfg.Strategy)})
	}

	grpcServer := server.NewGRPCServer(service)

	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      service.Router(cfg.Server.JWTSecret),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start servers
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}

		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	service.Stop()
	logger.Info("Servers stopped")
}

// wire fills the optional collaborators of opts from cfg. The returned
// cleanup releases whatever was opened, even on error.
func wire(ctx context.Context, cfg *config.Config, opts *server.Options, logger *zap.Logger) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Data.Source {
	case "clickhouse":
		ch, err := clickhouse.NewClient(ctx, clickhouse.Options{
			Addr:        cfg.ClickHouse.Addr,
			Database:    cfg.ClickHouse.Database,
			Table:       cfg.ClickHouse.Table,
			Username:    cfg.ClickHouse.Username,
			Password:    cfg.ClickHouse.Password,
			DialTimeout: cfg.ClickHouse.DialTimeout,
		}, logger)
		if err != nil {
			return cleanup, err
		}
		closers = append(closers, func() { ch.Close() })
		opts.Source = ch
	case "csv", "":
		opts.Source = server.CSVSource{Pattern: cfg.Data.CSVPath, Logger: logger}
	default:
		return cleanup, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}

	if cfg.Postgres.DSN != "" {
		db, err := storage.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		runs := storage.NewRunRepository(db, logger)
		if err := runs.Migrate(ctx); err != nil {
			return cleanup, err
		}
		opts.Runs = runs
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, result cache disabled", zap.Error(err))
		} else {
			opts.Cache = storage.NewResultCache(client, cfg.Redis.Prefix, cfg.Redis.TTL, logger)
		}
	}

	if cfg.S3.Bucket != "" {
		store, err := storage.NewArtifactStore(cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Endpoint, cfg.S3.Prefix)
		if err != nil {
			return cleanup, err
		}
		opts.Artifacts = store
	}

	n, closeNotifier := notify.FromConfig(cfg, "backtest-server", logger)
	closers = append(closers, func() { closeNotifier() })
	opts.Notifier = n
	opts.Arrow = arrowpipeline.NewPipeline(cfg.Arrow.BatchSize, logger)
	return cleanup, nil
}
