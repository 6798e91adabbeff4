package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"breakout-backtest/services/backtest"
)

// Config holds all configuration for the backtest service and CLI
type Config struct {
	Environment string
	Server      ServerConfig
	Engine      EngineConfig
	Strategy    backtest.Config
	Data        DataConfig
	ClickHouse  ClickHouseConfig
	Arrow       ArrowConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	S3          S3Config
	Kafka       KafkaConfig
	Telegram    TelegramConfig
	SignalLog   SignalLogConfig
	Logging     LoggingConfig
	Monitoring  MonitoringConfig
}

// ServerConfig holds HTTP and gRPC listener configuration
type ServerConfig struct {
	HTTPPort     int
	GRPCPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JWTSecret    string
}

// EngineConfig bounds job execution
type EngineConfig struct {
	MaxWorkers int
	JobTTL     time.Duration
}

// DataConfig selects where candles come from
type DataConfig struct {
	Source  string // csv | clickhouse
	CSVPath string // file or doublestar pattern
}

// ClickHouseConfig holds native and HTTP endpoints of the candle store
type ClickHouseConfig struct {
	Addr        []string
	Database    string
	Table       string
	Username    string
	Password    string
	HTTPURL     string
	BatchSize   int
	DialTimeout time.Duration
}

type ArrowConfig struct {
	BatchSize int
}

type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the result cache; an empty Addr disables it
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// S3Config configures artifact upload; an empty Bucket disables it
type S3Config struct {
	Region   string
	Bucket   string
	Endpoint string
	Prefix   string
}

// KafkaConfig configures event publishing; no brokers disables it
type KafkaConfig struct {
	Brokers      []string
	ResultsTopic string
	SignalsTopic string
}

type TelegramConfig struct {
	Token  string
	ChatID string
}

type SignalLogConfig struct {
	Path string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

type MonitoringConfig struct {
	Namespace string
}

// Load reads .env, then the optional config file at path, then environment
// variables prefixed BACKTEST_ (server.http_port -> BACKTEST_SERVER_HTTP_PORT).
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are read unprefixed.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chatid", "TELEGRAM_CHAT_ID")

	cfg := Config{Strategy: backtest.DefaultConfig()}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	// Server defaults
	v.SetDefault("server.httpport", 8080)
	v.SetDefault("server.grpcport", 9091)
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "60s")
	v.SetDefault("server.jwtsecret", "")

	v.SetDefault("engine.maxworkers", 0)
	v.SetDefault("engine.jobttl", "1h")

	// Strategy keys most often overridden from the environment
	def := backtest.DefaultConfig()
	v.SetDefault("strategy.symbol", def.Symbol)
	v.SetDefault("strategy.timeframe", def.Timeframe)
	v.SetDefault("strategy.signals.kind", string(def.Signals.Kind))
	v.SetDefault("strategy.signals.breakout_k", def.Signals.BreakoutK)
	v.SetDefault("strategy.engine.sl_mult", def.Engine.SLMult)
	v.SetDefault("strategy.engine.tp_rr", def.Engine.TPRR)
	v.SetDefault("strategy.engine.risk_budget", def.Engine.RiskBudget)
	v.SetDefault("strategy.engine.fee", def.Engine.Fee)

	v.SetDefault("data.source", "csv")
	v.SetDefault("data.csvpath", "data/btcusdt_ohlcv.csv")

	v.SetDefault("clickhouse.addr", []string{"localhost:9000"})
	v.SetDefault("clickhouse.database", "market")
	v.SetDefault("clickhouse.table", "candles")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.httpurl", "http://localhost:8123")
	v.SetDefault("clickhouse.batchsize", 10000)
	v.SetDefault("clickhouse.dialtimeout", "5s")

	v.SetDefault("arrow.batchsize", 8192)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("redis.prefix", "backtest")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.prefix", "runs")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.resultstopic", "backtest.results")
	v.SetDefault("kafka.signalstopic", "backtest.signals")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chatid", "")
	v.SetDefault("signallog.path", "logs/signals.log")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitoring.namespace", "backtest")
}
