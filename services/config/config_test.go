package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 9091 {
		t.Fatalf("unexpected ports %+v", cfg.Server)
	}
	if cfg.Strategy.Symbol != "BTC/USDT" || cfg.Strategy.Engine.TPRR != 3.5 || cfg.Strategy.Signals.BreakoutK != 1.2 {
		t.Fatalf("unexpected strategy defaults %+v", cfg.Strategy)
	}
	if cfg.Strategy.Indicators.EMASlow != 50 || cfg.Strategy.Signals.LongRSI.Min != 55 {
		t.Fatal("untouched strategy fields lost their defaults")
	}
	if cfg.Redis.TTL != 24*time.Hour || cfg.SignalLog.Path != "logs/signals.log" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Redis, cfg.SignalLog)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  httpport: 9000
strategy:
  symbol: ETH/USDT
  engine:
    tp_rr: 2.5
clickhouse:
  addr: ["ch1:9000", "ch2:9000"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BACKTEST_SERVER_GRPCPORT", "7000")
	t.Setenv("BACKTEST_STRATEGY_ENGINE_FEE", "0.5")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 9000 || cfg.Server.GRPCPort != 7000 {
		t.Fatalf("unexpected ports %+v", cfg.Server)
	}
	if cfg.Strategy.Symbol != "ETH/USDT" || cfg.Strategy.Engine.TPRR != 2.5 || cfg.Strategy.Engine.Fee != 0.5 {
		t.Fatalf("unexpected strategy %+v", cfg.Strategy.Engine)
	}
	if len(cfg.ClickHouse.Addr) != 2 || cfg.Telegram.Token != "tok" || cfg.Telegram.ChatID != "42" {
		t.Fatalf("unexpected %+v %+v", cfg.ClickHouse, cfg.Telegram)
	}
}

func TestLoadRejectsInvalidStrategy(t *testing.T) {
	t.Setenv("BACKTEST_STRATEGY_ENGINE_FEE", "-3")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for negative fee")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
