package notify

import (
	"go.uber.org/zap"

	"breakout-backtest/services/config"
)

// FromConfig assembles every configured channel. The returned close func
// flushes the Kafka writers and is safe to call when Kafka is disabled.
func FromConfig(cfg *config.Config, clientID string, logger *zap.Logger) (Notifier, func() error) {
	var out Multi
	closer := func() error { return nil }

	if tg := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger); tg.Enabled() {
		out = append(out, tg)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		p := NewProducer(cfg.Kafka.Brokers, clientID, logger)
		out = append(out, Kafka{Producer: p, SignalsTopic: cfg.Kafka.SignalsTopic, ResultsTopic: cfg.Kafka.ResultsTopic})
		closer = p.Close
	}
	if cfg.SignalLog.Path != "" {
		out = append(out, &SignalLog{Path: cfg.SignalLog.Path})
	}
	if len(out) == 0 {
		return Nop{}, closer
	}
	logger.Info("Notifiers configured", zap.Int("channels", len(out)))
	return out, closer
}
