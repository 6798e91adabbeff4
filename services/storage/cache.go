package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"breakout-backtest/services/backtest"
)

// ResultCache memoizes reports by config hash and data checksum. A run is
// deterministic, so equal keys always mean equal reports.
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewResultCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *ResultCache) Key(configHash, dataChecksum string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, configHash, dataChecksum)
}

// Get returns the cached report, or ok=false on a miss. The indicator frame
// and event log are not cached.
func (c *ResultCache) Get(ctx context.Context, key string) (rep *backtest.Report, ok bool, err error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("Result cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	rep = &backtest.Report{}
	if err := json.Unmarshal(b, rep); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return rep, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, rep *backtest.Report) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("Result cache write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
