package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// ErrRedisDegraded is returned by Safe* operations while Redis is marked unavailable
var ErrRedisDegraded = errors.New("redis is in degraded mode")

// RedisClient wraps the Redis client with degraded mode support.
// While degraded, Safe* calls fail fast instead of waiting on dial timeouts.
type RedisClient struct {
	Client         *redis.Client
	degradedMode   bool
	degradedModeMu sync.RWMutex
	healthCheckMu  sync.Mutex
	metrics        *metrics.Metrics
}

// NewRedisClient creates a Redis client from config. It does not connect eagerly.
func NewRedisClient(cfg config.RedisConfig, m *metrics.Metrics) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	return &RedisClient{
		Client:  client,
		metrics: m,
	}
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// StartHealthCheck periodically pings Redis and flips degraded mode until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = r.HealthCheck(ctx)
			}
		}
	}()
}

// IsDegraded returns true if Redis is in degraded mode
func (r *RedisClient) IsDegraded() bool {
	r.degradedModeMu.RLock()
	defer r.degradedModeMu.RUnlock()
	return r.degradedMode
}

func (r *RedisClient) setDegradedState(degraded bool) {
	r.degradedModeMu.Lock()
	defer r.degradedModeMu.Unlock()

	if r.degradedMode != degraded {
		r.degradedMode = degraded
		if degraded {
			logger.Warn("Redis unavailable, entering degraded mode")
		} else {
			logger.Info("Redis available, leaving degraded mode")
		}
	}
	metrics.RecordRedisAvailable(!degraded)
}

// HealthCheck pings Redis and updates degraded mode
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setDegradedState(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setDegradedState(false)
	return nil
}

func (r *RedisClient) record(command string, err error) {
	if r.metrics != nil {
		r.metrics.RecordRedisCommand(command, err)
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Debug("Redis command failed", zap.String("command", command), zap.Error(err))
	}
}

// SafeZAdd performs a ZADD operation with degraded mode handling
func (r *RedisClient) SafeZAdd(ctx context.Context, key string, member interface{}, score float64) error {
	if r.IsDegraded() {
		return ErrRedisDegraded
	}
	err := r.Client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	r.record("zadd", err)
	return err
}

// SafeZRem performs a ZREM operation with degraded mode handling
func (r *RedisClient) SafeZRem(ctx context.Context, key string, members ...interface{}) error {
	if r.IsDegraded() {
		return ErrRedisDegraded
	}
	err := r.Client.ZRem(ctx, key, members...).Err()
	r.record("zrem", err)
	return err
}

// SafeZRangeByScore returns members with min <= score <= max
func (r *RedisClient) SafeZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	if r.IsDegraded() {
		return nil, ErrRedisDegraded
	}
	members, err := r.Client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", min),
		Max: fmt.Sprintf("%f", max),
	}).Result()
	r.record("zrangebyscore", err)
	return members, err
}

// SafeZRemRangeByScore removes members with min <= score <= max
func (r *RedisClient) SafeZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	if r.IsDegraded() {
		return ErrRedisDegraded
	}
	err := r.Client.ZRemRangeByScore(ctx, key, fmt.Sprintf("%f", min), fmt.Sprintf("%f", max)).Err()
	r.record("zremrangebyscore", err)
	return err
}

// SafeIncrWindow increments a fixed-window counter. The window starts with the first increment.
// It returns the count and the time left in the window.
func (r *RedisClient) SafeIncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if r.IsDegraded() {
		return 0, 0, ErrRedisDegraded
	}

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	r.record("incr", err)
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}
