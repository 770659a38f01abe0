package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

const reportKeyPrefix = "nccn:report:"

// ReportCache is a shared cache of validation reports keyed by raw notation.
type ReportCache interface {
	Get(ctx context.Context, notation string) (*domain.ValidationReport, bool, error)
	Set(ctx context.Context, notation string, report *domain.ValidationReport) error
}

// RedisReportCache stores validation reports in Redis behind a circuit
// breaker, so a Redis outage degrades to cache misses instead of latency.
type RedisReportCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewRedisReportCache connects to Redis using the cache configuration.
func NewRedisReportCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisReportCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries != 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisReportCacheFromClient(client, config.DefaultTTL, logger), nil
}

// NewRedisReportCacheFromClient wraps an existing client. The cache takes
// ownership of the client and closes it in Close.
func NewRedisReportCacheFromClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisReportCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-report-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RedisReportCache{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the cached report for notation, if any.
func (c *RedisReportCache) Get(ctx context.Context, notation string) (*domain.ValidationReport, bool, error) {
	key := ReportKey(notation)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		val, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached report: %w", err)
	}
	if result == nil {
		return nil, false, nil
	}

	var report domain.ValidationReport
	if err := json.Unmarshal(result.([]byte), &report); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached report %s: %w", key, err)
	}
	return &report, true, nil
}

// Set stores report under notation with the configured TTL.
func (c *RedisReportCache) Set(ctx context.Context, notation string, report *domain.ValidationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, ReportKey(notation), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// State returns the current circuit breaker state.
func (c *RedisReportCache) State() gobreaker.State {
	return c.breaker.State()
}

// Close closes the underlying client.
func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// ReportKey returns the Redis key for a notation.
func ReportKey(notation string) string {
	sum := sha256.Sum256([]byte(notation))
	return reportKeyPrefix + hex.EncodeToString(sum[:])
}
