// Package analytics records daily per-account pipeline counters in Redis.
// The counters back operator dashboards; losing them never affects the
// pipeline, so every write failure is logged and swallowed by callers.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reel/internal/config"
)

// Sink aggregates per-account outcome counts.
type Sink interface {
	RecordingPublished(ctx context.Context, account string, at time.Time) error
	RecordingFailed(ctx context.Context, account, stage string, at time.Time) error
	Ping(ctx context.Context) error
	Close() error
}

// Retention for daily counter keys. Ninety days covers the longest
// reporting window the dashboards query.
const keyRetention = 90 * 24 * time.Hour

// RedisSink implements Sink on a Redis client using one key per account,
// counter, and UTC day.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink builds a sink from the analytics configuration section.
func NewRedisSink(cfg *config.Config) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Analytics.RedisAddr,
		DB:   cfg.Analytics.RedisDB,
	})
	return &RedisSink{client: client, prefix: cfg.Analytics.KeyPrefix}
}

// NewRedisSinkWithClient is intended for tests that inject a client
// pointed at a disposable server.
func NewRedisSinkWithClient(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) RecordingPublished(ctx context.Context, account string, at time.Time) error {
	return s.incr(ctx, counterKey(s.prefix, account, "published", at))
}

func (s *RedisSink) RecordingFailed(ctx context.Context, account, stage string, at time.Time) error {
	if err := s.incr(ctx, counterKey(s.prefix, account, "failed", at)); err != nil {
		return err
	}
	return s.incr(ctx, counterKey(s.prefix, account, "failed:"+stage, at))
}

// Ping verifies the Redis connection for preflight and status reporting.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) incr(ctx context.Context, key string) error {
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func counterKey(prefix, account, counter string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefix, account, counter, at.UTC().Format("20060102"))
}

// NoopSink discards every event. Used when analytics is disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) RecordingPublished(context.Context, string, time.Time) error    { return nil }
func (NoopSink) RecordingFailed(context.Context, string, string, time.Time) error { return nil }
func (NoopSink) Ping(context.Context) error                                     { return nil }
func (NoopSink) Close() error                                                   { return nil }
