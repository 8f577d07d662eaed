// Package redis provides the run lock that keeps anchor job invocations
// mutually exclusive across processes.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type RunLock interface {
	// Acquire returns false without error when another holder owns the
	// lock. A held lock expires after ttl even if Release is never
	// called, so a crashed run cannot block anchoring forever.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Close() error
}

type runLock struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRunLock(addr string, log *logger.Logger) (RunLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &runLock{
		log: log.With("client", "RedisRunLock"),
		rdb: rdb,
	}, nil
}

func (l *runLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (l *runLock) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, key).Err()
}

func (l *runLock) Close() error {
	return l.rdb.Close()
}
