// Package ratelimit counts hits per key in fixed time windows.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/academia/core"
)

var NowFunc = time.Now // mockable

// Limiter reports whether a key may be served in the current window.
type Limiter interface {
	// Allow records a hit for key and reports whether the key is still within its limit.
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// windowStart truncates now to the window it falls in.
func windowStart(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}

// RedisLimiter shares its counters between every API instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter connects to conf.Redis.Addr and checks that it answers.
func NewRedisLimiter(ctx context.Context, conf *core.Config) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}

	return &RedisLimiter{
		client: client,
		limit:  int64(conf.Redis.RateLimit),
		window: conf.Redis.RateWindow,
		prefix: "ratelimit:" + conf.Env + ":",
	}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key + ":" + strconv.FormatInt(windowStart(NowFunc(), l.window), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "counting hit")
	}
	return incr.Val() <= l.limit, nil
}

func (l *RedisLimiter) Close() error { return l.client.Close() }

// MemoryLimiter keeps its counters in process. Used when no redis is configured.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	cur    int64
	hits   map[string]int
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, hits: make(map[string]int)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// counters of past windows are dropped as a whole
	if w := windowStart(NowFunc(), l.window); w != l.cur {
		l.cur = w
		l.hits = make(map[string]int)
	}
	l.hits[key]++
	return l.hits[key] <= l.limit, nil
}

func (l *MemoryLimiter) Close() error { return nil }

// New returns a RedisLimiter when redis is configured, else a MemoryLimiter.
func New(ctx context.Context, conf *core.Config) (Limiter, error) {
	if conf.Redis.Addr == "" {
		return NewMemoryLimiter(conf.Redis.RateLimit, conf.Redis.RateWindow), nil
	}
	return NewRedisLimiter(ctx, conf)
}
