// Package limiter 为预测服务提供按客户端限流：本地令牌桶与基于 Redis 的分布式滑动窗口.
package limiter

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/wyfcoding/smosvm/config"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error) // 检查是否允许请求通过。
}

const defaultMaxKeys = 10000

// LocalLimiter 基于令牌桶的本地限流器，每个 key 一个独立的桶.
// 桶数超过上限时淘汰最久未访问的 key，被淘汰的 key 下次访问拿到满桶.
type LocalLimiter struct {
	buckets *lru.Cache // key -> *rate.Limiter
	rate    rate.Limit
	burst   int
}

// NewLocalLimiter r 为每秒生成的令牌数，b 为桶容量即允许的瞬时突发请求数，
// maxKeys 为同时保留的桶数上限，<= 0 时取 10000.
func NewLocalLimiter(r rate.Limit, b, maxKeys int) *LocalLimiter {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	// size > 0 时 lru.New 不会出错
	cache, _ := lru.New(maxKeys)
	return &LocalLimiter{buckets: cache, rate: r, burst: b}
}

// Allow 从 key 对应的桶中取一个令牌，桶空时返回 false.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	if b, ok := l.buckets.Get(key); ok {
		return b.(*rate.Limiter).Allow(), nil
	}
	fresh := rate.NewLimiter(l.rate, l.burst)
	if exists, _ := l.buckets.ContainsOrAdd(key, fresh); exists {
		if b, ok := l.buckets.Get(key); ok {
			fresh = b.(*rate.Limiter)
		}
	}
	return fresh.Allow(), nil
}

// Len 返回当前保留的桶数.
func (l *LocalLimiter) Len() int { return l.buckets.Len() }

// RedisLimiter 基于 Redis ZSet 的滑动窗口限流，多个服务实例共享状态。
// Redis 不可用时降级到本地令牌桶.
type RedisLimiter struct {
	client    redis.UniversalClient
	script    *redis.Script
	fallback  *LocalLimiter
	keyPrefix string
	limit     int
	window    time.Duration
}

// NewRedisLimiter limit 为 window 内允许的最大请求数；fallback 为空时 Redis 出错直接返回错误.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, fallback *LocalLimiter) *RedisLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{
		client:    client,
		script:    redis.NewScript(slidingWindowLua),
		fallback:  fallback,
		keyPrefix: "smosvm:ratelimit",
		limit:     limit,
		window:    window,
	}
}

// Allow 检查 key 在当前窗口内是否还有配额.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	nowMs := now.UnixMilli()
	startMs := now.Add(-l.window).UnixMilli()

	res, err := l.script.Run(ctx, l.client, []string{l.keyPrefix + ":" + key}, nowMs, startMs, l.limit).Int()
	if err != nil {
		if l.fallback == nil {
			return false, err
		}
		slog.WarnContext(ctx, "redis limiter failed, falling back to local", "key", key, "error", err)
		return l.fallback.Allow(ctx, key)
	}
	return res == 1, nil
}

// New 按配置创建限流器：配置了 Redis 地址时使用 RedisLimiter，否则 LocalLimiter.
// 返回的 close 负责释放 Redis 连接.
func New(cfg config.RateLimitConfig) (Limiter, func() error) {
	local := NewLocalLimiter(rate.Limit(cfg.Rate), cfg.Burst, cfg.MaxKeys)
	if cfg.Redis.Addr == "" {
		return local, func() error { return nil }
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: 500 * time.Millisecond,
	})
	limit := int(float64(cfg.Rate) * cfg.Window.Seconds())
	if limit < cfg.Burst {
		limit = cfg.Burst
	}
	slog.Info("redis rate limiter initialized", "addr", cfg.Redis.Addr, "limit", limit, "window", cfg.Window)
	return NewRedisLimiter(client, limit, cfg.Window, local), client.Close
}

const slidingWindowLua = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, 0, start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, now .. '_' .. math.random())
		redis.call('PEXPIRE', key, (now - start) * 2)
		return 1
	else
		return 0
	end
`
