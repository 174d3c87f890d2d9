package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lastmail/backend/internal/cache"
)

// 限流器名称，用于指标标签
const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

// redisKeyPrefix Redis 限流计数的 key 前缀
const redisKeyPrefix = "lastmail:ratelimit:"

// Decision 一次限流判定的结果
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter 按客户端标识限流
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Name() string
}

// BlockRecorder 记录被限流拒绝的请求
type BlockRecorder interface {
	RecordRateLimitBlock(limiter string)
}

// MemoryLimiter 进程内令牌桶限流，每个客户端一个 rate.Limiter
type MemoryLimiter struct {
	buckets  *cache.LocalCache[*rate.Limiter]
	requests int
	every    rate.Limit
}

// NewMemoryLimiter 创建进程内限流器：每个 window 允许 requests 次请求，允许突发
func NewMemoryLimiter(requests int, window time.Duration) *MemoryLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		// 空闲超过两个窗口的客户端令牌桶已经回满，可以丢弃
		buckets:  cache.NewLocalCache[*rate.Limiter](10000, 2*window),
		requests: requests,
		every:    rate.Every(window / time.Duration(requests)),
	}
}

// Name 返回限流器名称
func (l *MemoryLimiter) Name() string { return LimiterMemory }

// Allow 消耗一个令牌
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	bucket := l.buckets.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(l.every, l.requests)
	})

	now := time.Now()
	d := Decision{Limit: l.requests}
	if bucket.AllowN(now, 1) {
		d.Allowed = true
	} else {
		d.RetryAfter = retryAfter(bucket, now)
	}
	d.Remaining = int(math.Max(0, math.Floor(bucket.TokensAt(now))))
	return d, nil
}

// Close 停止后台清理
func (l *MemoryLimiter) Close() {
	l.buckets.Close()
}

// retryAfter 计算下一个令牌可用前的等待时间，不消耗令牌
func retryAfter(bucket *rate.Limiter, now time.Time) time.Duration {
	r := bucket.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// WindowCounter 固定窗口计数器，由 Redis 客户端实现
type WindowCounter interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisLimiter 基于 Redis 的固定窗口限流，多个实例共享计数
type RedisLimiter struct {
	counter  WindowCounter
	requests int
	window   time.Duration
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(counter WindowCounter, requests int, window time.Duration) *RedisLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{counter: counter, requests: requests, window: window}
}

// Name 返回限流器名称
func (l *RedisLimiter) Name() string { return LimiterRedis }

// Allow 计数加一并判断是否超出窗口配额
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.counter.IncrementRateLimit(ctx, redisKeyPrefix+key, l.window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Limit: l.requests}
	remaining := int64(l.requests) - count
	if remaining >= 0 {
		d.Allowed = true
		d.Remaining = int(remaining)
	} else {
		d.RetryAfter = ttl
	}
	return d, nil
}

// RateLimit 限流中间件，按客户端 IP 计数
//
// 限流器出错（例如 Redis 不可用）时放行请求并记录告警。
func RateLimit(limiter Limiter, recorder BlockRecorder, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request",
				zap.String("limiter", limiter.Name()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			if recorder != nil {
				recorder.RecordRateLimitBlock(limiter.Name())
			}
			seconds := int(math.Ceil(d.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			abortWith(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}

		c.Next()
	}
}
