/**
 * 中间件:限流器中间件
 * @author: sun977
 * @date: 2025.10.10
 * @description: 按客户端IP的令牌桶限流，CI 批量触发索引时保护数据库
 * @func:
 *   - GinRateLimitMiddleware 默认限流器中间件[根据客户端IP进行限流]
 */
package middleware

import (
	"net/http"
	"sync"
	"time"

	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(key string) bool
	Reset(key string)
}

// TokenBucketLimiter 令牌桶限流器
type TokenBucketLimiter struct {
	buckets map[string]*tokenBucket
	mutex   sync.Mutex
	rate    float64       // 每秒生成的令牌数
	burst   float64       // 桶的容量
	idle    time.Duration // 桶闲置超过该时长后回收
	now     func() time.Time
}

type tokenBucket struct {
	tokens   float64
	lastTime time.Time
}

// NewTokenBucketLimiter 创建新的令牌桶限流器
func NewTokenBucketLimiter(rate, burst int, idle time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets: make(map[string]*tokenBucket),
		rate:    float64(rate),
		burst:   float64(burst),
		idle:    idle,
		now:     time.Now,
	}
}

// Allow 检查是否允许请求，顺带回收闲置的桶
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	bucket, exists := l.buckets[key]
	if !exists {
		if len(l.buckets) > 1024 {
			l.evictIdle(now)
		}
		bucket = &tokenBucket{tokens: l.burst, lastTime: now}
		l.buckets[key] = bucket
	}

	bucket.tokens += now.Sub(bucket.lastTime).Seconds() * l.rate
	if bucket.tokens > l.burst {
		bucket.tokens = l.burst
	}
	bucket.lastTime = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// Reset 重置指定key的限流状态
func (l *TokenBucketLimiter) Reset(key string) {
	l.mutex.Lock()
	delete(l.buckets, key)
	l.mutex.Unlock()
}

func (l *TokenBucketLimiter) evictIdle(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastTime) > l.idle {
			delete(l.buckets, key)
		}
	}
}

// GinRateLimitMiddleware 默认限流中间件
func (m *MiddlewareManager) GinRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.securityConfig.RateLimit.Enabled || m.shouldSkipRateLimit(c) {
			c.Next()
			return
		}

		clientIP := utils.GetClientIP(c)
		if !m.getRateLimiter().Allow(clientIP) {
			logger.LogWarn("Rate limit exceeded for client", utils.GetRequestID(c), "", clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
				"operation": "rate_limit_exceeded",
				"func_name": "middleware.ratelimit.GinRateLimitMiddleware",
			})
			c.JSON(http.StatusTooManyRequests, system.APIResponse{
				Code:    http.StatusTooManyRequests,
				Status:  "failed",
				Message: "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *MiddlewareManager) shouldSkipRateLimit(c *gin.Context) bool {
	for _, skipPath := range m.securityConfig.RateLimit.SkipPaths {
		if c.Request.URL.Path == skipPath {
			return true
		}
	}
	return false
}
