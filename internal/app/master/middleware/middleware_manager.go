package middleware

import (
	"sync"
	"time"

	"aramaster/internal/config"
	"aramaster/internal/pkg/auth"
)

// MiddlewareManager 中间件管理器
// 负责管理所有Gin框架的中间件，提供统一的中间件接口
type MiddlewareManager struct {
	jwtManager      *auth.JWTManager       // JWT管理器，用于运维令牌校验
	apiKeys         *auth.APIKeyVerifier   // CI 使用的API密钥校验
	securityConfig  *config.SecurityConfig // 安全配置，用于中间件配置
	rateLimiter     RateLimiter
	rateLimiterOnce sync.Once
}

// NewMiddlewareManager 创建中间件管理器
// 参数:
//   - jwtManager: JWT管理器
//   - apiKeys: API密钥校验器，可为 nil
//   - securityConfig: 安全配置实例
//
// 返回: 中间件管理器实例
func NewMiddlewareManager(jwtManager *auth.JWTManager, apiKeys *auth.APIKeyVerifier, securityConfig *config.SecurityConfig) *MiddlewareManager {
	return &MiddlewareManager{
		jwtManager:     jwtManager,
		apiKeys:        apiKeys,
		securityConfig: securityConfig,
	}
}

// getRateLimiter 整个进程共享一个限流器
func (m *MiddlewareManager) getRateLimiter() RateLimiter {
	m.rateLimiterOnce.Do(func() {
		cfg := m.securityConfig.RateLimit
		rate, burst := cfg.RequestsPerSecond, cfg.BurstSize
		if rate <= 0 {
			rate = 20
		}
		if burst <= 0 {
			burst = rate * 2
		}
		m.rateLimiter = NewTokenBucketLimiter(rate, burst, 15*time.Minute)
	})
	return m.rateLimiter
}
