/**
 * 中间件:安全中间件
 * @author: sun977
 * @date: 2025.10.10
 * @description: 定义安全中间件
 * @func:
 *   - GinCORSMiddleware CORS跨域资源共享中间件，按配置处理跨域请求
 *   - GinSecurityHeadersMiddleware 安全头部中间件
 *   - GinRequestIDMiddleware 请求ID中间件,为每个请求添加唯一的请求ID,方便日志跟踪
 */
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"aramaster/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GinCORSMiddleware CORS跨域资源共享中间件
// 只放行配置中 allow_origins 列出的来源，"*" 表示全部
func (m *MiddlewareManager) GinCORSMiddleware() gin.HandlerFunc {
	cors := m.securityConfig.CORS
	methods := strings.Join(cors.AllowMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	}
	headers := strings.Join(cors.AllowHeaders, ", ")
	if headers == "" {
		headers = "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + m.apiKeyHeader()
	}
	maxAge := int(cors.MaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = 86400
	}

	return func(c *gin.Context) {
		if !cors.Enabled {
			c.Next()
			return
		}

		origin := c.Request.Header.Get("Origin")
		if origin != "" && originAllowed(cors.AllowOrigins, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))
			c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
			if cors.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		// 处理预检请求（OPTIONS方法）
		if c.Request.Method == http.MethodOptions {
			logrus.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"operation": "cors_preflight",
				"func_name": "middleware.security.GinCORSMiddleware",
				"origin":    origin,
			}).Debug("Handling CORS preflight request")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// GinSecurityHeadersMiddleware 安全头中间件
// 只提供 JSON API，CSP 一律拒绝加载任何资源
func (m *MiddlewareManager) GinSecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("X-Robots-Tag", "noindex, nofollow")

		// 仅在HTTPS环境下设置
		if c.Request.TLS != nil || c.Request.Header.Get("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Header("Server", "ARA-Master")
		c.Next()
	}
}

// GinRequestIDMiddleware 请求ID中间件
// 沿用负载均衡器传入的 X-Request-ID，没有则生成
func (m *MiddlewareManager) GinRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.NewRequestID()
		}

		c.Set(string(utils.ContextKeyRequestID), requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
