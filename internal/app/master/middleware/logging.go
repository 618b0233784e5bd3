/**
 * 中间件:日志相关中间件
 * @author: sun977
 * @date: 2025.10.10
 * @description: 定义日志中间件
 * @func:
 *   - GinLoggingMiddleware Gin日志中间件[同时把客户端IP存储到Gin上下文和标准上下文,供后续使用]
 */
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"

	"github.com/gin-gonic/gin"
)

// GinLoggingMiddleware Gin日志中间件
// 记录所有HTTP请求的访问日志，4xx/5xx 额外记录错误日志
// 使用方式: router.Use(middlewareManager.GinLoggingMiddleware())
func (m *MiddlewareManager) GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		clientIP := utils.GetClientIP(c)
		c.Set(string(utils.ContextKeyClientIP), clientIP)
		// service 层只拿得到标准上下文
		c.Request = c.Request.WithContext(utils.WithClientIP(c.Request.Context(), clientIP))

		c.Next()

		requestID := utils.GetRequestID(c)
		subject := utils.GetSubject(c)
		logger.LogAccessRequest(c, start, requestID, subject)

		statusCode := c.Writer.Status()
		if statusCode < 400 {
			return
		}
		errorMsg := http.StatusText(statusCode)
		if len(c.Errors) > 0 {
			errorMsg = c.Errors.String()
		}
		extra := map[string]interface{}{
			"operation":   "http_request",
			"url":         c.Request.URL.String(),
			"status_code": statusCode,
			"user_agent":  c.GetHeader("User-Agent"),
		}
		err := fmt.Errorf("HTTP %d: %s", statusCode, errorMsg)
		if statusCode >= 500 {
			logger.LogError(err, requestID, subject, clientIP, c.Request.URL.Path, c.Request.Method, extra)
		} else {
			logger.LogBusinessError(err, requestID, subject, clientIP, c.Request.URL.Path, c.Request.Method, extra)
		}
	}
}
