/**
 * 中间件:认证相关中间件
 * @author: sun977
 * @date: 2025.10.10
 * @description: 定义认证相关中间件，支持运维 JWT 令牌和 CI API 密钥两种凭证
 * @func:
 *   - GinAuthMiddleware: 认证中间件，把调用方主体与角色写入 Gin 上下文
 *   - GinRequireRole: 检查调用方是否具有任意一个角色
 *   - extractTokenFromGinHeader: 从Gin请求头中提取JWT令牌
 */
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"aramaster/internal/model/system"
	"aramaster/internal/pkg/auth"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"

	"github.com/gin-gonic/gin"
)

const defaultAPIKeyHeader = "X-API-Key"

// =============================================================================
// 认证中间件
// =============================================================================

// GinAuthMiddleware 认证中间件
// 优先校验 API 密钥请求头(角色 indexer)，否则校验 Bearer 令牌
// 使用方式: router.Use(middlewareManager.GinAuthMiddleware())
func (m *MiddlewareManager) GinAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.shouldSkipAuth(c) {
			c.Next()
			return
		}
		clientIP := utils.GetClientIP(c)
		requestID := utils.GetRequestID(c)

		if key := c.GetHeader(m.apiKeyHeader()); key != "" {
			if !m.apiKeys.Verify(key) {
				logger.LogWarn("invalid api key", requestID, "", clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
					"operation": "api_key_validation",
					"func_name": "middleware.auth.GinAuthMiddleware",
				})
				abortUnauthorized(c, "invalid api key", system.ErrAPIKeyInvalid)
				return
			}
			c.Set("subject", "api-key")
			c.Set("role", auth.RoleIndexer)
			c.Next()
			return
		}

		accessToken, err := m.extractTokenFromGinHeader(c)
		if err != nil {
			abortUnauthorized(c, "missing or invalid authorization header", err)
			return
		}

		claims, err := m.jwtManager.ValidateToken(accessToken)
		if err != nil {
			logger.LogWarn("token validation failed", requestID, "", clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
				"operation": "token_validation",
				"func_name": "middleware.auth.GinAuthMiddleware",
				"expired":   errors.Is(err, system.ErrTokenExpired),
			})
			abortUnauthorized(c, "invalid or expired token", err)
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

// =============================================================================
// 角色验证中间件
// =============================================================================

// GinRequireRole 角色验证中间件，admin 通过所有检查
// 使用方式: group.Use(middlewareManager.GinRequireRole(auth.RoleIndexer))
func (m *MiddlewareManager) GinRequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "" {
			abortUnauthorized(c, "caller not authenticated", system.ErrUnauthorized)
			return
		}
		if role == auth.RoleAdmin {
			c.Next()
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		logger.LogAuditOperation(utils.GetSubject(c), "access_denied", c.Request.URL.Path, "denied", utils.GetClientIP(c), utils.GetRequestID(c), map[string]interface{}{
			"role":     role,
			"required": roles,
		})
		c.JSON(http.StatusForbidden, system.APIResponse{
			Code:    http.StatusForbidden,
			Status:  "failed",
			Message: "insufficient role privileges",
		})
		c.Abort()
	}
}

// =============================================================================
// 辅助方法
// =============================================================================

func abortUnauthorized(c *gin.Context, message string, err error) {
	c.JSON(http.StatusUnauthorized, system.APIResponse{
		Code:    http.StatusUnauthorized,
		Status:  "failed",
		Message: message,
		Error:   err.Error(),
	})
	c.Abort()
}

func (m *MiddlewareManager) apiKeyHeader() string {
	if header := m.securityConfig.Auth.APIKeyHeader; header != "" {
		return header
	}
	return defaultAPIKeyHeader
}

func (m *MiddlewareManager) shouldSkipAuth(c *gin.Context) bool {
	for _, path := range m.securityConfig.Auth.SkipPaths {
		if c.Request.URL.Path == path {
			return true
		}
	}
	return false
}

// extractTokenFromGinHeader 从Gin请求头中提取访问令牌
func (m *MiddlewareManager) extractTokenFromGinHeader(c *gin.Context) (string, error) {
	authorization := c.GetHeader("Authorization")
	if authorization == "" {
		return "", &system.ValidationError{Field: "authorization", Message: "authorization header is required"}
	}

	// 检查Bearer前缀
	if !strings.HasPrefix(authorization, "Bearer ") {
		return "", &system.ValidationError{Field: "authorization", Message: "authorization header must start with 'Bearer '"}
	}

	token := auth.ExtractTokenFromHeader(authorization)
	if token == "" {
		return "", &system.ValidationError{Field: "authorization", Message: "access token cannot be empty"}
	}
	return token, nil
}
