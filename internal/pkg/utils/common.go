/*
 * @author: sun977
 * @date: 2025.11.12
 * @description: 通用的工具包
 * @func:
 */

package utils

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey 类型用于标准上下文键的定义，避免使用裸字符串造成键冲突
type ContextKey string

const (
	// ContextKeyClientIP 标准上下文中存储客户端IP的统一键
	ContextKeyClientIP ContextKey = "client_ip"
	// ContextKeyRequestID 标准上下文中存储请求ID的统一键
	ContextKeyRequestID ContextKey = "request_id"
)

// WithClientIP 把客户端IP写入标准上下文，供 service 层记录日志
func WithClientIP(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, clientIP)
}

// GetClientIPFromContext 从标准上下文读取客户端IP，不存在时返回空字符串
func GetClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// NewRequestID 生成请求ID
func NewRequestID() string {
	return uuid.NewString()
}

// GetRequestID 读取请求ID中间件写入的请求ID
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(string(ContextKeyRequestID)); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Request-ID")
}

// GetSubject 读取认证中间件写入的调用方主体，未认证时返回空字符串
func GetSubject(c *gin.Context) string {
	if v, ok := c.Get("subject"); ok {
		if subject, ok := v.(string); ok {
			return subject
		}
	}
	return ""
}
