// 结构化日志辅助函数
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// FormatTimestamp 格式化时间戳为统一的毫秒精度格式
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampFormat)
}

// NowFormatted 返回当前时间的格式化字符串
func NowFormatted() string {
	return FormatTimestamp(time.Now())
}

// LogType 日志类型枚举
type LogType string

const (
	defaultLogType LogType = "default"
	// AccessLog 访问日志 - 记录HTTP请求
	AccessLog LogType = "access"
	// BusinessLog 业务日志 - 问题管理、配置修改等操作
	BusinessLog LogType = "business"
	// ErrorLog 错误日志
	ErrorLog LogType = "error"
	// SystemLog 系统日志 - 组件启动、停止
	SystemLog LogType = "system"
	// DebugLog 调试日志
	DebugLog LogType = "debug"
	// AuditLog 审计日志 - 清理、删除等破坏性操作
	AuditLog LogType = "audit"
	// IndexingLog 索引日志 - 执行索引流水线的告警与进度
	IndexingLog LogType = "indexing"
)

func mergeFields(fields logrus.Fields, extraFields map[string]interface{}) logrus.Fields {
	for k, v := range extraFields {
		fields[k] = v
	}
	return fields
}

// LogAccessRequest 记录HTTP访问日志
func LogAccessRequest(c *gin.Context, startTime time.Time, requestID, subject string) {
	if LoggerInstance == nil {
		return
	}

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":          AccessLog,
		"method":        c.Request.Method,
		"path":          c.Request.URL.Path,
		"query":         c.Request.URL.RawQuery,
		"status_code":   c.Writer.Status(),
		"response_time": time.Since(startTime).Milliseconds(),
		"client_ip":     c.ClientIP(),
		"user_agent":    c.Request.UserAgent(),
		"subject":       subject,
		"request_id":    requestID,
		"request_size":  c.Request.ContentLength,
		"response_size": c.Writer.Size(),
	}).Info("HTTP request processed")
}

// LogBusinessOperation 记录业务操作日志，result 非 success 时记为警告
func LogBusinessOperation(operation, subject, clientIP, requestID, result, message string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":       BusinessLog,
		"operation":  operation,
		"subject":    subject,
		"client_ip":  clientIP,
		"result":     result,
		"message":    message,
		"request_id": requestID,
	}, extraFields)

	if result == "success" {
		LoggerInstance.logger.WithFields(fields).Info(fmt.Sprintf("Business operation: %s", operation))
	} else {
		LoggerInstance.logger.WithFields(fields).Warn(fmt.Sprintf("Business operation failed: %s", operation))
	}
}

// LogError 记录错误日志
// 非HTTP场景下 path 填组件路径(如 service.indexer.orchestrator)，method 填操作名
func LogError(err error, requestID, subject, clientIP, path, method string, extraFields map[string]interface{}) {
	if LoggerInstance == nil || err == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":       ErrorLog,
		"error":      err.Error(),
		"request_id": requestID,
		"subject":    subject,
		"client_ip":  clientIP,
		"path":       path,
		"method":     method,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Errorf("System error occurred: %s", err.Error())
}

// LogWarn 记录警告日志
func LogWarn(message, requestID, subject, clientIP, path, method string, extraFields map[string]interface{}) {
	if LoggerInstance == nil || message == "" {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":       "warn",
		"request_id": requestID,
		"subject":    subject,
		"client_ip":  clientIP,
		"path":       path,
		"method":     method,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Warn(message)
}

// LogIndexation 记录执行索引流水线事件，写入 indexing.log
// fields 约定包含 project_id、job_link、execution_id、operation、func_name
func LogIndexation(level logrus.Level, message string, extraFields map[string]interface{}) {
	if LoggerInstance == nil || message == "" {
		return
	}

	fields := mergeFields(logrus.Fields{"type": IndexingLog}, extraFields)
	LoggerInstance.logger.WithFields(fields).Log(level, message)
}

// LogSystemEvent 记录系统事件日志
func LogSystemEvent(component, event, message string, level logrus.Level, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
		"message":   message,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Log(level, fmt.Sprintf("System event: %s - %s", component, event))
}

// LogAuditOperation 记录审计日志
func LogAuditOperation(subject, action, resource, result, clientIP, requestID string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":       AuditLog,
		"subject":    subject,
		"action":     action,
		"resource":   resource,
		"result":     result,
		"client_ip":  clientIP,
		"request_id": requestID,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Info(fmt.Sprintf("Audit: %s performed %s on %s", subject, action, resource))
}

// LogBusinessError 记录业务层错误，写入 business.log
func LogBusinessError(err error, requestID, subject, clientIP, path, method string, extraFields map[string]interface{}) {
	if LoggerInstance == nil || err == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":       BusinessLog,
		"error":      err.Error(),
		"request_id": requestID,
		"subject":    subject,
		"client_ip":  clientIP,
		"path":       path,
		"method":     method,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Errorf("Business error occurred: %s", err.Error())
}
