/**
 * 处理器:公共响应
 * @author: sun977
 * @date: 2025.10.16
 * @description: 业务错误到HTTP状态码的映射，以及项目编码解析
 * @func:
 *   - StatusOf 业务错误映射为HTTP状态码
 *   - Fail 记录日志并返回失败响应
 *   - OK 返回成功响应
 *   - ResolveProject 路由参数中的项目编码解析为项目ID
 *   - ParseID 解析路由参数中的数字ID
 */
package common

import (
	"errors"
	"net/http"
	"strconv"

	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"
	"aramaster/internal/service/project"

	"github.com/gin-gonic/gin"
)

// StatusOf 业务错误映射为HTTP状态码
func StatusOf(err error) int {
	switch {
	case system.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, system.ErrProjectNotFound),
		errors.Is(err, system.ErrCycleDefinitionNotFound),
		errors.Is(err, system.ErrSettingNotFound),
		errors.Is(err, system.ErrExecutionNotFound),
		errors.Is(err, system.ErrProblemNotFound),
		errors.Is(err, system.ErrPatternNotFound),
		errors.Is(err, system.ErrRootCauseNotFound),
		errors.Is(err, system.ErrTeamNotFound):
		return http.StatusNotFound
	case errors.Is(err, system.ErrDuplicatePattern),
		errors.Is(err, system.ErrLastPattern),
		errors.Is(err, system.ErrProblemHasDefect),
		errors.Is(err, system.ErrProblemNotClosed),
		errors.Is(err, system.ErrProblemClosed):
		return http.StatusConflict
	case errors.Is(err, system.ErrInvalidSettingValue),
		errors.Is(err, system.ErrInvalidIndexation),
		errors.Is(err, system.ErrInvalidPurgeSetting),
		errors.Is(err, system.ErrRawFolderOutsideBase),
		errors.Is(err, system.ErrEmptyPattern),
		errors.Is(err, system.ErrProblemNameEmpty),
		errors.Is(err, system.ErrRootCauseRequired),
		errors.Is(err, system.ErrDefectTrackerUnset):
		return http.StatusBadRequest
	case errors.Is(err, system.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, system.ErrTokenExpired),
		errors.Is(err, system.ErrTokenInvalid),
		errors.Is(err, system.ErrAPIKeyInvalid),
		errors.Is(err, system.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Fail 记录日志并返回失败响应
// 5xx 只返回通用消息，业务错误原样返回
func Fail(c *gin.Context, operation string, err error) {
	status := StatusOf(err)
	extra := map[string]interface{}{
		"operation":   operation,
		"status_code": status,
	}
	requestID, subject, clientIP := utils.GetRequestID(c), utils.GetSubject(c), utils.GetClientIP(c)

	resp := system.APIResponse{Code: status, Status: "failed"}
	if status >= http.StatusInternalServerError {
		logger.LogError(err, requestID, subject, clientIP, c.Request.URL.Path, c.Request.Method, extra)
		resp.Status = "error"
		resp.Message = "Internal server error"
	} else {
		logger.LogBusinessError(err, requestID, subject, clientIP, c.Request.URL.Path, c.Request.Method, extra)
		resp.Message = err.Error()
		resp.Error = err.Error()
		var ve *system.ValidationError
		if errors.As(err, &ve) {
			resp.Errors = []system.ValidationError{*ve}
		}
	}
	c.JSON(status, resp)
}

// BadRequest 请求体或参数无法解析
func BadRequest(c *gin.Context, operation string, err error) {
	logger.LogBusinessError(err, utils.GetRequestID(c), utils.GetSubject(c), utils.GetClientIP(c), c.Request.URL.Path, c.Request.Method, map[string]interface{}{
		"operation": operation,
		"error":     "invalid_request",
	})
	c.JSON(http.StatusBadRequest, system.APIResponse{
		Code:    http.StatusBadRequest,
		Status:  "failed",
		Message: "Invalid request",
		Error:   err.Error(),
	})
}

// OK 返回成功响应
func OK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, system.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// ResolveProject 把 :code 路由参数解析为项目ID，失败时已写出响应
func ResolveProject(c *gin.Context, projectService *project.ProjectService, operation string) (uint64, bool) {
	id, err := projectService.ToID(c.Request.Context(), c.Param("code"))
	if err != nil {
		Fail(c, operation, err)
		return 0, false
	}
	return id, true
}

// ParseID 解析数字路由参数，失败时已写出响应
func ParseID(c *gin.Context, name, operation string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		Fail(c, operation, system.NewValidationError(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}
