/**
 * 模型:错误定义
 * @author: sun977
 * @date: 2025.10.14
 * @description: 业务错误常量和错误类型定义，处理器据此映射HTTP状态码
 * @func: 各种错误常量和ValidationError结构体
 */
package system

import "errors"

// 参考数据相关错误
var (
	ErrProjectNotFound         = errors.New("项目不存在")
	ErrCycleDefinitionNotFound = errors.New("周期定义不存在")
	ErrSettingNotFound         = errors.New("配置项不存在")
	ErrInvalidSettingValue     = errors.New("配置值无效")
)

// 执行相关错误
var (
	ErrExecutionNotFound    = errors.New("执行不存在")
	ErrInvalidIndexation    = errors.New("索引请求无效")
	ErrQueueFull            = errors.New("索引队列已满")
	ErrInvalidPurgeSetting  = errors.New("清理配置无效")
	ErrRawFolderOutsideBase = errors.New("原始目录不在索引根目录下")
)

// 问题相关错误
var (
	ErrProblemNotFound    = errors.New("问题不存在")
	ErrPatternNotFound    = errors.New("问题模式不存在")
	ErrDuplicatePattern   = errors.New("已存在相同条件的问题模式")
	ErrEmptyPattern       = errors.New("问题模式至少需要一个条件")
	ErrLastPattern        = errors.New("不能删除问题的最后一个模式")
	ErrProblemNameEmpty   = errors.New("问题名称不能为空")
	ErrRootCauseRequired  = errors.New("关闭问题必须指定根因")
	ErrRootCauseNotFound  = errors.New("根因不存在")
	ErrTeamNotFound       = errors.New("团队不存在")
	ErrProblemHasDefect   = errors.New("问题已关联缺陷，由缺陷系统同步关闭")
	ErrProblemNotClosed   = errors.New("问题未关闭")
	ErrProblemClosed      = errors.New("问题已关闭")
	ErrDefectTrackerUnset = errors.New("未配置缺陷系统")
)

// 认证错误
var (
	ErrTokenExpired  = errors.New("令牌已过期")
	ErrTokenInvalid  = errors.New("令牌无效")
	ErrAPIKeyInvalid = errors.New("API密钥无效")
	ErrUnauthorized  = errors.New("未授权访问")
)

// ValidationError 验证错误结构体
type ValidationError struct {
	Field   string `json:"field"`   // 字段名
	Message string `json:"message"` // 错误消息
}

// NewValidationError 创建验证错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
