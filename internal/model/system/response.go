package system

// APIResponse 通用API响应结构
type APIResponse struct {
	Code    int               `json:"code,omitempty"`   // 响应状态码
	Status  string            `json:"status"`           // "success" / "failed" / "error"
	Message string            `json:"message"`          // 响应消息
	Data    interface{}       `json:"data,omitempty"`   // 响应数据
	Error   string            `json:"error,omitempty"`  // 错误信息
	Errors  []ValidationError `json:"errors,omitempty"` // 验证错误列表
}

// PaginationResponse 分页响应结构
type PaginationResponse struct {
	Total    int64       `json:"total"`     // 总记录数
	Page     int         `json:"page"`      // 当前页码
	PageSize int         `json:"page_size"` // 每页大小
	Data     interface{} `json:"data"`      // 分页数据
}
