/**
 * 处理器:执行
 * @author: sun977
 * @date: 2025.10.16
 * @description: 执行查询、触发索引和按保留策略清理
 * @func:
 *   - ListExecutions 分页列出执行
 *   - GetExecution 获取执行完整聚合
 *   - IndexExecution 校验后把索引请求放入队列
 *   - PurgeExecutions 按项目保留策略清理旧执行
 */
package execution

import (
	"net/http"
	"strconv"

	"aramaster/internal/handler/common"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"
	"aramaster/internal/service/execution"
	"aramaster/internal/service/indexer"
	"aramaster/internal/service/project"
	"aramaster/internal/service/purge"

	"github.com/gin-gonic/gin"
)

// ExecutionHandler 执行接口
type ExecutionHandler struct {
	projectService   *project.ProjectService
	executionService *execution.ExecutionService
	planner          *indexer.Planner
	queue            indexer.Queue
	purgeService     *purge.PurgeService
}

func NewExecutionHandler(projectService *project.ProjectService, executionService *execution.ExecutionService, planner *indexer.Planner, queue indexer.Queue, purgeService *purge.PurgeService) *ExecutionHandler {
	return &ExecutionHandler{
		projectService:   projectService,
		executionService: executionService,
		planner:          planner,
		queue:            queue,
		purgeService:     purgeService,
	}
}

// ListExecutions 分页列出执行 ?page=1&page_size=20
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "list_executions")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	executions, total, err := h.executionService.ListExecutions(c.Request.Context(), projectID, page, pageSize)
	if err != nil {
		common.Fail(c, "list_executions", err)
		return
	}
	common.OK(c, "Executions retrieved successfully", system.PaginationResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Data:     executions,
	})
}

// GetExecution 获取执行完整聚合
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "get_execution")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "get_execution")
	if !ok {
		return
	}
	execution, err := h.executionService.GetExecution(c.Request.Context(), projectID, id)
	if err != nil {
		common.Fail(c, "get_execution", err)
		return
	}
	common.OK(c, "Execution retrieved successfully", execution)
}

// IndexRequest 触发索引的请求体
type IndexRequest struct {
	Branch string `json:"branch" binding:"required"`
	Cycle  string `json:"cycle" binding:"required"`
	Folder string `json:"folder" binding:"required"`
}

// IndexExecution 校验后把索引请求放入队列，由后台工作协程处理
func (h *ExecutionHandler) IndexExecution(c *gin.Context) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "index_execution", err)
		return
	}

	ctx := c.Request.Context()
	indexation, err := h.planner.Plan(ctx, c.Param("code"), req.Branch, req.Cycle, req.Folder)
	if err != nil {
		common.Fail(c, "index_execution", err)
		return
	}
	if err := h.queue.Push(ctx, indexation); err != nil {
		common.Fail(c, "index_execution", err)
		return
	}

	logger.LogBusinessOperation("index_execution", utils.GetSubject(c), utils.GetClientIP(c), utils.GetRequestID(c), "queued", "Indexation queued", map[string]interface{}{
		"project_id": indexation.ProjectID,
		"job_link":   indexation.RawFolder,
	})
	c.JSON(http.StatusAccepted, system.APIResponse{
		Code:    http.StatusAccepted,
		Status:  "success",
		Message: "Indexation queued",
		Data:    gin.H{"folder": indexation.RawFolder},
	})
}

// PurgeExecutions 按项目保留策略清理旧执行
func (h *ExecutionHandler) PurgeExecutions(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "purge_executions")
	if !ok {
		return
	}
	deleted, err := h.purgeService.PurgeProject(c.Request.Context(), projectID)
	if err != nil {
		common.Fail(c, "purge_executions", err)
		return
	}

	logger.LogAuditOperation(utils.GetSubject(c), "purge_executions", c.Param("code"), "success", utils.GetClientIP(c), utils.GetRequestID(c), map[string]interface{}{
		"project_id": projectID,
		"deleted":    deleted,
	})
	common.OK(c, "Executions purged", gin.H{"deleted": deleted})
}
