/**
 * 处理器:问题管理
 * @author: sun977
 * @date: 2025.10.16
 * @description: 问题与问题模式的增删改查、关闭重开、反范式重算和缺陷状态刷新
 */
package problem

import (
	"aramaster/internal/handler/common"
	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"
	"aramaster/internal/service/problem"
	"aramaster/internal/service/project"

	"github.com/gin-gonic/gin"
)

// ProblemHandler 问题接口
type ProblemHandler struct {
	projectService *project.ProjectService
	problemService *problem.ProblemService
}

func NewProblemHandler(projectService *project.ProjectService, problemService *problem.ProblemService) *ProblemHandler {
	return &ProblemHandler{projectService: projectService, problemService: problemService}
}

func (h *ProblemHandler) audit(c *gin.Context, action string, projectID, id uint64) {
	logger.LogAuditOperation(utils.GetSubject(c), action, c.Request.URL.Path, "success", utils.GetClientIP(c), utils.GetRequestID(c), map[string]interface{}{
		"project_id": projectID,
		"id":         id,
	})
}

// --- Problem ---

// ListProblems 获取项目下的问题
func (h *ProblemHandler) ListProblems(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "list_problems")
	if !ok {
		return
	}
	problems, err := h.problemService.ListProblems(c.Request.Context(), projectID)
	if err != nil {
		common.Fail(c, "list_problems", err)
		return
	}
	common.OK(c, "Problems retrieved successfully", problems)
}

// GetProblem 获取问题(含模式)
func (h *ProblemHandler) GetProblem(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "get_problem")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "get_problem")
	if !ok {
		return
	}
	p, err := h.problemService.GetProblem(c.Request.Context(), projectID, id)
	if err != nil {
		common.Fail(c, "get_problem", err)
		return
	}
	common.OK(c, "Problem retrieved successfully", p)
}

// CreateProblem 创建问题，初始模式立即关联到项目中匹配的错误
func (h *ProblemHandler) CreateProblem(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "create_problem")
	if !ok {
		return
	}
	var req problem.CreateProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "create_problem", err)
		return
	}
	p, err := h.problemService.CreateProblem(c.Request.Context(), projectID, &req)
	if err != nil {
		common.Fail(c, "create_problem", err)
		return
	}
	h.audit(c, "create_problem", projectID, p.ID)
	common.OK(c, "Problem created successfully", p)
}

// DeleteProblem 删除问题及其模式
func (h *ProblemHandler) DeleteProblem(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "delete_problem")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "delete_problem")
	if !ok {
		return
	}
	if err := h.problemService.DeleteProblem(c.Request.Context(), projectID, id); err != nil {
		common.Fail(c, "delete_problem", err)
		return
	}
	h.audit(c, "delete_problem", projectID, id)
	common.OK(c, "Problem deleted successfully", nil)
}

type closeProblemRequest struct {
	RootCauseID *uint64 `json:"root_cause_id"`
}

// CloseProblem 关闭问题，必须指定根因
func (h *ProblemHandler) CloseProblem(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "close_problem")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "close_problem")
	if !ok {
		return
	}
	var req closeProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "close_problem", err)
		return
	}
	p, err := h.problemService.CloseProblem(c.Request.Context(), projectID, id, req.RootCauseID)
	if err != nil {
		common.Fail(c, "close_problem", err)
		return
	}
	h.audit(c, "close_problem", projectID, id)
	common.OK(c, "Problem closed successfully", p)
}

// ReopenProblem 重新打开问题
func (h *ProblemHandler) ReopenProblem(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "reopen_problem")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "reopen_problem")
	if !ok {
		return
	}
	p, err := h.problemService.ReopenProblem(c.Request.Context(), projectID, id)
	if err != nil {
		common.Fail(c, "reopen_problem", err)
		return
	}
	h.audit(c, "reopen_problem", projectID, id)
	common.OK(c, "Problem reopened successfully", p)
}

// RecomputeFirstAndLastSeen 逐个问题重算最早/最近出现时间
func (h *ProblemHandler) RecomputeFirstAndLastSeen(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "recompute_problems")
	if !ok {
		return
	}
	count, err := h.problemService.RecomputeFirstAndLastSeen(c.Request.Context(), projectID)
	if err != nil {
		common.Fail(c, "recompute_problems", err)
		return
	}
	common.OK(c, "First and last seen date-times recomputed", gin.H{"problems": count})
}

// RefreshDefects 从缺陷系统刷新缺陷状态
func (h *ProblemHandler) RefreshDefects(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "refresh_defects")
	if !ok {
		return
	}
	count, err := h.problemService.RefreshDefects(c.Request.Context(), projectID)
	if err != nil {
		common.Fail(c, "refresh_defects", err)
		return
	}
	common.OK(c, "Defect statuses refreshed", gin.H{"problems": count})
}

// --- Pattern ---

// AppendPattern 为问题追加模式
func (h *ProblemHandler) AppendPattern(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "append_pattern")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "append_pattern")
	if !ok {
		return
	}
	var pattern probmodel.ProblemPattern
	if err := c.ShouldBindJSON(&pattern); err != nil {
		common.BadRequest(c, "append_pattern", err)
		return
	}
	created, err := h.problemService.AppendPattern(c.Request.Context(), projectID, id, &pattern)
	if err != nil {
		common.Fail(c, "append_pattern", err)
		return
	}
	h.audit(c, "append_pattern", projectID, created.ID)
	common.OK(c, "Pattern appended successfully", created)
}

// UpdatePattern 修改模式条件
func (h *ProblemHandler) UpdatePattern(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "update_pattern")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "update_pattern")
	if !ok {
		return
	}
	var update probmodel.ProblemPattern
	if err := c.ShouldBindJSON(&update); err != nil {
		common.BadRequest(c, "update_pattern", err)
		return
	}
	updated, err := h.problemService.UpdatePattern(c.Request.Context(), projectID, id, &update)
	if err != nil {
		common.Fail(c, "update_pattern", err)
		return
	}
	h.audit(c, "update_pattern", projectID, id)
	common.OK(c, "Pattern updated successfully", updated)
}

// DeletePattern 删除模式，不能删除问题的最后一个模式
func (h *ProblemHandler) DeletePattern(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "delete_pattern")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "delete_pattern")
	if !ok {
		return
	}
	if err := h.problemService.DeletePattern(c.Request.Context(), projectID, id); err != nil {
		common.Fail(c, "delete_pattern", err)
		return
	}
	h.audit(c, "delete_pattern", projectID, id)
	common.OK(c, "Pattern deleted successfully", nil)
}

// PickUpPattern 把模式移到 :id 问题下
func (h *ProblemHandler) PickUpPattern(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "pick_up_pattern")
	if !ok {
		return
	}
	id, ok := common.ParseID(c, "id", "pick_up_pattern")
	if !ok {
		return
	}
	patternID, ok := common.ParseID(c, "patternId", "pick_up_pattern")
	if !ok {
		return
	}
	p, err := h.problemService.PickUpPattern(c.Request.Context(), projectID, id, patternID)
	if err != nil {
		common.Fail(c, "pick_up_pattern", err)
		return
	}
	h.audit(c, "pick_up_pattern", projectID, patternID)
	common.OK(c, "Pattern picked up successfully", p)
}
