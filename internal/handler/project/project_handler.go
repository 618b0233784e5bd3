package project

import (
	"aramaster/internal/handler/common"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/utils"
	"aramaster/internal/service/project"
	"aramaster/internal/service/setting"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 项目与项目配置接口
type ProjectHandler struct {
	projectService *project.ProjectService
	settingService *setting.SettingService
}

func NewProjectHandler(projectService *project.ProjectService, settingService *setting.SettingService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService, settingService: settingService}
}

// ListProjects 获取全部项目
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projectService.ListProjects(c.Request.Context())
	if err != nil {
		common.Fail(c, "list_projects", err)
		return
	}
	common.OK(c, "Projects retrieved successfully", projects)
}

// ListSettings 获取项目配置，敏感值已打码
func (h *ProjectHandler) ListSettings(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "list_settings")
	if !ok {
		return
	}
	settings, err := h.settingService.List(c.Request.Context(), projectID)
	if err != nil {
		common.Fail(c, "list_settings", err)
		return
	}
	common.OK(c, "Settings retrieved successfully", settings)
}

type updateSettingRequest struct {
	Value *string `json:"value" binding:"required"`
}

// UpdateSetting 修改单个配置项
func (h *ProjectHandler) UpdateSetting(c *gin.Context) {
	projectID, ok := common.ResolveProject(c, h.projectService, "update_setting")
	if !ok {
		return
	}
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "update_setting", err)
		return
	}

	key := c.Param("key")
	if err := h.settingService.Update(c.Request.Context(), projectID, key, *req.Value); err != nil {
		common.Fail(c, "update_setting", err)
		return
	}

	logger.LogAuditOperation(utils.GetSubject(c), "update_setting", key, "success", utils.GetClientIP(c), utils.GetRequestID(c), map[string]interface{}{
		"project_id": projectID,
	})
	common.OK(c, "Setting updated successfully", gin.H{"code": key})
}
