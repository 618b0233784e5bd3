package router

import (
	"aramaster/internal/pkg/auth"

	"github.com/gin-gonic/gin"
)

// setupProjectRoutes 项目与项目配置
func (r *Router) setupProjectRoutes(projects *gin.RouterGroup) {
	read := r.middlewareManager.GinRequireRole(auth.RoleReader, auth.RoleIndexer)
	admin := r.middlewareManager.GinRequireRole()

	projects.GET("", read, r.projectHandler.ListProjects)
	projects.GET("/:code/settings", read, r.projectHandler.ListSettings)
	projects.PUT("/:code/settings/:key", admin, r.projectHandler.UpdateSetting)
}
