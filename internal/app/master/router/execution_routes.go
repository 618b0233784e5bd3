package router

import (
	"aramaster/internal/pkg/auth"

	"github.com/gin-gonic/gin"
)

// setupExecutionRoutes 执行查询、索引触发和清理
// 索引触发同时接受 CI 的API密钥(角色 indexer)
func (r *Router) setupExecutionRoutes(projects *gin.RouterGroup) {
	read := r.middlewareManager.GinRequireRole(auth.RoleReader, auth.RoleIndexer)
	index := r.middlewareManager.GinRequireRole(auth.RoleIndexer)
	admin := r.middlewareManager.GinRequireRole()

	executions := projects.Group("/:code/executions")
	{
		executions.GET("", read, r.executionHandler.ListExecutions)
		executions.POST("/index", index, r.executionHandler.IndexExecution)
		executions.DELETE("/purge", admin, r.executionHandler.PurgeExecutions)
		executions.GET("/:id", read, r.executionHandler.GetExecution)
	}
}
