package router

import (
	"aramaster/internal/pkg/auth"

	"github.com/gin-gonic/gin"
)

// setupProblemRoutes 问题与问题模式，修改类接口只允许 admin
func (r *Router) setupProblemRoutes(projects *gin.RouterGroup) {
	read := r.middlewareManager.GinRequireRole(auth.RoleReader, auth.RoleIndexer)
	admin := r.middlewareManager.GinRequireRole()

	problems := projects.Group("/:code/problems")
	{
		problems.GET("", read, r.problemHandler.ListProblems)
		problems.POST("", admin, r.problemHandler.CreateProblem)
		problems.POST("/recompute", admin, r.problemHandler.RecomputeFirstAndLastSeen)
		problems.POST("/refresh-defects", admin, r.problemHandler.RefreshDefects)
		problems.GET("/:id", read, r.problemHandler.GetProblem)
		problems.DELETE("/:id", admin, r.problemHandler.DeleteProblem)
		problems.POST("/:id/patterns", admin, r.problemHandler.AppendPattern)
		problems.POST("/:id/pick-up/:patternId", admin, r.problemHandler.PickUpPattern)
		problems.PUT("/:id/close", admin, r.problemHandler.CloseProblem)
		problems.PUT("/:id/reopen", admin, r.problemHandler.ReopenProblem)
	}

	patterns := projects.Group("/:code/patterns")
	{
		patterns.PUT("/:id", admin, r.problemHandler.UpdatePattern)
		patterns.DELETE("/:id", admin, r.problemHandler.DeletePattern)
	}
}
