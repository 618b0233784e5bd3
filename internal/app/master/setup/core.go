package setup

import (
	"time"

	"aramaster/internal/config"
	problemHandler "aramaster/internal/handler/problem"
	projectHandler "aramaster/internal/handler/project"
	"aramaster/internal/pkg/logger"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/execution"
	"aramaster/internal/service/problem"
	"aramaster/internal/service/project"
	"aramaster/internal/service/setting"

	"gorm.io/gorm"
)

const defaultDefectTimeout = 10 * time.Second

// BuildCoreModule 构建核心模块
// 责任边界：
// - 初始化项目、配置、问题和执行查询服务
// - 聚合为 ProjectHandler/ProblemHandler，供 router_manager 进行路由注册
func BuildCoreModule(db *gorm.DB, cfg *config.Config) *CoreModule {
	logger.WithFields(map[string]interface{}{
		"path":      "internal.app.master.setup.core.BuildCoreModule",
		"operation": "setup",
		"option":    "setup.core.begin",
		"func_name": "setup.core.BuildCoreModule",
	}).Info("开始构建核心模块")

	// 1) 初始化仓库
	projectRepo := projrepo.NewProjectRepository(db)

	// 2) 初始化服务
	projectService := project.NewProjectService(projectRepo)
	settingService := setting.NewSettingService(projectRepo)
	defectTimeout := cfg.Defect.Timeout
	if defectTimeout <= 0 {
		defectTimeout = defaultDefectTimeout
	}
	problemService := problem.NewProblemService(db, settingService, defectTimeout)
	executionService := execution.NewExecutionService(db, problemService)

	// 3) 聚合输出
	module := &CoreModule{
		ProjectHandler:   projectHandler.NewProjectHandler(projectService, settingService),
		ProblemHandler:   problemHandler.NewProblemHandler(projectService, problemService),
		ProjectService:   projectService,
		SettingService:   settingService,
		ProblemService:   problemService,
		ExecutionService: executionService,
	}

	logger.WithFields(map[string]interface{}{
		"path":      "internal.app.master.setup.core.BuildCoreModule",
		"operation": "setup",
		"option":    "setup.core.done",
		"func_name": "setup.core.BuildCoreModule",
	}).Info("核心模块构建完成")

	return module
}
