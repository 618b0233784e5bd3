package setup

import (
	"aramaster/internal/config"
	executionHandler "aramaster/internal/handler/execution"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/service/purge"

	"gorm.io/gorm"
)

// BuildPurgeModule 构建执行清理模块，purge.enabled 关闭时只提供手动清理
func BuildPurgeModule(db *gorm.DB, cfg *config.Config, core *CoreModule) *PurgeModule {
	service := purge.NewPurgeService(db, core.ProjectService, core.SettingService, cfg.Purge.BatchSize)
	module := &PurgeModule{Service: service}
	if cfg.Purge.Enabled {
		module.Scheduler = purge.NewScheduler(service, cfg.Purge.Interval)
	}

	logger.WithFields(map[string]interface{}{
		"path":      "internal.app.master.setup.purge.BuildPurgeModule",
		"operation": "setup",
		"func_name": "setup.purge.BuildPurgeModule",
		"scheduled": cfg.Purge.Enabled,
	}).Info("执行清理模块构建完成")
	return module
}

// BuildExecutionModule 构建执行接口
func BuildExecutionModule(core *CoreModule, idx *IndexerModule, pm *PurgeModule) *ExecutionModule {
	return &ExecutionModule{
		ExecutionHandler: executionHandler.NewExecutionHandler(core.ProjectService, core.ExecutionService, idx.Planner, idx.Queue, pm.Service),
	}
}
