/**
 * 初始化
 * @author: sun977
 * @date: 2025.11.05
 * @description: 包含master程序初始化相关的类型定义
 * @func: Handler 本身包含 Service,但是Service本身又重新暴露一遍,方便 cmd 和调度器直接调用
 */
package setup

import (
	executionHandler "aramaster/internal/handler/execution"
	problemHandler "aramaster/internal/handler/problem"
	projectHandler "aramaster/internal/handler/project"
	"aramaster/internal/service/execution"
	"aramaster/internal/service/indexer"
	"aramaster/internal/service/problem"
	"aramaster/internal/service/project"
	"aramaster/internal/service/purge"
	"aramaster/internal/service/setting"
)

// CoreModule 参考数据、配置和问题管理
type CoreModule struct {
	// Handlers
	ProjectHandler *projectHandler.ProjectHandler
	ProblemHandler *problemHandler.ProblemHandler

	// Services
	ProjectService   *project.ProjectService
	SettingService   *setting.SettingService
	ProblemService   *problem.ProblemService
	ExecutionService *execution.ExecutionService
}

// IndexerModule 执行索引的触发与处理
// Watcher 只在 indexer.watch 打开时非空，PollScheduler 只在 poll_interval > 0 时非空
type IndexerModule struct {
	Planner       *indexer.Planner
	Queue         indexer.Queue
	Indexer       *indexer.IndexerService
	Processor     *indexer.Processor
	PollScheduler *indexer.PollScheduler
	Watcher       *indexer.FolderWatcher
}

// PurgeModule 执行清理
// Scheduler 只在 purge.enabled 时非空
type PurgeModule struct {
	Service   *purge.PurgeService
	Scheduler *purge.Scheduler
}

// ExecutionModule 执行接口，依赖以上三个模块
type ExecutionModule struct {
	ExecutionHandler *executionHandler.ExecutionHandler
}
