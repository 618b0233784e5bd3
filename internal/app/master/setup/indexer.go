package setup

import (
	"fmt"

	"aramaster/internal/config"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/report_adapter/registry"
	execrepo "aramaster/internal/repo/mysql/execution"
	redisRepo "aramaster/internal/repo/redis"
	"aramaster/internal/service/indexer"
	"aramaster/internal/service/quality"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	defaultQueueKey            = "ara:indexation:queue"
	defaultNotificationChannel = "ara:quality"
)

// BuildIndexerModule 构建执行索引模块
// 队列和质量通知：redisClient 非空且 indexer.queue=redis 时使用 Redis 列表，否则使用内存队列；
// 通知在 redisClient 非空时发布到 Redis 频道，否则只写业务日志
func BuildIndexerModule(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, core *CoreModule) (*IndexerModule, error) {
	logger.WithFields(map[string]interface{}{
		"path":      "internal.app.master.setup.indexer.BuildIndexerModule",
		"operation": "setup",
		"option":    "setup.indexer.begin",
		"func_name": "setup.indexer.BuildIndexerModule",
		"queue":     cfg.Indexer.Queue,
	}).Info("开始构建执行索引模块")

	var queue indexer.Queue
	switch cfg.Indexer.Queue {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("indexer.queue is redis but database.redis is disabled")
		}
		key := cfg.Indexer.QueueKey
		if key == "" {
			key = defaultQueueKey
		}
		queue = redisRepo.NewIndexationQueue(redisClient, key)
	default:
		queue = indexer.NewMemoryQueue(cfg.Indexer.QueueSize)
	}

	var publisher quality.Publisher
	if redisClient != nil {
		channel := cfg.Notification.Channel
		if channel == "" {
			channel = defaultNotificationChannel
		}
		publisher = redisRepo.NewQualityPublisher(redisClient, channel)
	}
	qualityService := quality.NewQualityService(publisher, cfg.Notification.Enabled)

	assembler := indexer.NewAssembler(core.ProjectService, core.SettingService, registry.NewIndexerRegistry(), cfg.Indexer.ParallelReports)
	indexerService := indexer.NewIndexerService(db, assembler, core.ProblemService, qualityService, core.SettingService, cfg.Indexer.BasePath)
	planner := indexer.NewPlanner(core.ProjectService, core.SettingService, execrepo.NewExecutionRepository(db), cfg.Indexer.BasePath)

	module := &IndexerModule{
		Planner:   planner,
		Queue:     queue,
		Indexer:   indexerService,
		Processor: indexer.NewProcessor(queue, indexerService, cfg.Indexer.Workers),
	}
	if cfg.Indexer.PollInterval > 0 {
		module.PollScheduler = indexer.NewPollScheduler(planner, queue, cfg.Indexer.PollInterval)
	}
	if cfg.Indexer.Watch {
		watcher, err := indexer.NewFolderWatcher(planner, core.SettingService, queue)
		if err != nil {
			return nil, err
		}
		module.Watcher = watcher
	}

	logger.WithFields(map[string]interface{}{
		"path":      "internal.app.master.setup.indexer.BuildIndexerModule",
		"operation": "setup",
		"option":    "setup.indexer.done",
		"func_name": "setup.indexer.BuildIndexerModule",
		"workers":   cfg.Indexer.Workers,
		"poll":      cfg.Indexer.PollInterval.String(),
		"watch":     cfg.Indexer.Watch,
	}).Info("执行索引模块构建完成")

	return module, nil
}
