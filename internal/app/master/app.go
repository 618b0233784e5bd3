/*
 * @author: sun977
 * @date: 2025.09.05
 * @description: master 应用装配与后台任务生命周期
 * @func: NewApp / Start / Stop
 */
package master

import (
	"context"
	"fmt"

	"aramaster/internal/app/master/router"
	"aramaster/internal/app/master/setup"
	"aramaster/internal/config"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App 应用程序结构体
type App struct {
	config      *config.Config
	db          *gorm.DB
	redisClient *redis.Client
	router      *router.Router
	indexer     *setup.IndexerModule
	purge       *setup.PurgeModule
	cancel      context.CancelFunc
}

// NewApp 连接数据库并装配全部模块
func NewApp(cfg *config.Config) (*App, error) {
	db, err := database.NewMySQLConnection(&cfg.Database.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Database.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(&cfg.Database.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
	}
	return newApp(cfg, db, redisClient)
}

func newApp(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*App, error) {
	core := setup.BuildCoreModule(db, cfg)
	idx, err := setup.BuildIndexerModule(db, redisClient, cfg, core)
	if err != nil {
		return nil, err
	}
	pm := setup.BuildPurgeModule(db, cfg, core)
	execution := setup.BuildExecutionModule(core, idx, pm)

	r := router.NewRouter(cfg, db, redisClient, setup.BuildMiddlewareManager(cfg), core, execution)
	r.SetupRoutes()

	return &App{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		router:      r,
		indexer:     idx,
		purge:       pm,
	}, nil
}

// GetRouter 获取路由器实例
func (a *App) GetRouter() *router.Router {
	return a.router
}

// GetConfig 获取配置
func (a *App) GetConfig() *config.Config {
	return a.config
}

// Start 启动索引 Worker、目录轮询/监听和定时清理
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.indexer.Processor.Start(ctx)
	if a.indexer.PollScheduler != nil {
		a.indexer.PollScheduler.Start(ctx)
	}
	if a.indexer.Watcher != nil {
		if err := a.indexer.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start folder watcher: %w", err)
		}
	}
	if a.purge.Scheduler != nil {
		a.purge.Scheduler.Start(ctx)
	}

	logger.LogSystemEvent("master", "app_started", "background jobs started", logrus.InfoLevel, map[string]interface{}{
		"base_path": a.config.Indexer.BasePath,
		"queue":     a.config.Indexer.Queue,
	})
	return nil
}

// Stop 先停止触发源，再等待正在进行的索引完成，最后关闭连接
func (a *App) Stop() error {
	if a.purge.Scheduler != nil {
		a.purge.Scheduler.Stop()
	}
	if a.indexer.Watcher != nil {
		if err := a.indexer.Watcher.Stop(); err != nil {
			logger.LogSystemEvent("master", "watcher_stop_failed", err.Error(), logrus.WarnLevel, nil)
		}
	}
	if a.indexer.PollScheduler != nil {
		a.indexer.PollScheduler.Stop()
	}
	a.indexer.Processor.Stop()
	if a.cancel != nil {
		a.cancel()
	}

	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.LogSystemEvent("master", "app_stopped", "application stopped", logrus.InfoLevel, nil)
	return nil
}
