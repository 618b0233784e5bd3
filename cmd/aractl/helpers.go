package main

import (
	"fmt"

	"aramaster/internal/app/master/setup"
	"aramaster/internal/config"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"

	"gorm.io/gorm"
)

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	env := rootFlags.env
	if env == "" {
		env = config.GetEnv()
	}
	cfg, err := config.LoadConfig(rootFlags.configPath, env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := logger.InitLogger(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// services 命令行直接调用服务层，不经过队列
type services struct {
	db      *gorm.DB
	core    *setup.CoreModule
	indexer *setup.IndexerModule
	purge   *setup.PurgeModule
}

func openServices() (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.NewMySQLConnection(&cfg.Database.MySQL)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	// 命令行只做一次性操作，不需要 Redis 队列和目录监听
	cfg.Indexer.Queue = "memory"
	cfg.Indexer.Watch = false
	cfg.Indexer.PollInterval = 0
	cfg.Purge.Enabled = false

	core := setup.BuildCoreModule(db, cfg)
	idx, err := setup.BuildIndexerModule(db, nil, cfg, core)
	if err != nil {
		return nil, err
	}
	return &services{db: db, core: core, indexer: idx, purge: setup.BuildPurgeModule(db, cfg, core)}, nil
}

func (s *services) close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
