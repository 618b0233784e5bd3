/*
*
  - 数据库迁移工具
  - @author: Sun977
  - @date: 2025.10.15
  - @description: 数据库模型迁移和参考数据初始化工具
  - @usage: go run main.go -env=test -seed-file=configs/seed.example.yaml
    -config string
    配置目录 (default "configs")
    -drop
    是否先删除表（危险操作）
    -env string
    环境标识 (test, dev, prod) (default "test")
    -seed-file string
    参考数据 YAML 文件，为空时不填充

示例:
migrate -env=test -seed-file=configs/seed.example.yaml   # 测试环境迁移并填充数据
migrate -env=prod                                         # 生产环境仅迁移表结构
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"aramaster/internal/config"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/service/project"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MigrateOptions 迁移选项配置
type MigrateOptions struct {
	ConfigPath  string // 配置目录
	Environment string // 环境标识: test, dev, prod
	SeedFile    string // 参考数据文件
	DropFirst   bool   // 是否先删除表（危险操作）
}

func main() {
	opts := parseFlags()

	cfg, err := config.LoadConfig(opts.ConfigPath, opts.Environment)
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	logManager, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	entry := logManager.GetLogger().WithFields(logrus.Fields{
		"path":        "cmd/migrate/main.go",
		"operation":   "database_migration",
		"func_name":   "main",
		"environment": opts.Environment,
		"seed_file":   opts.SeedFile,
		"drop_first":  opts.DropFirst,
	})
	entry.Info("开始数据库迁移")

	db, err := database.NewMySQLConnection(&cfg.Database.MySQL)
	if err != nil {
		entry.WithField("error", err.Error()).Fatal("数据库连接失败")
	}

	if err := performMigration(context.Background(), db, opts, entry); err != nil {
		entry.WithField("error", err.Error()).Fatal("数据库迁移失败")
	}
	entry.Info("数据库迁移完成")
}

func parseFlags() *MigrateOptions {
	opts := &MigrateOptions{}

	flag.StringVar(&opts.ConfigPath, "config", "", "配置目录 (默认 configs)")
	flag.StringVar(&opts.Environment, "env", "test", "环境标识 (test, dev, prod)")
	flag.StringVar(&opts.SeedFile, "seed-file", "", "参考数据 YAML 文件，为空时不填充")
	flag.BoolVar(&opts.DropFirst, "drop", false, "是否先删除表（危险操作）")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ARA 数据库迁移工具\n\n")
		fmt.Fprintf(os.Stderr, "用法: %s [选项]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "选项:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n示例:\n")
		fmt.Fprintf(os.Stderr, "  %s -env=test -seed-file=configs/seed.example.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -env=prod\n", os.Args[0])
	}

	flag.Parse()
	return opts
}

// performMigration 删除(可选)、迁移、填充(可选)
func performMigration(ctx context.Context, db *gorm.DB, opts *MigrateOptions, entry *logrus.Entry) error {
	if opts.DropFirst {
		entry.Warn("开始删除数据库表")
		if err := database.DropAll(db); err != nil {
			return fmt.Errorf("删除表失败: %w", err)
		}
	}

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("模型迁移失败: %w", err)
	}
	entry.WithField("models", len(database.Models())).Info("模型迁移成功")

	if opts.SeedFile == "" {
		return nil
	}
	file, err := project.LoadSeedFile(opts.SeedFile)
	if err != nil {
		return err
	}
	created, err := project.SeedProjects(ctx, db, file)
	if err != nil {
		return fmt.Errorf("数据填充失败: %w", err)
	}
	entry.WithField("projects", created).Info("参考数据填充完成")
	return nil
}
