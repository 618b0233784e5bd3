/*
 * @author: sun977
 * @date: 2025.09.05
 * @description: 主程序入口
 * @func: 加载配置、初始化日志、初始化应用、启动服务器、等待中断信号
 */

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aramaster/internal/app/master"
	"aramaster/internal/config"
	"aramaster/internal/pkg/logger"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "配置目录，默认 ./configs")
	env := flag.String("env", "", "环境标识 (dev, test, prod)，默认读取 ARA_ENV")
	flag.Parse()

	if *env == "" {
		*env = config.GetEnv()
	}
	cfg, err := config.LoadConfig(*configPath, *env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logManager, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 日志级别支持热更新，其余配置变化需重启
	watcher, err := config.NewConfigWatcher(*configPath, *env)
	if err != nil {
		log.Fatalf("Failed to create config watcher: %v", err)
	}
	watcher.AddCallback(config.LogConfigReloadCallback(logManager.UpdateConfig))
	watcher.AddCallback(config.RestartRequiredReloadCallback)
	if err := watcher.Start(); err != nil {
		logger.LogSystemEvent("master", "config_watcher_failed", err.Error(), logrus.WarnLevel, nil)
	}
	defer watcher.Stop()

	// 创建应用实例
	app, err := master.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	// 创建HTTP服务器
	addr := cfg.Server.GetAddress()
	server := &http.Server{
		Addr:           addr,
		Handler:        app.GetRouter().GetEngine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.LogSystemEvent("master", "server_started", "listening on "+addr, logrus.InfoLevel, map[string]interface{}{
			"env": *env,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.LogSystemEvent("master", "server_stopping", "shutting down server", logrus.InfoLevel, nil)

	// 给服务器5秒钟的时间来完成现有请求
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.LogSystemEvent("master", "server_forced_shutdown", err.Error(), logrus.ErrorLevel, nil)
	}

	// 等待正在进行的索引完成
	_ = app.Stop()
}
