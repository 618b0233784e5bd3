/*
ConfigWatcher 配置文件监听器
监听配置目录，配置文件写入或创建后经过防抖重新加载，并把新旧配置交给回调。
只有日志配置支持热更新，其余配置项变化只记录提示，需重启服务生效。
*/
package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce 连续写入合并为一次重载
const reloadDebounce = 500 * time.Millisecond

// ConfigWatcher 配置文件监听器
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher  // 文件系统监听器
	configPath string             // 配置目录
	env        string             // 环境标识
	callbacks  []ReloadCallback   // 重载回调函数列表
	mu         sync.RWMutex       // 读写锁
	ctx        context.Context    // 上下文
	cancel     context.CancelFunc // 取消函数
	done       chan struct{}      // 完成信号
}

// ReloadCallback 配置重载回调函数类型
type ReloadCallback func(oldConfig, newConfig *Config) error

// NewConfigWatcher 创建配置文件监听器
func NewConfigWatcher(configPath, env string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConfigWatcher{
		watcher:    watcher,
		configPath: configPath,
		env:        env,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// Start 启动配置文件监听
func (cw *ConfigWatcher) Start() error {
	if err := cw.watcher.Add(cw.configPath); err != nil {
		return fmt.Errorf("failed to add config path to watcher: %w", err)
	}

	go cw.watchLoop()

	log.Printf("Config watcher started, watching path: %s", cw.configPath)
	return nil
}

// Stop 停止配置文件监听
func (cw *ConfigWatcher) Stop() error {
	cw.cancel()

	select {
	case <-cw.done:
	case <-time.After(5 * time.Second):
		log.Println("Config watcher stop timeout")
	}

	return cw.watcher.Close()
}

// AddCallback 添加配置重载回调函数
func (cw *ConfigWatcher) AddCallback(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) watchLoop() {
	defer close(cw.done)

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case <-cw.ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isConfigFile(event.Name) {
				debounceTimer.Reset(reloadDebounce)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config watcher error: %v", err)

		case <-debounceTimer.C:
			if err := cw.reloadConfig(); err != nil {
				log.Printf("Failed to reload config: %v", err)
			}
		}
	}
}

// isConfigFile 只关心 config*.yaml / config*.yml
func isConfigFile(filename string) bool {
	switch filepath.Base(filename) {
	case "config.yaml", "config.yml",
		"config.test.yaml", "config.test.yml",
		"config.prod.yaml", "config.prod.yml":
		return true
	}
	return false
}

func (cw *ConfigWatcher) reloadConfig() error {
	oldConfig := GlobalConfig

	newConfig, err := LoadConfig(cw.configPath, cw.env)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	// 单个回调失败不影响其他回调
	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			log.Printf("Config reload callback error: %v", err)
		}
	}
	return nil
}

// LogConfigReloadCallback 日志配置变化时调用 apply 重新配置日志器
func LogConfigReloadCallback(apply func(*LogConfig) error) ReloadCallback {
	return func(oldConfig, newConfig *Config) error {
		if oldConfig == nil || newConfig == nil {
			return nil
		}
		if oldConfig.Log.Level == newConfig.Log.Level && oldConfig.Log.Format == newConfig.Log.Format {
			return nil
		}
		log.Printf("Log configuration changed, old level: %s, new level: %s",
			oldConfig.Log.Level, newConfig.Log.Level)
		return apply(&newConfig.Log)
	}
}

// RestartRequiredReloadCallback 不支持热更新的配置变化只记录提示
func RestartRequiredReloadCallback(oldConfig, newConfig *Config) error {
	if oldConfig == nil || newConfig == nil {
		return nil
	}
	if oldConfig.Database.MySQL.GetMySQLDSN() != newConfig.Database.MySQL.GetMySQLDSN() {
		log.Println("Database configuration changed, restart required")
	}
	if oldConfig.Indexer != newConfig.Indexer {
		log.Println("Indexer configuration changed, restart required")
	}
	if oldConfig.Purge != newConfig.Purge {
		log.Println("Purge configuration changed, restart required")
	}
	return nil
}
