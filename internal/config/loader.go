package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置文件
// configPath: 配置文件路径，如果为空则使用默认路径
// env: 环境标识，支持 development, test, production
func LoadConfig(configPath, env string) (*Config, error) {
	// 设置默认环境
	if env == "" {
		env = getEnvFromEnvironment()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	// 根据环境选择配置文件
	configFile := getConfigFileName(configPath, env)
	v.SetConfigFile(configFile)

	// 设置环境变量前缀
	v.SetEnvPrefix("ARA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvironmentVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	GlobalConfig = &config

	return &config, nil
}

// getEnvFromEnvironment 从环境变量获取环境标识
func getEnvFromEnvironment() string {
	env := os.Getenv("ARA_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development" // 默认开发环境
	}
	return env
}

// getDefaultConfigPath 获取默认配置文件路径
func getDefaultConfigPath() string {
	if configPath := os.Getenv("ARA_CONFIG_PATH"); configPath != "" {
		return configPath
	}
	return "configs"
}

// getConfigFileName 根据环境获取配置文件名
func getConfigFileName(configPath, env string) string {
	var configFile string

	switch env {
	case "production", "prod":
		configFile = filepath.Join(configPath, "config.prod.yaml")
	case "test", "testing":
		configFile = filepath.Join(configPath, "config.test.yaml")
	default:
		configFile = filepath.Join(configPath, "config.yaml")
	}

	// 检查文件是否存在，如果不存在则使用默认配置文件
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		defaultConfig := filepath.Join(configPath, "config.yaml")
		if _, err := os.Stat(defaultConfig); err == nil {
			return defaultConfig
		}
	}

	return configFile
}

// setDefaults 索引相关配置的默认值，配置文件缺省时生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("indexer.workers", 2)
	v.SetDefault("indexer.queue", "memory")
	v.SetDefault("indexer.queue_size", 1000)
	v.SetDefault("indexer.queue_key", "ara:indexation:queue")
	v.SetDefault("indexer.poll_interval", time.Minute)
	v.SetDefault("indexer.parallel_reports", 4)
	v.SetDefault("purge.interval", 24*time.Hour)
	v.SetDefault("purge.batch_size", 200)
	v.SetDefault("notification.channel", "ara:quality")
	v.SetDefault("defect.timeout", 10*time.Second)
	v.SetDefault("security.auth.api_key_header", "X-API-Key")
}

// bindEnvironmentVariables 绑定环境变量
func bindEnvironmentVariables(v *viper.Viper) {
	// 数据库配置
	v.BindEnv("database.mysql.host", "ARA_MYSQL_HOST")
	v.BindEnv("database.mysql.port", "ARA_MYSQL_PORT")
	v.BindEnv("database.mysql.username", "ARA_MYSQL_USERNAME")
	v.BindEnv("database.mysql.password", "ARA_MYSQL_PASSWORD")
	v.BindEnv("database.mysql.database", "ARA_MYSQL_DATABASE")

	v.BindEnv("database.redis.enabled", "ARA_REDIS_ENABLED")
	v.BindEnv("database.redis.host", "ARA_REDIS_HOST")
	v.BindEnv("database.redis.port", "ARA_REDIS_PORT")
	v.BindEnv("database.redis.password", "ARA_REDIS_PASSWORD")

	// JWT配置
	v.BindEnv("security.jwt.secret", "ARA_JWT_SECRET")
	v.BindEnv("security.jwt.issuer", "ARA_JWT_ISSUER")

	// 服务器配置
	v.BindEnv("server.host", "ARA_SERVER_HOST")
	v.BindEnv("server.port", "ARA_SERVER_PORT")
	v.BindEnv("server.mode", "ARA_SERVER_MODE")

	// 索引配置
	v.BindEnv("indexer.base_path", "ARA_INDEXER_BASE_PATH")
	v.BindEnv("app.environment", "ARA_APP_ENVIRONMENT")
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.Mode != "debug" && config.Server.Mode != "release" && config.Server.Mode != "test" {
		return fmt.Errorf("invalid server mode: %s", config.Server.Mode)
	}

	if config.Database.MySQL.Host == "" {
		return fmt.Errorf("mysql host is required")
	}

	if config.Database.MySQL.Database == "" {
		return fmt.Errorf("mysql database name is required")
	}

	if config.Database.Redis.Enabled && config.Database.Redis.Host == "" {
		return fmt.Errorf("redis host is required when redis is enabled")
	}

	if config.Security.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	if len(config.Security.JWT.Secret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters long")
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	if !contains(validLogLevels, config.Log.Level) {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Log.Format) {
		return fmt.Errorf("invalid log format: %s", config.Log.Format)
	}

	validLogOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validLogOutputs, config.Log.Output) {
		return fmt.Errorf("invalid log output: %s", config.Log.Output)
	}

	if config.Log.Output == "file" && config.Log.FilePath == "" {
		return fmt.Errorf("log file path is required when output is file")
	}

	validQueues := []string{"memory", "redis"}
	if !contains(validQueues, config.Indexer.Queue) {
		return fmt.Errorf("invalid indexer queue: %s", config.Indexer.Queue)
	}
	if config.Indexer.Queue == "redis" && !config.Database.Redis.Enabled {
		return fmt.Errorf("indexer queue redis requires database.redis.enabled")
	}

	if config.Indexer.Workers <= 0 {
		return fmt.Errorf("indexer.workers must be positive")
	}

	if config.Indexer.PollInterval > 0 && strings.TrimSpace(config.Indexer.BasePath) == "" {
		return fmt.Errorf("indexer.base_path is required when polling is enabled")
	}

	if config.Purge.Enabled && config.Purge.Interval <= 0 {
		return fmt.Errorf("purge.interval must be positive when purge is enabled")
	}

	return nil
}

// contains 检查切片是否包含指定元素
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return GlobalConfig
}

// GetEnv 获取当前环境
func GetEnv() string {
	if GlobalConfig != nil {
		return GlobalConfig.App.Environment
	}
	return getEnvFromEnvironment()
}
