/**
 * 配置:配置结构体
 * @author: sun977
 * @date: 2025.09.05
 * @description: ARA 服务配置结构体定义，字段与配置文件一级字段保持一致
 */
package config

import (
	"fmt"
	"time"
)

// Config 应用配置结构体 [这里的字段和配置文件中一级字段保持一致，否则会没有值]
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`             // 服务器配置
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`         // 数据库配置
	Log          LogConfig          `yaml:"log" mapstructure:"log"`                   // 日志配置
	Security     SecurityConfig     `yaml:"security" mapstructure:"security"`         // 安全配置
	Indexer      IndexerConfig      `yaml:"indexer" mapstructure:"indexer"`           // 执行索引配置
	Purge        PurgeConfig        `yaml:"purge" mapstructure:"purge"`               // 执行清理配置
	Notification NotificationConfig `yaml:"notification" mapstructure:"notification"` // 质量通知配置
	Defect       DefectConfig       `yaml:"defect" mapstructure:"defect"`             // 缺陷跟踪配置
	App          AppConfig          `yaml:"app" mapstructure:"app"`                   // 应用配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`                         // 服务器主机地址
	Port           int           `yaml:"port" mapstructure:"port"`                         // 服务器端口
	Mode           string        `yaml:"mode" mapstructure:"mode"`                         // 运行模式: debug, release, test
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`         // 读取超时时间
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`       // 写入超时时间
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`         // 空闲超时时间
	MaxHeaderBytes int           `yaml:"max_header_bytes" mapstructure:"max_header_bytes"` // 最大请求头字节数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql" mapstructure:"mysql"` // MySQL配置
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"` // Redis配置
}

// MySQLConfig MySQL数据库配置
type MySQLConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`                             // 数据库主机
	Port            int           `yaml:"port" mapstructure:"port"`                             // 数据库端口
	Username        string        `yaml:"username" mapstructure:"username"`                     // 用户名
	Password        string        `yaml:"password" mapstructure:"password"`                     // 密码
	Database        string        `yaml:"database" mapstructure:"database"`                     // 数据库名
	Charset         string        `yaml:"charset" mapstructure:"charset"`                       // 字符集
	ParseTime       bool          `yaml:"parse_time" mapstructure:"parse_time"`                 // 是否解析时间
	Loc             string        `yaml:"loc" mapstructure:"loc"`                               // 时区
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`         // 最大空闲连接数
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`         // 最大打开连接数
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`   // 连接最大生存时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"` // 连接最大空闲时间
	LogLevel        string        `yaml:"log_level" mapstructure:"log_level"`                   // 日志级别
}

// RedisConfig Redis配置
// Enabled=false 时索引队列退回内存实现，质量通知只写日志
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`               // 是否启用Redis
	Host         string        `yaml:"host" mapstructure:"host"`                     // Redis主机
	Port         int           `yaml:"port" mapstructure:"port"`                     // Redis端口
	Password     string        `yaml:"password" mapstructure:"password"`             // Redis密码
	Database     int           `yaml:"database" mapstructure:"database"`             // Redis数据库索引
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`           // 连接池大小
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"` // 最小空闲连接数
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`     // 连接超时
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`     // 读取超时
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`   // 写入超时
	PoolTimeout  time.Duration `yaml:"pool_timeout" mapstructure:"pool_timeout"`     // 连接池超时
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`     // 空闲超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式: json, text
	Output     string `yaml:"output" mapstructure:"output"`           // 输出方式: stdout, stderr, file
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 保留的日志文件数量
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 日志文件保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩日志文件
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`               // JWT配置
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`             // 认证配置
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`             // CORS配置
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"` // 限流配置
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret            string        `yaml:"secret" mapstructure:"secret"`                           // JWT密钥
	Issuer            string        `yaml:"issuer" mapstructure:"issuer"`                           // 签发者
	AccessTokenExpire time.Duration `yaml:"access_token_expire" mapstructure:"access_token_expire"` // 访问令牌过期时间
}

// AuthConfig 认证中间件配置
type AuthConfig struct {
	APIKeyHeader string   `yaml:"api_key_header" mapstructure:"api_key_header"` // CI 使用的API密钥请求头
	APIKeyHashes []string `yaml:"api_key_hashes" mapstructure:"api_key_hashes"` // API密钥的 argon2 哈希
	SkipPaths    []string `yaml:"skip_paths" mapstructure:"skip_paths"`         // 跳过认证的路径
}

// CORSConfig CORS配置
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`                     // 是否启用CORS
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins"`         // 允许的源
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods"`         // 允许的方法
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers"`         // 允许的请求头
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials"` // 是否允许凭证
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age"`                     // 预检请求缓存时间
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled" mapstructure:"enabled"`                         // 是否启用限流
	RequestsPerSecond int      `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 每秒请求数限制
	BurstSize         int      `yaml:"burst_size" mapstructure:"burst_size"`                   // 突发请求数
	SkipPaths         []string `yaml:"skip_paths" mapstructure:"skip_paths"`                   // 跳过限流的路径
}

// IndexerConfig 执行索引配置
type IndexerConfig struct {
	BasePath        string        `yaml:"base_path" mapstructure:"base_path"`               // 执行原始目录根路径
	Workers         int           `yaml:"workers" mapstructure:"workers"`                   // 索引 Worker 数量
	Queue           string        `yaml:"queue" mapstructure:"queue"`                       // 队列实现: memory, redis
	QueueSize       int           `yaml:"queue_size" mapstructure:"queue_size"`             // 内存队列容量
	QueueKey        string        `yaml:"queue_key" mapstructure:"queue_key"`               // Redis 队列键名
	PollInterval    time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`       // 目录轮询间隔，0 表示关闭
	Watch           bool          `yaml:"watch" mapstructure:"watch"`                       // 是否监听目录变化
	ParallelReports int           `yaml:"parallel_reports" mapstructure:"parallel_reports"` // 单个报告目录并发解析数
}

// PurgeConfig 执行清理配置
type PurgeConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`       // 是否启用定时清理
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`     // 清理间隔
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"` // 每批删除数量
}

// NotificationConfig 质量通知配置
type NotificationConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"` // 是否发布质量通知
	Channel string `yaml:"channel" mapstructure:"channel"` // Redis 发布频道
}

// DefectConfig 缺陷跟踪配置
type DefectConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"` // 请求缺陷系统的超时时间
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`               // 应用名称
	Version     string `yaml:"version" mapstructure:"version"`         // 应用版本
	Environment string `yaml:"environment" mapstructure:"environment"` // 运行环境
	Timezone    string `yaml:"timezone" mapstructure:"timezone"`       // 时区
}

// GetAddress 获取服务器完整地址
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction 判断是否为生产环境
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// GetMySQLDSN 获取MySQL数据源名称
func (m *MySQLConfig) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		m.Username, m.Password, m.Host, m.Port, m.Database, m.Charset, m.ParseTime, m.Loc)
}

// GetRedisAddress 获取Redis地址
func (r *RedisConfig) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
