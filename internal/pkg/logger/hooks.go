package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"aramaster/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileHook 按日志类型(entry.Data["type"])写入不同的滚动文件
type FileHook struct {
	logConfig *config.LogConfig
	writers   map[LogType]io.Writer
	formatter logrus.Formatter
	mutex     sync.Mutex
}

// typedLogFiles 有独立文件的日志类型
var typedLogFiles = map[LogType]string{
	AccessLog:   "access.log",
	BusinessLog: "business.log",
	ErrorLog:    "error.log",
	SystemLog:   "system.log",
	AuditLog:    "audit.log",
	DebugLog:    "debug.log",
	IndexingLog: "indexing.log",
}

// NewFileHook 创建一个新的FileHook实例
func NewFileHook(logConfig *config.LogConfig) *FileHook {
	hook := &FileHook{
		logConfig: logConfig,
		writers:   make(map[LogType]io.Writer),
		formatter: newJSONFormatter(),
	}
	hook.writers[defaultLogType] = hook.newRotatingWriter(logConfig.FilePath)
	return hook
}

// Levels 返回此Hook关心的所有日志级别
func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在日志触发时执行
func (hook *FileHook) Fire(entry *logrus.Entry) error {
	logType := defaultLogType
	switch t := entry.Data["type"].(type) {
	case LogType:
		logType = t
	case string:
		logType = LogType(t)
	}

	formatted, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}

	hook.mutex.Lock()
	defer hook.mutex.Unlock()
	_, err = hook.writerFor(logType).Write(formatted)
	return err
}

// writerFor 获取指定类型的writer，未知类型落到主日志文件，调用方持有锁
func (hook *FileHook) writerFor(logType LogType) io.Writer {
	if writer, exists := hook.writers[logType]; exists {
		return writer
	}

	name, known := typedLogFiles[logType]
	if !known {
		return hook.writers[defaultLogType]
	}

	writer := hook.newRotatingWriter(filepath.Join(filepath.Dir(hook.logConfig.FilePath), name))
	hook.writers[logType] = writer
	return writer
}

func (hook *FileHook) newRotatingWriter(filename string) io.Writer {
	_ = os.MkdirAll(filepath.Dir(filename), 0755)
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    hook.logConfig.MaxSize,
		MaxBackups: hook.logConfig.MaxBackups,
		MaxAge:     hook.logConfig.MaxAge,
		Compress:   hook.logConfig.Compress,
	}
}
