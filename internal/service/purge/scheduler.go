package purge

import (
	"context"
	"time"

	"aramaster/internal/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Scheduler 按固定间隔清理全部项目
type Scheduler struct {
	service  *PurgeService
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler 创建清理调度器
func NewScheduler(service *PurgeService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动调度，首次清理在一个间隔之后
func (s *Scheduler) Start(ctx context.Context) {
	logger.LogSystemEvent("purge", "scheduler_started", "purge scheduler started", logrus.InfoLevel, map[string]interface{}{
		"interval": s.interval.String(),
	})
	go s.loop(ctx)
}

// Stop 停止调度，等待进行中的清理结束
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.done
	logger.LogSystemEvent("purge", "scheduler_stopped", "purge scheduler stopped", logrus.InfoLevel, nil)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			deleted, err := s.service.PurgeAll(ctx)
			if err != nil {
				logger.LogError(err, "", "", "", "purge.Scheduler", "SCHEDULER", map[string]interface{}{
					"operation": "purge_all",
				})
				continue
			}
			logger.LogSystemEvent("purge", "purge_all_done", "scheduled purge finished", logrus.InfoLevel, map[string]interface{}{
				"deleted": deleted,
			})
		}
	}
}
