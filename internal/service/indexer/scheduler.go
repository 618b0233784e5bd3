package indexer

import (
	"context"
	"errors"
	"time"

	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"

	"github.com/sirupsen/logrus"
)

// PollScheduler 定时扫描周期目录，把未完成索引的任务目录放入队列
type PollScheduler struct {
	planner  *Planner
	queue    Queue
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

// NewPollScheduler 创建轮询调度器
func NewPollScheduler(planner *Planner, queue Queue, interval time.Duration) *PollScheduler {
	return &PollScheduler{
		planner:  planner,
		queue:    queue,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动轮询，启动时立即执行一次
func (s *PollScheduler) Start(ctx context.Context) {
	logger.LogSystemEvent("indexer", "poll_scheduler_started", "indexation poll scheduler started", logrus.InfoLevel, map[string]interface{}{
		"interval": s.interval.String(),
	})
	go s.loop(ctx)
}

// Stop 停止轮询
func (s *PollScheduler) Stop() {
	close(s.stopChan)
	<-s.done
	logger.LogSystemEvent("indexer", "poll_scheduler_stopped", "indexation poll scheduler stopped", logrus.InfoLevel, nil)
}

func (s *PollScheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll 执行一次扫描，返回入队数量
func (s *PollScheduler) Poll(ctx context.Context) int {
	planned, err := s.planner.PlanPending(ctx)
	if err != nil {
		logger.LogError(err, "", "", "", "indexer.Poll", "SCHEDULER", map[string]interface{}{
			"operation": "plan_pending",
		})
		return 0
	}

	enqueued := 0
	for _, indexation := range planned {
		if err := s.queue.Push(ctx, indexation); err != nil {
			if errors.Is(err, system.ErrQueueFull) {
				logger.LogIndexation(logrus.WarnLevel, "indexation queue full, remaining folders wait for next poll", map[string]interface{}{
					"operation": "poll",
					"remaining": len(planned) - enqueued,
				})
				break
			}
			logger.LogError(err, "", "", "", "indexer.Poll", "QUEUE", map[string]interface{}{
				"operation": "push_indexation",
				"job_link":  indexation.RawFolder,
			})
			break
		}
		enqueued++
	}
	if enqueued > 0 {
		logger.LogIndexation(logrus.DebugLevel, "job folders enqueued", map[string]interface{}{
			"operation": "poll",
			"enqueued":  enqueued,
		})
	}
	return enqueued
}
