package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/pkg/logger"

	"github.com/sirupsen/logrus"
)

// 出队失败(如 Redis 不可达)后的重试间隔，成倍增长直到上限
const (
	defaultPopRetryMin = 100 * time.Millisecond
	defaultPopRetryMax = 5 * time.Second
)

// ExecutionIndexer 索引单个原始目录
type ExecutionIndexer interface {
	IndexExecution(ctx context.Context, indexation *execmodel.PlannedIndexation) (*execmodel.Execution, error)
}

// Processor 从队列消费待索引目录的 Worker 池
// 同一原始目录同一时间只会被一个 Worker 索引
type Processor struct {
	queue   Queue
	indexer ExecutionIndexer
	workers int
	locks   *linkLocks

	popRetryMin time.Duration
	popRetryMax time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewProcessor 创建 Processor
func NewProcessor(queue Queue, indexer ExecutionIndexer, workers int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		queue:   queue,
		indexer: indexer,
		workers: workers,
		locks:   newLinkLocks(),

		popRetryMin: defaultPopRetryMin,
		popRetryMax: defaultPopRetryMax,
	}
}

// Start 启动 Worker
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	logger.LogSystemEvent("indexer", "processor_started", "indexation workers started", logrus.InfoLevel, map[string]interface{}{
		"workers": p.workers,
	})
}

// Stop 停止接收新任务并等待正在索引的任务完成
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.LogSystemEvent("indexer", "processor_stopped", "indexation workers stopped", logrus.InfoLevel, nil)
}

// Submit 推送到队列
func (p *Processor) Submit(ctx context.Context, indexation *execmodel.PlannedIndexation) error {
	return p.queue.Push(ctx, indexation)
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	retry := p.popRetryMin
	for {
		indexation, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			logger.LogError(err, "", "", "", "indexer.worker", "QUEUE", map[string]interface{}{
				"operation": "pop_indexation",
				"worker":    id,
				"retry_in":  retry.String(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			retry = min(retry*2, p.popRetryMax)
			continue
		}
		retry = p.popRetryMin
		// 已出队的任务不受停止信号影响，索引过程不可中途取消
		p.Process(context.WithoutCancel(ctx), indexation)
	}
}

// Process 在原始目录锁内索引，错误和 panic 只记录日志，由下一次轮询重试
func (p *Processor) Process(ctx context.Context, indexation *execmodel.PlannedIndexation) {
	if indexation == nil {
		return
	}
	link, err := CanonicalLink(indexation.RawFolder)
	if err != nil {
		link = indexation.RawFolder
	}
	unlock := p.locks.lock(link)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.LogError(fmt.Errorf("indexation panic: %v", r), "", "", "", "indexer.Process", "PANIC", map[string]interface{}{
				"operation":  "index_execution",
				"project_id": indexation.ProjectID,
				"job_link":   link,
				"stack":      string(debug.Stack()),
			})
		}
	}()

	if _, err := p.indexer.IndexExecution(ctx, indexation); err != nil {
		logger.LogIndexation(logrus.ErrorLevel, "indexation failed, will be retried on next scheduling pass", map[string]interface{}{
			"operation":  "index_execution",
			"project_id": indexation.ProjectID,
			"job_link":   link,
			"error":      err.Error(),
		})
	}
}

// linkLocks 按原始目录加锁，无人持有时释放
type linkLocks struct {
	mu    sync.Mutex
	locks map[string]*linkLock
}

type linkLock struct {
	mu   sync.Mutex
	refs int
}

func newLinkLocks() *linkLocks {
	return &linkLocks{locks: make(map[string]*linkLock)}
}

func (l *linkLocks) lock(link string) func() {
	l.mu.Lock()
	entry, ok := l.locks[link]
	if !ok {
		entry = &linkLock{}
		l.locks[link] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, link)
		}
		l.mu.Unlock()
	}
}
