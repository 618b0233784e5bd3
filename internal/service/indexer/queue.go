package indexer

import (
	"context"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/model/system"
)

// Queue 待索引目录队列，解耦触发(接口/轮询/监听)与索引处理速率
type Queue interface {
	// Push 推送到队列，队列已满时返回 system.ErrQueueFull
	Push(ctx context.Context, indexation *execmodel.PlannedIndexation) error
	// Pop 阻塞等待直到有数据或 ctx 取消
	Pop(ctx context.Context) (*execmodel.PlannedIndexation, error)
	// Len 队列长度
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue 基于 Channel 的内存队列，适用于单实例部署和测试
type MemoryQueue struct {
	queue chan *execmodel.PlannedIndexation
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &MemoryQueue{
		queue: make(chan *execmodel.PlannedIndexation, bufferSize),
	}
}

// Push 非阻塞推送
func (q *MemoryQueue) Push(ctx context.Context, indexation *execmodel.PlannedIndexation) error {
	select {
	case q.queue <- indexation:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return system.ErrQueueFull
	}
}

// Pop 阻塞获取
func (q *MemoryQueue) Pop(ctx context.Context) (*execmodel.PlannedIndexation, error) {
	select {
	case indexation := <-q.queue:
		return indexation, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len 当前长度
func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.queue)), nil
}
