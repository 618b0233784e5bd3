package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	execmodel "aramaster/internal/model/execution"

	"github.com/go-redis/redis/v8"
)

// popTimeout 单次 BRPOP 等待时间，超时后重新检查 ctx
const popTimeout = 2 * time.Second

// IndexationQueue 基于 Redis List 的索引队列(LPUSH 入队，BRPOP 出队)
// 多个实例共享同一个键时，每条记录只会被一个实例取走
type IndexationQueue struct {
	client *redis.Client
	key    string
}

// NewIndexationQueue 创建 Redis 索引队列
func NewIndexationQueue(client *redis.Client, key string) *IndexationQueue {
	return &IndexationQueue{
		client: client,
		key:    key,
	}
}

// Push 入队
func (q *IndexationQueue) Push(ctx context.Context, indexation *execmodel.PlannedIndexation) error {
	data, err := json.Marshal(indexation)
	if err != nil {
		return fmt.Errorf("failed to marshal planned indexation: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push planned indexation: %w", err)
	}
	return nil
}

// Pop 阻塞出队，直到有数据或 ctx 取消
func (q *IndexationQueue) Pop(ctx context.Context) (*execmodel.PlannedIndexation, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// BRPOP 返回 [key, value]
		if len(result) != 2 {
			continue
		}
		var indexation execmodel.PlannedIndexation
		if err := json.Unmarshal([]byte(result[1]), &indexation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal planned indexation: %w", err)
		}
		return &indexation, nil
	}
}

// Len 队列长度
func (q *IndexationQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
