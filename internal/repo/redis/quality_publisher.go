package redis

import (
	"context"
	"encoding/json"
	"fmt"

	execmodel "aramaster/internal/model/execution"

	"github.com/go-redis/redis/v8"
)

// QualityPublisher 通过 Redis PUBLISH 广播执行质量通知
type QualityPublisher struct {
	client  *redis.Client
	channel string
}

// NewQualityPublisher 创建质量通知发布者
func NewQualityPublisher(client *redis.Client, channel string) *QualityPublisher {
	return &QualityPublisher{
		client:  client,
		channel: channel,
	}
}

// Publish 发布一条质量通知
func (p *QualityPublisher) Publish(ctx context.Context, notification *execmodel.QualityNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal quality notification: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish quality notification: %w", err)
	}
	return nil
}
