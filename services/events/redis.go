package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel domain events are published on.
const Channel = "consultly.events"

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher on the given Redis client.
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, name string, data map[string]interface{}) error {
	evt := NewEvent(name, data)
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", name, err)
	}

	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		// Event delivery is best effort; billing must not fail because a
		// subscriber channel is down.
		p.logger.Error("failed to publish domain event",
			zap.String("event", name), zap.Error(err))
		return fmt.Errorf("failed to publish event %s: %w", name, err)
	}

	p.logger.Debug("published domain event", zap.String("event", name), zap.String("id", evt.ID))
	return nil
}
