package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/class-session-api/internal/models"
)

// RedisEventPublisher announces facts on a Redis pub/sub channel as JSON envelopes.
type RedisEventPublisher struct {
	client  redis.Cmdable
	channel string
}

// NewRedisEventPublisher constructs the publisher.
func NewRedisEventPublisher(client redis.Cmdable, channel string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, channel: channel}
}

// Name identifies the sink in logs and metrics.
func (p *RedisEventPublisher) Name() string {
	return "redis"
}

// Deliver publishes one event.
func (p *RedisEventPublisher) Deliver(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}
