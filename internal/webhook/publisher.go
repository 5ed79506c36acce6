package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
)

const (
	webhookQueueKey = "webhook_events"
)

// WebhookEvent - тело вебхука: событие шины и время постановки в очередь
type WebhookEvent struct {
	Type       eventbus.EventType `json:"type"`
	Topic      string             `json:"topic"`
	EntityID   string             `json:"entity_id"`
	Data       json.RawMessage    `json:"data,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	QueuedAt   time.Time          `json:"queued_at"`
}

// NewWebhookEvent строит тело вебхука из события шины
func NewWebhookEvent(event eventbus.Event, queuedAt time.Time) WebhookEvent {
	return WebhookEvent{
		Type:       event.Type,
		Topic:      event.Topic,
		EntityID:   event.EntityID,
		Data:       event.Data,
		OccurredAt: event.OccurredAt,
		QueuedAt:   queuedAt.UTC(),
	}
}

// RedisWebhookPublisher ставит события шины в очередь вебхуков в Redis.
// Реализует eventbus.Sink.
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event eventbus.Event) error {
	payload, err := json.Marshal(NewWebhookEvent(event, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH в голову списка, воркер забирает с хвоста через BRPOP
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
