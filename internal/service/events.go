package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
)

//go:generate mockgen -destination=mocks/events_mock.go -package=mocks github.com/shenikar/disaster_coordination_system/internal/service EventPublisher
//go:generate mockgen -destination=mocks/fetcher_mock.go -package=mocks github.com/shenikar/disaster_coordination_system/internal/fetcher ExternalFetcher

// EventPublisher - публикация событий об изменении состояния; никогда не блокирует
type EventPublisher interface {
	Publish(topic string, eventType eventbus.EventType, entityID string, data any)
}

// Cache - часть кэша, нужная сервисам для чтения инцидентов
type Cache interface {
	GetInto(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// publishIncidentEvent отправляет событие в тему инцидента и в глобальную тему
func publishIncidentEvent(events EventPublisher, incidentID uuid.UUID, eventType eventbus.EventType, data any) {
	id := incidentID.String()
	events.Publish(eventbus.IncidentTopic(id), eventType, id, data)
	events.Publish(eventbus.GlobalTopic, eventType, id, data)
}

func incidentCacheKey(id uuid.UUID) string {
	return "incident:" + id.String()
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
