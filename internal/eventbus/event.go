package eventbus

import (
	"encoding/json"
	"time"
)

// EventType - тип события об изменении состояния
type EventType string

const (
	EventIncidentCreated        EventType = "incident_created"
	EventIncidentUpdated        EventType = "incident_updated"
	EventIncidentDeleted        EventType = "incident_deleted"
	EventResourcesUpdated       EventType = "resources_updated"
	EventSocialReportReceived   EventType = "social_report_received"
	EventImageVerified          EventType = "image_verified"
	EventOfficialUpdateReceived EventType = "official_update_received"
)

// GlobalTopic - тема для событий всех инцидентов
const GlobalTopic = "global"

// IncidentTopic возвращает имя темы событий конкретного инцидента
func IncidentTopic(incidentID string) string {
	return "incident_" + incidentID
}

// Event - событие, доставляемое подписчикам темы
type Event struct {
	Type       EventType       `json:"type"`
	Topic      string          `json:"topic"`
	EntityID   string          `json:"entity_id"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
