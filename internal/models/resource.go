package models

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType - категория ресурса помощи
type ResourceType string

const (
	ResourceTypeShelter    ResourceType = "shelter"
	ResourceTypeFood       ResourceType = "food"
	ResourceTypeMedical    ResourceType = "medical"
	ResourceTypeWater      ResourceType = "water"
	ResourceTypeEvacuation ResourceType = "evacuation"
	ResourceTypeOther      ResourceType = "other"
)

// Valid проверяет, что тип ресурса известен
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypeShelter, ResourceTypeFood, ResourceTypeMedical,
		ResourceTypeWater, ResourceTypeEvacuation, ResourceTypeOther:
		return true
	}
	return false
}

// ResourceStatus - доступность ресурса
type ResourceStatus string

const (
	ResourceStatusActive   ResourceStatus = "active"
	ResourceStatusInactive ResourceStatus = "inactive"
	ResourceStatusFull     ResourceStatus = "full"
)

// Valid проверяет, что статус ресурса известен
func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceStatusActive, ResourceStatusInactive, ResourceStatusFull:
		return true
	}
	return false
}

// Resource - пункт помощи, привязанный к инциденту
type Resource struct {
	ID           uuid.UUID      `json:"id"`
	DisasterID   uuid.UUID      `json:"disaster_id"`
	Name         string         `json:"name"`
	LocationName string         `json:"location_name"`
	Location     Point          `json:"location"`
	Type         ResourceType   `json:"type"`
	Capacity     *int           `json:"capacity,omitempty"`
	Status       ResourceStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DistanceResult - ресурс и расстояние до центра поиска; не сохраняется
type DistanceResult struct {
	Resource       Resource `json:"resource"`
	DistanceMeters float64  `json:"distance_meters"`
}

// NearbyQuery - параметры поиска ресурсов рядом с инцидентом.
// Если Center не задан, используется точка инцидента; нулевой радиус - радиус по умолчанию.
type NearbyQuery struct {
	Center       *Point
	RadiusMeters float64
	Status       ResourceStatus
}
