package v1

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/models"
)

// CreateIncidentRequest DTO для создания инцидента
// @Description DTO для создания инцидента. Если координаты не заданы, они ищутся по location_name.
type CreateIncidentRequest struct {
	Title        string   `json:"title" validate:"required,min=2,max=255"`
	Description  string   `json:"description,omitempty" validate:"max=5000"`
	LocationName string   `json:"location_name,omitempty" validate:"max=255"`
	Latitude     *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Tags         []string `json:"tags,omitempty" validate:"max=20,dive,min=1,max=50"`
}

// UpdateIncidentRequest DTO для частичного обновления инцидента
// @Description DTO для частичного обновления инцидента; отсутствующие поля не меняются
type UpdateIncidentRequest struct {
	Title        *string   `json:"title,omitempty" validate:"omitempty,min=2,max=255"`
	Description  *string   `json:"description,omitempty" validate:"omitempty,max=5000"`
	LocationName *string   `json:"location_name,omitempty" validate:"omitempty,max=255"`
	Latitude     *float64  `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude    *float64  `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Tags         *[]string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// PointResponse DTO координат
type PointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AuditEntryResponse DTO записи истории изменений
// @Description Неизменяемая запись истории инцидента
type AuditEntryResponse struct {
	Seq              int64                         `json:"seq"`
	Action           string                        `json:"action"`
	UserID           string                        `json:"user_id"`
	Timestamp        time.Time                     `json:"timestamp"`
	Changes          map[string]models.FieldChange `json:"changes"`
	SeverityAnalysis json.RawMessage               `json:"severity_analysis,omitempty" swaggertype:"object"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID           uuid.UUID            `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	LocationName string               `json:"location_name,omitempty"`
	Location     *PointResponse       `json:"location,omitempty"`
	Tags         []string             `json:"tags"`
	OwnerID      string               `json:"owner_id"`
	AuditTrail   []AuditEntryResponse `json:"audit_trail,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// CreateResourceRequest DTO для добавления ресурса помощи
// @Description DTO для добавления ресурса помощи к инциденту
type CreateResourceRequest struct {
	Name         string   `json:"name" validate:"required,min=2,max=255"`
	LocationName string   `json:"location_name,omitempty" validate:"max=255"`
	Latitude     *float64 `json:"latitude" validate:"required,latitude"`
	Longitude    *float64 `json:"longitude" validate:"required,longitude"`
	Type         string   `json:"type" validate:"required,oneof=shelter food medical water evacuation other"`
	Capacity     *int     `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	Status       string   `json:"status,omitempty" validate:"omitempty,oneof=active inactive full"`
}

// ResourceResponse DTO ресурса помощи
type ResourceResponse struct {
	ID           uuid.UUID     `json:"id"`
	DisasterID   uuid.UUID     `json:"disaster_id"`
	Name         string        `json:"name"`
	LocationName string        `json:"location_name,omitempty"`
	Location     PointResponse `json:"location"`
	Type         string        `json:"type"`
	Capacity     *int          `json:"capacity,omitempty"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NearbyResourceResponse DTO ресурса с расстоянием до центра поиска
type NearbyResourceResponse struct {
	Resource       ResourceResponse `json:"resource"`
	DistanceMeters float64          `json:"distance_meters"`
}

// NearbyResourcesQuery параметры поиска ресурсов рядом с инцидентом
type NearbyResourcesQuery struct {
	Lat    *float64 `form:"lat" validate:"omitempty,latitude"`
	Lon    *float64 `form:"lon" validate:"omitempty,longitude"`
	Radius float64  `form:"radius" validate:"omitempty,gt=0,lte=500000"`
	Status string   `form:"status" validate:"omitempty,oneof=active inactive full"`
}

// GeocodeRequest DTO для геокодирования
// @Description Название места для поиска координат
type GeocodeRequest struct {
	LocationName string `json:"location_name" validate:"required,min=1,max=255"`
}

// pairedCoordinates требует, чтобы широта и долгота передавались только вместе
func pairedCoordinates(sl validator.StructLevel) {
	var lat, lon *float64
	switch req := sl.Current().Interface().(type) {
	case CreateIncidentRequest:
		lat, lon = req.Latitude, req.Longitude
	case UpdateIncidentRequest:
		lat, lon = req.Latitude, req.Longitude
	case NearbyResourcesQuery:
		lat, lon = req.Lat, req.Lon
	default:
		return
	}
	if lat != nil && lon == nil {
		sl.ReportError(lon, "Longitude", "Longitude", "required_with", "Latitude")
	}
	if lon != nil && lat == nil {
		sl.ReportError(lat, "Latitude", "Latitude", "required_with", "Longitude")
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(pairedCoordinates, CreateIncidentRequest{}, UpdateIncidentRequest{}, NearbyResourcesQuery{})
	return v
}
