package v1

import (
	"github.com/shenikar/disaster_coordination_system/internal/models"
)

// CreateRequestToIncidentModel преобразует DTO создания в доменную модель
func CreateRequestToIncidentModel(dto CreateIncidentRequest) *models.Incident {
	return &models.Incident{
		Title:        dto.Title,
		Description:  dto.Description,
		LocationName: dto.LocationName,
		Location:     toPoint(dto.Latitude, dto.Longitude),
		Tags:         dto.Tags,
	}
}

// UpdateRequestToPatch преобразует DTO обновления в частичное обновление
func UpdateRequestToPatch(dto UpdateIncidentRequest) models.IncidentPatch {
	return models.IncidentPatch{
		Title:        dto.Title,
		Description:  dto.Description,
		LocationName: dto.LocationName,
		Location:     toPoint(dto.Latitude, dto.Longitude),
		Tags:         dto.Tags,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	resp := &IncidentResponse{
		ID:           model.ID,
		Title:        model.Title,
		Description:  model.Description,
		LocationName: model.LocationName,
		Tags:         model.Tags,
		OwnerID:      model.OwnerID,
		AuditTrail:   ModelsToAuditResponses(model.AuditTrail),
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if model.Location != nil {
		resp.Location = &PointResponse{Latitude: model.Location.Latitude, Longitude: model.Location.Longitude}
	}
	return resp
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(incidents))
	for i, model := range incidents {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func ModelsToAuditResponses(trail models.AuditTrail) []AuditEntryResponse {
	if len(trail) == 0 {
		return nil
	}
	responses := make([]AuditEntryResponse, len(trail))
	for i, e := range trail {
		responses[i] = AuditEntryResponse{
			Seq:              e.Seq,
			Action:           string(e.Action),
			UserID:           e.UserID,
			Timestamp:        e.Timestamp,
			Changes:          e.Changes,
			SeverityAnalysis: e.SeverityAnalysis,
		}
	}
	return responses
}

// CreateRequestToResourceModel преобразует DTO ресурса в доменную модель
func CreateRequestToResourceModel(dto CreateResourceRequest) *models.Resource {
	return &models.Resource{
		Name:         dto.Name,
		LocationName: dto.LocationName,
		Location:     models.Point{Latitude: *dto.Latitude, Longitude: *dto.Longitude},
		Type:         models.ResourceType(dto.Type),
		Capacity:     dto.Capacity,
		Status:       models.ResourceStatus(dto.Status),
	}
}

func ModelToResourceResponse(model *models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:           model.ID,
		DisasterID:   model.DisasterID,
		Name:         model.Name,
		LocationName: model.LocationName,
		Location:     PointResponse{Latitude: model.Location.Latitude, Longitude: model.Location.Longitude},
		Type:         string(model.Type),
		Capacity:     model.Capacity,
		Status:       string(model.Status),
		CreatedAt:    model.CreatedAt,
	}
}

func DistanceResultsToResponses(results []models.DistanceResult) []NearbyResourceResponse {
	responses := make([]NearbyResourceResponse, len(results))
	for i := range results {
		responses[i] = NearbyResourceResponse{
			Resource:       ModelToResourceResponse(&results[i].Resource),
			DistanceMeters: results[i].DistanceMeters,
		}
	}
	return responses
}

// NearbyQueryToModel преобразует параметры запроса в параметры поиска
func NearbyQueryToModel(q NearbyResourcesQuery) models.NearbyQuery {
	return models.NearbyQuery{
		Center:       toPoint(q.Lat, q.Lon),
		RadiusMeters: q.Radius,
		Status:       models.ResourceStatus(q.Status),
	}
}

func toPoint(lat, lon *float64) *models.Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &models.Point{Latitude: *lat, Longitude: *lon}
}
