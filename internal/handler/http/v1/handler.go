package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/config"
	"github.com/shenikar/disaster_coordination_system/internal/geo"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	userIDHeader  = "X-User-ID"
	anonymousUser = "anonymous"
)

type Handler struct {
	incidentService service.IncidentService
	resourceService service.ResourceService
	feedService     service.FeedService
	subscriber      EventSubscriber
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(
	incidentService service.IncidentService,
	resourceService service.ResourceService,
	feedService service.FeedService,
	subscriber EventSubscriber,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		incidentService: incidentService,
		resourceService: resourceService,
		feedService:     feedService,
		subscriber:      subscriber,
		logger:          logger,
		validate:        newValidator(),
		cfg:             cfg,
	}
}

// @Summary Create a new incident
// @Description Create a new incident. Coordinates are geocoded from location_name when omitted.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param X-User-ID header string false "Acting user"
// @Param incident body CreateIncidentRequest true "Incident creation request"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	var input CreateIncidentRequest
	log := h.logger.WithField("method", "createIncident")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := CreateRequestToIncidentModel(input)
	if err := h.incidentService.CreateIncident(c.Request.Context(), userID(c), model); err != nil {
		h.respondError(c, log, err, "Failed to create incident in service")
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(model))
}

// @Summary Get a list of incidents
// @Description Get a paginated list of incidents, newest first
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param tag query string false "Filter by tag"
// @Param owner_id query string false "Filter by owner"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), models.IncidentFilter{
		Tag:      c.Query("tag"),
		OwnerID:  c.Query("owner_id"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.respondError(c, log, err, "Failed to list incidents from service")
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident with its audit trail
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to get incident from service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Update an incident
// @Description Partially update an incident; every change is recorded in the audit trail
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param X-User-ID header string false "Acting user"
// @Param id path string true "Incident ID"
// @Param incident body UpdateIncidentRequest true "Fields to change"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [put]
func (h *Handler) updateIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateIncident").WithField("id", id)

	var input UpdateIncidentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.incidentService.UpdateIncident(c.Request.Context(), userID(c), id, UpdateRequestToPatch(input))
	if err != nil {
		h.respondError(c, log, err, "Failed to update incident in service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(updated))
}

// @Summary Delete an incident
// @Description Delete an incident. Its audit trail stays readable.
// @Tags Incidents
// @Security ApiKeyAuth
// @Param X-User-ID header string false "Acting user"
// @Param id path string true "Incident ID"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [delete]
func (h *Handler) deleteIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "deleteIncident").WithField("id", id)

	if err := h.incidentService.DeleteIncident(c.Request.Context(), userID(c), id); err != nil {
		h.respondError(c, log, err, "Failed to delete incident in service")
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Get incident audit trail
// @Description Get the ordered history of changes, including for deleted incidents
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {array} AuditEntryResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/audit [get]
func (h *Handler) getAuditTrail(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getAuditTrail").WithField("id", id)

	trail, err := h.incidentService.GetAuditTrail(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to get audit trail from service")
		return
	}
	responses := ModelsToAuditResponses(trail)
	if responses == nil {
		responses = []AuditEntryResponse{}
	}
	c.JSON(http.StatusOK, responses)
}

// @Summary Add a relief resource
// @Description Register a shelter, food point or other resource for an incident
// @Tags Resources
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param resource body CreateResourceRequest true "Resource"
// @Success 201 {object} ResourceResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/resources [post]
func (h *Handler) createResource(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "createResource").WithField("incident_id", id)

	var input CreateResourceRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resource := CreateRequestToResourceModel(input)
	resource.DisasterID = id
	if err := h.resourceService.CreateResource(c.Request.Context(), resource); err != nil {
		h.respondError(c, log, err, "Failed to create resource in service")
		return
	}
	c.JSON(http.StatusCreated, ModelToResourceResponse(resource))
}

// @Summary Find nearby resources
// @Description Find incident resources within radius meters, nearest first. Defaults to the incident location.
// @Tags Resources
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param lat query number false "Center latitude"
// @Param lon query number false "Center longitude"
// @Param radius query number false "Radius in meters"
// @Param status query string false "Resource status" Enums(active, inactive, full)
// @Success 200 {array} NearbyResourceResponse
// @Failure 400 {object} map[string]string "Invalid query"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 502 {object} map[string]string "Storage failure"
// @Router /incidents/{id}/resources/nearby [get]
func (h *Handler) findNearbyResources(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "findNearbyResources").WithField("incident_id", id)

	var query NearbyResourcesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		log.WithError(err).Warn("Failed to bind query")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}
	if err := h.validate.Struct(query); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.resourceService.FindNearby(c.Request.Context(), id, NearbyQueryToModel(query))
	if err != nil {
		h.respondError(c, log, err, "Failed to find nearby resources")
		return
	}
	c.JSON(http.StatusOK, DistanceResultsToResponses(results))
}

// @Summary Social media reports
// @Description Reports mentioning the keywords; defaults to the incident tags
// @Tags Feeds
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param keywords query string false "Comma separated keywords"
// @Success 200 {array} models.SocialReport
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 502 {object} map[string]string "External source failed"
// @Router /incidents/{id}/social-media [get]
func (h *Handler) getSocialReports(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getSocialReports").WithField("incident_id", id)

	var keywords []string
	if raw := c.Query("keywords"); raw != "" {
		keywords = strings.Split(raw, ",")
	}

	reports, err := h.feedService.SocialReports(c.Request.Context(), id, keywords)
	if err != nil {
		h.respondError(c, log, err, "Failed to fetch social media reports")
		return
	}
	c.JSON(http.StatusOK, reports)
}

// @Summary Official updates
// @Description Government and relief organisation updates for the incident location
// @Tags Feeds
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {array} models.OfficialUpdate
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 502 {object} map[string]string "External source failed"
// @Router /incidents/{id}/official-updates [get]
func (h *Handler) getOfficialUpdates(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getOfficialUpdates").WithField("incident_id", id)

	updates, err := h.feedService.OfficialUpdates(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to fetch official updates")
		return
	}
	c.JSON(http.StatusOK, updates)
}

// @Summary Situation report
// @Description Social reports and official updates for the incident, fetched concurrently
// @Tags Feeds
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} models.SituationReport
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 502 {object} map[string]string "External source failed"
// @Router /incidents/{id}/situation [get]
func (h *Handler) getSituationReport(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getSituationReport").WithField("incident_id", id)

	report, err := h.feedService.SituationReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to build situation report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Geocode a location name
// @Tags Feeds
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body GeocodeRequest true "Location name"
// @Success 200 {object} models.GeocodeResult
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 404 {object} map[string]string "Location not found"
// @Failure 502 {object} map[string]string "External source failed"
// @Router /geocode [post]
func (h *Handler) geocode(c *gin.Context) {
	log := h.logger.WithField("method", "geocode")

	var input GeocodeRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.feedService.Geocode(c.Request.Context(), input.LocationName)
	if err != nil {
		h.respondError(c, log, err, "Failed to geocode location")
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Health check
// @Description Check if the service is up and running.
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError отображает доменную ошибку в HTTP-статус
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrIncidentNotFound):
		log.WithError(err).Warn(msg)
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
	case errors.Is(err, models.ErrResourceNotFound):
		log.WithError(err).Warn(msg)
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, models.ErrLocationNotFound):
		log.WithError(err).Warn(msg)
		c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
	case errors.Is(err, models.ErrEmptyPatch), errors.Is(err, geo.ErrInvalidQuery):
		log.WithError(err).Warn(msg)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, geo.ErrBackendFailure), errors.Is(err, service.ErrFetchFailed):
		log.WithError(err).Error(msg)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream failure"})
	case errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Error(msg)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		log.WithError(err).Error(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseIncidentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return uuid.Nil, false
	}
	return id, true
}

func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(userIDHeader)); id != "" {
		return id
	}
	return anonymousUser
}
