package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/config"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/geo"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/resource_mock.go -package=mocks github.com/shenikar/disaster_coordination_system/internal/service ResourceRepository,ResourceService

// ResourceRepository определяет контракт хранилища ресурсов помощи
type ResourceRepository interface {
	Create(ctx context.Context, resource *models.Resource) error
	CreateBatch(ctx context.Context, resources []*models.Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error)
	FindWithin(ctx context.Context, center models.Point, radiusMeters float64, status models.ResourceStatus, disasterID uuid.UUID) ([]models.DistanceResult, error)
}

// ResourceService определяет контракт работы с ресурсами помощи
type ResourceService interface {
	CreateResource(ctx context.Context, resource *models.Resource) error
	FindNearby(ctx context.Context, disasterID uuid.UUID, q models.NearbyQuery) ([]models.DistanceResult, error)
}

type resourceService struct {
	repo      ResourceRepository
	incidents IncidentRepository
	index     *geo.Index
	events    EventPublisher
	logger    *logrus.Logger
	cfg       *config.Config
}

func NewResourceService(
	repo ResourceRepository,
	incidents IncidentRepository,
	events EventPublisher,
	logger *logrus.Logger,
	metrics *observability.Metrics,
	cfg *config.Config,
) ResourceService {
	return &resourceService{
		repo:      repo,
		incidents: incidents,
		index:     geo.NewIndex(repo, logger, metrics),
		events:    events,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateResource добавляет ресурс к существующему инциденту
func (s *resourceService) CreateResource(ctx context.Context, resource *models.Resource) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "resource",
		"method":      "CreateResource",
		"incident_id": resource.DisasterID,
		"name":        resource.Name,
	})
	log.Info("Attempting to create a new resource")

	if _, err := s.incidents.GetByID(ctx, resource.DisasterID); err != nil {
		log.WithError(err).Warn("Attempted to add a resource to a non-existent incident")
		return fmt.Errorf("service: could not create resource: %w", err)
	}
	if resource.Status == "" {
		resource.Status = models.ResourceStatusActive
	}

	if err := s.repo.Create(ctx, resource); err != nil {
		log.WithError(err).Error("Failed to create resource in repository")
		return fmt.Errorf("service: could not create resource: %w", err)
	}

	publishIncidentEvent(s.events, resource.DisasterID, eventbus.EventResourcesUpdated, map[string]any{
		"action":    "created",
		"resources": []*models.Resource{resource},
	})
	log.WithField("resource_id", resource.ID).Info("Resource created successfully")
	return nil
}

// FindNearby ищет ресурсы инцидента рядом с точкой; без точки используется место инцидента
func (s *resourceService) FindNearby(ctx context.Context, disasterID uuid.UUID, q models.NearbyQuery) ([]models.DistanceResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "resource",
		"method":      "FindNearby",
		"incident_id": disasterID,
	})
	log.Info("Searching nearby resources")

	incident, err := s.incidents.GetByID(ctx, disasterID)
	if err != nil {
		log.WithError(err).Warn("Attempted to search resources of a non-existent incident")
		return nil, fmt.Errorf("service: could not find nearby resources: %w", err)
	}

	query := geo.Query{
		Center:       q.Center,
		RadiusMeters: q.RadiusMeters,
		Status:       q.Status,
		DisasterID:   disasterID,
	}
	if query.Center == nil {
		query.Center = incident.Location
	}
	if query.RadiusMeters == 0 {
		query.RadiusMeters = s.cfg.NearbyDefaultRadiusMeters
	}

	results, err := s.index.FindNearby(ctx, query)
	if err != nil {
		log.WithError(err).Warn("Nearby resource search failed")
		return nil, fmt.Errorf("service: could not find nearby resources: %w", err)
	}

	if len(results) == 0 && s.cfg.SeedResourcesOnEmpty {
		if err := s.seed(ctx, disasterID, *query.Center, query.RadiusMeters); err != nil {
			log.WithError(err).Warn("Failed to seed resources")
			return results, nil
		}
		results, err = s.index.FindNearby(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("service: could not find nearby resources: %w", err)
		}
	}

	log.WithField("count", len(results)).Info("Nearby resources found")
	return results, nil
}

// seedLayout - типовой набор пунктов помощи вокруг центра: азимут и доля радиуса
var seedLayout = []struct {
	name     string
	kind     models.ResourceType
	bearing  float64
	fraction float64
	capacity int
}{
	{"Emergency Shelter", models.ResourceTypeShelter, 0, 0.25, 200},
	{"Field Hospital", models.ResourceTypeMedical, 120, 0.5, 50},
	{"Food Distribution Point", models.ResourceTypeFood, 240, 0.75, 500},
}

func (s *resourceService) seed(ctx context.Context, disasterID uuid.UUID, center models.Point, radius float64) error {
	resources := make([]*models.Resource, 0, len(seedLayout))
	for _, item := range seedLayout {
		capacity := item.capacity
		resources = append(resources, &models.Resource{
			DisasterID:   disasterID,
			Name:         item.name,
			LocationName: fmt.Sprintf("%.0fm from incident", radius*item.fraction),
			Location:     geo.Offset(center, item.bearing, radius*item.fraction),
			Type:         item.kind,
			Capacity:     &capacity,
			Status:       models.ResourceStatusActive,
		})
	}
	if err := s.repo.CreateBatch(ctx, resources); err != nil {
		return err
	}

	publishIncidentEvent(s.events, disasterID, eventbus.EventResourcesUpdated, map[string]any{
		"action":    "seeded",
		"resources": resources,
	})
	s.logger.WithFields(logrus.Fields{
		"service":     "resource",
		"incident_id": disasterID,
		"count":       len(resources),
	}).Info("Seeded default resources around incident")
	return nil
}
