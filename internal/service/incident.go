package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/audit"
	"github.com/shenikar/disaster_coordination_system/internal/config"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/fetcher"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/incident_mock.go -package=mocks github.com/shenikar/disaster_coordination_system/internal/service IncidentRepository,IncidentService

// IncidentRepository определяет контракт для работы с бд инцидентов.
// Каждая мутация сохраняется атомарно вместе со своей записью истории.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident, entry models.AuditEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	Update(ctx context.Context, id uuid.UUID, mutate func(current *models.Incident) (models.AuditEntry, error)) (*models.Incident, error)
	Delete(ctx context.Context, id uuid.UUID, build func(current *models.Incident) (models.AuditEntry, error)) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	GetAuditTrail(ctx context.Context, id uuid.UUID) (models.AuditTrail, error)
}

// IncidentService определяет контракт бизнес-логики управления инцидентами
type IncidentService interface {
	CreateIncident(ctx context.Context, userID string, incident *models.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	UpdateIncident(ctx context.Context, userID string, id uuid.UUID, patch models.IncidentPatch) (*models.Incident, error)
	DeleteIncident(ctx context.Context, userID string, id uuid.UUID) error
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	GetAuditTrail(ctx context.Context, id uuid.UUID) (models.AuditTrail, error)
}

type incidentService struct {
	repo     IncidentRepository
	cache    Cache
	geocoder fetcher.ExternalFetcher
	events   EventPublisher
	clock    clockwork.Clock
	logger   *logrus.Logger
	metrics  *observability.Metrics
	cfg      *config.Config

	// cacheMu и generation не дают чтению, начатому до мутации, вернуть в кэш старую копию
	cacheMu    sync.Mutex
	generation uint64
}

func NewIncidentService(
	repo IncidentRepository,
	cache Cache,
	geocoder fetcher.ExternalFetcher,
	events EventPublisher,
	clock clockwork.Clock,
	logger *logrus.Logger,
	metrics *observability.Metrics,
	cfg *config.Config,
) IncidentService {
	return &incidentService{
		repo:     repo,
		cache:    cache,
		geocoder: geocoder,
		events:   events,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// CreateIncident создает инцидент; если координаты не заданы, они ищутся по названию места
func (s *incidentService) CreateIncident(ctx context.Context, userID string, incident *models.Incident) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"title":   incident.Title,
		"user_id": userID,
	})
	log.Info("Attempting to create a new incident")

	incident.OwnerID = userID
	incident.Tags = models.NormalizeTags(incident.Tags)
	if incident.Location == nil && incident.LocationName != "" {
		incident.Location = s.geocode(ctx, log, incident.LocationName)
	}

	entry := audit.NewEntry(models.AuditActionCreate, userID, s.clock.Now(), audit.Diff(nil, incident))
	if err := s.repo.Create(ctx, incident, entry); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return fmt.Errorf("service: could not create incident: %w", err)
	}
	s.metrics.AuditEntries.WithLabelValues(string(models.AuditActionCreate)).Inc()

	publishIncidentEvent(s.events, incident.ID, eventbus.EventIncidentCreated, incident)
	log.WithField("incident_id", incident.ID).Info("Incident created successfully")
	return nil
}

// GetIncident получает инцидент по ID, сначала из кэша
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	key := incidentCacheKey(id)
	cached := &models.Incident{}
	if s.cache.GetInto(ctx, key, cached) {
		log.Info("Incident fetched from cache")
		return cached, nil
	}

	generation := s.cacheGeneration()
	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}
	if !s.fillCache(ctx, key, incident, generation) {
		log.Info("Incident changed during read, skipping cache fill")
	}

	log.Info("Incident fetched successfully")
	return incident, nil
}

// UpdateIncident применяет частичное обновление и добавляет запись update в историю
func (s *incidentService) UpdateIncident(ctx context.Context, userID string, id uuid.UUID, patch models.IncidentPatch) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateIncident",
		"incident_id": id,
		"user_id":     userID,
	})
	log.Info("Attempting to update incident")

	if patch.Empty() {
		return nil, fmt.Errorf("service: could not update incident: %w", models.ErrEmptyPatch)
	}
	if patch.Tags != nil {
		tags := models.NormalizeTags(*patch.Tags)
		patch.Tags = &tags
	}
	// геокодирование выполняется до блокировки записи в хранилище
	if patch.Location == nil && patch.LocationName != nil && *patch.LocationName != "" {
		patch.Location = s.geocode(ctx, log, *patch.LocationName)
	}

	var changes map[string]models.FieldChange
	updated, err := s.repo.Update(ctx, id, func(current *models.Incident) (models.AuditEntry, error) {
		before := current.Clone()
		applyPatch(current, patch)
		changes = audit.Diff(before, current)
		return audit.NewEntry(models.AuditActionUpdate, userID, s.clock.Now(), changes), nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to update incident in repository")
		return nil, fmt.Errorf("service: could not update incident: %w", err)
	}
	s.metrics.AuditEntries.WithLabelValues(string(models.AuditActionUpdate)).Inc()
	s.invalidate(ctx, id)

	publishIncidentEvent(s.events, id, eventbus.EventIncidentUpdated, map[string]any{
		"incident": updated,
		"changes":  changes,
	})
	log.WithField("changed_fields", len(changes)).Info("Incident updated successfully")
	return updated, nil
}

// DeleteIncident удаляет инцидент, сохраняя его историю
func (s *incidentService) DeleteIncident(ctx context.Context, userID string, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "DeleteIncident",
		"incident_id": id,
		"user_id":     userID,
	})
	log.Info("Attempting to delete incident")

	deleted, err := s.repo.Delete(ctx, id, func(current *models.Incident) (models.AuditEntry, error) {
		return audit.NewEntry(models.AuditActionDelete, userID, s.clock.Now(), audit.Diff(current, nil)), nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to delete incident in repository")
		return fmt.Errorf("service: could not delete incident: %w", err)
	}
	s.metrics.AuditEntries.WithLabelValues(string(models.AuditActionDelete)).Inc()
	s.invalidate(ctx, id)

	publishIncidentEvent(s.events, id, eventbus.EventIncidentDeleted, map[string]any{
		"id":    id,
		"title": deleted.Title,
	})
	log.Info("Incident deleted successfully")
	return nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if filter.Page > maxListPage {
		filter.Page = maxListPage
	}
	filter.Tag = strings.ToLower(strings.TrimSpace(filter.Tag))

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      filter.Page,
		"page_size": filter.PageSize,
		"tag":       filter.Tag,
		"owner_id":  filter.OwnerID,
	})
	log.Info("Listing incidents")

	incidents, err := s.repo.ListIncidents(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// GetAuditTrail возвращает полную историю изменений инцидента
func (s *incidentService) GetAuditTrail(ctx context.Context, id uuid.UUID) (models.AuditTrail, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetAuditTrail",
		"incident_id": id,
	})

	trail, err := s.repo.GetAuditTrail(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get audit trail from repository")
		return nil, fmt.Errorf("service: could not get audit trail: %w", err)
	}
	return trail, nil
}

// geocode ищет координаты места; неудача не мешает сохранить инцидент без координат
func (s *incidentService) geocode(ctx context.Context, log *logrus.Entry, locationName string) *models.Point {
	raw, err := s.geocoder.Fetch(ctx, fetcher.Params{"location": locationName})
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			log.WithField("location_name", locationName).Warn("Location not found, saving incident without coordinates")
		} else {
			log.WithError(err).Warn("Geocoding failed, saving incident without coordinates")
		}
		return nil
	}
	result, err := decode[models.GeocodeResult](raw)
	if err != nil {
		log.WithError(err).Warn("Failed to decode geocoding result")
		return nil
	}
	point := result.Point()
	if !point.Valid() {
		return nil
	}
	return &point
}

func (s *incidentService) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// fillCache кладет прочитанный инцидент в кэш, только если с момента чтения не было мутаций
func (s *incidentService) fillCache(ctx context.Context, key string, incident *models.Incident, generation uint64) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return false
	}
	s.cache.Set(ctx, key, incident, s.cfg.CacheTTL.Incident)
	return true
}

// invalidate сбрасывает кэш после фиксации мутации
func (s *incidentService) invalidate(ctx context.Context, id uuid.UUID) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.Delete(ctx, incidentCacheKey(id))
}

// maxListPage ограничивает номер страницы, чтобы смещение в хранилище не переполнялось
const maxListPage = 1_000_000

func applyPatch(incident *models.Incident, patch models.IncidentPatch) {
	if patch.Title != nil {
		incident.Title = *patch.Title
	}
	if patch.Description != nil {
		incident.Description = *patch.Description
	}
	if patch.LocationName != nil {
		incident.LocationName = *patch.LocationName
	}
	if patch.Location != nil {
		loc := *patch.Location
		incident.Location = &loc
	}
	if patch.Tags != nil {
		incident.Tags = append([]string{}, (*patch.Tags)...)
	}
}
