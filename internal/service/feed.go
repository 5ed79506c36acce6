package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/fetcher"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -destination=mocks/feed_mock.go -package=mocks github.com/shenikar/disaster_coordination_system/internal/service FeedService

// ErrFetchFailed - внешний источник недоступен или вернул некорректный ответ
var ErrFetchFailed = errors.New("external source failed")

// FeedService определяет контракт получения данных из внешних источников
type FeedService interface {
	SocialReports(ctx context.Context, incidentID uuid.UUID, keywords []string) ([]models.SocialReport, error)
	OfficialUpdates(ctx context.Context, incidentID uuid.UUID) ([]models.OfficialUpdate, error)
	SituationReport(ctx context.Context, incidentID uuid.UUID) (*models.SituationReport, error)
	Geocode(ctx context.Context, locationName string) (*models.GeocodeResult, error)
}

// Fetchers - внешние источники данных, уже обёрнутые кэшем
type Fetchers struct {
	Social   fetcher.ExternalFetcher
	Official fetcher.ExternalFetcher
	Geocoder fetcher.ExternalFetcher
}

type feedService struct {
	incidents IncidentRepository
	fetchers  Fetchers
	events    EventPublisher
	logger    *logrus.Logger
}

func NewFeedService(incidents IncidentRepository, fetchers Fetchers, events EventPublisher, logger *logrus.Logger) FeedService {
	return &feedService{
		incidents: incidents,
		fetchers:  fetchers,
		events:    events,
		logger:    logger,
	}
}

// SocialReports возвращает сообщения соцсетей по ключевым словам; по умолчанию - теги инцидента
func (s *feedService) SocialReports(ctx context.Context, incidentID uuid.UUID, keywords []string) ([]models.SocialReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "feed",
		"method":      "SocialReports",
		"incident_id": incidentID,
	})

	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warn("Attempted to fetch reports for a non-existent incident")
		return nil, fmt.Errorf("service: could not fetch social reports: %w", err)
	}

	keywords = models.NormalizeTags(keywords)
	if len(keywords) == 0 {
		keywords = incident.Tags
	}

	raw, cached, err := fetcher.FetchWithStatus(ctx, s.fetchers.Social, fetcher.Params{
		"incident_id": incidentID.String(),
		"keywords":    strings.Join(keywords, ","),
	})
	if err != nil {
		log.WithError(err).Error("Social media fetch failed")
		return nil, fmt.Errorf("service: could not fetch social reports: %w: %v", ErrFetchFailed, err)
	}
	reports, err := decode[[]models.SocialReport](raw)
	if err != nil {
		log.WithError(err).Error("Failed to decode social media reports")
		return nil, fmt.Errorf("service: could not decode social reports: %w: %v", ErrFetchFailed, err)
	}

	// повторно из кэша данные не анонсируются
	if !cached {
		publishIncidentEvent(s.events, incidentID, eventbus.EventSocialReportReceived, map[string]any{
			"incident_id": incidentID,
			"reports":     reports,
		})
	}
	log.WithFields(logrus.Fields{"count": len(reports), "cached": cached}).Info("Social media reports fetched")
	return reports, nil
}

// OfficialUpdates возвращает сводки официальных служб по месту инцидента
func (s *feedService) OfficialUpdates(ctx context.Context, incidentID uuid.UUID) ([]models.OfficialUpdate, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "feed",
		"method":      "OfficialUpdates",
		"incident_id": incidentID,
	})

	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warn("Attempted to fetch updates for a non-existent incident")
		return nil, fmt.Errorf("service: could not fetch official updates: %w", err)
	}

	raw, cached, err := fetcher.FetchWithStatus(ctx, s.fetchers.Official, fetcher.Params{"location": incident.LocationName})
	if err != nil {
		log.WithError(err).Error("Official updates fetch failed")
		return nil, fmt.Errorf("service: could not fetch official updates: %w: %v", ErrFetchFailed, err)
	}
	updates, err := decode[[]models.OfficialUpdate](raw)
	if err != nil {
		log.WithError(err).Error("Failed to decode official updates")
		return nil, fmt.Errorf("service: could not decode official updates: %w: %v", ErrFetchFailed, err)
	}

	if !cached {
		publishIncidentEvent(s.events, incidentID, eventbus.EventOfficialUpdateReceived, map[string]any{
			"incident_id": incidentID,
			"updates":     updates,
		})
	}
	log.WithFields(logrus.Fields{"count": len(updates), "cached": cached}).Info("Official updates fetched")
	return updates, nil
}

// SituationReport параллельно собирает сообщения соцсетей и официальные сводки
func (s *feedService) SituationReport(ctx context.Context, incidentID uuid.UUID) (*models.SituationReport, error) {
	report := &models.SituationReport{IncidentID: incidentID.String()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reports, err := s.SocialReports(gctx, incidentID, nil)
		report.SocialReports = reports
		return err
	})
	g.Go(func() error {
		updates, err := s.OfficialUpdates(gctx, incidentID)
		report.OfficialUpdates = updates
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// Geocode переводит название места в координаты
func (s *feedService) Geocode(ctx context.Context, locationName string) (*models.GeocodeResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "feed",
		"method":   "Geocode",
		"location": locationName,
	})

	raw, err := s.fetchers.Geocoder.Fetch(ctx, fetcher.Params{"location": locationName})
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			log.Info("Location not found")
			return nil, fmt.Errorf("service: could not geocode %q: %w", locationName, models.ErrLocationNotFound)
		}
		log.WithError(err).Error("Geocoding failed")
		return nil, fmt.Errorf("service: could not geocode %q: %w: %v", locationName, ErrFetchFailed, err)
	}
	result, err := decode[models.GeocodeResult](raw)
	if err != nil {
		log.WithError(err).Error("Failed to decode geocoding result")
		return nil, fmt.Errorf("service: could not decode geocoding result: %w: %v", ErrFetchFailed, err)
	}
	return &result, nil
}
