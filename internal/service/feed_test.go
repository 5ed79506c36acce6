package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/cache"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/fetcher"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/shenikar/disaster_coordination_system/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type feedDeps struct {
	incidents *mocks.MockIncidentRepository
	social    *mocks.MockExternalFetcher
	official  *mocks.MockExternalFetcher
	geocoder  *mocks.MockExternalFetcher
	events    *mocks.MockEventPublisher
}

func newTestFeedService(t *testing.T) (*feedService, feedDeps) {
	ctrl := gomock.NewController(t)
	deps := feedDeps{
		incidents: mocks.NewMockIncidentRepository(ctrl),
		social:    mocks.NewMockExternalFetcher(ctrl),
		official:  mocks.NewMockExternalFetcher(ctrl),
		geocoder:  mocks.NewMockExternalFetcher(ctrl),
		events:    mocks.NewMockEventPublisher(ctrl),
	}
	svc := NewFeedService(deps.incidents, Fetchers{
		Social:   deps.social,
		Official: deps.official,
		Geocoder: deps.geocoder,
	}, deps.events, testLogger())
	return svc.(*feedService), deps
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestSocialReports_DefaultsToIncidentTags(t *testing.T) {
	// Подготовка
	service, deps := newTestFeedService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	reports := []models.SocialReport{{ID: "1", User: "citizen1", Content: "#flood need water", Priority: "high"}}

	// Ожидания
	deps.incidents.EXPECT().
		GetByID(ctx, incidentID).
		Return(&models.Incident{ID: incidentID, Tags: []string{"flood", "urgent"}}, nil).
		Times(1)
	deps.social.EXPECT().
		Fetch(ctx, fetcher.Params{"incident_id": incidentID.String(), "keywords": "flood,urgent"}).
		Return(mustJSON(t, reports), nil).
		Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventSocialReportReceived)

	// Действие
	got, err := service.SocialReports(ctx, incidentID, nil)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, reports, got)
}

func TestSocialReports_ExplicitKeywordsAreNormalized(t *testing.T) {
	// Подготовка
	service, deps := newTestFeedService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания: одинаковый набор слов даёт одинаковый ключ кеша
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID}, nil).Times(1)
	deps.social.EXPECT().
		Fetch(ctx, fetcher.Params{"incident_id": incidentID.String(), "keywords": "relief,shelter"}).
		Return(json.RawMessage(`[]`), nil).
		Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventSocialReportReceived)

	// Действие
	got, err := service.SocialReports(ctx, incidentID, []string{"Shelter", "relief", "shelter"})

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSocialReports_FetchFailure(t *testing.T) {
	// Подготовка
	service, deps := newTestFeedService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания: событие не публикуется
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID}, nil).Times(1)
	deps.social.EXPECT().Fetch(ctx, gomock.Any()).Return(nil, errors.New("timeout")).Times(1)

	// Действие
	_, err := service.SocialReports(ctx, incidentID, nil)

	// Проверки
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestSocialReports_CacheHitIsNotAnnounced(t *testing.T) {
	// Подготовка
	ctrl := gomock.NewController(t)
	logger := testLogger()
	metrics := observability.NewMetricsForTesting()
	store := cache.NewStore(cache.NewMemoryBackend(), clockwork.NewFakeClock(), logger, metrics)
	inner := mocks.NewMockExternalFetcher(ctrl)
	incidents := mocks.NewMockIncidentRepository(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	social := fetcher.NewCached("social", inner, store, 5*time.Minute, logger, metrics)
	service := NewFeedService(incidents, Fetchers{Social: social}, events, logger)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания: источник и публикация только при первом запросе
	incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Tags: []string{"flood"}}, nil).Times(2)
	inner.EXPECT().Fetch(ctx, gomock.Any()).Return(json.RawMessage(`[{"id":"1"}]`), nil).Times(1)
	expectIncidentEvent(events, incidentID, eventbus.EventSocialReportReceived)

	// Действие
	first, err := service.SocialReports(ctx, incidentID, nil)
	require.NoError(t, err)
	second, err := service.SocialReports(ctx, incidentID, nil)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOfficialUpdates_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestFeedService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	updates := []models.OfficialUpdate{{Source: "FEMA", Title: "Shelters open"}}

	// Ожидания
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, LocationName: "Metropolis"}, nil).Times(1)
	deps.official.EXPECT().Fetch(ctx, fetcher.Params{"location": "Metropolis"}).Return(mustJSON(t, updates), nil).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventOfficialUpdateReceived)

	// Действие
	got, err := service.OfficialUpdates(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, updates, got)
}

func TestSituationReport_CombinesSources(t *testing.T) {
	// Подготовка
	service, deps := newTestFeedService(t)
	incidentID := uuid.New()

	// Ожидания
	deps.incidents.EXPECT().GetByID(gomock.Any(), incidentID).Return(&models.Incident{ID: incidentID, Tags: []string{"flood"}}, nil).Times(2)
	deps.social.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(json.RawMessage(`[{"id":"1"}]`), nil).Times(1)
	deps.official.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(json.RawMessage(`[{"source":"FEMA"}]`), nil).Times(1)
	deps.events.EXPECT().Publish(gomock.Any(), gomock.Any(), incidentID.String(), gomock.Any()).Times(4)

	// Действие
	report, err := service.SituationReport(context.Background(), incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, incidentID.String(), report.IncidentID)
	assert.Len(t, report.SocialReports, 1)
	assert.Len(t, report.OfficialUpdates, 1)
}

func TestGeocode_NotFound(t *testing.T) {
	// Подготовка
	service, deps := newTestFeedService(t)
	ctx := context.Background()

	// Ожидания
	deps.geocoder.EXPECT().
		Fetch(ctx, fetcher.Params{"location": "Atlantis"}).
		Return(nil, fmt.Errorf("geocode: %w", fetcher.ErrNotFound)).
		Times(1)

	// Действие
	_, err := service.Geocode(ctx, "Atlantis")

	// Проверки
	assert.ErrorIs(t, err, models.ErrLocationNotFound)
}

// Геокодирование "Metropolis" кешируется на 24 часа: через 23 часа ответ берётся из кеша,
// через 25 часов выполняется новый запрос.
func TestGeocode_CachedForADay(t *testing.T) {
	// Подготовка
	ctrl := gomock.NewController(t)
	logger := testLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClock()
	store := cache.NewStore(cache.NewMemoryBackend(), clock, logger, metrics)
	inner := mocks.NewMockExternalFetcher(ctrl)
	geocoder := fetcher.NewCached("geocode", inner, store, 24*time.Hour, logger, metrics)
	service := NewFeedService(mocks.NewMockIncidentRepository(ctrl), Fetchers{Geocoder: geocoder}, mocks.NewMockEventPublisher(ctrl), logger)
	ctx := context.Background()
	metropolisResult := models.GeocodeResult{Query: "Metropolis", Latitude: 40.7128, Longitude: -74.0060}

	// Ожидания: два обращения к источнику - в T0 и после истечения срока
	inner.EXPECT().
		Fetch(ctx, fetcher.Params{"location": "Metropolis"}).
		Return(mustJSON(t, metropolisResult), nil).
		Times(2)

	// Действие и проверки
	first, err := service.Geocode(ctx, "Metropolis")
	require.NoError(t, err)
	assert.Equal(t, metropolisResult, *first)

	clock.Advance(23 * time.Hour)
	cached, err := service.Geocode(ctx, "Metropolis")
	require.NoError(t, err)
	assert.Equal(t, metropolisResult, *cached)

	clock.Advance(2 * time.Hour)
	refreshed, err := service.Geocode(ctx, "Metropolis")
	require.NoError(t, err)
	assert.Equal(t, metropolisResult, *refreshed)
}
