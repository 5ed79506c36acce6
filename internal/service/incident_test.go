package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/audit"
	"github.com/shenikar/disaster_coordination_system/internal/cache"
	"github.com/shenikar/disaster_coordination_system/internal/config"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/fetcher"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/shenikar/disaster_coordination_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type incidentDeps struct {
	repo     *mocks.MockIncidentRepository
	geocoder *mocks.MockExternalFetcher
	events   *mocks.MockEventPublisher
	cache    *cache.Store
	clock    *clockwork.FakeClock
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		CacheTTL: config.CacheTTLs{
			Geocode:  24 * time.Hour,
			Incident: 5 * time.Minute,
			Social:   5 * time.Minute,
			Official: 30 * time.Minute,
		},
		NearbyDefaultRadiusMeters: 10000,
	}
}

// newTestIncidentService - вспомогательная функция для создания инстанса сервиса с моками.
func newTestIncidentService(t *testing.T) (*incidentService, incidentDeps) {
	ctrl := gomock.NewController(t)
	logger := testLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	deps := incidentDeps{
		repo:     mocks.NewMockIncidentRepository(ctrl),
		geocoder: mocks.NewMockExternalFetcher(ctrl),
		events:   mocks.NewMockEventPublisher(ctrl),
		cache:    cache.NewStore(cache.NewMemoryBackend(), clock, logger, metrics),
		clock:    clock,
	}

	svc := NewIncidentService(deps.repo, deps.cache, deps.geocoder, deps.events, clock, logger, metrics, testConfig())
	return svc.(*incidentService), deps
}

// expectIncidentEvent ожидает публикацию события в тему инцидента и в глобальную тему
func expectIncidentEvent(events *mocks.MockEventPublisher, id uuid.UUID, eventType eventbus.EventType) {
	events.EXPECT().Publish(eventbus.IncidentTopic(id.String()), eventType, id.String(), gomock.Any()).Times(1)
	events.EXPECT().Publish(eventbus.GlobalTopic, eventType, id.String(), gomock.Any()).Times(1)
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:    incidentID,
		Title: "Тестовый инцидент из кеша",
		Tags:  []string{"flood"},
	}
	deps.cache.Set(ctx, incidentCacheKey(incidentID), expectedIncident, time.Minute)

	// Ожидания: репозиторий не вызывается

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident.Title, incident.Title)
	assert.Equal(t, expectedIncident.Tags, incident.Tags)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:    incidentID,
		Title: "Тестовый инцидент из БД",
	}

	// Ожидания: одно обращение к БД, второй запрос обслуживает кеш
	deps.repo.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)
	require.NoError(t, err)
	again, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
	assert.Equal(t, expectedIncident.Title, again.Title)
}

func TestGetIncident_CacheExpires(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания: после истечения срока кеша запрос снова идёт в БД
	deps.repo.EXPECT().
		GetByID(ctx, incidentID).
		Return(&models.Incident{ID: incidentID, Title: "Пожар"}, nil).
		Times(2)

	// Действие
	_, err := service.GetIncident(ctx, incidentID)
	require.NoError(t, err)
	deps.clock.Advance(5 * time.Minute)
	_, err = service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
}

func TestGetIncident_NotFound(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания
	deps.repo.EXPECT().
		GetByID(ctx, incidentID).
		Return(nil, fmt.Errorf("incident with id %s: %w", incidentID, models.ErrIncidentNotFound)).
		Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
	assert.ErrorContains(t, err, "could not get incident")
}

func TestCreateIncident_GeocodesLocationName(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	incidentToCreate := &models.Incident{
		Title:        "NYC Flood",
		LocationName: "Manhattan, NYC",
		Tags:         []string{"Flood", " urgent", "flood"},
	}
	geocoded, _ := json.Marshal(models.GeocodeResult{Query: "Manhattan, NYC", Latitude: 40.7831, Longitude: -73.9712})

	// Ожидания
	// 1. Геокодирование названия места
	deps.geocoder.EXPECT().
		Fetch(ctx, fetcher.Params{"location": "Manhattan, NYC"}).
		Return(json.RawMessage(geocoded), nil).
		Times(1)

	// 2. Сохранение вместе с записью create
	deps.repo.EXPECT().
		Create(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, inc *models.Incident, entry models.AuditEntry) error {
			assert.Equal(t, models.AuditActionCreate, entry.Action)
			assert.Equal(t, "netrunnerX", entry.UserID)
			assert.True(t, deps.clock.Now().Equal(entry.Timestamp))
			assert.Contains(t, entry.Changes, audit.FieldTitle)
			// Симулируем, что БД присвоила ID
			inc.ID = incidentID
			entry.Seq = 1
			inc.AuditTrail = models.AuditTrail{entry}
			return nil
		}).Times(1)

	// 3. Публикация incident_created
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentCreated)

	// Действие
	err := service.CreateIncident(ctx, "netrunnerX", incidentToCreate)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, incidentID, incidentToCreate.ID)
	assert.Equal(t, "netrunnerX", incidentToCreate.OwnerID)
	assert.Equal(t, []string{"flood", "urgent"}, incidentToCreate.Tags)
	require.NotNil(t, incidentToCreate.Location)
	assert.Equal(t, 40.7831, incidentToCreate.Location.Latitude)
	assert.Len(t, incidentToCreate.AuditTrail, 1)
}

func TestCreateIncident_GeocodingFailureIsNotFatal(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	incidentToCreate := &models.Incident{Title: "Unknown place", LocationName: "Atlantis"}

	// Ожидания
	deps.geocoder.EXPECT().
		Fetch(ctx, gomock.Any()).
		Return(nil, fmt.Errorf("geocode %q: %w", "Atlantis", fetcher.ErrNotFound)).
		Times(1)
	deps.repo.EXPECT().
		Create(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, inc *models.Incident, entry models.AuditEntry) error {
			inc.ID = incidentID
			return nil
		}).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentCreated)

	// Действие
	err := service.CreateIncident(ctx, "citizen1", incidentToCreate)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, incidentToCreate.Location)
}

func TestCreateIncident_KnownLocationSkipsGeocoding(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	incidentToCreate := &models.Incident{
		Title:        "Earthquake",
		LocationName: "Brooklyn",
		Location:     &models.Point{Latitude: 40.6782, Longitude: -73.9442},
	}

	// Ожидания: геокодер не вызывается
	deps.repo.EXPECT().
		Create(ctx, incidentToCreate, gomock.Any()).
		DoAndReturn(func(ctx context.Context, inc *models.Incident, entry models.AuditEntry) error {
			inc.ID = incidentID
			return nil
		}).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentCreated)

	// Действие
	err := service.CreateIncident(ctx, "citizen1", incidentToCreate)

	// Проверки
	require.NoError(t, err)
}

func TestCreateIncident_RepositoryFailure(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	// Ожидания: при ошибке события не публикуются
	deps.repo.EXPECT().
		Create(ctx, gomock.Any(), gomock.Any()).
		Return(errors.New("failed to append audit entry")).
		Times(1)

	// Действие
	err := service.CreateIncident(ctx, "citizen1", &models.Incident{Title: "Fire"})

	// Проверки
	require.Error(t, err)
	assert.ErrorContains(t, err, "could not create incident")
}

func TestUpdateIncident_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	newTitle := "Обновленное имя"
	existingIncident := &models.Incident{
		ID:         incidentID,
		Title:      "Старое имя",
		Tags:       []string{"flood"},
		AuditTrail: models.AuditTrail{{Seq: 1, Action: models.AuditActionCreate}},
	}
	deps.cache.Set(ctx, incidentCacheKey(incidentID), existingIncident, time.Minute)

	// Ожидания
	deps.repo.EXPECT().
		Update(ctx, incidentID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, id uuid.UUID, mutate func(*models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
			current := existingIncident.Clone()
			entry, err := mutate(current)
			require.NoError(t, err)

			assert.Equal(t, models.AuditActionUpdate, entry.Action)
			assert.Equal(t, "reliefAdmin", entry.UserID)
			assert.Equal(t, models.FieldChange{From: "Старое имя", To: newTitle}, entry.Changes[audit.FieldTitle])
			assert.NotContains(t, entry.Changes, audit.FieldTags)

			entry.Seq = 2
			current.AuditTrail = append(current.AuditTrail, entry)
			return current, nil
		}).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentUpdated)

	// Действие
	updated, err := service.UpdateIncident(ctx, "reliefAdmin", incidentID, models.IncidentPatch{Title: &newTitle})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.Len(t, updated.AuditTrail, 2)
	_, cached := deps.cache.Get(ctx, incidentCacheKey(incidentID))
	assert.False(t, cached, "incident cache must be invalidated")
}

func TestUpdateIncident_RegeocodesNewLocationName(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	newPlace := "Brooklyn"
	geocoded, _ := json.Marshal(models.GeocodeResult{Query: newPlace, Latitude: 40.6782, Longitude: -73.9442})

	// Ожидания: геокодер вызывается до обращения к хранилищу
	gomock.InOrder(
		deps.geocoder.EXPECT().
			Fetch(ctx, fetcher.Params{"location": newPlace}).
			Return(json.RawMessage(geocoded), nil),
		deps.repo.EXPECT().
			Update(ctx, incidentID, gomock.Any()).
			DoAndReturn(func(ctx context.Context, id uuid.UUID, mutate func(*models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
				current := &models.Incident{ID: id, LocationName: "Manhattan", Location: &models.Point{Latitude: 40.7831, Longitude: -73.9712}}
				entry, err := mutate(current)
				require.NoError(t, err)
				assert.Contains(t, entry.Changes, audit.FieldLocation)
				assert.Contains(t, entry.Changes, audit.FieldLocationName)
				return current, nil
			}),
	)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentUpdated)

	// Действие
	updated, err := service.UpdateIncident(ctx, "reliefAdmin", incidentID, models.IncidentPatch{LocationName: &newPlace})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, &models.Point{Latitude: 40.6782, Longitude: -73.9442}, updated.Location)
}

func TestUpdateIncident_EmptyPatch(t *testing.T) {
	// Подготовка
	service, _ := newTestIncidentService(t)

	// Действие
	_, err := service.UpdateIncident(context.Background(), "reliefAdmin", uuid.New(), models.IncidentPatch{})

	// Проверки
	assert.ErrorIs(t, err, models.ErrEmptyPatch)
}

func TestUpdateIncident_NotFound(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	title := "x"

	// Ожидания
	deps.repo.EXPECT().
		Update(ctx, incidentID, gomock.Any()).
		Return(nil, fmt.Errorf("incident with id %s: %w", incidentID, models.ErrIncidentNotFound)).
		Times(1)

	// Действие
	_, err := service.UpdateIncident(ctx, "reliefAdmin", incidentID, models.IncidentPatch{Title: &title})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
	assert.ErrorContains(t, err, "could not update incident")
}

func TestDeleteIncident_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	existingIncident := &models.Incident{ID: incidentID, Title: "Пожар"}
	deps.cache.Set(ctx, incidentCacheKey(incidentID), existingIncident, time.Minute)

	// Ожидания
	deps.repo.EXPECT().
		Delete(ctx, incidentID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, id uuid.UUID, build func(*models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
			entry, err := build(existingIncident.Clone())
			require.NoError(t, err)
			assert.Equal(t, models.AuditActionDelete, entry.Action)
			assert.Equal(t, models.FieldChange{From: "Пожар", To: nil}, entry.Changes[audit.FieldTitle])
			return existingIncident, nil
		}).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentDeleted)

	// Действие
	err := service.DeleteIncident(ctx, "reliefAdmin", incidentID)

	// Проверки
	require.NoError(t, err)
	_, cached := deps.cache.Get(ctx, incidentCacheKey(incidentID))
	assert.False(t, cached)
}

func TestDeleteIncident_NotFound(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания
	deps.repo.EXPECT().
		Delete(ctx, incidentID, gomock.Any()).
		Return(nil, fmt.Errorf("incident with id %s: %w", incidentID, models.ErrIncidentNotFound)).
		Times(1)

	// Действие
	err := service.DeleteIncident(ctx, "reliefAdmin", incidentID)

	// Проверки
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestListIncidents_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	filter := models.IncidentFilter{Tag: "Flood", Page: 1, PageSize: 10}
	expectedIncidents := []*models.Incident{
		{ID: uuid.New(), Title: "Инцидент 1"},
		{ID: uuid.New(), Title: "Инцидент 2"},
	}

	// Ожидания: тег приводится к нижнему регистру
	deps.repo.EXPECT().
		ListIncidents(ctx, models.IncidentFilter{Tag: "flood", Page: 1, PageSize: 10}).
		Return(expectedIncidents, nil).
		Times(1)

	// Действие
	incidents, err := service.ListIncidents(ctx, filter)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncidents, incidents)
}

func TestListIncidents_ClampsPagination(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	// Ожидания
	deps.repo.EXPECT().
		ListIncidents(ctx, models.IncidentFilter{Page: 1, PageSize: 20}).
		Return([]*models.Incident{}, nil).
		Times(1)

	// Действие
	_, err := service.ListIncidents(ctx, models.IncidentFilter{Page: -3, PageSize: 1000})

	// Проверки
	require.NoError(t, err)
}

func TestListIncidents_ClampsHugePage(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	// Ожидания: смещение в хранилище не переполняется
	deps.repo.EXPECT().
		ListIncidents(ctx, models.IncidentFilter{Page: maxListPage, PageSize: 50}).
		Return([]*models.Incident{}, nil).
		Times(1)

	// Действие
	incidents, err := service.ListIncidents(ctx, models.IncidentFilter{Page: math.MaxInt, PageSize: 50})

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, incidents)
}

func TestGetIncident_ReadOverlappingUpdateDoesNotCacheStaleCopy(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	oldTitle, newTitle := "Старое имя", "Новое имя"
	stored := &models.Incident{
		ID:         incidentID,
		Title:      oldTitle,
		AuditTrail: models.AuditTrail{{Seq: 1, Action: models.AuditActionCreate}},
	}

	readDone := make(chan struct{})
	release := make(chan struct{})

	// Ожидания: первое чтение видит строку до обновления и задерживается до его завершения
	first := deps.repo.EXPECT().
		GetByID(gomock.Any(), incidentID).
		DoAndReturn(func(context.Context, uuid.UUID) (*models.Incident, error) {
			snapshot := stored.Clone()
			close(readDone)
			<-release
			return snapshot, nil
		}).Times(1)
	deps.repo.EXPECT().
		Update(ctx, incidentID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, id uuid.UUID, mutate func(*models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
			current := stored.Clone()
			entry, err := mutate(current)
			require.NoError(t, err)
			entry.Seq = 2
			current.AuditTrail = append(current.AuditTrail, entry)
			stored = current
			return current.Clone(), nil
		}).Times(1)
	deps.repo.EXPECT().
		GetByID(gomock.Any(), incidentID).
		DoAndReturn(func(context.Context, uuid.UUID) (*models.Incident, error) {
			return stored.Clone(), nil
		}).After(first).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventIncidentUpdated)

	// Действие
	staleRead := make(chan *models.Incident, 1)
	go func() {
		incident, err := service.GetIncident(ctx, incidentID)
		assert.NoError(t, err)
		staleRead <- incident
	}()
	<-readDone
	_, err := service.UpdateIncident(ctx, "reliefAdmin", incidentID, models.IncidentPatch{Title: &newTitle})
	require.NoError(t, err)
	close(release)
	assert.Equal(t, oldTitle, (<-staleRead).Title)

	// Проверки
	fresh, err := service.GetIncident(ctx, incidentID)
	require.NoError(t, err)
	assert.Equal(t, newTitle, fresh.Title)
	assert.Len(t, fresh.AuditTrail, 2)
}

func TestGetAuditTrail_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	trail := models.AuditTrail{
		{Seq: 1, Action: models.AuditActionCreate, UserID: "netrunnerX"},
		{Seq: 2, Action: models.AuditActionUpdate, UserID: "reliefAdmin"},
	}

	// Ожидания
	deps.repo.EXPECT().GetAuditTrail(ctx, incidentID).Return(trail, nil).Times(1)

	// Действие
	got, err := service.GetAuditTrail(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, trail, got)
}
