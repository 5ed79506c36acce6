package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/geo"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/shenikar/disaster_coordination_system/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var metropolis = models.Point{Latitude: 40.7128, Longitude: -74.0060}

type resourceDeps struct {
	repo      *mocks.MockResourceRepository
	incidents *mocks.MockIncidentRepository
	events    *mocks.MockEventPublisher
}

func newTestResourceService(t *testing.T, seed bool) (*resourceService, resourceDeps) {
	ctrl := gomock.NewController(t)
	deps := resourceDeps{
		repo:      mocks.NewMockResourceRepository(ctrl),
		incidents: mocks.NewMockIncidentRepository(ctrl),
		events:    mocks.NewMockEventPublisher(ctrl),
	}
	cfg := testConfig()
	cfg.SeedResourcesOnEmpty = seed

	svc := NewResourceService(deps.repo, deps.incidents, deps.events, testLogger(), observability.NewMetricsForTesting(), cfg)
	return svc.(*resourceService), deps
}

func TestCreateResource_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, false)
	ctx := context.Background()
	incidentID := uuid.New()
	resource := &models.Resource{
		DisasterID: incidentID,
		Name:       "Red Cross Shelter",
		Location:   metropolis,
		Type:       models.ResourceTypeShelter,
	}

	// Ожидания
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID}, nil).Times(1)
	deps.repo.EXPECT().
		Create(ctx, resource).
		DoAndReturn(func(ctx context.Context, r *models.Resource) error {
			r.ID = uuid.New()
			return nil
		}).Times(1)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventResourcesUpdated)

	// Действие
	err := service.CreateResource(ctx, resource)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStatusActive, resource.Status)
	assert.NotEqual(t, uuid.Nil, resource.ID)
}

func TestCreateResource_IncidentNotFound(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, false)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания: ресурс не сохраняется
	deps.incidents.EXPECT().
		GetByID(ctx, incidentID).
		Return(nil, fmt.Errorf("incident with id %s: %w", incidentID, models.ErrIncidentNotFound)).
		Times(1)

	// Действие
	err := service.CreateResource(ctx, &models.Resource{DisasterID: incidentID, Name: "x"})

	// Проверки
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestFindNearby_UsesIncidentLocationAndDefaultRadius(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, false)
	ctx := context.Background()
	incidentID := uuid.New()
	near := models.Resource{ID: uuid.New(), Name: "near", Status: models.ResourceStatusActive, Location: geo.Offset(metropolis, 0, 500)}
	far := models.Resource{ID: uuid.New(), Name: "far", Status: models.ResourceStatusActive, Location: geo.Offset(metropolis, 0, 900)}

	// Ожидания
	deps.incidents.EXPECT().
		GetByID(ctx, incidentID).
		Return(&models.Incident{ID: incidentID, Location: &metropolis}, nil).
		Times(1)
	deps.repo.EXPECT().
		FindWithin(ctx, metropolis, 10000.0, models.ResourceStatusActive, incidentID).
		Return([]models.DistanceResult{
			{Resource: far, DistanceMeters: 900},
			{Resource: near, DistanceMeters: 500},
		}, nil).
		Times(1)

	// Действие
	results, err := service.FindNearby(ctx, incidentID, models.NearbyQuery{})

	// Проверки
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Resource.Name)
	assert.Equal(t, "far", results[1].Resource.Name)
}

func TestFindNearby_ExplicitCenter(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, false)
	ctx := context.Background()
	incidentID := uuid.New()
	center := models.Point{Latitude: 40.6782, Longitude: -73.9442}

	// Ожидания
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID}, nil).Times(1)
	deps.repo.EXPECT().
		FindWithin(ctx, center, 1000.0, models.ResourceStatusFull, incidentID).
		Return([]models.DistanceResult{}, nil).
		Times(1)

	// Действие
	results, err := service.FindNearby(ctx, incidentID, models.NearbyQuery{Center: &center, RadiusMeters: 1000, Status: models.ResourceStatusFull})

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindNearby_NoCenterIsInvalidQuery(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, false)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания: у инцидента нет координат, хранилище не опрашивается
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID}, nil).Times(1)

	// Действие
	_, err := service.FindNearby(ctx, incidentID, models.NearbyQuery{})

	// Проверки
	assert.ErrorIs(t, err, geo.ErrInvalidQuery)
}

func TestFindNearby_BackendFailure(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, false)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Location: &metropolis}, nil).Times(1)
	deps.repo.EXPECT().
		FindWithin(ctx, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused")).
		Times(1)

	// Действие
	_, err := service.FindNearby(ctx, incidentID, models.NearbyQuery{})

	// Проверки
	assert.ErrorIs(t, err, geo.ErrBackendFailure)
}

func TestFindNearby_SeedsWhenEmpty(t *testing.T) {
	// Подготовка
	service, deps := newTestResourceService(t, true)
	ctx := context.Background()
	incidentID := uuid.New()
	var seeded []*models.Resource

	// Ожидания
	// 1. Первый поиск пуст
	// 2. Сохраняются ресурсы вокруг инцидента
	// 3. Повторный поиск возвращает их
	deps.incidents.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Location: &metropolis}, nil).Times(1)
	gomock.InOrder(
		deps.repo.EXPECT().
			FindWithin(ctx, metropolis, 2000.0, models.ResourceStatusActive, incidentID).
			Return([]models.DistanceResult{}, nil),
		deps.repo.EXPECT().
			CreateBatch(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, resources []*models.Resource) error {
				seeded = resources
				return nil
			}),
		deps.repo.EXPECT().
			FindWithin(ctx, metropolis, 2000.0, models.ResourceStatusActive, incidentID).
			DoAndReturn(func(ctx context.Context, center models.Point, radius float64, status models.ResourceStatus, disasterID uuid.UUID) ([]models.DistanceResult, error) {
				out := make([]models.DistanceResult, 0, len(seeded))
				for _, r := range seeded {
					out = append(out, models.DistanceResult{Resource: *r, DistanceMeters: geo.Distance(center, r.Location)})
				}
				return out, nil
			}),
	)
	expectIncidentEvent(deps.events, incidentID, eventbus.EventResourcesUpdated)

	// Действие
	results, err := service.FindNearby(ctx, incidentID, models.NearbyQuery{RadiusMeters: 2000})

	// Проверки
	require.NoError(t, err)
	require.Len(t, results, len(seedLayout))
	for _, r := range results {
		assert.Equal(t, incidentID, r.Resource.DisasterID)
		assert.LessOrEqual(t, r.DistanceMeters, 2000.0)
	}
	assert.InDelta(t, 500, results[0].DistanceMeters, 1)
}
