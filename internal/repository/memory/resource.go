package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/geo"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/service"
)

type ResourceRepository struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]models.Resource
	clock     clockwork.Clock
}

func NewResourceRepository(clock clockwork.Clock) service.ResourceRepository {
	return &ResourceRepository{
		resources: make(map[uuid.UUID]models.Resource),
		clock:     clock,
	}
}

func (r *ResourceRepository) Create(_ context.Context, resource *models.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(resource)
	return nil
}

func (r *ResourceRepository) CreateBatch(_ context.Context, resources []*models.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resource := range resources {
		r.insert(resource)
	}
	return nil
}

func (r *ResourceRepository) insert(resource *models.Resource) {
	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}
	resource.CreatedAt = r.clock.Now().UTC()
	stored := *resource
	if resource.Capacity != nil {
		capacity := *resource.Capacity
		stored.Capacity = &capacity
	}
	r.resources[resource.ID] = stored
}

func (r *ResourceRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource with id %s: %w", id, models.ErrResourceNotFound)
	}
	return &res, nil
}

// FindWithin - линейный проход с геодезическим расстоянием; граница радиуса включается
func (r *ResourceRepository) FindWithin(ctx context.Context, center models.Point, radiusMeters float64, status models.ResourceStatus, disasterID uuid.UUID) ([]models.DistanceResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]models.DistanceResult, 0)
	for _, res := range r.resources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Status != status {
			continue
		}
		if disasterID != uuid.Nil && res.DisasterID != disasterID {
			continue
		}
		if d := geo.Distance(center, res.Location); d <= radiusMeters {
			results = append(results, models.DistanceResult{Resource: res, DistanceMeters: d})
		}
	}
	geo.SortByDistance(results)
	return results, nil
}
