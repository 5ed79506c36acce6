// Package memory - хранилища инцидентов и ресурсов в памяти процесса
// для STORAGE_DRIVER=memory и тестов.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/service"
)

type incidentRecord struct {
	incident *models.Incident
	deleted  bool
}

type IncidentRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*incidentRecord
	clock   clockwork.Clock
}

func NewIncidentRepository(clock clockwork.Clock) service.IncidentRepository {
	return &IncidentRepository{
		records: make(map[uuid.UUID]*incidentRecord),
		clock:   clock,
	}
}

func (r *IncidentRepository) Create(_ context.Context, incident *models.Incident, entry models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	if _, exists := r.records[incident.ID]; exists {
		return fmt.Errorf("failed to create incident: id %s already exists", incident.ID)
	}

	now := r.clock.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	entry.Seq = 1
	incident.AuditTrail = models.AuditTrail{entry}

	r.records[incident.ID] = &incidentRecord{incident: incident.Clone()}
	return nil
}

func (r *IncidentRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.deleted {
		return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
	}
	return rec.incident.Clone(), nil
}

// Update применяет mutate к копии под блокировкой и сохраняет её вместе с новой записью
// истории; при ошибке mutate хранилище не меняется.
func (r *IncidentRepository) Update(_ context.Context, id uuid.UUID, mutate func(current *models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.deleted {
		return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
	}

	current := rec.incident.Clone()
	entry, err := mutate(current)
	if err != nil {
		return nil, err
	}

	// идентичность и история не могут быть изменены через mutate
	current.ID = rec.incident.ID
	current.OwnerID = rec.incident.OwnerID
	current.CreatedAt = rec.incident.CreatedAt
	current.UpdatedAt = r.clock.Now().UTC()
	current.AuditTrail = appendEntry(rec.incident.AuditTrail, entry)

	rec.incident = current
	return current.Clone(), nil
}

func (r *IncidentRepository) Delete(_ context.Context, id uuid.UUID, build func(current *models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.deleted {
		return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
	}

	entry, err := build(rec.incident.Clone())
	if err != nil {
		return nil, err
	}

	deleted := rec.incident.Clone()
	deleted.UpdatedAt = r.clock.Now().UTC()
	deleted.AuditTrail = appendEntry(rec.incident.AuditTrail, entry)

	rec.incident = deleted
	rec.deleted = true
	return deleted.Clone(), nil
}

func (r *IncidentRepository) ListIncidents(_ context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	r.mu.RLock()
	matched := make([]*models.Incident, 0, len(r.records))
	for _, rec := range r.records {
		if rec.deleted {
			continue
		}
		if filter.Tag != "" && !rec.incident.HasTag(filter.Tag) {
			continue
		}
		if filter.OwnerID != "" && rec.incident.OwnerID != filter.OwnerID {
			continue
		}
		inc := rec.incident.Clone()
		inc.AuditTrail = nil
		matched = append(matched, inc)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	offset := (filter.Page - 1) * filter.PageSize
	if offset < 0 || offset >= len(matched) {
		return []*models.Incident{}, nil
	}
	end := offset + filter.PageSize
	if filter.PageSize <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *IncidentRepository) GetAuditTrail(_ context.Context, id uuid.UUID) (models.AuditTrail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
	}
	return rec.incident.AuditTrail.Clone(), nil
}

// appendEntry возвращает новую историю с записью в конце; сохранённая история не меняется
func appendEntry(trail models.AuditTrail, entry models.AuditEntry) models.AuditTrail {
	entry.Seq = int64(len(trail)) + 1
	out := make(models.AuditTrail, 0, len(trail)+1)
	out = append(out, trail...)
	return append(out, entry)
}
