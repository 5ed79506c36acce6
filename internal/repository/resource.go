package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/service"
)

const resourceColumns = `
	id,
	disaster_id,
	name,
	location_name,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	type,
	capacity,
	status,
	created_at`

type ResourceRepository struct {
	db *pgxpool.Pool
}

func NewResourceRepository(db *pgxpool.Pool) service.ResourceRepository {
	return &ResourceRepository{
		db: db,
	}
}

const insertResourceQuery = `
	INSERT INTO resources (id, disaster_id, name, location_name, location, type, capacity, status)
	VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7, $8, $9)
	RETURNING created_at;
`

// Create сохраняет ресурс помощи
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, insertResourceQuery, resourceArgs(resource)...).Scan(&resource.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// CreateBatch сохраняет несколько ресурсов одной транзакцией
func (r *ResourceRepository) CreateBatch(ctx context.Context, resources []*models.Resource) error {
	if len(resources) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, resource := range resources {
		if resource.ID == uuid.Nil {
			resource.ID = uuid.New()
		}
		batch.Queue(insertResourceQuery, resourceArgs(resource)...)
	}

	results := tx.SendBatch(ctx, batch)
	for _, resource := range resources {
		if err := results.QueryRow().Scan(&resource.CreatedAt); err != nil {
			results.Close()
			return fmt.Errorf("failed to create resource %q: %w", resource.Name, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close resource batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit resource batch: %w", err)
	}
	return nil
}

// GetByID возвращает ресурс по его UUID
func (r *ResourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1;`
	resource, err := scanResource(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("resource with id %s: %w", id, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to get resource by id: %w", err)
	}
	return resource, nil
}

// FindWithin находит ресурсы в радиусе от точки по геодезическому расстоянию.
// Граница включается, порядок - по расстоянию, затем по id.
func (r *ResourceRepository) FindWithin(ctx context.Context, center models.Point, radiusMeters float64, status models.ResourceStatus, disasterID uuid.UUID) ([]models.DistanceResult, error) {
	query := `
		WITH center AS (
			SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS point
		)
		SELECT ` + resourceColumns + `,
			ST_Distance(resources.location, center.point) AS distance
		FROM resources, center
		WHERE
			status = $4
			AND ($5 = '00000000-0000-0000-0000-000000000000'::uuid OR disaster_id = $5)
			AND ST_DWithin(resources.location, center.point, $3)
		ORDER BY distance, id;
	`
	rows, err := r.db.Query(ctx, query, center.Longitude, center.Latitude, radiusMeters, status, disasterID)
	if err != nil {
		return nil, fmt.Errorf("failed to find resources within radius: %w", err)
	}
	defer rows.Close()

	results := make([]models.DistanceResult, 0)
	for rows.Next() {
		var (
			res      models.Resource
			lat, lon float64
			distance float64
		)
		err := rows.Scan(
			&res.ID,
			&res.DisasterID,
			&res.Name,
			&res.LocationName,
			&lat,
			&lon,
			&res.Type,
			&res.Capacity,
			&res.Status,
			&res.CreatedAt,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource row in FindWithin: %w", err)
		}
		res.Location = models.Point{Latitude: lat, Longitude: lon}
		results = append(results, models.DistanceResult{Resource: res, DistanceMeters: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in FindWithin: %w", err)
	}
	return results, nil
}

func resourceArgs(resource *models.Resource) []any {
	return []any{
		resource.ID,
		resource.DisasterID,
		resource.Name,
		resource.LocationName,
		resource.Location.Longitude,
		resource.Location.Latitude,
		resource.Type,
		resource.Capacity,
		resource.Status,
	}
}

func scanResource(row pgx.Row) (*models.Resource, error) {
	var (
		res      models.Resource
		lat, lon float64
	)
	err := row.Scan(
		&res.ID,
		&res.DisasterID,
		&res.Name,
		&res.LocationName,
		&lat,
		&lon,
		&res.Type,
		&res.Capacity,
		&res.Status,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Location = models.Point{Latitude: lat, Longitude: lon}
	return &res, nil
}
