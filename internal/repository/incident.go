package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/service"
)

const incidentColumns = `
	id,
	title,
	description,
	location_name,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	tags,
	owner_id,
	created_at,
	updated_at`

type IncidentRepository struct {
	db *pgxpool.Pool
}

func NewIncidentRepository(db *pgxpool.Pool) service.IncidentRepository {
	return &IncidentRepository{
		db: db,
	}
}

// Create сохраняет инцидент и первую запись его истории в одной транзакции
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident, entry models.AuditEntry) error {
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	lat, lon := pointArgs(incident.Location)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO incidents (id, title, description, location_name, location, tags, owner_id)
		VALUES ($1, $2, $3, $4, ` + pointExpr(5, 6) + `, $7, $8)
		RETURNING created_at, updated_at;
	`
	err = tx.QueryRow(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		incident.LocationName,
		lon,
		lat,
		tagsArg(incident.Tags),
		incident.OwnerID,
	).Scan(&incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	entry, err = appendAuditEntry(ctx, tx, incident.ID, entry)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit incident creation: %w", err)
	}
	incident.AuditTrail = models.AuditTrail{entry}
	return nil
}

// GetByID возвращает инцидент по его UUID вместе с полной историей
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND deleted_at IS NULL;`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}

	trail, err := loadAuditTrail(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	incident.AuditTrail = trail
	return incident, nil
}

// Update блокирует строку инцидента, применяет mutate и добавляет запись истории.
// Ошибка mutate откатывает транзакцию целиком.
func (r *IncidentRepository) Update(ctx context.Context, id uuid.UUID, mutate func(current *models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := lockIncident(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	entry, err := mutate(current)
	if err != nil {
		return nil, err
	}

	lat, lon := pointArgs(current.Location)
	query := `
		UPDATE incidents SET
			title = $1,
			description = $2,
			location_name = $3,
			location = ` + pointExpr(4, 5) + `,
			tags = $6,
			updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at;
	`
	err = tx.QueryRow(ctx, query,
		current.Title,
		current.Description,
		current.LocationName,
		lon,
		lat,
		tagsArg(current.Tags),
		id,
	).Scan(&current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update incident: %w", err)
	}

	if _, err := appendAuditEntry(ctx, tx, id, entry); err != nil {
		return nil, err
	}

	trail, err := loadAuditTrail(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit incident update: %w", err)
	}
	current.AuditTrail = trail
	return current, nil
}

// Delete помечает инцидент удалённым; история сохраняется и дополняется записью delete
func (r *IncidentRepository) Delete(ctx context.Context, id uuid.UUID, build func(current *models.Incident) (models.AuditEntry, error)) (*models.Incident, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := lockIncident(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	entry, err := build(current)
	if err != nil {
		return nil, err
	}

	cmdTag, err := tx.Exec(ctx, `UPDATE incidents SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete incident: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
	}

	if _, err := appendAuditEntry(ctx, tx, id, entry); err != nil {
		return nil, err
	}
	trail, err := loadAuditTrail(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit incident deletion: %w", err)
	}
	current.AuditTrail = trail
	return current, nil
}

// ListIncidents возвращает страницу инцидентов без истории изменений
func (r *IncidentRepository) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	// рассчитываем смещение
	offset := (filter.Page - 1) * filter.PageSize

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE deleted_at IS NULL
			AND ($1 = '' OR $1 = ANY(tags))
			AND ($2 = '' OR owner_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4;
	`
	rows, err := r.db.Query(ctx, query, filter.Tag, filter.OwnerID, filter.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// GetAuditTrail возвращает историю изменений, в том числе удалённого инцидента
func (r *IncidentRepository) GetAuditTrail(ctx context.Context, id uuid.UUID) (models.AuditTrail, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1);`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check incident existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
	}
	return loadAuditTrail(ctx, r.db, id)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func lockIncident(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND deleted_at IS NULL FOR UPDATE;`
	incident, err := scanIncident(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("failed to lock incident: %w", err)
	}
	return incident, nil
}

// appendAuditEntry добавляет запись в конец истории. Вызывается под блокировкой строки
// инцидента, поэтому следующий номер вычисляется без гонок.
func appendAuditEntry(ctx context.Context, tx pgx.Tx, incidentID uuid.UUID, entry models.AuditEntry) (models.AuditEntry, error) {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return entry, fmt.Errorf("failed to marshal audit changes: %w", err)
	}

	query := `
		INSERT INTO incident_audit_entries (incident_id, seq, action, user_id, created_at, changes, severity_analysis)
		VALUES (
			$1,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM incident_audit_entries WHERE incident_id = $1),
			$2, $3, $4, $5, $6
		)
		RETURNING seq;
	`
	err = tx.QueryRow(ctx, query,
		incidentID,
		entry.Action,
		entry.UserID,
		entry.Timestamp,
		changes,
		nullableJSON(entry.SeverityAnalysis),
	).Scan(&entry.Seq)
	if err != nil {
		return entry, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return entry, nil
}

func loadAuditTrail(ctx context.Context, q querier, incidentID uuid.UUID) (models.AuditTrail, error) {
	query := `
		SELECT seq, action, user_id, created_at, changes, severity_analysis
		FROM incident_audit_entries
		WHERE incident_id = $1
		ORDER BY seq;
	`
	rows, err := q.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	defer rows.Close()

	trail := make(models.AuditTrail, 0)
	for rows.Next() {
		var (
			entry    models.AuditEntry
			changes  []byte
			severity []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.Action, &entry.UserID, &entry.Timestamp, &changes, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode audit changes: %w", err)
		}
		if len(severity) > 0 {
			entry.SeverityAnalysis = json.RawMessage(severity)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		trail = append(trail, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error audit trail iteration: %w", err)
	}
	return trail, nil
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	var (
		incident models.Incident
		lat, lon *float64
	)
	err := row.Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&incident.LocationName,
		&lat,
		&lon,
		&incident.Tags,
		&incident.OwnerID,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		incident.Location = &models.Point{Latitude: *lat, Longitude: *lon}
	}
	if incident.Tags == nil {
		incident.Tags = []string{}
	}
	return &incident, nil
}

// pointExpr собирает географическую точку из параметров долготы и широты; NULL, если их нет
func pointExpr(lonArg, latArg int) string {
	return fmt.Sprintf("CASE WHEN $%[1]d::float8 IS NULL THEN NULL ELSE ST_SetSRID(ST_MakePoint($%[1]d::float8, $%[2]d::float8), 4326)::geography END", lonArg, latArg)
}

func pointArgs(p *models.Point) (lat, lon *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Latitude, &p.Longitude
}

func tagsArg(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
