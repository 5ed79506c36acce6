package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/disaster_coordination_system/internal/models"
)

// CacheRepository - хранилище кэша в таблице cache
type CacheRepository struct {
	db *pgxpool.Pool
}

func NewCacheRepository(db *pgxpool.Pool) *CacheRepository {
	return &CacheRepository{
		db: db,
	}
}

func (r *CacheRepository) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	entry := models.CacheEntry{Key: key}
	var value []byte
	err := r.db.QueryRow(ctx, `SELECT value, expires_at FROM cache WHERE key = $1;`, key).Scan(&value, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	entry.Value = value
	return entry, true, nil
}

// Upsert атомарно заменяет значение и срок жизни записи
func (r *CacheRepository) Upsert(ctx context.Context, entry models.CacheEntry) error {
	query := `
		INSERT INTO cache (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at;
	`
	if _, err := r.db.Exec(ctx, query, entry.Key, []byte(entry.Value), entry.ExpiresAt); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cache WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) DeleteIfExpired(ctx context.Context, key string, now time.Time) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cache WHERE key = $1 AND expires_at <= $2;`, key, now); err != nil {
		return fmt.Errorf("failed to evict expired cache entry: %w", err)
	}
	return nil
}

// DeleteExpired удаляет истёкшие записи, используя индекс по expires_at
func (r *CacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cache WHERE expires_at <= $1;`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
