// Package cache реализует кэш ответов внешних сервисов со сроком жизни записей.
//
// Кэш является оптимизацией, а не источником истины: любые ошибки хранилища
// логируются и превращаются в промах, наружу не пробрасываются.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
)

// Backend - хранилище записей кэша. Upsert и удаление должны быть атомарными
// на уровне одного ключа.
type Backend interface {
	Get(ctx context.Context, key string) (models.CacheEntry, bool, error)
	Upsert(ctx context.Context, entry models.CacheEntry) error
	Delete(ctx context.Context, key string) error
	// DeleteIfExpired удаляет запись, только если её срок истёк к моменту now.
	DeleteIfExpired(ctx context.Context, key string, now time.Time) error
	// DeleteExpired удаляет все истёкшие записи и возвращает их количество.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store - кэш с ленивым вытеснением истёкших записей
type Store struct {
	backend Backend
	clock   clockwork.Clock
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewStore создает кэш поверх указанного хранилища
func NewStore(backend Backend, clock clockwork.Clock, logger *logrus.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		backend: backend,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Get возвращает значение по ключу. Истёкшая запись считается промахом и удаляется.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	log := s.logger.WithFields(logrus.Fields{"component": "cache", "key": key})

	entry, found, err := s.backend.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Cache lookup failed, treating as miss")
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !found {
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	now := s.clock.Now()
	if entry.Expired(now) {
		s.metrics.CacheLookups.WithLabelValues("expired").Inc()
		// условное удаление не затрёт запись, обновлённую параллельным Set
		if err := s.backend.DeleteIfExpired(ctx, key, now); err != nil {
			log.WithError(err).Warn("Failed to evict expired cache entry")
		}
		return nil, false
	}

	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return entry.Value, true
}

// GetInto декодирует закэшированное значение в dst. Нечитаемая запись удаляется.
func (s *Store) GetInto(ctx context.Context, key string, dst any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to decode cached value, dropping entry")
		s.Delete(ctx, key)
		return false
	}
	return true
}

// Set безусловно записывает значение со сроком жизни ttl, заменяя и значение, и срок.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	log := s.logger.WithFields(logrus.Fields{"component": "cache", "key": key, "ttl": ttl.String()})

	if ttl <= 0 {
		log.Warn("Refusing to cache value with non-positive TTL")
		return
	}

	raw, err := encode(value)
	if err != nil {
		log.WithError(err).Warn("Failed to encode value for cache")
		s.metrics.CacheWrites.WithLabelValues("error").Inc()
		return
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     raw,
		ExpiresAt: s.clock.Now().Add(ttl),
	}
	if err := s.backend.Upsert(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to write cache entry")
		s.metrics.CacheWrites.WithLabelValues("error").Inc()
		return
	}
	s.metrics.CacheWrites.WithLabelValues("ok").Inc()
}

// Delete удаляет запись; удаление отсутствующего ключа не является ошибкой.
func (s *Store) Delete(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to delete cache entry")
	}
}

// Sweep удаляет все истёкшие записи независимо от чтений
func (s *Store) Sweep(ctx context.Context) int64 {
	removed, err := s.backend.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		s.logger.WithError(err).Warn("Cache sweep failed")
		return 0
	}
	s.metrics.CacheSwept.Add(float64(removed))
	return removed
}

func encode(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("value is not valid JSON")
		}
		return append(json.RawMessage(nil), raw...), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return raw, nil
}
