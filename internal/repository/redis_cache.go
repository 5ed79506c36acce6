package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/disaster_coordination_system/internal/models"
)

const redisCachePrefix = "cache:"

// deleteIfExpiredScript удаляет ключ, только если сохранённый срок истёк к моменту ARGV[1]
var deleteIfExpiredScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
local entry = cjson.decode(raw)
if tonumber(entry["expires_at_ms"]) <= tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisCacheRecord struct {
	Value       json.RawMessage `json:"value"`
	ExpiresAtMs int64           `json:"expires_at_ms"`
}

// RedisCacheRepository - хранилище кэша в Redis. Redis сам удаляет истёкшие ключи,
// срок внутри записи нужен для проверки на стороне приложения и тестовых часов.
type RedisCacheRepository struct {
	redisClient *redis.Client
}

func NewRedisCacheRepository(client *redis.Client) *RedisCacheRepository {
	return &RedisCacheRepository{
		redisClient: client,
	}
}

func (r *RedisCacheRepository) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	val, err := r.redisClient.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, fmt.Errorf("failed to get cache entry from Redis: %w", err)
	}

	var record redisCacheRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("failed to unmarshal cache entry from Redis: %w", err)
	}
	return models.CacheEntry{
		Key:       key,
		Value:     record.Value,
		ExpiresAt: time.UnixMilli(record.ExpiresAtMs).UTC(),
	}, true, nil
}

func (r *RedisCacheRepository) Upsert(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(redisCacheRecord{Value: entry.Value, ExpiresAtMs: entry.ExpiresAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry for Redis: %w", err)
	}

	// SET и PEXPIREAT в одной транзакции: срок хранится с точностью до миллисекунд
	key := redisCachePrefix + entry.Key
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, 0)
		pipe.PExpireAt(ctx, key, entry.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry in Redis: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) Delete(ctx context.Context, key string) error {
	if err := r.redisClient.Del(ctx, redisCachePrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry from Redis: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) DeleteIfExpired(ctx context.Context, key string, now time.Time) error {
	err := deleteIfExpiredScript.Run(ctx, r.redisClient, []string{redisCachePrefix + key}, now.UnixMilli()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to evict expired cache entry from Redis: %w", err)
	}
	return nil
}

// DeleteExpired проходит по ключам кэша через SCAN и удаляет истёкшие записи
func (r *RedisCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := r.redisClient.Scan(ctx, cursor, redisCachePrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan cache keys in Redis: %w", err)
		}
		for _, key := range keys {
			n, err := deleteIfExpiredScript.Run(ctx, r.redisClient, []string{key}, now.UnixMilli()).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return removed, fmt.Errorf("failed to sweep cache entry from Redis: %w", err)
			}
			removed += n
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
