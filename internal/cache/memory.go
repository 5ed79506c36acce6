package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shenikar/disaster_coordination_system/internal/models"
)

// MemoryBackend - хранилище кэша в памяти процесса
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewMemoryBackend создает пустое хранилище в памяти
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]models.CacheEntry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (models.CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return models.CacheEntry{}, false, nil
	}
	entry.Value = append(json.RawMessage(nil), entry.Value...)
	return entry, true, nil
}

func (m *MemoryBackend) Upsert(_ context.Context, entry models.CacheEntry) error {
	entry.Value = append(json.RawMessage(nil), entry.Value...)

	m.mu.Lock()
	m.entries[entry.Key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) DeleteIfExpired(_ context.Context, key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && entry.Expired(now) {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryBackend) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len возвращает количество записей, включая ещё не вытесненные истёкшие
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
