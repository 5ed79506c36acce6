package models

import (
	"encoding/json"
	"time"
)

// CacheEntry - запись кэша ответов внешних сервисов
type CacheEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired сообщает, истекла ли запись к моменту now (граница включительно)
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
