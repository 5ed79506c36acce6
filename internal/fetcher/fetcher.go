// Package fetcher описывает внешние источники данных (геокодирование, соцсети,
// официальные сводки) и кэширующую обёртку вокруг них.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
)

// ErrNotFound возвращается, когда источник ничего не нашёл по запросу
var ErrNotFound = errors.New("fetcher: nothing found")

// Params - параметры запроса к внешнему источнику
type Params map[string]string

// ExternalFetcher - идемпотентный запрос к внешнему источнику
type ExternalFetcher interface {
	Fetch(ctx context.Context, params Params) (json.RawMessage, error)
}

// Cache - часть кэша, нужная обёртке
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// Key строит детерминированный ключ кэша: имя источника и отсортированные параметры
func Key(name string, params Params) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return name + ":" + values.Encode()
}

// Cached оборачивает источник проверкой и записью кэша
type Cached struct {
	name    string
	inner   ExternalFetcher
	cache   Cache
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewCached создает кэширующую обёртку с политикой ttl для источника name
func NewCached(name string, inner ExternalFetcher, cache Cache, ttl time.Duration, logger *logrus.Logger, metrics *observability.Metrics) *Cached {
	return &Cached{
		name:    name,
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch возвращает ответ из кэша или запрашивает источник и кэширует успешный ответ
func (c *Cached) Fetch(ctx context.Context, params Params) (json.RawMessage, error) {
	raw, _, err := c.FetchWithStatus(ctx, params)
	return raw, err
}

// FetchWithStatus работает как Fetch и дополнительно сообщает, был ли ответ взят из кэша
func (c *Cached) FetchWithStatus(ctx context.Context, params Params) (json.RawMessage, bool, error) {
	key := Key(c.name, params)
	if raw, ok := c.cache.Get(ctx, key); ok {
		c.metrics.FetcherRequests.WithLabelValues(c.name, "cached").Inc()
		return raw, true, nil
	}

	raw, err := c.inner.Fetch(ctx, params)
	if err != nil {
		c.metrics.FetcherRequests.WithLabelValues(c.name, "error").Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{"fetcher": c.name, "key": key}).Warn("External fetch failed")
		return nil, false, err
	}
	c.metrics.FetcherRequests.WithLabelValues(c.name, "success").Inc()

	// ошибки не кэшируются, чтобы следующий запрос мог повторить попытку
	c.cache.Set(ctx, key, raw, c.ttl)
	return raw, false, nil
}

// FetchWithStatus запрашивает источник; cached истинно, только если источник кэширующий и ответ взят из кэша
func FetchWithStatus(ctx context.Context, f ExternalFetcher, params Params) (raw json.RawMessage, cached bool, err error) {
	if c, ok := f.(interface {
		FetchWithStatus(ctx context.Context, params Params) (json.RawMessage, bool, error)
	}); ok {
		return c.FetchWithStatus(ctx, params)
	}
	raw, err = f.Fetch(ctx, params)
	return raw, false, err
}
