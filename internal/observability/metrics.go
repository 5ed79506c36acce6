package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_coordination"

// Metrics - счётчики и гистограммы Prometheus для ядра сервиса
type Metrics struct {
	// Кэш ответов внешних сервисов.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss,expired,error}
	CacheWrites  *prometheus.CounterVec // labels: outcome={ok,error}
	CacheSwept   prometheus.Counter

	// Внешние источники данных.
	FetcherRequests *prometheus.CounterVec // labels: fetcher, outcome={success,error,cached}

	// Геопоиск.
	GeoQueries       *prometheus.CounterVec // labels: outcome={ok,invalid,error,canceled}
	GeoQueryDuration prometheus.Histogram

	// История изменений.
	AuditEntries *prometheus.CounterVec // labels: action

	// Шина событий.
	EventsPublished   *prometheus.CounterVec // labels: type
	EventsDropped     *prometheus.CounterVec // labels: type
	ActiveSubscribers prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в реестре Prometheus по умолчанию
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.CacheWrites,
		m.CacheSwept,
		m.FetcherRequests,
		m.GeoQueries,
		m.GeoQueryDuration,
		m.AuditEntries,
		m.EventsPublished,
		m.EventsDropped,
		m.ActiveSubscribers,
	)
	return m
}

// NewMetricsForTesting создаёт метрики без регистрации, чтобы тесты не паниковали
// на повторной регистрации
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache upserts by outcome.",
		}, []string{"outcome"}),
		CacheSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_entries_total",
			Help:      "Expired cache entries removed by the periodic sweep.",
		}),
		FetcherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetcher_requests_total",
			Help:      "External fetcher calls by fetcher and outcome.",
		}, []string{"fetcher", "outcome"}),
		GeoQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_queries_total",
			Help:      "Nearby resource searches by outcome.",
		}, []string{"outcome"}),
		GeoQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geo_query_duration_seconds",
			Help:      "Nearby resource search duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		AuditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Audit entries appended by action.",
		}, []string{"action"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the event bus by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow subscribers by type.",
		}, []string{"type"}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eventbus_active_subscribers",
			Help:      "Subscriptions currently attached to the event bus.",
		}),
	}
}
