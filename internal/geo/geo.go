// Package geo ищет ресурсы помощи вокруг точки и упорядочивает их по расстоянию
// на сферической модели Земли.
package geo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidQuery - у запроса нет центра или параметры вне допустимых пределов
	ErrInvalidQuery = errors.New("invalid geo query")
	// ErrBackendFailure - хранилище не смогло выполнить запрос
	ErrBackendFailure = errors.New("geo backend failure")
)

// Finder - хранилище, умеющее выбирать ресурсы в радиусе от точки.
// Граница радиуса включается; disasterID == uuid.Nil означает "любой инцидент".
type Finder interface {
	FindWithin(ctx context.Context, center models.Point, radiusMeters float64, status models.ResourceStatus, disasterID uuid.UUID) ([]models.DistanceResult, error)
}

// Query - параметры поиска ближайших ресурсов
type Query struct {
	Center       *models.Point
	RadiusMeters float64
	Status       models.ResourceStatus
	DisasterID   uuid.UUID
}

// Index - поиск ресурсов по близости
type Index struct {
	finder  Finder
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewIndex создает индекс поверх хранилища ресурсов
func NewIndex(finder Finder, logger *logrus.Logger, metrics *observability.Metrics) *Index {
	return &Index{
		finder:  finder,
		logger:  logger,
		metrics: metrics,
	}
}

// FindNearby возвращает ресурсы в радиусе от центра по возрастанию расстояния;
// при равных расстояниях порядок определяется идентификатором ресурса.
// При отмене контекста частичные результаты отбрасываются.
func (i *Index) FindNearby(ctx context.Context, q Query) ([]models.DistanceResult, error) {
	if err := validate(q); err != nil {
		i.metrics.GeoQueries.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if q.Status == "" {
		q.Status = models.ResourceStatusActive
	}

	log := i.logger.WithFields(logrus.Fields{
		"component": "geo",
		"latitude":  q.Center.Latitude,
		"longitude": q.Center.Longitude,
		"radius":    q.RadiusMeters,
		"status":    q.Status,
	})

	started := time.Now()
	results, err := i.finder.FindWithin(ctx, *q.Center, q.RadiusMeters, q.Status, q.DisasterID)
	i.metrics.GeoQueryDuration.Observe(time.Since(started).Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		i.metrics.GeoQueries.WithLabelValues("canceled").Inc()
		return nil, ctxErr
	}
	if err != nil {
		i.metrics.GeoQueries.WithLabelValues("error").Inc()
		log.WithError(err).Error("Nearby resource query failed")
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Resource.Status == q.Status {
			filtered = append(filtered, r)
		}
	}
	SortByDistance(filtered)

	i.metrics.GeoQueries.WithLabelValues("ok").Inc()
	log.WithField("count", len(filtered)).Debug("Nearby resource query completed")
	return filtered, nil
}

func validate(q Query) error {
	if q.Center == nil {
		return fmt.Errorf("%w: center point is required", ErrInvalidQuery)
	}
	if !q.Center.Valid() || math.IsNaN(q.Center.Latitude) || math.IsNaN(q.Center.Longitude) {
		return fmt.Errorf("%w: center point out of range", ErrInvalidQuery)
	}
	if math.IsNaN(q.RadiusMeters) || math.IsInf(q.RadiusMeters, 0) || q.RadiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be a positive number of meters", ErrInvalidQuery)
	}
	if q.Status != "" && !q.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, q.Status)
	}
	return nil
}

// SortByDistance упорядочивает результаты по расстоянию, затем по идентификатору
func SortByDistance(results []models.DistanceResult) {
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].DistanceMeters != results[b].DistanceMeters {
			return results[a].DistanceMeters < results[b].DistanceMeters
		}
		return bytes.Compare(results[a].Resource.ID[:], results[b].Resource.ID[:]) < 0
	})
}

// Distance - геодезическое расстояние между точками в метрах (формула гаверсинусов)
func Distance(a, b models.Point) float64 {
	return orbgeo.DistanceHaversine(toOrb(a), toOrb(b))
}

// Offset возвращает точку на расстоянии meters от p по азимуту bearing (градусы)
func Offset(p models.Point, bearing, meters float64) models.Point {
	return fromOrb(orbgeo.PointAtBearingAndDistance(toOrb(p), bearing, meters))
}

func toOrb(p models.Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

func fromOrb(p orb.Point) models.Point {
	return models.Point{Latitude: p.Lat(), Longitude: p.Lon()}
}
