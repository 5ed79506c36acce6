package geo

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/disaster_coordination_system/internal/models"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var center = models.Point{Latitude: 40.7128, Longitude: -74.0060}

// sliceFinder - хранилище ресурсов в срезе, без упорядочивания результатов
type sliceFinder struct {
	resources []models.Resource
	err       error
	onFind    func()
}

func (f *sliceFinder) FindWithin(_ context.Context, c models.Point, radius float64, status models.ResourceStatus, disasterID uuid.UUID) ([]models.DistanceResult, error) {
	if f.onFind != nil {
		f.onFind()
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []models.DistanceResult
	for _, r := range f.resources {
		if r.Status != status || (disasterID != uuid.Nil && r.DisasterID != disasterID) {
			continue
		}
		if d := Distance(c, r.Location); d <= radius {
			out = append(out, models.DistanceResult{Resource: r, DistanceMeters: d})
		}
	}
	return out, nil
}

func newTestIndex(f Finder) *Index {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewIndex(f, logger, observability.NewMetricsForTesting())
}

func resourceAt(name string, meters float64, bearing float64, status models.ResourceStatus) models.Resource {
	return models.Resource{
		ID:       uuid.New(),
		Name:     name,
		Location: Offset(center, bearing, meters),
		Type:     models.ResourceTypeShelter,
		Status:   status,
	}
}

func TestFindNearby_OnlyWithinRadius(t *testing.T) {
	finder := &sliceFinder{resources: []models.Resource{
		resourceAt("near", 500, 0, models.ResourceStatusActive),
		resourceAt("far", 1500, 90, models.ResourceStatusActive),
	}}
	c := center

	results, err := newTestIndex(finder).FindNearby(context.Background(), Query{Center: &c, RadiusMeters: 1000})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].Resource.Name)
	assert.InDelta(t, 500, results[0].DistanceMeters, 1)
}

func TestFindNearby_DefaultsToActiveAndSortsAscending(t *testing.T) {
	finder := &sliceFinder{resources: []models.Resource{
		resourceAt("c", 900, 180, models.ResourceStatusActive),
		resourceAt("full", 100, 0, models.ResourceStatusFull),
		resourceAt("a", 200, 45, models.ResourceStatusActive),
		resourceAt("inactive", 150, 0, models.ResourceStatusInactive),
		resourceAt("b", 400, 270, models.ResourceStatusActive),
	}}
	c := center

	results, err := newTestIndex(finder).FindNearby(context.Background(), Query{Center: &c, RadiusMeters: 5000})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, models.ResourceStatusActive, r.Resource.Status)
		if i > 0 {
			assert.LessOrEqual(t, results[i-1].DistanceMeters, r.DistanceMeters)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].Resource.Name, results[1].Resource.Name, results[2].Resource.Name})
}

func TestFindNearby_StatusFilter(t *testing.T) {
	finder := &sliceFinder{resources: []models.Resource{
		resourceAt("open", 100, 0, models.ResourceStatusActive),
		resourceAt("full", 200, 0, models.ResourceStatusFull),
	}}
	c := center

	results, err := newTestIndex(finder).FindNearby(context.Background(), Query{Center: &c, RadiusMeters: 1000, Status: models.ResourceStatusFull})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "full", results[0].Resource.Name)
}

func TestFindNearby_RadiusBoundaryIsInclusive(t *testing.T) {
	r := resourceAt("edge", 1000, 30, models.ResourceStatusActive)
	finder := &sliceFinder{resources: []models.Resource{r}}
	index := newTestIndex(finder)
	c := center
	exact := Distance(center, r.Location)

	results, err := index.FindNearby(context.Background(), Query{Center: &c, RadiusMeters: exact})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = index.FindNearby(context.Background(), Query{Center: &c, RadiusMeters: math.Nextafter(exact, 0)})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSortByDistance_TieBreakByID(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	results := []models.DistanceResult{
		{Resource: models.Resource{ID: high}, DistanceMeters: 10},
		{Resource: models.Resource{ID: low}, DistanceMeters: 10},
		{Resource: models.Resource{ID: uuid.New()}, DistanceMeters: 5},
	}

	SortByDistance(results)

	assert.Equal(t, 5.0, results[0].DistanceMeters)
	assert.Equal(t, low, results[1].Resource.ID)
	assert.Equal(t, high, results[2].Resource.ID)
}

func TestFindNearby_InvalidQuery(t *testing.T) {
	index := newTestIndex(&sliceFinder{})
	bad := models.Point{Latitude: 123, Longitude: 0}
	c := center

	cases := map[string]Query{
		"no center":      {RadiusMeters: 1000},
		"out of range":   {Center: &bad, RadiusMeters: 1000},
		"zero radius":    {Center: &c},
		"negative":       {Center: &c, RadiusMeters: -1},
		"nan radius":     {Center: &c, RadiusMeters: math.NaN()},
		"unknown status": {Center: &c, RadiusMeters: 10, Status: "closed"},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := index.FindNearby(context.Background(), q)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestFindNearby_BackendFailure(t *testing.T) {
	index := newTestIndex(&sliceFinder{err: errors.New("connection reset")})
	c := center

	results, err := index.FindNearby(context.Background(), Query{Center: &c, RadiusMeters: 1000})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrBackendFailure)
	assert.ErrorContains(t, err, "connection reset")
}

func TestFindNearby_CanceledDiscardsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	finder := &sliceFinder{
		resources: []models.Resource{resourceAt("near", 100, 0, models.ResourceStatusActive)},
		onFind:    cancel,
	}
	c := center

	results, err := newTestIndex(finder).FindNearby(ctx, Query{Center: &c, RadiusMeters: 1000})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDistance_IsGeodesic(t *testing.T) {
	// один градус долготы на экваторе ≈ 111.2 км на сфере
	d := Distance(models.Point{Latitude: 0, Longitude: 0}, models.Point{Latitude: 0, Longitude: 1})
	assert.InDelta(t, 111_319, d, 200)

	// на широте 60° тот же градус вдвое короче, чего не учитывает плоская метрика
	d60 := Distance(models.Point{Latitude: 60, Longitude: 0}, models.Point{Latitude: 60, Longitude: 1})
	assert.InDelta(t, d/2, d60, 200)
}
