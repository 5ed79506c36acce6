package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shenikar/disaster_coordination_system/internal/models"
)

const mapboxBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// MapboxGeocoder переводит название места в координаты через Mapbox Geocoding API.
// Параметры: location - название места.
type MapboxGeocoder struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewMapboxGeocoder создает клиент геокодирования
func NewMapboxGeocoder(token string, timeout time.Duration) *MapboxGeocoder {
	return &MapboxGeocoder{
		token:      token,
		baseURL:    mapboxBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *MapboxGeocoder) Fetch(ctx context.Context, params Params) (json.RawMessage, error) {
	query := strings.TrimSpace(params["location"])
	if query == "" {
		return nil, fmt.Errorf("geocode: location parameter is required")
	}

	u := fmt.Sprintf("%s/%s.json?%s", g.baseURL, url.PathEscape(query), url.Values{
		"access_token": {g.token},
		"limit":        {"1"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("geocode: mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		return nil, fmt.Errorf("geocode %q: %w", query, ErrNotFound)
	}

	f := mapboxResp.Features[0]
	// Mapbox возвращает координаты в порядке lon,lat
	return json.Marshal(models.GeocodeResult{
		Query:            query,
		Latitude:         f.Center[1],
		Longitude:        f.Center[0],
		FormattedAddress: f.PlaceName,
		Confidence:       f.Relevance,
	})
}

type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	Center    []float64 `json:"center"`
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
