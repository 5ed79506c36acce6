package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/models"
)

// gazetteer - справочник мест для локального режима без внешних API
var gazetteer = map[string]models.GeocodeResult{
	"metropolis":      {Latitude: 40.7128, Longitude: -74.0060, FormattedAddress: "Metropolis, NY, USA"},
	"gotham":          {Latitude: 40.7357, Longitude: -74.1724, FormattedAddress: "Gotham, NJ, USA"},
	"manhattan":       {Latitude: 40.7831, Longitude: -73.9712, FormattedAddress: "Manhattan, NY, USA"},
	"brooklyn":        {Latitude: 40.6782, Longitude: -73.9442, FormattedAddress: "Brooklyn, NY, USA"},
	"lower east side": {Latitude: 40.7150, Longitude: -73.9843, FormattedAddress: "Lower East Side, NY, USA"},
	"new orleans":     {Latitude: 29.9511, Longitude: -90.0715, FormattedAddress: "New Orleans, LA, USA"},
	"houston":         {Latitude: 29.7604, Longitude: -95.3698, FormattedAddress: "Houston, TX, USA"},
}

// FixtureGeocoder - геокодер по встроенному справочнику
type FixtureGeocoder struct{}

func (FixtureGeocoder) Fetch(_ context.Context, params Params) (json.RawMessage, error) {
	query := strings.TrimSpace(params["location"])
	place, ok := gazetteer[strings.ToLower(query)]
	if !ok {
		return nil, fmt.Errorf("geocode %q: %w", query, ErrNotFound)
	}
	place.Query = query
	place.Confidence = 1
	return json.Marshal(place)
}

// FixtureSocialFeed генерирует сообщения соцсетей по ключевым словам.
// Параметры: keywords - через запятую, incident_id.
type FixtureSocialFeed struct {
	Clock clockwork.Clock
}

func (f FixtureSocialFeed) Fetch(_ context.Context, params Params) (json.RawMessage, error) {
	now := f.Clock.Now().UTC()
	keywords := splitKeywords(params["keywords"])
	if len(keywords) == 0 {
		keywords = []string{"disaster"}
	}

	reports := make([]models.SocialReport, 0, len(keywords)*2)
	for i, kw := range keywords {
		reports = append(reports,
			models.SocialReport{
				ID:        fmt.Sprintf("%s-%d-need", params["incident_id"], i),
				User:      "citizen1",
				Content:   fmt.Sprintf("#%s need food and water near the shelter #relief", kw),
				Priority:  "high",
				Timestamp: now.Add(-time.Duration(i*2+1) * time.Minute),
			},
			models.SocialReport{
				ID:        fmt.Sprintf("%s-%d-offer", params["incident_id"], i),
				User:      "reliefAdmin",
				Content:   fmt.Sprintf("Volunteers available for %s response, contact the coordination desk", kw),
				Priority:  "normal",
				Timestamp: now.Add(-time.Duration(i*2+2) * time.Minute),
			},
		)
	}
	return json.Marshal(reports)
}

// FixtureOfficialUpdates возвращает постоянный набор официальных сводок
type FixtureOfficialUpdates struct {
	Clock clockwork.Clock
}

func (f FixtureOfficialUpdates) Fetch(_ context.Context, _ Params) (json.RawMessage, error) {
	now := f.Clock.Now().UTC()
	return json.Marshal([]models.OfficialUpdate{
		{
			Source:    "FEMA",
			Title:     "Emergency shelters open in affected counties",
			Summary:   "Shelters are operating at full staff; bring identification and medication.",
			URL:       "https://www.fema.gov/disaster/current",
			Published: now.Add(-time.Hour),
		},
		{
			Source:    "Red Cross",
			Title:     "Blood donation drive and relief supplies",
			Summary:   "Relief supplies are being distributed at community centers.",
			URL:       "https://www.redcross.org/about-us/news-and-events.html",
			Published: now.Add(-3 * time.Hour),
		},
	})
}

func splitKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
