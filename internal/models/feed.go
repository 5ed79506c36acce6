package models

import "time"

// GeocodeResult - координаты, найденные по названию места
type GeocodeResult struct {
	Query            string  `json:"query"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address"`
	Confidence       float64 `json:"confidence"`
}

// Point возвращает координаты результата
func (g GeocodeResult) Point() Point {
	return Point{Latitude: g.Latitude, Longitude: g.Longitude}
}

// SocialReport - сообщение из социальных сетей, относящееся к инциденту
type SocialReport struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// OfficialUpdate - сообщение официальных служб
type OfficialUpdate struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}

// SituationReport - сводка по инциденту из всех внешних источников
type SituationReport struct {
	IncidentID      string           `json:"incident_id"`
	SocialReports   []SocialReport   `json:"social_reports"`
	OfficialUpdates []OfficialUpdate `json:"official_updates"`
}
