package models

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrLocationNotFound = errors.New("location not found")
	ErrEmptyPatch       = errors.New("update changes nothing")
)

// Point - географическая точка (WGS 84)
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid проверяет, что координаты лежат в допустимых пределах
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Incident - запись о бедствии вместе с историей изменений
type Incident struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	LocationName string     `json:"location_name"`
	Location     *Point     `json:"location,omitempty"`
	Tags         []string   `json:"tags"`
	OwnerID      string     `json:"owner_id"`
	AuditTrail   AuditTrail `json:"audit_trail"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Clone возвращает копию инцидента, не разделяющую срезы и указатели с оригиналом
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	if i.Location != nil {
		loc := *i.Location
		c.Location = &loc
	}
	c.Tags = append([]string(nil), i.Tags...)
	c.AuditTrail = i.AuditTrail.Clone()
	return &c
}

// HasTag сообщает, помечен ли инцидент тегом
func (i *Incident) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IncidentPatch - частичное обновление инцидента; nil означает "не менять"
type IncidentPatch struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	LocationName *string   `json:"location_name,omitempty"`
	Location     *Point    `json:"location,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
}

// Empty сообщает, что патч ничего не меняет
func (p IncidentPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.LocationName == nil && p.Location == nil && p.Tags == nil
}

// IncidentFilter - параметры выборки списка инцидентов
type IncidentFilter struct {
	Tag      string
	OwnerID  string
	Page     int
	PageSize int
}

// NormalizeTags приводит теги к множеству: нижний регистр, без пустых и дублей, по алфавиту
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
