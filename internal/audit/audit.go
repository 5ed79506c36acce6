// Package audit строит записи истории изменений инцидента.
//
// Сами записи добавляются репозиторием в той же транзакции, что и изменение
// инцидента; здесь только вычисляется, что именно изменилось.
package audit

import (
	"slices"
	"time"

	"github.com/shenikar/disaster_coordination_system/internal/models"
)

// Имена отслеживаемых полей в истории
const (
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldLocationName = "location_name"
	FieldLocation     = "location"
	FieldTags         = "tags"
)

// Diff возвращает изменения отслеживаемых полей между состояниями инцидента.
// before == nil описывает создание, after == nil - удаление.
func Diff(before, after *models.Incident) map[string]models.FieldChange {
	var prev, next models.Incident
	if before != nil {
		prev = *before
	}
	if after != nil {
		next = *after
	}

	changes := make(map[string]models.FieldChange)
	compareString(changes, FieldTitle, prev.Title, next.Title, before, after)
	compareString(changes, FieldDescription, prev.Description, next.Description, before, after)
	compareString(changes, FieldLocationName, prev.LocationName, next.LocationName, before, after)

	if !samePoint(prev.Location, next.Location) {
		changes[FieldLocation] = models.FieldChange{From: pointValue(prev.Location), To: pointValue(next.Location)}
	}

	if !slices.Equal(prev.Tags, next.Tags) {
		changes[FieldTags] = models.FieldChange{From: tagsValue(before, prev.Tags), To: tagsValue(after, next.Tags)}
	}
	return changes
}

// NewEntry создает запись истории; порядковый номер назначает репозиторий
func NewEntry(action models.AuditAction, userID string, at time.Time, changes map[string]models.FieldChange) models.AuditEntry {
	if changes == nil {
		changes = map[string]models.FieldChange{}
	}
	return models.AuditEntry{
		Action:    action,
		UserID:    userID,
		Timestamp: at.UTC(),
		Changes:   changes,
	}
}

func compareString(changes map[string]models.FieldChange, field, from, to string, before, after *models.Incident) {
	if from == to {
		return
	}
	change := models.FieldChange{From: from, To: to}
	if before == nil {
		change.From = nil
	}
	if after == nil {
		change.To = nil
	}
	changes[field] = change
}

func samePoint(a, b *models.Point) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func pointValue(p *models.Point) any {
	if p == nil {
		return nil
	}
	return *p
}

func tagsValue(state *models.Incident, tags []string) any {
	if state == nil {
		return nil
	}
	return append([]string{}, tags...)
}
