package models

import (
	"encoding/json"
	"time"
)

// AuditAction - тип изменения, зафиксированного в истории
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// FieldChange - значение поля до и после изменения
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// AuditEntry - неизменяемая запись истории инцидента
type AuditEntry struct {
	Seq              int64                  `json:"seq"`
	Action           AuditAction            `json:"action"`
	UserID           string                 `json:"user_id"`
	Timestamp        time.Time              `json:"timestamp"`
	Changes          map[string]FieldChange `json:"changes"`
	SeverityAnalysis json.RawMessage        `json:"severity_analysis,omitempty"`
}

// AuditTrail - упорядоченная история изменений; порядок вставки совпадает с хронологическим
type AuditTrail []AuditEntry

// Clone возвращает копию истории, чтобы вызывающий код не мог изменить сохранённые записи
func (t AuditTrail) Clone() AuditTrail {
	if t == nil {
		return nil
	}
	out := make(AuditTrail, len(t))
	for i, e := range t {
		out[i] = e.clone()
	}
	return out
}

// Last возвращает последнюю запись истории
func (t AuditTrail) Last() (AuditEntry, bool) {
	if len(t) == 0 {
		return AuditEntry{}, false
	}
	return t[len(t)-1], true
}

func (e AuditEntry) clone() AuditEntry {
	c := e
	if e.Changes != nil {
		c.Changes = make(map[string]FieldChange, len(e.Changes))
		for k, v := range e.Changes {
			c.Changes[k] = v
		}
	}
	if e.SeverityAnalysis != nil {
		c.SeverityAnalysis = append(json.RawMessage(nil), e.SeverityAnalysis...)
	}
	return c
}
