package models

import (
	"encoding/json"
	"time"
)

// AnomalyType tags the detector that produced an anomaly.
type AnomalyType string

const (
	AnomalySchemaDrift        AnomalyType = "schema_drift"
	AnomalyFreshnessViolation AnomalyType = "freshness_violation"
)

// Severity classifies anomalies and incidents.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns an ordering value for severity comparison (higher is worse).
func (s Severity) Rank() int { return severityRank[s] }

// MaxSeverity returns the worse of the two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Anomaly is a raw detector signal. Immutable after creation.
type Anomaly struct {
	ID         string          `json:"id"`
	TableID    string          `json:"table_id"`
	Type       AnomalyType     `json:"type"`
	Severity   Severity        `json:"severity"`
	Detail     json.RawMessage `json:"detail"`
	DetectedAt time.Time       `json:"detected_at"`
}

// SchemaChangeKind tags one entry of a schema drift change list.
type SchemaChangeKind string

const (
	ChangeColumnAdded       SchemaChangeKind = "column_added"
	ChangeColumnDeleted     SchemaChangeKind = "column_deleted"
	ChangeColumnTypeChanged SchemaChangeKind = "column_type_changed"
	ChangeColumnRenamed     SchemaChangeKind = "column_renamed"
)

// SchemaChange describes a single difference between two snapshots.
type SchemaChange struct {
	Kind     SchemaChangeKind `json:"kind"`
	Column   string           `json:"column"`
	FromName string           `json:"from_name,omitempty"`
	FromType string           `json:"from_type,omitempty"`
	ToType   string           `json:"to_type,omitempty"`
	Nullable bool             `json:"nullable,omitempty"`
}

// SchemaDriftDetail is the typed payload of a schema_drift anomaly.
type SchemaDriftDetail struct {
	Changes []SchemaChange `json:"changes"`
}

// FreshnessViolationDetail is the typed payload of a freshness_violation anomaly.
type FreshnessViolationDetail struct {
	LastUpdate     time.Time `json:"last_update"`
	SLAMinutes     int       `json:"sla_minutes"`
	MinutesOverdue int       `json:"minutes_overdue"`
}

// EncodeDetail serializes a typed anomaly detail for storage.
func EncodeDetail(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
