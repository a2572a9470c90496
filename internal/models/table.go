package models

import (
	"fmt"
	"time"
)

// CheckType names a sentinel check that can be enabled per table.
type CheckType string

const (
	CheckSchema    CheckType = "schema"
	CheckFreshness CheckType = "freshness"
)

// MonitoredTable is a warehouse table registered for monitoring.
// (ConnectionID, SchemaName, TableName) is unique.
type MonitoredTable struct {
	ID                  string      `json:"id"`
	ConnectionID        string      `json:"connection_id"`
	SchemaName          string      `json:"schema_name"`
	TableName           string      `json:"table_name"`
	CheckTypes          []CheckType `json:"check_types"`
	FreshnessSLAMinutes *int        `json:"freshness_sla_minutes,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// FQN returns the fully qualified name used as the lineage graph key.
func (t *MonitoredTable) FQN() string {
	return fmt.Sprintf("%s.%s", t.SchemaName, t.TableName)
}

// HasCheck reports whether the given check type is enabled for this table.
func (t *MonitoredTable) HasCheck(ct CheckType) bool {
	for _, c := range t.CheckTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// Column describes one column of a table at snapshot time.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Ordinal  int    `json:"ordinal"`
}
