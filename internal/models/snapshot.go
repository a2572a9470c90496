package models

import "time"

// SchemaSnapshot is an append-only, content-addressed record of a table's
// column list. The most recent snapshot per table is the drift baseline.
type SchemaSnapshot struct {
	ID           string    `json:"id"`
	TableID      string    `json:"table_id"`
	Columns      []Column  `json:"columns"`
	SnapshotHash string    `json:"snapshot_hash"`
	CapturedAt   time.Time `json:"captured_at"`
}
