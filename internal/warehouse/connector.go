// Package warehouse defines the connector contract Aegis uses to introspect
// external warehouses, plus the dialect implementations behind it.
package warehouse

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// Recoverable connector error kinds. No connector error is fatal to a scan.
var (
	// ErrConnectivity indicates a network or authentication failure.
	ErrConnectivity = errors.New("warehouse unreachable")

	// ErrPermission indicates the catalog is not readable with the
	// configured credentials.
	ErrPermission = errors.New("warehouse permission denied")

	// ErrUnsupported indicates the operation is unavailable on this dialect.
	ErrUnsupported = errors.New("operation not supported by dialect")
)

// TableKind distinguishes tables from views.
type TableKind string

const (
	KindTable TableKind = "TABLE"
	KindView  TableKind = "VIEW"
)

// TableInfo identifies one table or view within a schema.
type TableInfo struct {
	Schema string    `json:"schema"`
	Name   string    `json:"name"`
	Kind   TableKind `json:"kind"`
}

// QueryLogEntry is one captured warehouse query with write semantics.
type QueryLogEntry struct {
	SQL        string    `json:"sql"`
	User       string    `json:"user"`
	ExecutedAt time.Time `json:"executed_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Connector executes dialect-specific introspection against one warehouse.
// Implementations own their pooled resources; callers must call Dispose on
// every exit path they created a connector on.
type Connector interface {
	// ListSchemas returns user schemas, with catalog/system schemas filtered.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables returns tables and views within a schema.
	ListTables(ctx context.Context, schema string) ([]TableInfo, error)

	// FetchColumns returns the column list ordered by ordinal. Ordinal
	// ordering is required for snapshot hash stability.
	FetchColumns(ctx context.Context, schema, table string) ([]models.Column, error)

	// FetchLastUpdateTime returns the best available last-modification
	// signal, or nil when freshness is not evaluable for this table.
	FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error)

	// ExtractQueryLog returns recent queries with target-modifying
	// semantics (INSERT / CREATE-AS / MERGE), newest last.
	ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]QueryLogEntry, error)

	// Dispose releases pooled resources.
	Dispose() error
}

// auditColumns are column names recognized as row-level modification
// timestamps, probed in order. Audit columns win over catalog metadata
// because they reflect data activity rather than maintenance activity.
var auditColumns = []string{
	"updated_at",
	"modified_at",
	"last_modified",
	"_loaded_at",
	"loaded_at",
	"inserted_at",
	"created_at",
}

// findAuditColumn returns the first recognized audit column present in cols,
// or "" when none is.
func findAuditColumn(cols []models.Column) string {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[strings.ToLower(c.Name)] = true
	}
	for _, candidate := range auditColumns {
		if present[candidate] {
			return candidate
		}
	}
	return ""
}
