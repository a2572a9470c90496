// Package testutil provides shared fakes for unit tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// FakeConnector is an in-memory warehouse.Connector for tests.
type FakeConnector struct {
	Schemas     map[string][]warehouse.TableInfo // schema -> tables
	Columns     map[string][]models.Column       // "schema.table" -> columns
	LastUpdates map[string]*time.Time            // "schema.table" -> last update
	QueryLog    []warehouse.QueryLogEntry

	ColumnsErr error
	SchemasErr error
	Disposed   bool
}

// NewFakeConnector creates an empty fake.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{
		Schemas:     make(map[string][]warehouse.TableInfo),
		Columns:     make(map[string][]models.Column),
		LastUpdates: make(map[string]*time.Time),
	}
}

// AddTable registers a table with its columns.
func (f *FakeConnector) AddTable(schema, table string, cols []models.Column) {
	f.Schemas[schema] = append(f.Schemas[schema], warehouse.TableInfo{Schema: schema, Name: table, Kind: warehouse.KindTable})
	f.Columns[fqn(schema, table)] = cols
}

// SetLastUpdate sets the freshness signal for a table.
func (f *FakeConnector) SetLastUpdate(schema, table string, at time.Time) {
	t := at
	f.LastUpdates[fqn(schema, table)] = &t
}

func (f *FakeConnector) ListSchemas(ctx context.Context) ([]string, error) {
	if f.SchemasErr != nil {
		return nil, f.SchemasErr
	}
	var out []string
	for schema := range f.Schemas {
		out = append(out, schema)
	}
	return out, nil
}

func (f *FakeConnector) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	return f.Schemas[schema], nil
}

func (f *FakeConnector) FetchColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	if f.ColumnsErr != nil {
		return nil, f.ColumnsErr
	}
	return f.Columns[fqn(schema, table)], nil
}

func (f *FakeConnector) FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error) {
	return f.LastUpdates[fqn(schema, table)], nil
}

func (f *FakeConnector) ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]warehouse.QueryLogEntry, error) {
	if limit < len(f.QueryLog) {
		return f.QueryLog[:limit], nil
	}
	return f.QueryLog, nil
}

func (f *FakeConnector) Dispose() error {
	f.Disposed = true
	return nil
}

func fqn(schema, table string) string { return fmt.Sprintf("%s.%s", schema, table) }
