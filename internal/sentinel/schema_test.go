package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/testutil"
)

// fakeSnapshotStore is an in-memory SnapshotStore.
type fakeSnapshotStore struct {
	latest    *models.SchemaSnapshot
	inserted  []*models.SchemaSnapshot
	anomalies []*models.Anomaly
}

func (f *fakeSnapshotStore) Latest(ctx context.Context, tableID string) (*models.SchemaSnapshot, error) {
	if f.latest == nil {
		return nil, fmt.Errorf("no snapshot: %w", db.ErrNotFound)
	}
	return f.latest, nil
}

func (f *fakeSnapshotStore) Insert(ctx context.Context, snap *models.SchemaSnapshot) error {
	f.inserted = append(f.inserted, snap)
	f.latest = snap
	return nil
}

func (f *fakeSnapshotStore) InsertWithAnomaly(ctx context.Context, snap *models.SchemaSnapshot, anomaly *models.Anomaly) error {
	f.inserted = append(f.inserted, snap)
	f.anomalies = append(f.anomalies, anomaly)
	f.latest = snap
	return nil
}

func testTable() *models.MonitoredTable {
	return &models.MonitoredTable{
		ID:           "tbl-1",
		ConnectionID: "conn-1",
		SchemaName:   "analytics",
		TableName:    "orders",
		CheckTypes:   []models.CheckType{models.CheckSchema},
	}
}

func ordersColumns() []models.Column {
	return []models.Column{
		{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
		{Name: "price", Type: "FLOAT", Nullable: true, Ordinal: 2},
	}
}

// TestSnapshotHash_Deterministic verifies semantic equivalence hashes equal.
func TestSnapshotHash_Deterministic(t *testing.T) {
	cols := ordersColumns()
	reversed := []models.Column{cols[1], cols[0]}

	assert.Equal(t, SnapshotHash(cols), SnapshotHash(reversed), "ordinal order defines the hash, not slice order")
	assert.NotEqual(t, SnapshotHash(cols), SnapshotHash([]models.Column{cols[0]}))
}

// TestSchemaSentinel_FirstObservation_EstablishesBaseline verifies that the
// first snapshot emits no anomaly.
func TestSchemaSentinel_FirstObservation_EstablishesBaseline(t *testing.T) {
	store := &fakeSnapshotStore{}
	sentinel := NewSchemaSentinel(store, zerolog.Nop())
	conn := testutil.NewFakeConnector()
	conn.AddTable("analytics", "orders", ordersColumns())

	anomaly, err := sentinel.Check(context.Background(), conn, testTable())
	require.NoError(t, err)
	assert.Nil(t, anomaly, "baseline is not drift")
	assert.Len(t, store.inserted, 1)
}

// TestSchemaSentinel_UnchangedSchema_NoOp verifies the cheap path writes
// nothing.
func TestSchemaSentinel_UnchangedSchema_NoOp(t *testing.T) {
	cols := ordersColumns()
	store := &fakeSnapshotStore{latest: &models.SchemaSnapshot{
		TableID:      "tbl-1",
		Columns:      cols,
		SnapshotHash: SnapshotHash(cols),
	}}
	sentinel := NewSchemaSentinel(store, zerolog.Nop())
	conn := testutil.NewFakeConnector()
	conn.AddTable("analytics", "orders", cols)

	anomaly, err := sentinel.Check(context.Background(), conn, testTable())
	require.NoError(t, err)
	assert.Nil(t, anomaly)
	assert.Empty(t, store.inserted, "equal hash must not persist a snapshot")
}

// TestSchemaSentinel_TypeChange_CriticalAnomaly covers the FLOAT->VARCHAR
// drift scenario end to end.
func TestSchemaSentinel_TypeChange_CriticalAnomaly(t *testing.T) {
	prior := ordersColumns()
	store := &fakeSnapshotStore{latest: &models.SchemaSnapshot{
		TableID:      "tbl-1",
		Columns:      prior,
		SnapshotHash: SnapshotHash(prior),
	}}
	sentinel := NewSchemaSentinel(store, zerolog.Nop())

	current := []models.Column{
		{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
		{Name: "price", Type: "VARCHAR(255)", Nullable: true, Ordinal: 2},
	}
	conn := testutil.NewFakeConnector()
	conn.AddTable("analytics", "orders", current)

	anomaly, err := sentinel.Check(context.Background(), conn, testTable())
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, models.AnomalySchemaDrift, anomaly.Type)
	assert.Equal(t, models.SeverityCritical, anomaly.Severity)
	assert.Len(t, store.inserted, 1, "new snapshot persisted alongside the anomaly")

	var detail models.SchemaDriftDetail
	require.NoError(t, json.Unmarshal(anomaly.Detail, &detail))
	require.Len(t, detail.Changes, 1)
	assert.Equal(t, models.ChangeColumnTypeChanged, detail.Changes[0].Kind)
	assert.Equal(t, "price", detail.Changes[0].Column)
	assert.Equal(t, "FLOAT", detail.Changes[0].FromType)
	assert.Equal(t, "VARCHAR(255)", detail.Changes[0].ToType)
}

// TestSchemaSentinel_RenameInference_HighSeverity verifies same-ordinal
// compatible-type pairs fold into a rename instead of add+delete.
func TestSchemaSentinel_RenameInference_HighSeverity(t *testing.T) {
	prior := []models.Column{
		{Name: "id", Type: "INT", Ordinal: 1},
		{Name: "amount", Type: "NUMERIC(10,2)", Ordinal: 2},
	}
	store := &fakeSnapshotStore{latest: &models.SchemaSnapshot{Columns: prior, SnapshotHash: SnapshotHash(prior)}}
	sentinel := NewSchemaSentinel(store, zerolog.Nop())

	current := []models.Column{
		{Name: "id", Type: "INT", Ordinal: 1},
		{Name: "total_amount", Type: "NUMERIC(12,2)", Ordinal: 2},
	}
	conn := testutil.NewFakeConnector()
	conn.AddTable("analytics", "orders", current)

	anomaly, err := sentinel.Check(context.Background(), conn, testTable())
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, models.SeverityHigh, anomaly.Severity)

	var detail models.SchemaDriftDetail
	require.NoError(t, json.Unmarshal(anomaly.Detail, &detail))
	require.Len(t, detail.Changes, 1)
	assert.Equal(t, models.ChangeColumnRenamed, detail.Changes[0].Kind)
	assert.Equal(t, "total_amount", detail.Changes[0].Column)
	assert.Equal(t, "amount", detail.Changes[0].FromName)
}

// TestSchemaSentinel_AddedColumns_SeverityByNullability verifies the added
// column severities and the max-over-changes rule.
func TestSchemaSentinel_AddedColumns_SeverityByNullability(t *testing.T) {
	prior := []models.Column{{Name: "id", Type: "INT", Ordinal: 1}}
	tests := []struct {
		name     string
		added    models.Column
		expected models.Severity
	}{
		{"nullable add is low", models.Column{Name: "note", Type: "TEXT", Nullable: true, Ordinal: 2}, models.SeverityLow},
		{"non-nullable add is medium", models.Column{Name: "status", Type: "TEXT", Nullable: false, Ordinal: 2}, models.SeverityMedium},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeSnapshotStore{latest: &models.SchemaSnapshot{Columns: prior, SnapshotHash: SnapshotHash(prior)}}
			sentinel := NewSchemaSentinel(store, zerolog.Nop())
			conn := testutil.NewFakeConnector()
			conn.AddTable("analytics", "orders", []models.Column{prior[0], tc.added})

			anomaly, err := sentinel.Check(context.Background(), conn, testTable())
			require.NoError(t, err)
			require.NotNil(t, anomaly)
			assert.Equal(t, tc.expected, anomaly.Severity)
		})
	}
}

// TestSchemaSentinel_DeletedColumn_Critical verifies deletion severity when
// no rename candidate exists.
func TestSchemaSentinel_DeletedColumn_Critical(t *testing.T) {
	prior := []models.Column{
		{Name: "id", Type: "INT", Ordinal: 1},
		{Name: "legacy_flag", Type: "BOOLEAN", Ordinal: 2},
	}
	store := &fakeSnapshotStore{latest: &models.SchemaSnapshot{Columns: prior, SnapshotHash: SnapshotHash(prior)}}
	sentinel := NewSchemaSentinel(store, zerolog.Nop())
	conn := testutil.NewFakeConnector()
	conn.AddTable("analytics", "orders", prior[:1])

	anomaly, err := sentinel.Check(context.Background(), conn, testTable())
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, models.SeverityCritical, anomaly.Severity)
}

// TestSchemaSentinel_ZeroColumns_Skips verifies the boundary behavior.
func TestSchemaSentinel_ZeroColumns_Skips(t *testing.T) {
	store := &fakeSnapshotStore{}
	sentinel := NewSchemaSentinel(store, zerolog.Nop())
	conn := testutil.NewFakeConnector()
	conn.AddTable("analytics", "empty", nil)

	table := testTable()
	table.TableName = "empty"
	anomaly, err := sentinel.Check(context.Background(), conn, table)
	require.NoError(t, err)
	assert.Nil(t, anomaly)
	assert.Empty(t, store.inserted)
}
