package investigator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/testutil"
)

type fakeTableLister struct {
	tables []models.MonitoredTable
}

func (f *fakeTableLister) ListByConnection(ctx context.Context, connectionID string) ([]models.MonitoredTable, error) {
	return f.tables, nil
}

type noLineage struct{}

func (noLineage) Upstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error) {
	return nil, nil
}

func (noLineage) Downstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error) {
	return nil, nil
}

func newFallbackInvestigator(lister TableLister) *Investigator {
	return New(nil, noLineage{}, lister, zerolog.Nop())
}

func tsColumns() []models.Column {
	return []models.Column{
		{Name: "id", Type: "INT", Ordinal: 1},
		{Name: "updated_at", Type: "TIMESTAMP", Ordinal: 2},
	}
}

// TestClassifyTable_RoleTable exercises the classification matrix.
func TestClassifyTable_RoleTable(t *testing.T) {
	tests := []struct {
		name     string
		schema   string
		table    string
		cols     []models.Column
		role     models.TableRole
		checks   []models.CheckType
		sla      *int
		skip     bool
	}{
		{"tmp suffix is system", "public", "orders_tmp_2026", nil, models.RoleSystem, nil, nil, true},
		{"backup token is system", "public", "users_backup_old", nil, models.RoleSystem, nil, nil, true},
		{"stg prefix", "public", "stg_orders", nil, models.RoleStaging, []models.CheckType{models.CheckSchema}, intPtr(60), false},
		{"staging schema", "staging", "orders", nil, models.RoleStaging, []models.CheckType{models.CheckSchema}, intPtr(60), false},
		{"raw prefix", "public", "raw_events", nil, models.RoleRaw, []models.CheckType{models.CheckSchema}, intPtr(1440), false},
		{"landing schema", "landing", "events", nil, models.RoleRaw, []models.CheckType{models.CheckSchema}, intPtr(1440), false},
		{"dim with timestamp", "public", "dim_customer", tsColumns(), models.RoleDimension, []models.CheckType{models.CheckSchema, models.CheckFreshness}, intPtr(360), false},
		{"dim without timestamp", "public", "dim_region", []models.Column{{Name: "id", Type: "INT", Ordinal: 1}}, models.RoleDimension, []models.CheckType{models.CheckSchema}, nil, false},
		{"fact with timestamp", "public", "fct_sales", tsColumns(), models.RoleFact, []models.CheckType{models.CheckSchema, models.CheckFreshness}, intPtr(360), false},
		{"fact_ prefix", "public", "fact_orders", nil, models.RoleFact, []models.CheckType{models.CheckSchema}, nil, false},
		{"snapshot suffix", "public", "orders_snapshot", tsColumns(), models.RoleSnapshot, []models.CheckType{models.CheckSchema}, nil, false},
		{"history token", "public", "price_history", nil, models.RoleSnapshot, []models.CheckType{models.CheckSchema}, nil, false},
		{"unknown with timestamp", "public", "orders", tsColumns(), models.RoleUnknown, []models.CheckType{models.CheckSchema, models.CheckFreshness}, nil, false},
		{"unknown without timestamp", "public", "lookup", nil, models.RoleUnknown, []models.CheckType{models.CheckSchema}, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := classifyTable(tc.schema, tc.table, tc.cols)
			assert.Equal(t, tc.role, p.Role)
			assert.Equal(t, tc.skip, p.Skip)
			assert.Equal(t, tc.checks, p.RecommendedChecks)
			if tc.sla == nil {
				assert.Nil(t, p.SuggestedSLAMinutes)
			} else {
				require.NotNil(t, p.SuggestedSLAMinutes)
				assert.Equal(t, *tc.sla, *p.SuggestedSLAMinutes)
			}
			assert.NotEmpty(t, p.Reasoning)
		})
	}
}

// TestDiscover_Fallback_WalksWholeWarehouse verifies the deterministic
// discovery path.
func TestDiscover_Fallback_WalksWholeWarehouse(t *testing.T) {
	conn := testutil.NewFakeConnector()
	conn.AddTable("staging", "stg_orders", nil)
	conn.AddTable("analytics", "fct_sales", tsColumns())
	conn.AddTable("analytics", "scratch_tmp_x", nil)

	inv := newFallbackInvestigator(&fakeTableLister{})
	report, err := inv.Discover(context.Background(), conn, &models.Connection{ID: "c1", Name: "wh"})
	require.NoError(t, err)

	assert.Equal(t, "c1", report.ConnectionID)
	assert.Equal(t, 3, report.TotalTables)
	require.Len(t, report.Proposals, 3)

	// Sorted by FQN.
	assert.Equal(t, "analytics.fct_sales", report.Proposals[0].FQN)
	assert.Equal(t, models.RoleFact, report.Proposals[0].Role)
	assert.Equal(t, "analytics.scratch_tmp_x", report.Proposals[1].FQN)
	assert.True(t, report.Proposals[1].Skip)
	assert.Equal(t, "staging.stg_orders", report.Proposals[2].FQN)
	assert.False(t, report.GeneratedAt.IsZero())
}

// TestDiscover_Fallback_EmptyWarehouse verifies the zero-table boundary.
func TestDiscover_Fallback_EmptyWarehouse(t *testing.T) {
	inv := newFallbackInvestigator(&fakeTableLister{})
	report, err := inv.Discover(context.Background(), testutil.NewFakeConnector(), &models.Connection{ID: "c1", Name: "wh"})
	require.NoError(t, err)
	assert.Zero(t, report.TotalTables)
	assert.Empty(t, report.Proposals)
}

// TestRediscover_EmitsNewAndDroppedDeltas covers the delta scenario:
// warehouse {a, b}, monitored {a} plus a monitored table that vanished.
func TestRediscover_EmitsNewAndDroppedDeltas(t *testing.T) {
	conn := testutil.NewFakeConnector()
	conn.AddTable("public", "a", nil)
	conn.AddTable("public", "b", nil)

	lister := &fakeTableLister{tables: []models.MonitoredTable{
		{ID: "t1", SchemaName: "public", TableName: "a"},
		{ID: "t2", SchemaName: "public", TableName: "gone"},
	}}

	inv := newFallbackInvestigator(lister)
	deltas, err := inv.Rediscover(context.Background(), conn, "c1")
	require.NoError(t, err)

	require.Len(t, deltas, 2)
	assert.Equal(t, models.DeltaNew, deltas[0].Action)
	assert.Equal(t, "public.b", deltas[0].FQN)
	assert.Nil(t, deltas[0].Proposal)
	assert.Equal(t, models.DeltaDropped, deltas[1].Action)
	assert.Equal(t, "public.gone", deltas[1].FQN)
}

// TestRediscover_MatchingState_ZeroDeltas verifies the fixed point: when
// warehouse and monitored sets agree, nothing is emitted.
func TestRediscover_MatchingState_ZeroDeltas(t *testing.T) {
	conn := testutil.NewFakeConnector()
	conn.AddTable("public", "a", nil)

	lister := &fakeTableLister{tables: []models.MonitoredTable{
		{ID: "t1", SchemaName: "public", TableName: "a"},
	}}

	inv := newFallbackInvestigator(lister)
	deltas, err := inv.Rediscover(context.Background(), conn, "c1")
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

// TestHasTimestampColumn verifies the freshness signal probe.
func TestHasTimestampColumn(t *testing.T) {
	assert.True(t, hasTimestampColumn([]models.Column{{Name: "x", Type: "TIMESTAMP_NTZ"}}))
	assert.True(t, hasTimestampColumn([]models.Column{{Name: "x", Type: "datetime2"}}))
	assert.False(t, hasTimestampColumn([]models.Column{{Name: "x", Type: "VARCHAR(10)"}}))
	assert.False(t, hasTimestampColumn(nil))
}
