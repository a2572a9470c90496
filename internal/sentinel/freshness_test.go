package sentinel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/testutil"
)

type fakeAnomalyStore struct {
	inserted []*models.Anomaly
}

func (f *fakeAnomalyStore) Insert(ctx context.Context, anomaly *models.Anomaly) error {
	f.inserted = append(f.inserted, anomaly)
	return nil
}

func freshnessTable(slaMinutes int) *models.MonitoredTable {
	sla := slaMinutes
	return &models.MonitoredTable{
		ID:                  "tbl-users",
		ConnectionID:        "conn-1",
		SchemaName:          "public",
		TableName:           "users",
		CheckTypes:          []models.CheckType{models.CheckFreshness},
		FreshnessSLAMinutes: &sla,
	}
}

func newFreshnessSentinel(store *fakeAnomalyStore, now time.Time) *FreshnessSentinel {
	s := NewFreshnessSentinel(store, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

// TestFreshnessSentinel_Overdue_MediumSeverity covers SLA 60 with a
// 90-minute-old update: 30 minutes overdue, ratio 0.5, medium.
func TestFreshnessSentinel_Overdue_MediumSeverity(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeAnomalyStore{}
	sentinel := newFreshnessSentinel(store, now)

	conn := testutil.NewFakeConnector()
	conn.SetLastUpdate("public", "users", now.Add(-90*time.Minute))

	anomaly, err := sentinel.Check(context.Background(), conn, freshnessTable(60))
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, models.AnomalyFreshnessViolation, anomaly.Type)
	assert.Equal(t, models.SeverityMedium, anomaly.Severity)
	require.Len(t, store.inserted, 1)

	var detail models.FreshnessViolationDetail
	require.NoError(t, json.Unmarshal(anomaly.Detail, &detail))
	assert.Equal(t, 60, detail.SLAMinutes)
	assert.Equal(t, 30, detail.MinutesOverdue)
}

// TestFreshnessSentinel_WithinSLA_NoAnomaly verifies the no-op path.
func TestFreshnessSentinel_WithinSLA_NoAnomaly(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeAnomalyStore{}
	sentinel := newFreshnessSentinel(store, now)

	conn := testutil.NewFakeConnector()
	conn.SetLastUpdate("public", "users", now.Add(-30*time.Minute))

	anomaly, err := sentinel.Check(context.Background(), conn, freshnessTable(60))
	require.NoError(t, err)
	assert.Nil(t, anomaly)
	assert.Empty(t, store.inserted)
}

// TestFreshnessSentinel_NoSignal_OptsOut verifies a missing timestamp emits
// nothing.
func TestFreshnessSentinel_NoSignal_OptsOut(t *testing.T) {
	store := &fakeAnomalyStore{}
	sentinel := newFreshnessSentinel(store, time.Now().UTC())
	conn := testutil.NewFakeConnector()

	anomaly, err := sentinel.Check(context.Background(), conn, freshnessTable(60))
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

// TestFreshnessSentinel_NoSLA_Disabled verifies a missing SLA disables the
// check even when enabled in check_types.
func TestFreshnessSentinel_NoSLA_Disabled(t *testing.T) {
	store := &fakeAnomalyStore{}
	sentinel := newFreshnessSentinel(store, time.Now().UTC())
	conn := testutil.NewFakeConnector()
	conn.SetLastUpdate("public", "users", time.Now().Add(-100*time.Hour))

	table := freshnessTable(60)
	table.FreshnessSLAMinutes = nil
	anomaly, err := sentinel.Check(context.Background(), conn, table)
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

// TestFreshnessSentinel_SeverityRatios verifies the ratio classification.
func TestFreshnessSentinel_SeverityRatios(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		age      time.Duration
		expected models.Severity
	}{
		{"half overdue is medium", 90 * time.Minute, models.SeverityMedium},
		{"double overdue is high", 3 * time.Hour, models.SeverityHigh},
		{"far overdue is critical", 6 * time.Hour, models.SeverityCritical},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeAnomalyStore{}
			sentinel := newFreshnessSentinel(store, now)
			conn := testutil.NewFakeConnector()
			conn.SetLastUpdate("public", "users", now.Add(-tc.age))

			anomaly, err := sentinel.Check(context.Background(), conn, freshnessTable(60))
			require.NoError(t, err)
			require.NotNil(t, anomaly)
			assert.Equal(t, tc.expected, anomaly.Severity)
		})
	}
}
