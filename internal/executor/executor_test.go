package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

func planTable() *models.MonitoredTable {
	return &models.MonitoredTable{SchemaName: "analytics", TableName: "orders"}
}

// TestExecutor_Plan_OrdersByPriority verifies actions follow recommendation
// priority and are renumbered densely.
func TestExecutor_Plan_OrdersByPriority(t *testing.T) {
	sql := "ALTER TABLE analytics.orders ALTER COLUMN price TYPE FLOAT"
	diagnosis := &models.Diagnosis{
		RootCause: "type change",
		Severity:  models.SeverityCritical,
		Recommendations: []models.Recommendation{
			{Action: models.ActionNotifyTeam, Description: "tell downstream owners", Priority: 5},
			{Action: models.ActionRevertSchema, Description: "revert the column type", SQL: &sql, Priority: 1},
		},
	}

	plan := New().Plan(diagnosis, planTable())
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "revert_schema", plan.Actions[0].Type)
	assert.Equal(t, 1, plan.Actions[0].Priority)
	assert.Equal(t, "notify_team", plan.Actions[1].Type)
	assert.Equal(t, 2, plan.Actions[1].Priority)
}

// TestExecutor_Plan_StatusBySQLPresence verifies pending_approval iff SQL.
func TestExecutor_Plan_StatusBySQLPresence(t *testing.T) {
	sql := "SELECT 1"
	diagnosis := &models.Diagnosis{
		Recommendations: []models.Recommendation{
			{Action: models.ActionAddCast, Description: "cast it", SQL: &sql, Priority: 1},
			{Action: models.ActionInvestigate, Description: "look at it", Priority: 2},
		},
	}

	plan := New().Plan(diagnosis, planTable())
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, models.ActionPendingApproval, plan.Actions[0].Status)
	assert.Equal(t, models.ActionManual, plan.Actions[1].Status)
	assert.Contains(t, plan.Summary, "awaiting approval")
}

// TestExecutor_Plan_NoMutationOfDiagnosis verifies purity.
func TestExecutor_Plan_NoMutationOfDiagnosis(t *testing.T) {
	diagnosis := &models.Diagnosis{
		Recommendations: []models.Recommendation{
			{Action: models.ActionNotifyTeam, Description: "b", Priority: 2},
			{Action: models.ActionInvestigate, Description: "a", Priority: 1},
		},
	}
	_ = New().Plan(diagnosis, planTable())
	assert.Equal(t, 2, diagnosis.Recommendations[0].Priority, "input order untouched")
	assert.Equal(t, models.ActionNotifyTeam, diagnosis.Recommendations[0].Action)
}

// TestExecutor_Plan_EmptyDiagnosis verifies the empty plan shape.
func TestExecutor_Plan_EmptyDiagnosis(t *testing.T) {
	exec := New()
	exec.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }

	plan := exec.Plan(&models.Diagnosis{}, planTable())
	assert.Empty(t, plan.Actions)
	assert.Contains(t, plan.Summary, "No remediation steps")
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), plan.GeneratedAt)
}
