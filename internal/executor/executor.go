// Package executor turns a diagnosis into an ordered remediation plan.
// It only formats the plan; no SQL is ever executed.
package executor

import (
	"fmt"
	"sort"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// Executor is a pure transformation from Diagnosis to Remediation.
type Executor struct {
	now func() time.Time
}

// New creates an Executor.
func New() *Executor {
	return &Executor{now: func() time.Time { return time.Now().UTC() }}
}

// Plan orders the diagnosis recommendations into remediation actions.
// Actions carrying SQL require operator approval; the rest are manual.
func (e *Executor) Plan(diagnosis *models.Diagnosis, table *models.MonitoredTable) *models.Remediation {
	recs := make([]models.Recommendation, len(diagnosis.Recommendations))
	copy(recs, diagnosis.Recommendations)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })

	actions := make([]models.RemediationAction, 0, len(recs))
	withSQL := 0
	for i, rec := range recs {
		status := models.ActionManual
		if rec.SQL != nil && *rec.SQL != "" {
			status = models.ActionPendingApproval
			withSQL++
		}
		actions = append(actions, models.RemediationAction{
			Type:        string(rec.Action),
			Description: rec.Description,
			SQL:         rec.SQL,
			Status:      status,
			Priority:    i + 1,
		})
	}

	return &models.Remediation{
		Actions:     actions,
		Summary:     summarize(table, len(actions), withSQL),
		GeneratedAt: e.now(),
	}
}

func summarize(table *models.MonitoredTable, total, withSQL int) string {
	if total == 0 {
		return fmt.Sprintf("No remediation steps proposed for %s.", table.FQN())
	}
	if withSQL > 0 {
		return fmt.Sprintf("%d remediation step(s) for %s; %d carrying SQL awaiting approval.", total, table.FQN(), withSQL)
	}
	return fmt.Sprintf("%d manual remediation step(s) for %s.", total, table.FQN())
}
