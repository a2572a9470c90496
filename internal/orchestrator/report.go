package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

var anomalyTitles = map[models.AnomalyType]string{
	models.AnomalySchemaDrift:        "Schema drift",
	models.AnomalyFreshnessViolation: "Freshness violation",
}

// BuildReport assembles the derived incident report from its inputs.
// Deterministic: equal inputs produce equal reports up to generatedAt.
func BuildReport(inc *models.Incident, anomaly *models.Anomaly, table *models.MonitoredTable, diagnosis *models.Diagnosis, remediation *models.Remediation, generatedAt time.Time) *models.IncidentReport {
	report := &models.IncidentReport{
		Title:          fmt.Sprintf("%s on %s", anomalyTitles[anomaly.Type], table.FQN()),
		Severity:       inc.Severity,
		Status:         inc.Status,
		GeneratedAt:    generatedAt,
		AnomalyDetails: anomaly.Detail,
	}

	var affected []string
	if diagnosis != nil {
		report.RootCause = diagnosis.RootCause
		affected = append(affected, diagnosis.BlastRadius...)
		sort.Strings(affected)
	}
	report.BlastRadius = models.ReportBlastRadius{Total: len(affected), Tables: affected}

	if remediation != nil {
		report.RecommendedActions = remediation.Actions
	}

	report.Summary = buildSummary(inc, table, diagnosis, len(affected))
	report.Timeline = buildTimeline(inc, anomaly, diagnosis, remediation)
	return report
}

// buildSummary templates the prose from severity, table, root-cause
// presence, and affected count.
func buildSummary(inc *models.Incident, table *models.MonitoredTable, diagnosis *models.Diagnosis, affected int) string {
	base := fmt.Sprintf("%s severity %s incident on %s.", string(inc.Severity), inc.Type, table.FQN())
	if diagnosis == nil || diagnosis.RootCause == "" {
		return base + " Root cause not yet determined."
	}
	if affected == 0 {
		return fmt.Sprintf("%s Root cause identified with no downstream tables affected.", base)
	}
	return fmt.Sprintf("%s Root cause identified; %d downstream table(s) affected.", base, affected)
}

func buildTimeline(inc *models.Incident, anomaly *models.Anomaly, diagnosis *models.Diagnosis, remediation *models.Remediation) []models.TimelineEntry {
	timeline := []models.TimelineEntry{
		{At: anomaly.DetectedAt, Event: "anomaly detected"},
		{At: inc.CreatedAt, Event: "incident created"},
	}
	if diagnosis != nil {
		timeline = append(timeline, models.TimelineEntry{At: inc.UpdatedAt, Event: "diagnosis completed"})
	}
	if remediation != nil {
		timeline = append(timeline, models.TimelineEntry{At: remediation.GeneratedAt, Event: "remediation plan generated"})
	}
	return timeline
}
