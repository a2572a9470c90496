package models

import (
	"encoding/json"
	"time"
)

// ReportBlastRadius is the blast radius section of an incident report.
type ReportBlastRadius struct {
	Total  int      `json:"total"`
	Tables []string `json:"tables"`
}

// TimelineEntry is one dated line of an incident report timeline.
type TimelineEntry struct {
	At    time.Time `json:"at"`
	Event string    `json:"event"`
}

// IncidentReport is the derived, self-contained presentation document for an
// incident. Regenerated idempotently from the incident's inputs; never a
// source of truth.
type IncidentReport struct {
	Title              string              `json:"title"`
	Severity           Severity            `json:"severity"`
	Status             IncidentStatus      `json:"status"`
	GeneratedAt        time.Time           `json:"generated_at"`
	Summary            string              `json:"summary"`
	AnomalyDetails     json.RawMessage     `json:"anomaly_details"`
	RootCause          string              `json:"root_cause"`
	BlastRadius        ReportBlastRadius   `json:"blast_radius"`
	RecommendedActions []RemediationAction `json:"recommended_actions"`
	Timeline           []TimelineEntry     `json:"timeline"`
}
