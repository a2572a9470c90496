package models

import (
	"encoding/json"
	"time"
)

// IncidentStatus is the incident state machine position.
type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "open"
	StatusInvestigating IncidentStatus = "investigating"
	StatusPendingReview IncidentStatus = "pending_review"
	StatusResolved      IncidentStatus = "resolved"
	StatusDismissed     IncidentStatus = "dismissed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s IncidentStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// Incident is a deduplicated, diagnosed, user-facing grouping of anomalies on
// one table. At most one non-terminal incident exists per (table, type).
type Incident struct {
	ID            string          `json:"id"`
	AnomalyID     string          `json:"anomaly_id"`
	TableID       string          `json:"table_id"`
	Type          AnomalyType     `json:"type"`
	Status        IncidentStatus  `json:"status"`
	Severity      Severity        `json:"severity"`
	Diagnosis     *Diagnosis      `json:"diagnosis,omitempty"`
	Remediation   *Remediation    `json:"remediation,omitempty"`
	BlastRadius   []string        `json:"blast_radius,omitempty"`
	Report        json.RawMessage `json:"report,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy    string          `json:"resolved_by,omitempty"`
	DismissReason string          `json:"dismiss_reason,omitempty"`
}

// RecommendationAction is the enum tag of a recommended remediation step.
type RecommendationAction string

const (
	ActionRevertSchema  RecommendationAction = "revert_schema"
	ActionAddCast       RecommendationAction = "add_cast"
	ActionNotifyTeam    RecommendationAction = "notify_team"
	ActionPausePipeline RecommendationAction = "pause_pipeline"
	ActionInvestigate   RecommendationAction = "investigate"
)

// Recommendation is one ordered step of a diagnosis.
type Recommendation struct {
	Action      RecommendationAction `json:"action"`
	Description string               `json:"description"`
	SQL         *string              `json:"sql"`
	Priority    int                  `json:"priority"`
}

// Diagnosis is the Architect's structured output.
type Diagnosis struct {
	RootCause       string           `json:"root_cause"`
	RootCauseTable  string           `json:"root_cause_table"`
	BlastRadius     []string         `json:"blast_radius"`
	Severity        Severity         `json:"severity"`
	Confidence      float64          `json:"confidence"`
	Recommendations []Recommendation `json:"recommendations"`
}

// ActionStatus marks whether a remediation action awaits operator approval.
type ActionStatus string

const (
	ActionPendingApproval ActionStatus = "pending_approval"
	ActionManual          ActionStatus = "manual"
)

// RemediationAction is one ordered, never auto-executed plan step.
type RemediationAction struct {
	Type        string       `json:"type"`
	Description string       `json:"description"`
	SQL         *string      `json:"sql"`
	Status      ActionStatus `json:"status"`
	Priority    int          `json:"priority"`
}

// Remediation is the Executor's plan derived from a diagnosis.
type Remediation struct {
	Actions     []RemediationAction `json:"actions"`
	Summary     string              `json:"summary"`
	GeneratedAt time.Time           `json:"generated_at"`
}
