package models

import "time"

// TableRole is the Investigator's classification of a warehouse table.
type TableRole string

const (
	RoleFact      TableRole = "fact"
	RoleDimension TableRole = "dimension"
	RoleStaging   TableRole = "staging"
	RoleRaw       TableRole = "raw"
	RoleSnapshot  TableRole = "snapshot"
	RoleSystem    TableRole = "system"
	RoleUnknown   TableRole = "unknown"
)

// TableProposal is one table the Investigator proposes to enroll.
// Transient: lives only in API request/response bodies.
type TableProposal struct {
	Schema              string      `json:"schema"`
	Table               string      `json:"table"`
	FQN                 string      `json:"fqn"`
	Role                TableRole   `json:"role"`
	Columns             []Column    `json:"columns,omitempty"`
	RecommendedChecks   []CheckType `json:"recommended_checks"`
	SuggestedSLAMinutes *int        `json:"suggested_sla_minutes,omitempty"`
	Reasoning           string      `json:"reasoning"`
	Skip                bool        `json:"skip"`
}

// DiscoveryReport is the Investigator's full answer for one connection.
type DiscoveryReport struct {
	ConnectionID   string          `json:"connection_id"`
	ConnectionName string          `json:"connection_name"`
	SchemasFound   []string        `json:"schemas_found"`
	TotalTables    int             `json:"total_tables"`
	Proposals      []TableProposal `json:"proposals"`
	Concerns       []string        `json:"concerns,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// DeltaAction tags a rediscovery delta.
type DeltaAction string

const (
	DeltaNew     DeltaAction = "new"
	DeltaDropped DeltaAction = "dropped"
)

// TableDelta is one difference between warehouse state and the monitored set.
type TableDelta struct {
	Action   DeltaAction    `json:"action"`
	Schema   string         `json:"schema"`
	Table    string         `json:"table"`
	FQN      string         `json:"fqn"`
	Proposal *TableProposal `json:"proposal,omitempty"`
}
