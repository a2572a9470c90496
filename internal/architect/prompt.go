package architect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

const diagnosisSystemPrompt = `You are a data reliability engineer diagnosing warehouse data-quality incidents.
Given an anomaly, table lineage, recent anomaly history, and table metadata, determine the most likely root cause,
which downstream tables are actually affected, and concrete remediation steps. Always respond by calling the
report_diagnosis function. Blast radius must be a subset of the downstream lineage provided. SQL in recommendations
must be valid for the warehouse dialect and must never be destructive.`

// diagnosisTool enforces the structured output contract via function calling.
var diagnosisTool = ai.ToolDef{
	Name:        "report_diagnosis",
	Description: "Report the diagnosis for a data-quality anomaly.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"root_cause": {"type": "string"},
			"root_cause_table": {"type": "string"},
			"blast_radius": {"type": "array", "items": {"type": "string"}},
			"severity": {"type": "string", "enum": ["critical", "high", "medium", "low"]},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"recommendations": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"action": {"type": "string", "enum": ["revert_schema", "add_cast", "notify_team", "pause_pipeline", "investigate"]},
						"description": {"type": "string"},
						"sql": {"type": ["string", "null"]},
						"priority": {"type": "integer", "minimum": 1}
					},
					"required": ["action", "description", "priority"]
				}
			}
		},
		"required": ["root_cause", "root_cause_table", "blast_radius", "severity", "confidence", "recommendations"]
	}`),
}

// promptContext carries the assembled diagnosis inputs.
type promptContext struct {
	Anomaly    *models.Anomaly
	Table      *models.MonitoredTable
	Upstream   []models.LineageNode
	Downstream []models.LineageNode
	History    []models.Anomaly
	Columns    []models.Column
	SnapshotAt time.Time
}

// buildPrompt renders the context as a compact, sectioned prompt.
func buildPrompt(pc *promptContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Anomaly\ntype: %s\ntable: %s\nseverity: %s\ndetected_at: %s\ndetail: %s\n\n",
		pc.Anomaly.Type, pc.Table.FQN(), pc.Anomaly.Severity, pc.Anomaly.DetectedAt.Format(time.RFC3339), string(pc.Anomaly.Detail))

	b.WriteString("## Upstream lineage\n")
	writeNodes(&b, pc.Upstream)
	b.WriteString("\n## Downstream lineage\n")
	writeNodes(&b, pc.Downstream)

	b.WriteString("\n## Recent anomaly history (30 days, table and 1-hop neighbors)\n")
	if len(pc.History) == 0 {
		b.WriteString("none\n")
	}
	for _, h := range pc.History {
		fmt.Fprintf(&b, "- %s %s severity=%s at %s\n", h.Type, h.TableID, h.Severity, h.DetectedAt.Format(time.RFC3339))
	}

	b.WriteString("\n## Table metadata\n")
	if len(pc.Columns) == 0 {
		b.WriteString("no snapshot captured yet\n")
	} else {
		fmt.Fprintf(&b, "snapshot captured at %s, %d columns:\n", pc.SnapshotAt.Format(time.RFC3339), len(pc.Columns))
		for _, c := range pc.Columns {
			nullable := "not null"
			if c.Nullable {
				nullable = "nullable"
			}
			fmt.Fprintf(&b, "- %d. %s %s %s\n", c.Ordinal, c.Name, c.Type, nullable)
		}
	}

	return b.String()
}

// buildStrictPrompt is the re-prompt after malformed output.
func buildStrictPrompt(pc *promptContext) string {
	return buildPrompt(pc) +
		"\n## IMPORTANT\nYour previous answer violated the report_diagnosis schema. " +
		"Call report_diagnosis exactly once with every required field present and valid enum values only.\n"
}

func writeNodes(b *strings.Builder, nodes []models.LineageNode) {
	if len(nodes) == 0 {
		b.WriteString("none\n")
		return
	}
	for _, n := range nodes {
		fmt.Fprintf(b, "- %s (depth %d, confidence %.2f)\n", n.Table, n.Depth, n.Confidence)
	}
}
