// Package investigator proposes which warehouse tables to enroll for
// monitoring: an LLM tool-loop primary path and a deterministic name-pattern
// fallback, plus the delta-only rediscovery.
package investigator

import (
	"fmt"
	"strings"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// Suggested SLAs per table role, in minutes.
const (
	slaStaging   = 60
	slaRaw       = 1440
	slaFactDim   = 360
)

var systemNameTokens = []string{"_tmp", "_temp", "_test", "_backup"}

var stagingSchemas = map[string]bool{"staging": true, "stg": true}
var rawSchemas = map[string]bool{"raw": true, "landing": true}

// classifyTable maps a table to a role and monitoring proposal by name
// pattern. This is the deterministic path; the LLM path produces the same
// shape with richer reasoning.
func classifyTable(schema, table string, cols []models.Column) models.TableProposal {
	name := strings.ToLower(table)
	schemaName := strings.ToLower(schema)
	proposal := models.TableProposal{
		Schema:  schema,
		Table:   table,
		FQN:     fmt.Sprintf("%s.%s", schema, table),
		Columns: cols,
	}

	hasTS := hasTimestampColumn(cols)

	switch {
	case containsAny(name, systemNameTokens):
		proposal.Role = models.RoleSystem
		proposal.Skip = true
		proposal.Reasoning = "name matches a temporary/test/backup pattern"
		return proposal

	case strings.HasPrefix(name, "stg_") || stagingSchemas[schemaName]:
		proposal.Role = models.RoleStaging
		proposal.RecommendedChecks = []models.CheckType{models.CheckSchema}
		proposal.SuggestedSLAMinutes = intPtr(slaStaging)
		proposal.Reasoning = "staging-layer table; schema stability matters, freshness tracked at the hourly scale"

	case strings.HasPrefix(name, "raw_") || rawSchemas[schemaName]:
		proposal.Role = models.RoleRaw
		proposal.RecommendedChecks = []models.CheckType{models.CheckSchema}
		proposal.SuggestedSLAMinutes = intPtr(slaRaw)
		proposal.Reasoning = "raw/landing table; upstream loads are expected daily"

	case strings.HasPrefix(name, "dim_"):
		proposal.Role = models.RoleDimension
		proposal.RecommendedChecks = checksWithFreshness(hasTS)
		if hasTS {
			proposal.SuggestedSLAMinutes = intPtr(slaFactDim)
		}
		proposal.Reasoning = "dimension table feeding joins; schema drift breaks consumers"

	case strings.HasPrefix(name, "fct_") || strings.HasPrefix(name, "fact_"):
		proposal.Role = models.RoleFact
		proposal.RecommendedChecks = checksWithFreshness(hasTS)
		if hasTS {
			proposal.SuggestedSLAMinutes = intPtr(slaFactDim)
		}
		proposal.Reasoning = "fact table; both schema and load cadence are consumer-critical"

	case strings.HasSuffix(name, "_snapshot") || strings.Contains(name, "_hist"):
		proposal.Role = models.RoleSnapshot
		proposal.RecommendedChecks = []models.CheckType{models.CheckSchema}
		proposal.Reasoning = "snapshot/history table; append-only, freshness SLA not meaningful"

	default:
		proposal.Role = models.RoleUnknown
		proposal.RecommendedChecks = checksWithFreshness(hasTS)
		proposal.Reasoning = "no recognized naming pattern; schema monitoring recommended as a baseline"
	}
	return proposal
}

func checksWithFreshness(hasTS bool) []models.CheckType {
	if hasTS {
		return []models.CheckType{models.CheckSchema, models.CheckFreshness}
	}
	return []models.CheckType{models.CheckSchema}
}

// hasTimestampColumn reports whether any column looks like a row-activity
// timestamp a freshness check could use.
func hasTimestampColumn(cols []models.Column) bool {
	for _, c := range cols {
		typ := strings.ToLower(c.Type)
		if strings.Contains(typ, "timestamp") || strings.Contains(typ, "datetime") || typ == "date" {
			return true
		}
	}
	return false
}

func containsAny(name string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			return true
		}
	}
	return false
}

func intPtr(v int) *int { return &v }
