package investigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

const (
	// maxToolCalls bounds the discovery agent.
	maxToolCalls = 25

	// maxAgentWallClock bounds the agent's total wall time.
	maxAgentWallClock = 2 * time.Minute
)

// TableLister serves the currently monitored set for rediscovery.
type TableLister interface {
	ListByConnection(ctx context.Context, connectionID string) ([]models.MonitoredTable, error)
}

// Investigator discovers and classifies warehouse tables.
// A nil provider means the deterministic fallback path only.
type Investigator struct {
	provider ai.Provider
	lineage  LineageQuerier
	tables   TableLister
	log      zerolog.Logger
	now      func() time.Time
}

// New creates an Investigator.
func New(provider ai.Provider, lineage LineageQuerier, tables TableLister, log zerolog.Logger) *Investigator {
	return &Investigator{
		provider: provider,
		lineage:  lineage,
		tables:   tables,
		log:      log.With().Str("component", "investigator").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Discover runs a bounded investigation of the warehouse and proposes tables
// to enroll. The LLM agent path is bounded by tool-call count and wall
// clock; any failure falls through to the deterministic walk.
func (inv *Investigator) Discover(ctx context.Context, conn warehouse.Connector, connection *models.Connection) (*models.DiscoveryReport, error) {
	if inv.provider != nil {
		report, err := inv.discoverAgent(ctx, conn, connection)
		if err == nil {
			return report, nil
		}
		inv.log.Warn().Err(err).Str("connection", connection.Name).Msg("agent discovery failed, engaging fallback")
	}
	return inv.discoverFallback(ctx, conn, connection)
}

// discoverFallback walks every schema and table and classifies each by name
// pattern. Deterministic, no LLM.
func (inv *Investigator) discoverFallback(ctx context.Context, conn warehouse.Connector, connection *models.Connection) (*models.DiscoveryReport, error) {
	schemas, err := conn.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	report := &models.DiscoveryReport{
		ConnectionID:   connection.ID,
		ConnectionName: connection.Name,
		SchemasFound:   schemas,
		GeneratedAt:    inv.now(),
	}

	for _, schema := range schemas {
		tables, err := conn.ListTables(ctx, schema)
		if err != nil {
			inv.log.Warn().Err(err).Str("schema", schema).Msg("skipping unreadable schema")
			report.Concerns = append(report.Concerns, fmt.Sprintf("schema %s unreadable: %v", schema, err))
			continue
		}
		for _, t := range tables {
			report.TotalTables++
			cols, err := conn.FetchColumns(ctx, t.Schema, t.Name)
			if err != nil {
				inv.log.Debug().Err(err).Str("table", t.Name).Msg("columns unreadable, classifying by name only")
				cols = nil
			}
			report.Proposals = append(report.Proposals, classifyTable(t.Schema, t.Name, cols))
		}
	}

	sort.Slice(report.Proposals, func(i, j int) bool { return report.Proposals[i].FQN < report.Proposals[j].FQN })
	return report, nil
}

// Rediscover compares warehouse state against the monitored set and emits
// new/dropped deltas. Purely deterministic, sorted by FQN, no proposals.
func (inv *Investigator) Rediscover(ctx context.Context, conn warehouse.Connector, connectionID string) ([]models.TableDelta, error) {
	schemas, err := conn.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	type tableRef struct{ schema, table string }
	warehouseSet := make(map[string]tableRef)
	for _, schema := range schemas {
		tables, err := conn.ListTables(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables in %s: %w", schema, err)
		}
		for _, t := range tables {
			fqn := fmt.Sprintf("%s.%s", t.Schema, t.Name)
			warehouseSet[fqn] = tableRef{schema: t.Schema, table: t.Name}
		}
	}

	monitored, err := inv.tables.ListByConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored tables: %w", err)
	}
	monitoredSet := make(map[string]tableRef, len(monitored))
	for i := range monitored {
		monitoredSet[monitored[i].FQN()] = tableRef{schema: monitored[i].SchemaName, table: monitored[i].TableName}
	}

	var deltas []models.TableDelta
	for fqn, ref := range warehouseSet {
		if _, ok := monitoredSet[fqn]; !ok {
			deltas = append(deltas, models.TableDelta{Action: models.DeltaNew, Schema: ref.schema, Table: ref.table, FQN: fqn})
		}
	}
	for fqn, ref := range monitoredSet {
		if _, ok := warehouseSet[fqn]; !ok {
			deltas = append(deltas, models.TableDelta{Action: models.DeltaDropped, Schema: ref.schema, Table: ref.table, FQN: fqn})
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].FQN != deltas[j].FQN {
			return deltas[i].FQN < deltas[j].FQN
		}
		return deltas[i].Action < deltas[j].Action
	})
	return deltas, nil
}

// reportTool enforces the DiscoveryReport output contract on the agent.
var reportTool = ai.ToolDef{
	Name:        "report_discovery",
	Description: "Report the final discovery findings.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"schemas_found": {"type": "array", "items": {"type": "string"}},
			"total_tables": {"type": "integer"},
			"proposals": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"schema": {"type": "string"},
						"table": {"type": "string"},
						"fqn": {"type": "string"},
						"role": {"type": "string", "enum": ["fact", "dimension", "staging", "raw", "snapshot", "system", "unknown"]},
						"recommended_checks": {"type": "array", "items": {"type": "string", "enum": ["schema", "freshness"]}},
						"suggested_sla_minutes": {"type": ["integer", "null"]},
						"reasoning": {"type": "string"},
						"skip": {"type": "boolean"}
					},
					"required": ["schema", "table", "fqn", "role", "recommended_checks", "reasoning", "skip"]
				}
			},
			"concerns": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["schemas_found", "total_tables", "proposals"]
	}`),
}

const discoverySystemPrompt = `You are investigating an analytical warehouse to decide which tables deserve
data-quality monitoring. Explore with the provided tools: enumerate schemas, sample table structures, check
freshness signals, and consult known lineage. Classify each table by role (fact, dimension, staging, raw,
snapshot, system, unknown), recommend checks, and suggest freshness SLAs where a timestamp signal exists.
Mark temporary/test/backup tables skip=true. When your investigation is complete, call report_discovery once.`

// discoverAgent runs the bounded tool-calling loop.
func (inv *Investigator) discoverAgent(ctx context.Context, conn warehouse.Connector, connection *models.Connection) (*models.DiscoveryReport, error) {
	ctx, cancel := context.WithTimeout(ctx, maxAgentWallClock)
	defer cancel()

	tools := &toolset{conn: conn, lineage: inv.lineage}
	defs := append(tools.defs(), reportTool)

	messages := []ai.Message{{
		Role:    "user",
		Content: fmt.Sprintf("Investigate the warehouse behind connection %q and report which tables to monitor.", connection.Name),
	}}

	toolCalls := 0
	for {
		resp, err := inv.provider.Generate(ctx, &ai.Request{
			System:   discoverySystemPrompt,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return nil, fmt.Errorf("agent stopped without calling report_discovery: %w", ai.ErrMalformedOutput)
		}

		messages = append(messages, ai.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			if call.Name == reportTool.Name {
				return inv.decodeReport(call.Arguments, connection)
			}

			toolCalls++
			if toolCalls > maxToolCalls {
				return nil, fmt.Errorf("agent exceeded %d tool calls", maxToolCalls)
			}
			messages = append(messages, ai.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    tools.invoke(ctx, call),
			})
		}
	}
}

func (inv *Investigator) decodeReport(args json.RawMessage, connection *models.Connection) (*models.DiscoveryReport, error) {
	var report models.DiscoveryReport
	if err := json.Unmarshal(args, &report); err != nil {
		return nil, fmt.Errorf("failed to decode discovery report: %v: %w", err, ai.ErrMalformedOutput)
	}
	if len(report.Proposals) == 0 && report.TotalTables > 0 {
		return nil, errors.New("discovery report names tables but carries no proposals")
	}
	report.ConnectionID = connection.ID
	report.ConnectionName = connection.Name
	report.GeneratedAt = inv.now()
	sort.Slice(report.Proposals, func(i, j int) bool { return report.Proposals[i].FQN < report.Proposals[j].FQN })
	return &report, nil
}
