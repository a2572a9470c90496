package investigator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// LineageQuerier serves known lineage for the discovery agent.
type LineageQuerier interface {
	Upstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error)
	Downstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error)
}

// toolset binds the five discovery tools to one connector and lineage engine
// for the duration of a single investigation. No global state.
type toolset struct {
	conn    warehouse.Connector
	lineage LineageQuerier
}

// defs returns the tool declarations offered to the model.
func (t *toolset) defs() []ai.ToolDef {
	objectSchema := func(props string, required ...string) json.RawMessage {
		req, _ := json.Marshal(required)
		return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":{%s},"required":%s}`, props, req))
	}
	return []ai.ToolDef{
		{
			Name:        "list_warehouse_schemas",
			Description: "List user schemas in the warehouse.",
			Parameters:  objectSchema(``),
		},
		{
			Name:        "list_schema_tables",
			Description: "List tables and views within one schema.",
			Parameters:  objectSchema(`"schema":{"type":"string"}`, "schema"),
		},
		{
			Name:        "inspect_table_columns",
			Description: "Fetch the ordered column list of a table.",
			Parameters:  objectSchema(`"schema":{"type":"string"},"table":{"type":"string"}`, "schema", "table"),
		},
		{
			Name:        "check_table_freshness",
			Description: "Fetch the best available last-update timestamp of a table.",
			Parameters:  objectSchema(`"schema":{"type":"string"},"table":{"type":"string"}`, "schema", "table"),
		},
		{
			Name:        "get_known_lineage",
			Description: "Fetch known upstream and downstream lineage for a fully qualified table name.",
			Parameters:  objectSchema(`"fqn":{"type":"string"}`, "fqn"),
		},
	}
}

// invoke dispatches one tool call and returns a JSON result for the model.
// Tool failures are reported back as results, not surfaced as errors, so the
// agent can route around unreadable corners of the warehouse.
func (t *toolset) invoke(ctx context.Context, call ai.ToolCall) string {
	var args struct {
		Schema string `json:"schema"`
		Table  string `json:"table"`
		FQN    string `json:"fqn"`
	}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err))
		}
	}

	switch call.Name {
	case "list_warehouse_schemas":
		schemas, err := t.conn.ListSchemas(ctx)
		if err != nil {
			return toolError(err)
		}
		return toolResult(map[string]any{"schemas": schemas})

	case "list_schema_tables":
		tables, err := t.conn.ListTables(ctx, args.Schema)
		if err != nil {
			return toolError(err)
		}
		return toolResult(map[string]any{"tables": tables})

	case "inspect_table_columns":
		cols, err := t.conn.FetchColumns(ctx, args.Schema, args.Table)
		if err != nil {
			return toolError(err)
		}
		return toolResult(map[string]any{"columns": cols})

	case "check_table_freshness":
		ts, err := t.conn.FetchLastUpdateTime(ctx, args.Schema, args.Table)
		if err != nil {
			return toolError(err)
		}
		if ts == nil {
			return toolResult(map[string]any{"last_update": nil, "evaluable": false})
		}
		return toolResult(map[string]any{"last_update": ts.Format(time.RFC3339), "evaluable": true})

	case "get_known_lineage":
		up, err := t.lineage.Upstream(ctx, args.FQN, 3)
		if err != nil {
			return toolError(err)
		}
		down, err := t.lineage.Downstream(ctx, args.FQN, 3)
		if err != nil {
			return toolError(err)
		}
		return toolResult(map[string]any{"upstream": up, "downstream": down})

	default:
		return toolError(fmt.Errorf("unknown tool %q", call.Name))
	}
}

func toolResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(err)
	}
	return string(data)
}

func toolError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
