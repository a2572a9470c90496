// Package architect produces incident diagnoses: an LLM primary path with a
// deterministic, dependency-free fallback.
package architect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

const (
	lineageDepth   = 3
	historyWindow  = 30 * 24 * time.Hour
	retryAttempts  = 3
	retryBaseDelay = 2 * time.Second
)

// LineageQuerier serves the graph context for diagnosis.
type LineageQuerier interface {
	Upstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error)
	Downstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error)
}

// AnomalyHistory serves recent anomalies for the table and its neighbors.
type AnomalyHistory interface {
	RecentByTables(ctx context.Context, tableIDs []string, since time.Time) ([]models.Anomaly, error)
}

// SnapshotReader serves the latest schema snapshot for table metadata.
type SnapshotReader interface {
	Latest(ctx context.Context, tableID string) (*models.SchemaSnapshot, error)
}

// TableDirectory resolves sibling tables so neighbor FQNs map to table ids.
type TableDirectory interface {
	ListByConnection(ctx context.Context, connectionID string) ([]models.MonitoredTable, error)
}

// Architect diagnoses incidents. A nil provider means fallback-only.
type Architect struct {
	provider  ai.Provider
	lineage   LineageQuerier
	history   AnomalyHistory
	snapshots SnapshotReader
	tables    TableDirectory
	log       zerolog.Logger
	now       func() time.Time
	retryBase time.Duration
}

// New creates an Architect. provider may be nil when no LLM is configured.
func New(provider ai.Provider, lineage LineageQuerier, history AnomalyHistory, snapshots SnapshotReader, tables TableDirectory, log zerolog.Logger) *Architect {
	return &Architect{
		provider:  provider,
		lineage:   lineage,
		history:   history,
		snapshots: snapshots,
		tables:    tables,
		log:       log.With().Str("component", "architect").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		retryBase: retryBaseDelay,
	}
}

// Diagnose produces a diagnosis for the anomaly. The primary LLM path is
// retried on transient failures; the fallback engages after the budget is
// exhausted and never fails.
func (a *Architect) Diagnose(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) *models.Diagnosis {
	if a.provider != nil {
		diagnosis, err := a.diagnoseLLM(ctx, anomaly, table)
		if err == nil {
			return diagnosis
		}
		a.log.Warn().Err(err).Str("table", table.FQN()).Msg("llm diagnosis failed, engaging fallback")
	}
	return a.fallback(ctx, anomaly, table)
}

// diagnoseLLM runs the primary path: context assembly, forced tool call,
// validation, with one strict re-prompt on malformed output.
func (a *Architect) diagnoseLLM(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) (*models.Diagnosis, error) {
	promptCtx, err := a.buildContext(ctx, anomaly, table)
	if err != nil {
		return nil, err
	}

	diagnosis, err := a.callModel(ctx, buildPrompt(promptCtx))
	if errors.Is(err, ai.ErrMalformedOutput) {
		a.log.Warn().Str("table", table.FQN()).Msg("malformed diagnosis output, re-prompting strictly")
		diagnosis, err = a.callModel(ctx, buildStrictPrompt(promptCtx))
	}
	if err != nil {
		return nil, err
	}
	return diagnosis, nil
}

func (a *Architect) callModel(ctx context.Context, prompt string) (*models.Diagnosis, error) {
	var resp *ai.Response
	err := ai.Retry(ctx, retryAttempts, a.retryBase, func() error {
		var callErr error
		resp, callErr = a.provider.Generate(ctx, &ai.Request{
			System:    diagnosisSystemPrompt,
			Prompt:    prompt,
			Tools:     []ai.ToolDef{diagnosisTool},
			ForceTool: diagnosisTool.Name,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return decodeDiagnosis(resp)
}

// decodeDiagnosis extracts and validates the structured output contract.
func decodeDiagnosis(resp *ai.Response) (*models.Diagnosis, error) {
	if len(resp.ToolCalls) == 0 {
		return nil, fmt.Errorf("model did not call %s: %w", diagnosisTool.Name, ai.ErrMalformedOutput)
	}
	var diagnosis models.Diagnosis
	if err := json.Unmarshal(resp.ToolCalls[0].Arguments, &diagnosis); err != nil {
		return nil, fmt.Errorf("failed to decode diagnosis: %v: %w", err, ai.ErrMalformedOutput)
	}
	if err := validateDiagnosis(&diagnosis); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ai.ErrMalformedOutput)
	}
	return &diagnosis, nil
}

func validateDiagnosis(d *models.Diagnosis) error {
	if d.RootCause == "" {
		return errors.New("diagnosis missing root_cause")
	}
	if d.Severity.Rank() == 0 {
		return fmt.Errorf("diagnosis has invalid severity %q", d.Severity)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("diagnosis confidence %v out of range", d.Confidence)
	}
	if len(d.Recommendations) == 0 {
		return errors.New("diagnosis has no recommendations")
	}
	for i := range d.Recommendations {
		if d.Recommendations[i].Priority < 1 {
			d.Recommendations[i].Priority = i + 1
		}
	}
	return nil
}

// fallback is the deterministic path: blast radius from lineage, severity
// carried from the anomaly, zero confidence, one manual-investigation step.
// It has no external dependencies and always succeeds.
func (a *Architect) fallback(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) *models.Diagnosis {
	var radius []string
	if down, err := a.lineage.Downstream(ctx, table.FQN(), lineageDepth); err == nil {
		for _, node := range down {
			radius = append(radius, node.Table)
		}
	} else {
		a.log.Warn().Err(err).Str("table", table.FQN()).Msg("lineage unavailable for fallback diagnosis")
	}

	return &models.Diagnosis{
		RootCause:      fmt.Sprintf("Automated diagnosis unavailable; %s detected on %s.", anomaly.Type, table.FQN()),
		RootCauseTable: table.FQN(),
		BlastRadius:    radius,
		Severity:       anomaly.Severity,
		Confidence:     0.0,
		Recommendations: []models.Recommendation{
			{
				Action:      models.ActionInvestigate,
				Description: "Manual investigation required.",
				SQL:         nil,
				Priority:    1,
			},
		},
	}
}

// buildContext gathers the four inputs of the diagnosis prompt: the anomaly,
// lineage both ways, recent anomaly history for the table and its 1-hop
// neighbors, and table metadata.
func (a *Architect) buildContext(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) (*promptContext, error) {
	up, err := a.lineage.Upstream(ctx, table.FQN(), lineageDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load upstream lineage: %w", err)
	}
	down, err := a.lineage.Downstream(ctx, table.FQN(), lineageDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load downstream lineage: %w", err)
	}

	neighborIDs := a.resolveNeighborIDs(ctx, table, up, down)
	history, err := a.history.RecentByTables(ctx, neighborIDs, a.now().Add(-historyWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load anomaly history: %w", err)
	}

	var columns []models.Column
	var snapshotAt time.Time
	if snap, err := a.snapshots.Latest(ctx, table.ID); err == nil {
		columns = snap.Columns
		snapshotAt = snap.CapturedAt
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to load snapshot metadata: %w", err)
	}

	return &promptContext{
		Anomaly:    anomaly,
		Table:      table,
		Upstream:   up,
		Downstream: down,
		History:    history,
		Columns:    columns,
		SnapshotAt: snapshotAt,
	}, nil
}

// resolveNeighborIDs maps 1-hop lineage FQNs back to monitored table ids.
// The anomaly's own table is always included.
func (a *Architect) resolveNeighborIDs(ctx context.Context, table *models.MonitoredTable, up, down []models.LineageNode) []string {
	ids := []string{table.ID}

	neighbors := make(map[string]bool)
	for _, n := range up {
		if n.Depth == 1 {
			neighbors[n.Table] = true
		}
	}
	for _, n := range down {
		if n.Depth == 1 {
			neighbors[n.Table] = true
		}
	}
	if len(neighbors) == 0 {
		return ids
	}

	siblings, err := a.tables.ListByConnection(ctx, table.ConnectionID)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to resolve lineage neighbors")
		return ids
	}
	for i := range siblings {
		if siblings[i].ID != table.ID && neighbors[siblings[i].FQN()] {
			ids = append(ids, siblings[i].ID)
		}
	}
	return ids
}
