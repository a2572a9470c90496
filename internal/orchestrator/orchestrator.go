// Package orchestrator deduplicates anomalies into incidents, drives the
// incident state machine, and assembles incident reports.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/architect"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/executor"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/notifier"
)

// Domain-validation errors surfaced to the API as 4xx failures.
var (
	// ErrInvalidTransition is returned when a transition targets a
	// terminal incident.
	ErrInvalidTransition = errors.New("invalid incident transition")

	// ErrMissingReason is returned when a dismissal carries no reason.
	ErrMissingReason = errors.New("dismiss requires a reason")
)

// IncidentStore is the persistence surface the orchestrator needs.
type IncidentStore interface {
	CreateInvestigating(ctx context.Context, inc *models.Incident) error
	FindActive(ctx context.Context, tableID string, typ models.AnomalyType) (*models.Incident, error)
	GetByID(ctx context.Context, id string) (*models.Incident, error)
	Touch(ctx context.Context, id string) error
	CompleteInvestigation(ctx context.Context, id string, diagnosis *models.Diagnosis, remediation *models.Remediation, blastRadius []string, report json.RawMessage) error
	RecordError(ctx context.Context, id, message string) error
	Resolve(ctx context.Context, id, resolvedBy string) error
	Dismiss(ctx context.Context, id, reason, dismissedBy string) error
}

// EventPublisher broadcasts lifecycle events. Publishing never blocks.
type EventPublisher interface {
	Publish(kind notifier.EventKind, payload map[string]any) notifier.Event
}

// Orchestrator implements the anomaly-to-incident state machine.
type Orchestrator struct {
	incidents IncidentStore
	architect *architect.Architect
	executor  *executor.Executor
	events    EventPublisher
	log       zerolog.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(incidents IncidentStore, arch *architect.Architect, exec *executor.Executor, events EventPublisher, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		incidents: incidents,
		architect: arch,
		executor:  exec,
		events:    events,
		log:       log.With().Str("component", "orchestrator").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleAnomaly deduplicates the anomaly into an incident. An existing
// active incident for (table, type) absorbs the anomaly as a merge; a fresh
// incident is created, diagnosed, planned, reported, and moved to
// pending_review. Failed investigations retry idempotently on later merges.
func (o *Orchestrator) HandleAnomaly(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) (*models.Incident, error) {
	existing, err := o.incidents.FindActive(ctx, table.ID, anomaly.Type)
	if err == nil {
		return o.merge(ctx, existing, anomaly, table)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	inc := &models.Incident{
		ID:        uuid.NewString(),
		AnomalyID: anomaly.ID,
		TableID:   table.ID,
		Type:      anomaly.Type,
		Severity:  anomaly.Severity,
	}
	if err := o.incidents.CreateInvestigating(ctx, inc); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Lost the dedup race; join the incident the winner created.
			winner, findErr := o.incidents.FindActive(ctx, table.ID, anomaly.Type)
			if findErr != nil {
				return nil, fmt.Errorf("dedup race lost but winner not found: %w", findErr)
			}
			return o.merge(ctx, winner, anomaly, table)
		}
		return nil, err
	}

	if err := o.investigate(ctx, inc, anomaly, table); err != nil {
		// The incident stays in investigating with the error recorded; the
		// next scan cycle retries through the merge path.
		o.log.Error().Err(err).Str("incident", inc.ID).Msg("investigation failed")
		if recErr := o.incidents.RecordError(ctx, inc.ID, err.Error()); recErr != nil {
			o.log.Error().Err(recErr).Str("incident", inc.ID).Msg("failed to record investigation error")
		}
		return o.incidents.GetByID(ctx, inc.ID)
	}

	inc, err = o.incidents.GetByID(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	o.events.Publish(notifier.EventIncidentCreated, map[string]any{
		"incident_id": inc.ID,
		"severity":    inc.Severity,
		"table":       table.FQN(),
		"type":        inc.Type,
	})
	return inc, nil
}

// merge absorbs a repeat anomaly into the existing incident: no new
// diagnosis, no incident.created event. A previously failed investigation is
// retried here.
func (o *Orchestrator) merge(ctx context.Context, inc *models.Incident, anomaly *models.Anomaly, table *models.MonitoredTable) (*models.Incident, error) {
	if inc.Status == models.StatusInvestigating && inc.Diagnosis == nil {
		if err := o.investigate(ctx, inc, anomaly, table); err != nil {
			o.log.Error().Err(err).Str("incident", inc.ID).Msg("investigation retry failed")
			if recErr := o.incidents.RecordError(ctx, inc.ID, err.Error()); recErr != nil {
				o.log.Error().Err(recErr).Str("incident", inc.ID).Msg("failed to record investigation error")
			}
		}
	} else if err := o.incidents.Touch(ctx, inc.ID); err != nil {
		return nil, err
	}

	updated, err := o.incidents.GetByID(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	o.events.Publish(notifier.EventIncidentUpdated, map[string]any{
		"incident_id": updated.ID,
		"status":      updated.Status,
		"severity":    updated.Severity,
	})
	return updated, nil
}

// investigate runs the Architect and Executor synchronously, assembles the
// report, and moves the incident to pending_review.
func (o *Orchestrator) investigate(ctx context.Context, inc *models.Incident, anomaly *models.Anomaly, table *models.MonitoredTable) error {
	diagnosis := o.architect.Diagnose(ctx, anomaly, table)
	remediation := o.executor.Plan(diagnosis, table)

	report := BuildReport(inc, anomaly, table, diagnosis, remediation, o.now())
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode incident report: %w", err)
	}

	if err := o.incidents.CompleteInvestigation(ctx, inc.ID, diagnosis, remediation, diagnosis.BlastRadius, reportJSON); err != nil {
		return fmt.Errorf("failed to persist investigation: %w", err)
	}
	return nil
}

// Approve transitions a non-terminal incident to resolved.
func (o *Orchestrator) Approve(ctx context.Context, id, approvedBy string) (*models.Incident, error) {
	if err := o.incidents.Resolve(ctx, id, approvedBy); err != nil {
		if errors.Is(err, db.ErrTerminal) {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidTransition)
		}
		return nil, err
	}
	inc, err := o.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o.events.Publish(notifier.EventIncidentUpdated, map[string]any{
		"incident_id": inc.ID,
		"status":      inc.Status,
		"severity":    inc.Severity,
	})
	return inc, nil
}

// Dismiss transitions a non-terminal incident to dismissed. The reason is
// mandatory.
func (o *Orchestrator) Dismiss(ctx context.Context, id, reason, dismissedBy string) (*models.Incident, error) {
	if reason == "" {
		return nil, ErrMissingReason
	}
	if err := o.incidents.Dismiss(ctx, id, reason, dismissedBy); err != nil {
		if errors.Is(err, db.ErrTerminal) {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidTransition)
		}
		return nil, err
	}
	inc, err := o.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o.events.Publish(notifier.EventIncidentUpdated, map[string]any{
		"incident_id": inc.ID,
		"status":      inc.Status,
		"severity":    inc.Severity,
	})
	return inc, nil
}
