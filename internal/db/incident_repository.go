package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// ErrTerminal is returned when a status transition targets an incident that
// is already resolved or dismissed.
var ErrTerminal = errors.New("incident is terminal")

// IncidentFilter narrows incident listings.
type IncidentFilter struct {
	Status   models.IncidentStatus
	Severity models.Severity
	TableID  string
	Since    time.Time
	Limit    int
	Offset   int
}

// IncidentRepository handles database operations for incidents. The partial
// unique index on (table_id, type) WHERE is_active=1 is the authority for the
// one-active-incident invariant; racing creators lose with ErrDuplicate.
type IncidentRepository struct {
	db *sql.DB
}

// NewIncidentRepository creates a new IncidentRepository.
func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// CreateInvestigating inserts a fresh incident in the investigating state.
func (r *IncidentRepository) CreateInvestigating(ctx context.Context, inc *models.Incident) error {
	if inc == nil {
		return errors.New("incident cannot be nil")
	}

	now := time.Now().UTC()
	inc.Status = models.StatusInvestigating
	inc.CreatedAt = now
	inc.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incidents (id, anomaly_id, table_id, type, status, severity, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, inc.ID, inc.AnomalyID, inc.TableID, inc.Type, inc.Status, inc.Severity, inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("active incident for table %s type %s: %w", inc.TableID, inc.Type, ErrDuplicate)
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// FindActive returns the non-terminal incident for (table, type), or
// ErrNotFound when none is active.
func (r *IncidentRepository) FindActive(ctx context.Context, tableID string, typ models.AnomalyType) (*models.Incident, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE table_id = ? AND type = ? AND is_active = 1
	`, tableID, typ)
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active incident for table %s: %w", tableID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find active incident: %w", err)
	}
	return inc, nil
}

// GetByID retrieves an incident by id.
func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*models.Incident, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

// List retrieves incidents matching the filter, newest first.
func (r *IncidentRepository) List(ctx context.Context, filter IncidentFilter) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, filter.Severity)
	}
	if filter.TableID != "" {
		query += ` AND table_id = ?`
		args = append(args, filter.TableID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

// Touch advances updated_at on an anomaly merge without other changes.
func (r *IncidentRepository) Touch(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE incidents SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch incident: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteInvestigation persists diagnosis, remediation, blast radius, and
// report, and moves the incident to pending_review in one statement so the
// transition and its outputs land together.
func (r *IncidentRepository) CompleteInvestigation(ctx context.Context, id string, diagnosis *models.Diagnosis, remediation *models.Remediation, blastRadius []string, report json.RawMessage) error {
	diagJSON, err := json.Marshal(diagnosis)
	if err != nil {
		return fmt.Errorf("failed to encode diagnosis: %w", err)
	}
	remJSON, err := json.Marshal(remediation)
	if err != nil {
		return fmt.Errorf("failed to encode remediation: %w", err)
	}
	radiusJSON, err := json.Marshal(blastRadius)
	if err != nil {
		return fmt.Errorf("failed to encode blast radius: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = ?, diagnosis = ?, remediation = ?, blast_radius = ?, report = ?, last_error = '', updated_at = ?
		WHERE id = ? AND status = ?
	`, models.StatusPendingReview, string(diagJSON), string(remJSON), string(radiusJSON), string(report), time.Now().UTC(), id, models.StatusInvestigating)
	if err != nil {
		return fmt.Errorf("failed to complete investigation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return r.classifyMissedUpdate(ctx, id)
	}
	return nil
}

// RecordError annotates an investigating incident with a diagnosis failure so
// the next scan cycle can retry it.
func (r *IncidentRepository) RecordError(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE incidents SET last_error = ?, updated_at = ? WHERE id = ?
	`, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record incident error: %w", err)
	}
	return nil
}

// Resolve moves a non-terminal incident to resolved. The conditional update
// is the serialization point for concurrent transitions.
func (r *IncidentRepository) Resolve(ctx context.Context, id, resolvedBy string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = ?, is_active = 0, resolved_at = ?, resolved_by = ?, updated_at = ?
		WHERE id = ? AND is_active = 1
	`, models.StatusResolved, now, resolvedBy, now, id)
	if err != nil {
		return fmt.Errorf("failed to resolve incident: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return r.classifyMissedUpdate(ctx, id)
	}
	return nil
}

// Dismiss moves a non-terminal incident to dismissed with the given reason.
// Reason validation belongs to the orchestrator.
func (r *IncidentRepository) Dismiss(ctx context.Context, id, reason, dismissedBy string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = ?, is_active = 0, dismiss_reason = ?, resolved_at = ?, resolved_by = ?, updated_at = ?
		WHERE id = ? AND is_active = 1
	`, models.StatusDismissed, reason, now, dismissedBy, now, id)
	if err != nil {
		return fmt.Errorf("failed to dismiss incident: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return r.classifyMissedUpdate(ctx, id)
	}
	return nil
}

// CountByStatus aggregates incident counts for the stats endpoint.
func (r *IncidentRepository) CountByStatus(ctx context.Context) (open int, bySeverity map[models.Severity]int, err error) {
	bySeverity = make(map[models.Severity]int)
	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM incidents WHERE is_active = 1 GROUP BY severity
	`)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	for rows.Next() {
		var (
			sev   models.Severity
			count int
		)
		if err := rows.Scan(&sev, &count); err != nil {
			return 0, nil, fmt.Errorf("failed to scan incident count: %w", err)
		}
		bySeverity[sev] = count
		open += count
	}
	return open, bySeverity, rows.Err()
}

// classifyMissedUpdate distinguishes a missing incident from a terminal one
// after a conditional update matched zero rows.
func (r *IncidentRepository) classifyMissedUpdate(ctx context.Context, id string) error {
	inc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inc.Status.IsTerminal() {
		return fmt.Errorf("incident %s in status %s: %w", id, inc.Status, ErrTerminal)
	}
	return fmt.Errorf("incident %s in unexpected status %s", id, inc.Status)
}

const incidentColumns = `id, anomaly_id, table_id, type, status, severity, diagnosis, remediation, blast_radius, report, last_error, created_at, updated_at, resolved_at, resolved_by, dismiss_reason`

func scanIncident(scanner interface{ Scan(...any) error }) (*models.Incident, error) {
	var (
		inc        models.Incident
		diagnosis  sql.NullString
		rem        sql.NullString
		radius     sql.NullString
		report     sql.NullString
		resolvedAt sql.NullTime
	)
	if err := scanner.Scan(&inc.ID, &inc.AnomalyID, &inc.TableID, &inc.Type, &inc.Status, &inc.Severity,
		&diagnosis, &rem, &radius, &report, &inc.LastError,
		&inc.CreatedAt, &inc.UpdatedAt, &resolvedAt, &inc.ResolvedBy, &inc.DismissReason); err != nil {
		return nil, err
	}
	if diagnosis.Valid && diagnosis.String != "" && diagnosis.String != "null" {
		inc.Diagnosis = &models.Diagnosis{}
		if err := json.Unmarshal([]byte(diagnosis.String), inc.Diagnosis); err != nil {
			return nil, fmt.Errorf("failed to decode diagnosis: %w", err)
		}
	}
	if rem.Valid && rem.String != "" && rem.String != "null" {
		inc.Remediation = &models.Remediation{}
		if err := json.Unmarshal([]byte(rem.String), inc.Remediation); err != nil {
			return nil, fmt.Errorf("failed to decode remediation: %w", err)
		}
	}
	if radius.Valid && radius.String != "" {
		if err := json.Unmarshal([]byte(radius.String), &inc.BlastRadius); err != nil {
			return nil, fmt.Errorf("failed to decode blast radius: %w", err)
		}
	}
	if report.Valid && report.String != "" {
		inc.Report = json.RawMessage(report.String)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}
	return &inc, nil
}
