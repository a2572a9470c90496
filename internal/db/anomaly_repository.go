package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// AnomalyRepository handles database operations for anomalies.
type AnomalyRepository struct {
	db *sql.DB
}

// NewAnomalyRepository creates a new AnomalyRepository.
func NewAnomalyRepository(db *sql.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// Insert records a new anomaly. Anomalies are immutable after creation.
func (r *AnomalyRepository) Insert(ctx context.Context, anomaly *models.Anomaly) error {
	if anomaly == nil {
		return errors.New("anomaly cannot be nil")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anomalies (id, table_id, type, severity, detail, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, anomaly.ID, anomaly.TableID, anomaly.Type, anomaly.Severity, string(anomaly.Detail), anomaly.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

// GetByID retrieves an anomaly by id.
func (r *AnomalyRepository) GetByID(ctx context.Context, id string) (*models.Anomaly, error) {
	var (
		anomaly models.Anomaly
		detail  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, table_id, type, severity, detail, detected_at
		FROM anomalies WHERE id = ?
	`, id).Scan(&anomaly.ID, &anomaly.TableID, &anomaly.Type, &anomaly.Severity, &detail, &anomaly.DetectedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}
	anomaly.Detail = []byte(detail)
	return &anomaly, nil
}

// RecentByTables returns anomalies detected since the cutoff for any of the
// given table ids, newest first. Used by the Architect for history context.
func (r *AnomalyRepository) RecentByTables(ctx context.Context, tableIDs []string, since time.Time) ([]models.Anomaly, error) {
	if len(tableIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, table_id, type, severity, detail, detected_at
		FROM anomalies
		WHERE detected_at >= ? AND table_id IN (`
	args := []any{since}
	for i, id := range tableIDs {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, id)
	}
	query += `) ORDER BY detected_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent anomalies: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.Anomaly
	for rows.Next() {
		var (
			anomaly models.Anomaly
			detail  string
		)
		if err := rows.Scan(&anomaly.ID, &anomaly.TableID, &anomaly.Type, &anomaly.Severity, &detail, &anomaly.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomaly.Detail = []byte(detail)
		out = append(out, anomaly)
	}
	return out, rows.Err()
}

// CountSince returns the number of anomalies detected since the cutoff.
func (r *AnomalyRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomalies WHERE detected_at >= ?`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count anomalies: %w", err)
	}
	return count, nil
}
