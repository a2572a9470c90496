package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// SnapshotRepository handles database operations for schema snapshots.
// Snapshots are append-only; the newest row per table is the drift baseline.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert appends a new snapshot.
func (r *SnapshotRepository) Insert(ctx context.Context, snap *models.SchemaSnapshot) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}
	cols, err := json.Marshal(snap.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schema_snapshots (id, table_id, columns, snapshot_hash, captured_at)
		VALUES (?, ?, ?, ?, ?)
	`, snap.ID, snap.TableID, string(cols), snap.SnapshotHash, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// InsertWithAnomaly appends a snapshot and records the anomaly it produced in
// a single transaction, so a crash never persists one without the other.
func (r *SnapshotRepository) InsertWithAnomaly(ctx context.Context, snap *models.SchemaSnapshot, anomaly *models.Anomaly) error {
	if snap == nil || anomaly == nil {
		return errors.New("snapshot and anomaly cannot be nil")
	}
	cols, err := json.Marshal(snap.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_snapshots (id, table_id, columns, snapshot_hash, captured_at)
		VALUES (?, ?, ?, ?, ?)
	`, snap.ID, snap.TableID, string(cols), snap.SnapshotHash, snap.CapturedAt); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO anomalies (id, table_id, type, severity, detail, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, anomaly.ID, anomaly.TableID, anomaly.Type, anomaly.Severity, string(anomaly.Detail), anomaly.DetectedAt); err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot with anomaly: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a table, or ErrNotFound when
// no baseline exists yet.
func (r *SnapshotRepository) Latest(ctx context.Context, tableID string) (*models.SchemaSnapshot, error) {
	var (
		snap models.SchemaSnapshot
		cols string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, table_id, columns, snapshot_hash, captured_at
		FROM schema_snapshots
		WHERE table_id = ?
		ORDER BY captured_at DESC
		LIMIT 1
	`, tableID).Scan(&snap.ID, &snap.TableID, &cols, &snap.SnapshotHash, &snap.CapturedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot for table %s: %w", tableID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(cols), &snap.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns: %w", err)
	}
	return &snap, nil
}
