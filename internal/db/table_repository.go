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

// TableRepository handles database operations for monitored tables.
type TableRepository struct {
	db *sql.DB
}

// NewTableRepository creates a new TableRepository.
func NewTableRepository(db *sql.DB) *TableRepository {
	return &TableRepository{db: db}
}

// Create inserts a new monitored table. Returns ErrDuplicate when the
// (connection, schema, table) triple is already enrolled.
func (r *TableRepository) Create(ctx context.Context, table *models.MonitoredTable) error {
	if table == nil {
		return errors.New("table cannot be nil")
	}

	checks, err := json.Marshal(table.CheckTypes)
	if err != nil {
		return fmt.Errorf("failed to encode check types: %w", err)
	}

	now := time.Now().UTC()
	table.CreatedAt = now
	table.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO monitored_tables
			(id, connection_id, schema_name, table_name, check_types, freshness_sla_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, table.ID, table.ConnectionID, table.SchemaName, table.TableName, string(checks), table.FreshnessSLAMinutes, table.CreatedAt, table.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table %s: %w", table.FQN(), ErrDuplicate)
		}
		return fmt.Errorf("failed to create monitored table: %w", err)
	}
	return nil
}

const tableColumns = `id, connection_id, schema_name, table_name, check_types, freshness_sla_minutes, created_at, updated_at`

func scanTable(scanner interface{ Scan(...any) error }) (*models.MonitoredTable, error) {
	var (
		table  models.MonitoredTable
		checks string
		sla    sql.NullInt64
	)
	if err := scanner.Scan(&table.ID, &table.ConnectionID, &table.SchemaName, &table.TableName, &checks, &sla, &table.CreatedAt, &table.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(checks), &table.CheckTypes); err != nil {
		return nil, fmt.Errorf("failed to decode check types: %w", err)
	}
	if sla.Valid {
		v := int(sla.Int64)
		table.FreshnessSLAMinutes = &v
	}
	return &table, nil
}

// GetByID retrieves a monitored table by id.
func (r *TableRepository) GetByID(ctx context.Context, id string) (*models.MonitoredTable, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM monitored_tables WHERE id = ?`, id)
	table, err := scanTable(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("monitored table %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get monitored table: %w", err)
	}
	return table, nil
}

// List retrieves monitored tables, optionally filtered by connection, with
// pagination.
func (r *TableRepository) List(ctx context.Context, connectionID string, limit, offset int) ([]models.MonitoredTable, error) {
	query := `SELECT ` + tableColumns + ` FROM monitored_tables`
	args := []any{}
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY schema_name, table_name LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.MonitoredTable
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitored table: %w", err)
		}
		out = append(out, *table)
	}
	return out, rows.Err()
}

// ListByConnection retrieves every monitored table of one connection.
func (r *TableRepository) ListByConnection(ctx context.Context, connectionID string) ([]models.MonitoredTable, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tableColumns+` FROM monitored_tables
		WHERE connection_id = ? ORDER BY schema_name, table_name
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.MonitoredTable
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitored table: %w", err)
		}
		out = append(out, *table)
	}
	return out, rows.Err()
}

// Update modifies check types and the freshness SLA.
func (r *TableRepository) Update(ctx context.Context, table *models.MonitoredTable) error {
	if table == nil || table.ID == "" {
		return errors.New("table must have a valid ID")
	}

	checks, err := json.Marshal(table.CheckTypes)
	if err != nil {
		return fmt.Errorf("failed to encode check types: %w", err)
	}

	table.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE monitored_tables
		SET check_types = ?, freshness_sla_minutes = ?, updated_at = ?
		WHERE id = ?
	`, string(checks), table.FreshnessSLAMinutes, table.UpdatedAt, table.ID)
	if err != nil {
		return fmt.Errorf("failed to update monitored table: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("monitored table %s: %w", table.ID, ErrNotFound)
	}
	return nil
}

// Count returns the total number of monitored tables.
func (r *TableRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM monitored_tables`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count monitored tables: %w", err)
	}
	return count, nil
}

// Delete removes a monitored table and its snapshots, anomalies, and incidents.
func (r *TableRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM monitored_tables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete monitored table: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("monitored table %s: %w", id, ErrNotFound)
	}
	return nil
}
