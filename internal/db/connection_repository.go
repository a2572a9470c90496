package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// ConnectionRepository handles database operations for warehouse connections.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a new connection.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn == nil {
		return errors.New("connection cannot be nil")
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connections (id, name, dialect, uri_encrypted, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conn.ID, conn.Name, conn.Dialect, conn.URIEncrypted, conn.IsActive, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("connection %q: %w", conn.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// GetByID retrieves a connection by id.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	conn := &models.Connection{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, dialect, uri_encrypted, is_active, created_at, updated_at
		FROM connections WHERE id = ?
	`, id).Scan(&conn.ID, &conn.Name, &conn.Dialect, &conn.URIEncrypted, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// List retrieves all connections ordered by name.
func (r *ConnectionRepository) List(ctx context.Context) ([]models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, dialect, uri_encrypted, is_active, created_at, updated_at
		FROM connections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.Connection
	for rows.Next() {
		var conn models.Connection
		if err := rows.Scan(&conn.ID, &conn.Name, &conn.Dialect, &conn.URIEncrypted, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

// ListActive retrieves connections with is_active set.
func (r *ConnectionRepository) ListActive(ctx context.Context) ([]models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, dialect, uri_encrypted, is_active, created_at, updated_at
		FROM connections WHERE is_active = 1 ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active connections: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.Connection
	for rows.Next() {
		var conn models.Connection
		if err := rows.Scan(&conn.ID, &conn.Name, &conn.Dialect, &conn.URIEncrypted, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

// Update modifies name, dialect, URI ciphertext, and active flag.
func (r *ConnectionRepository) Update(ctx context.Context, conn *models.Connection) error {
	if conn == nil || conn.ID == "" {
		return errors.New("connection must have a valid ID")
	}

	conn.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE connections
		SET name = ?, dialect = ?, uri_encrypted = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, conn.Name, conn.Dialect, conn.URIEncrypted, conn.IsActive, conn.UpdatedAt, conn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("connection %q: %w", conn.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update connection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection %s: %w", conn.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a connection. Monitored tables cascade.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// isUniqueViolation recognizes sqlite uniqueness constraint failures.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
