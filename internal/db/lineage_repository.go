package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// LineageRepository handles database operations for lineage edges.
// Upserts are idempotent on (source, target); confidence never decreases and
// last_seen_at never moves backwards.
type LineageRepository struct {
	db *sql.DB
}

// NewLineageRepository creates a new LineageRepository.
func NewLineageRepository(db *sql.DB) *LineageRepository {
	return &LineageRepository{db: db}
}

// Upsert records an observation of (source, target).
func (r *LineageRepository) Upsert(ctx context.Context, edge *models.LineageEdge) error {
	if edge == nil {
		return errors.New("edge cannot be nil")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lineage_edges (source, target, relationship, confidence, query_hash, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, target) DO UPDATE SET
			confidence   = MAX(confidence, excluded.confidence),
			last_seen_at = MAX(last_seen_at, excluded.last_seen_at),
			query_hash   = excluded.query_hash
	`, edge.Source, edge.Target, edge.Relationship, edge.Confidence, edge.QueryHash, edge.FirstSeenAt, edge.LastSeenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert lineage edge: %w", err)
	}
	return nil
}

// Get retrieves one edge, ErrNotFound when absent.
func (r *LineageRepository) Get(ctx context.Context, source, target string) (*models.LineageEdge, error) {
	var edge models.LineageEdge
	err := r.db.QueryRowContext(ctx, `
		SELECT source, target, relationship, confidence, query_hash, first_seen_at, last_seen_at
		FROM lineage_edges WHERE source = ? AND target = ?
	`, source, target).Scan(&edge.Source, &edge.Target, &edge.Relationship, &edge.Confidence, &edge.QueryHash, &edge.FirstSeenAt, &edge.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lineage edge %s->%s: %w", source, target, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get lineage edge: %w", err)
	}
	return &edge, nil
}

// ListFresh returns every edge seen at or after the cutoff. Stale edges stay
// in storage for audit but are excluded from graph queries.
func (r *LineageRepository) ListFresh(ctx context.Context, seenSince time.Time) ([]models.LineageEdge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, target, relationship, confidence, query_hash, first_seen_at, last_seen_at
		FROM lineage_edges
		WHERE last_seen_at >= ?
		ORDER BY source, target
	`, seenSince)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage edges: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var out []models.LineageEdge
	for rows.Next() {
		var edge models.LineageEdge
		if err := rows.Scan(&edge.Source, &edge.Target, &edge.Relationship, &edge.Confidence, &edge.QueryHash, &edge.FirstSeenAt, &edge.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan lineage edge: %w", err)
		}
		out = append(out, edge)
	}
	return out, rows.Err()
}

// Count returns the total number of stored edges, stale included.
func (r *LineageRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lineage_edges`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count lineage edges: %w", err)
	}
	return count, nil
}
