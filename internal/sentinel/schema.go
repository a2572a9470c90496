package sentinel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// SnapshotStore is the persistence surface the schema sentinel needs.
type SnapshotStore interface {
	Latest(ctx context.Context, tableID string) (*models.SchemaSnapshot, error)
	Insert(ctx context.Context, snap *models.SchemaSnapshot) error
	InsertWithAnomaly(ctx context.Context, snap *models.SchemaSnapshot, anomaly *models.Anomaly) error
}

// SchemaSentinel detects column-level drift against the latest snapshot.
type SchemaSentinel struct {
	snapshots SnapshotStore
	log       zerolog.Logger
	now       func() time.Time
}

// NewSchemaSentinel creates a schema sentinel.
func NewSchemaSentinel(snapshots SnapshotStore, log zerolog.Logger) *SchemaSentinel {
	return &SchemaSentinel{
		snapshots: snapshots,
		log:       log.With().Str("component", "schema_sentinel").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Check fetches current columns, compares against the baseline, persists a
// new snapshot when the schema changed, and returns the drift anomaly (nil
// when there is none). Establishing the first baseline is not drift.
func (s *SchemaSentinel) Check(ctx context.Context, conn warehouse.Connector, table *models.MonitoredTable) (*models.Anomaly, error) {
	cols, err := conn.FetchColumns(ctx, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch columns for %s: %w", table.FQN(), err)
	}
	if len(cols) == 0 {
		s.log.Warn().Str("table", table.FQN()).Msg("table has no columns, skipping schema check")
		return nil, nil
	}

	canonical := CanonicalizeColumns(cols)
	currentHash := SnapshotHash(canonical)

	prior, err := s.snapshots.Latest(ctx, table.ID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("failed to load baseline for %s: %w", table.FQN(), err)
		}
		snap := s.newSnapshot(table.ID, canonical, currentHash)
		if err := s.snapshots.Insert(ctx, snap); err != nil {
			return nil, err
		}
		s.log.Info().Str("table", table.FQN()).Msg("established schema baseline")
		return nil, nil
	}

	if prior.SnapshotHash == currentHash {
		return nil, nil
	}

	changes := diffColumns(prior.Columns, canonical)
	if len(changes) == 0 {
		// The hash also covers ordinal and nullability, which diffColumns
		// does not compare, so such a change yields no diff; persist the
		// snapshot so the baseline converges, but emit nothing.
		s.log.Warn().Str("table", table.FQN()).Msg("snapshot hash changed without detectable column diff")
		return nil, s.snapshots.Insert(ctx, s.newSnapshot(table.ID, canonical, currentHash))
	}

	detail, err := models.EncodeDetail(models.SchemaDriftDetail{Changes: changes})
	if err != nil {
		return nil, fmt.Errorf("failed to encode drift detail: %w", err)
	}

	anomaly := &models.Anomaly{
		ID:         uuid.NewString(),
		TableID:    table.ID,
		Type:       models.AnomalySchemaDrift,
		Severity:   driftSeverity(changes),
		Detail:     detail,
		DetectedAt: s.now(),
	}

	snap := s.newSnapshot(table.ID, canonical, currentHash)
	if err := s.snapshots.InsertWithAnomaly(ctx, snap, anomaly); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("table", table.FQN()).
		Str("severity", string(anomaly.Severity)).
		Int("changes", len(changes)).
		Msg("schema drift detected")
	return anomaly, nil
}

func (s *SchemaSentinel) newSnapshot(tableID string, cols []models.Column, hash string) *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		ID:           uuid.NewString(),
		TableID:      tableID,
		Columns:      cols,
		SnapshotHash: hash,
		CapturedAt:   s.now(),
	}
}

// diffColumns computes the change list between two canonical column lists.
// Deleted+added pairs at the same ordinal with compatible types are folded
// into an inferred rename, consuming each candidate at most once in ordinal
// order.
func diffColumns(prior, current []models.Column) []models.SchemaChange {
	priorByName := make(map[string]models.Column, len(prior))
	for _, c := range prior {
		priorByName[c.Name] = c
	}
	currentByName := make(map[string]models.Column, len(current))
	for _, c := range current {
		currentByName[c.Name] = c
	}

	var added, deleted []models.Column
	var changes []models.SchemaChange

	for _, c := range current {
		if _, ok := priorByName[c.Name]; !ok {
			added = append(added, c)
		}
	}
	for _, c := range prior {
		if _, ok := currentByName[c.Name]; !ok {
			deleted = append(deleted, c)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Ordinal < added[j].Ordinal })
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Ordinal < deleted[j].Ordinal })

	// Rename inference: same ordinal, different name, compatible type.
	consumedAdd := make(map[int]bool)
	for _, d := range deleted {
		matched := false
		for i, a := range added {
			if consumedAdd[i] || a.Ordinal != d.Ordinal || !typesCompatible(a.Type, d.Type) {
				continue
			}
			changes = append(changes, models.SchemaChange{
				Kind:     models.ChangeColumnRenamed,
				Column:   a.Name,
				FromName: d.Name,
				FromType: d.Type,
				ToType:   a.Type,
			})
			consumedAdd[i] = true
			matched = true
			break
		}
		if !matched {
			changes = append(changes, models.SchemaChange{
				Kind:     models.ChangeColumnDeleted,
				Column:   d.Name,
				FromType: d.Type,
			})
		}
	}
	for i, a := range added {
		if consumedAdd[i] {
			continue
		}
		changes = append(changes, models.SchemaChange{
			Kind:     models.ChangeColumnAdded,
			Column:   a.Name,
			ToType:   a.Type,
			Nullable: a.Nullable,
		})
	}

	for _, c := range current {
		p, ok := priorByName[c.Name]
		if !ok {
			continue
		}
		if normalizeType(p.Type) != normalizeType(c.Type) {
			changes = append(changes, models.SchemaChange{
				Kind:     models.ChangeColumnTypeChanged,
				Column:   c.Name,
				FromType: p.Type,
				ToType:   c.Type,
			})
		}
	}
	return changes
}

// driftSeverity is the max over per-change severities.
func driftSeverity(changes []models.SchemaChange) models.Severity {
	severity := models.SeverityLow
	for _, change := range changes {
		severity = models.MaxSeverity(severity, changeSeverity(change))
	}
	return severity
}

func changeSeverity(change models.SchemaChange) models.Severity {
	switch change.Kind {
	case models.ChangeColumnDeleted, models.ChangeColumnTypeChanged:
		return models.SeverityCritical
	case models.ChangeColumnRenamed:
		return models.SeverityHigh
	case models.ChangeColumnAdded:
		if change.Nullable {
			return models.SeverityLow
		}
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
