package sentinel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// AnomalyStore is the persistence surface the freshness sentinel needs.
type AnomalyStore interface {
	Insert(ctx context.Context, anomaly *models.Anomaly) error
}

// FreshnessSentinel detects tables whose last update exceeds their SLA.
type FreshnessSentinel struct {
	anomalies AnomalyStore
	log       zerolog.Logger
	now       func() time.Time
}

// NewFreshnessSentinel creates a freshness sentinel.
func NewFreshnessSentinel(anomalies AnomalyStore, log zerolog.Logger) *FreshnessSentinel {
	return &FreshnessSentinel{
		anomalies: anomalies,
		log:       log.With().Str("component", "freshness_sentinel").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates the table's SLA against the warehouse's best last-update
// signal. A table without an SLA or without an evaluable signal opts out.
func (s *FreshnessSentinel) Check(ctx context.Context, conn warehouse.Connector, table *models.MonitoredTable) (*models.Anomaly, error) {
	if table.FreshnessSLAMinutes == nil {
		return nil, nil
	}

	lastUpdate, err := conn.FetchLastUpdateTime(ctx, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last update for %s: %w", table.FQN(), err)
	}
	if lastUpdate == nil {
		s.log.Debug().Str("table", table.FQN()).Msg("no last-update signal, freshness not evaluable")
		return nil, nil
	}

	sla := time.Duration(*table.FreshnessSLAMinutes) * time.Minute
	overdue := s.now().Sub(*lastUpdate) - sla
	if overdue <= 0 {
		return nil, nil
	}

	detail, err := models.EncodeDetail(models.FreshnessViolationDetail{
		LastUpdate:     lastUpdate.UTC(),
		SLAMinutes:     *table.FreshnessSLAMinutes,
		MinutesOverdue: int(overdue.Minutes()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode freshness detail: %w", err)
	}

	anomaly := &models.Anomaly{
		ID:         uuid.NewString(),
		TableID:    table.ID,
		Type:       models.AnomalyFreshnessViolation,
		Severity:   freshnessSeverity(overdue, sla),
		Detail:     detail,
		DetectedAt: s.now(),
	}
	if err := s.anomalies.Insert(ctx, anomaly); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("table", table.FQN()).
		Str("severity", string(anomaly.Severity)).
		Dur("overdue", overdue).
		Msg("freshness violation detected")
	return anomaly, nil
}

// freshnessSeverity classifies by the overdue/SLA ratio: under 1x medium,
// 1-4x high, 4x and beyond critical.
func freshnessSeverity(overdue, sla time.Duration) models.Severity {
	ratio := float64(overdue) / float64(sla)
	switch {
	case ratio >= 4:
		return models.SeverityCritical
	case ratio >= 1:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}
