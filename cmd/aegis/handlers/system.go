package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/scanner"
)

// SystemHandlers serves liveness, aggregate stats, and manual scan triggers.
type SystemHandlers struct {
	connections *db.ConnectionRepository
	tables      *db.TableRepository
	incidents   *db.IncidentRepository
	anomalies   *db.AnomalyRepository
	lineage     *db.LineageRepository
	scanner     *scanner.Scanner
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(connections *db.ConnectionRepository, tables *db.TableRepository,
	incidents *db.IncidentRepository, anomalies *db.AnomalyRepository,
	lineageRepo *db.LineageRepository, scan *scanner.Scanner) *SystemHandlers {
	return &SystemHandlers{
		connections: connections,
		tables:      tables,
		incidents:   incidents,
		anomalies:   anomalies,
		lineage:     lineageRepo,
		scanner:     scan,
	}
}

// Health handles GET /health. Unauthenticated liveness probe.
func (h *SystemHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats handles GET /stats with the dashboard aggregates.
func (h *SystemHandlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	connections, err := h.connections.List(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	tableCount, err := h.tables.Count(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	openIncidents, bySeverity, err := h.incidents.CountByStatus(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	anomalies24h, err := h.anomalies.CountSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	edgeCount, err := h.lineage.Count(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	stats := gin.H{
		"connections":           len(connections),
		"monitored_tables":      tableCount,
		"open_incidents":        openIncidents,
		"incidents_by_severity": bySeverity,
		"anomalies_24h":         anomalies24h,
		"lineage_edges":         edgeCount,
	}
	if last := h.scanner.LastScanAt(); !last.IsZero() {
		stats["last_scan_at"] = last
	}
	c.JSON(http.StatusOK, stats)
}

// TriggerScan handles POST /scan/trigger.
func (h *SystemHandlers) TriggerScan(c *gin.Context) {
	h.scanner.TriggerScan()
	c.JSON(http.StatusAccepted, gin.H{"status": "scan requested"})
}
