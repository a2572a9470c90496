package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/orchestrator"
)

// IncidentHandlers serves incident listing, reports, and the approval state
// machine.
type IncidentHandlers struct {
	incidents    *db.IncidentRepository
	orchestrator *orchestrator.Orchestrator
}

// NewIncidentHandlers creates incident handlers.
func NewIncidentHandlers(incidents *db.IncidentRepository, orch *orchestrator.Orchestrator) *IncidentHandlers {
	return &IncidentHandlers{incidents: incidents, orchestrator: orch}
}

// List handles GET /incidents with status/severity/table_id/since filters.
func (h *IncidentHandlers) List(c *gin.Context) {
	limit, offset := parsePagination(c)
	filter := db.IncidentFilter{
		Status:   models.IncidentStatus(c.Query("status")),
		Severity: models.Severity(c.Query("severity")),
		TableID:  c.Query("table_id"),
		Limit:    limit,
		Offset:   offset,
	}
	if since := c.Query("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(c, http.StatusBadRequest, codeValidation, "since must be RFC3339")
			return
		}
		filter.Since = parsed
	}

	incidents, err := h.incidents.List(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "limit": limit, "offset": offset})
}

// Get handles GET /incidents/:id.
func (h *IncidentHandlers) Get(c *gin.Context) {
	inc, err := h.incidents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// Report handles GET /incidents/:id/report: 200 with the report, 204 when
// the incident exists but the report is not yet generated, 404 otherwise.
func (h *IncidentHandlers) Report(c *gin.Context) {
	inc, err := h.incidents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if len(inc.Report) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "application/json", inc.Report)
}

type approveRequest struct {
	Note       string `json:"note"`
	ApprovedBy string `json:"approved_by"`
}

// Approve handles POST /incidents/:id/approve.
func (h *IncidentHandlers) Approve(c *gin.Context) {
	var req approveRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	approvedBy := req.ApprovedBy
	if approvedBy == "" {
		approvedBy = "operator"
	}
	inc, err := h.orchestrator.Approve(c.Request.Context(), c.Param("id"), approvedBy)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

type dismissRequest struct {
	Reason      string `json:"reason"`
	DismissedBy string `json:"dismissed_by"`
}

// Dismiss handles POST /incidents/:id/dismiss. The reason is mandatory.
func (h *IncidentHandlers) Dismiss(c *gin.Context) {
	var req dismissRequest
	_ = c.ShouldBindJSON(&req)

	dismissedBy := req.DismissedBy
	if dismissedBy == "" {
		dismissedBy = "operator"
	}
	inc, err := h.orchestrator.Dismiss(c.Request.Context(), c.Param("id"), req.Reason, dismissedBy)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}
