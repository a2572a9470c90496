package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// TableHandlers serves monitored-table CRUD.
type TableHandlers struct {
	tables *db.TableRepository
}

// NewTableHandlers creates table handlers.
func NewTableHandlers(tables *db.TableRepository) *TableHandlers {
	return &TableHandlers{tables: tables}
}

// parsePagination extracts and validates pagination parameters.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 100
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 1000 {
			limit = val
		}
	}
	offset = 0
	if o := c.Query("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			offset = val
		}
	}
	return limit, offset
}

// List handles GET /tables.
func (h *TableHandlers) List(c *gin.Context) {
	limit, offset := parsePagination(c)
	tables, err := h.tables.List(c.Request.Context(), c.Query("connection_id"), limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables, "limit": limit, "offset": offset})
}

type tableRequest struct {
	ConnectionID        string             `json:"connection_id"`
	SchemaName          string             `json:"schema_name" binding:"required"`
	TableName           string             `json:"table_name" binding:"required"`
	CheckTypes          []models.CheckType `json:"check_types"`
	FreshnessSLAMinutes *int               `json:"freshness_sla_minutes"`
}

// Create handles POST /tables. A duplicate enrollment is surfaced, unlike
// the silent skip on discovery confirm.
func (h *TableHandlers) Create(c *gin.Context) {
	var req tableRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConnectionID == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "connection_id, schema_name, and table_name are required")
		return
	}
	if !validCheckTypes(req.CheckTypes) {
		respondError(c, http.StatusBadRequest, codeValidation, "check_types may only contain schema and freshness")
		return
	}

	checks := req.CheckTypes
	if len(checks) == 0 {
		checks = []models.CheckType{models.CheckSchema}
	}
	table := &models.MonitoredTable{
		ID:                  uuid.NewString(),
		ConnectionID:        req.ConnectionID,
		SchemaName:          req.SchemaName,
		TableName:           req.TableName,
		CheckTypes:          checks,
		FreshnessSLAMinutes: req.FreshnessSLAMinutes,
	}
	if err := h.tables.Create(c.Request.Context(), table); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

// Update handles PUT /tables/:id.
func (h *TableHandlers) Update(c *gin.Context) {
	table, err := h.tables.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var req tableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "schema_name and table_name are required")
		return
	}
	if !validCheckTypes(req.CheckTypes) {
		respondError(c, http.StatusBadRequest, codeValidation, "check_types may only contain schema and freshness")
		return
	}

	if len(req.CheckTypes) > 0 {
		table.CheckTypes = req.CheckTypes
	}
	table.FreshnessSLAMinutes = req.FreshnessSLAMinutes
	if err := h.tables.Update(c.Request.Context(), table); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

// Delete handles DELETE /tables/:id.
func (h *TableHandlers) Delete(c *gin.Context) {
	if err := h.tables.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func validCheckTypes(checks []models.CheckType) bool {
	for _, ct := range checks {
		if ct != models.CheckSchema && ct != models.CheckFreshness {
			return false
		}
	}
	return true
}
