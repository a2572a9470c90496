// Package handlers provides the HTTP handlers for the Aegis API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// Stable API error codes.
const (
	codeNotFound            = "not_found"
	codeValidation          = "validation_error"
	codeDuplicateEnrollment = "duplicate_enrollment"
	codeMissingReason       = "missing_reason"
	codeInvalidTransition   = "invalid_transition"
	codeWarehouseError      = "warehouse_error"
	codeInternal            = "internal_error"
)

// respondError writes the structured error envelope. Internal details never
// include warehouse URIs or prompts.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "message": message})
}

// respondDomainError maps domain errors to status codes and stable codes.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(c, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, db.ErrDuplicate):
		respondError(c, http.StatusConflict, codeDuplicateEnrollment, err.Error())
	case errors.Is(err, orchestrator.ErrMissingReason):
		respondError(c, http.StatusBadRequest, codeMissingReason, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		respondError(c, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, warehouse.ErrConnectivity), errors.Is(err, warehouse.ErrPermission), errors.Is(err, warehouse.ErrUnsupported):
		respondError(c, http.StatusBadGateway, codeWarehouseError, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
