package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

const probeTimeout = 10 * time.Second

// ConnectionHandlers serves connection CRUD, probing, and discovery.
type ConnectionHandlers struct {
	connections  *db.ConnectionRepository
	tables       *db.TableRepository
	cipher       crypto.Cipher
	investigator *investigator.Investigator
}

// NewConnectionHandlers creates connection handlers.
func NewConnectionHandlers(connections *db.ConnectionRepository, tables *db.TableRepository, cipher crypto.Cipher, inv *investigator.Investigator) *ConnectionHandlers {
	return &ConnectionHandlers{connections: connections, tables: tables, cipher: cipher, investigator: inv}
}

type connectionRequest struct {
	Name     string `json:"name" binding:"required"`
	Dialect  string `json:"dialect" binding:"required"`
	URI      string `json:"uri"`
	IsActive *bool  `json:"is_active"`
}

// List handles GET /connections.
func (h *ConnectionHandlers) List(c *gin.Context) {
	connections, err := h.connections.List(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

// Get handles GET /connections/:id.
func (h *ConnectionHandlers) Get(c *gin.Context) {
	conn, err := h.connections.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Create handles POST /connections.
func (h *ConnectionHandlers) Create(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "name and dialect are required")
		return
	}
	if req.URI == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "uri is required")
		return
	}

	encrypted, err := h.cipher.Encrypt(req.URI)
	if err != nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to protect connection URI")
		return
	}

	conn := &models.Connection{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Dialect:      models.Dialect(req.Dialect),
		URIEncrypted: encrypted,
		IsActive:     true,
	}
	if req.IsActive != nil {
		conn.IsActive = *req.IsActive
	}
	if err := h.connections.Create(c.Request.Context(), conn); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

// Update handles PUT /connections/:id.
func (h *ConnectionHandlers) Update(c *gin.Context) {
	conn, err := h.connections.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "name and dialect are required")
		return
	}

	conn.Name = req.Name
	conn.Dialect = models.Dialect(req.Dialect)
	if req.IsActive != nil {
		conn.IsActive = *req.IsActive
	}
	if req.URI != "" {
		encrypted, err := h.cipher.Encrypt(req.URI)
		if err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, "failed to protect connection URI")
			return
		}
		conn.URIEncrypted = encrypted
	}
	if err := h.connections.Update(c.Request.Context(), conn); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Delete handles DELETE /connections/:id.
func (h *ConnectionHandlers) Delete(c *gin.Context) {
	if err := h.connections.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Test handles POST /connections/:id/test with a trivial probe query.
func (h *ConnectionHandlers) Test(c *gin.Context) {
	conn, wc, err := h.openConnector(c)
	if err != nil {
		return
	}
	defer wc.Dispose() //nolint:errcheck // dispose error ignored on probe

	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	started := time.Now()
	if _, err := wc.ListSchemas(ctx); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error(), "latency_ms": time.Since(started).Milliseconds()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "latency_ms": time.Since(started).Milliseconds(), "connection": conn.Name})
}

// Discover handles POST /connections/:id/discover.
func (h *ConnectionHandlers) Discover(c *gin.Context) {
	conn, wc, err := h.openConnector(c)
	if err != nil {
		return
	}
	defer wc.Dispose() //nolint:errcheck // dispose error ignored after discovery

	report, err := h.investigator.Discover(c.Request.Context(), wc, conn)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type tableSelection struct {
	Schema              string             `json:"schema" binding:"required"`
	Table               string             `json:"table" binding:"required"`
	CheckTypes          []models.CheckType `json:"check_types"`
	FreshnessSLAMinutes *int               `json:"freshness_sla_minutes"`
}

type confirmRequest struct {
	TableSelections []tableSelection `json:"table_selections" binding:"required"`
}

// ConfirmDiscovery handles POST /connections/:id/discover/confirm.
// Enrollment is idempotent: duplicates are skipped silently.
func (h *ConnectionHandlers) ConfirmDiscovery(c *gin.Context) {
	conn, err := h.connections.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "table_selections is required")
		return
	}

	enrolled, skipped := 0, 0
	for _, sel := range req.TableSelections {
		checks := sel.CheckTypes
		if len(checks) == 0 {
			checks = []models.CheckType{models.CheckSchema}
		}
		table := &models.MonitoredTable{
			ID:                  uuid.NewString(),
			ConnectionID:        conn.ID,
			SchemaName:          sel.Schema,
			TableName:           sel.Table,
			CheckTypes:          checks,
			FreshnessSLAMinutes: sel.FreshnessSLAMinutes,
		}
		if err := h.tables.Create(c.Request.Context(), table); err != nil {
			if isDuplicate(err) {
				skipped++
				continue
			}
			respondDomainError(c, err)
			return
		}
		enrolled++
	}
	c.JSON(http.StatusOK, gin.H{"enrolled": enrolled, "skipped": skipped})
}

// openConnector loads the connection and instantiates its connector,
// responding with the mapped error on failure.
func (h *ConnectionHandlers) openConnector(c *gin.Context) (*models.Connection, warehouse.Connector, error) {
	conn, err := h.connections.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return nil, nil, err
	}
	uri, err := h.cipher.Decrypt(conn.URIEncrypted)
	if err != nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to unlock connection URI")
		return nil, nil, err
	}
	wc, err := warehouse.Open(conn.Dialect, uri)
	if err != nil {
		respondDomainError(c, err)
		return nil, nil, err
	}
	return conn, wc, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, db.ErrDuplicate)
}
