package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/lineage"
)

// LineageHandlers serves graph queries over the non-stale lineage DAG.
type LineageHandlers struct {
	engine *lineage.Engine
}

// NewLineageHandlers creates lineage handlers.
func NewLineageHandlers(engine *lineage.Engine) *LineageHandlers {
	return &LineageHandlers{engine: engine}
}

// Graph handles GET /lineage/graph.
func (h *LineageHandlers) Graph(c *gin.Context) {
	nodes, edges, err := h.engine.Graph(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "edges": edges})
}

// Upstream handles GET /lineage/:table/upstream.
func (h *LineageHandlers) Upstream(c *gin.Context) {
	nodes, err := h.engine.Upstream(c.Request.Context(), c.Param("table"), parseDepth(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": c.Param("table"), "upstream": nodes})
}

// Downstream handles GET /lineage/:table/downstream.
func (h *LineageHandlers) Downstream(c *gin.Context) {
	nodes, err := h.engine.Downstream(c.Request.Context(), c.Param("table"), parseDepth(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": c.Param("table"), "downstream": nodes})
}

// BlastRadius handles GET /lineage/:table/blast-radius.
func (h *LineageHandlers) BlastRadius(c *gin.Context) {
	radius, err := h.engine.BlastRadiusFor(c.Request.Context(), c.Param("table"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, radius)
}

func parseDepth(c *gin.Context) int {
	if d := c.Query("depth"); d != "" {
		if val, err := strconv.Atoi(d); err == nil && val > 0 {
			return val
		}
	}
	return 0 // engine applies its configured max depth
}
