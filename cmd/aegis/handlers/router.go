package handlers

import (
	"github.com/gin-gonic/gin"
)

// Deps bundles the handler groups for route registration.
type Deps struct {
	Connections *ConnectionHandlers
	Tables      *TableHandlers
	Incidents   *IncidentHandlers
	Lineage     *LineageHandlers
	System      *SystemHandlers
	WS          *WSHandlers
	APIKey      string
}

// RegisterRoutes mounts the full API surface on the engine. /health is the
// only unauthenticated route; websocket clients authenticate via the
// api_key query parameter accepted by the same middleware.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	r.GET("/health", deps.System.Health)

	api := r.Group("/api/v1")
	api.Use(APIKeyAuth(deps.APIKey))
	{
		api.GET("/connections", deps.Connections.List)
		api.POST("/connections", deps.Connections.Create)
		api.GET("/connections/:id", deps.Connections.Get)
		api.PUT("/connections/:id", deps.Connections.Update)
		api.DELETE("/connections/:id", deps.Connections.Delete)
		api.POST("/connections/:id/test", deps.Connections.Test)
		api.POST("/connections/:id/discover", deps.Connections.Discover)
		api.POST("/connections/:id/discover/confirm", deps.Connections.ConfirmDiscovery)

		api.GET("/tables", deps.Tables.List)
		api.POST("/tables", deps.Tables.Create)
		api.PUT("/tables/:id", deps.Tables.Update)
		api.DELETE("/tables/:id", deps.Tables.Delete)

		api.GET("/incidents", deps.Incidents.List)
		api.GET("/incidents/:id", deps.Incidents.Get)
		api.GET("/incidents/:id/report", deps.Incidents.Report)
		api.POST("/incidents/:id/approve", deps.Incidents.Approve)
		api.POST("/incidents/:id/dismiss", deps.Incidents.Dismiss)

		api.GET("/lineage/graph", deps.Lineage.Graph)
		api.GET("/lineage/:table/upstream", deps.Lineage.Upstream)
		api.GET("/lineage/:table/downstream", deps.Lineage.Downstream)
		api.GET("/lineage/:table/blast-radius", deps.Lineage.BlastRadius)

		api.GET("/stats", deps.System.Stats)
		api.POST("/scan/trigger", deps.System.TriggerScan)

		api.GET("/ws", deps.WS.Stream)
	}
}
