package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/architect"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/executor"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/scanner"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/sentinel"
)

const testAPIKey = "test-api-key"

type testServer struct {
	router    *gin.Engine
	store     *db.Store
	orch      *orchestrator.Orchestrator
	tables    *db.TableRepository
	incidents *db.IncidentRepository
	conn      *models.Connection
}

// newTestServer wires the full handler surface over an in-memory store,
// mirroring the production wiring without starting the scanner.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := zerolog.Nop()
	cipher, err := crypto.NewAESCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	connectionRepo := db.NewConnectionRepository(store.DB())
	tableRepo := db.NewTableRepository(store.DB())
	snapshotRepo := db.NewSnapshotRepository(store.DB())
	anomalyRepo := db.NewAnomalyRepository(store.DB())
	incidentRepo := db.NewIncidentRepository(store.DB())
	lineageRepo := db.NewLineageRepository(store.DB())

	hub := notifier.NewHub(100)
	engine := lineage.NewEngine(lineageRepo, lineage.Options{}, log)
	arch := architect.New(nil, engine, anomalyRepo, snapshotRepo, tableRepo, log)
	orch := orchestrator.New(incidentRepo, arch, executor.New(), hub, log)
	inv := investigator.New(nil, engine, tableRepo, log)

	scan := scanner.New(connectionRepo, tableRepo, cipher,
		sentinel.NewSchemaSentinel(snapshotRepo, log),
		sentinel.NewFreshnessSentinel(anomalyRepo, log),
		orch, engine, inv, hub,
		scanner.Intervals{Scan: time.Hour, Lineage: time.Hour, Rediscovery: time.Hour}, 2, log)

	router := gin.New()
	RegisterRoutes(router, Deps{
		Connections: NewConnectionHandlers(connectionRepo, tableRepo, cipher, inv),
		Tables:      NewTableHandlers(tableRepo),
		Incidents:   NewIncidentHandlers(incidentRepo, orch),
		Lineage:     NewLineageHandlers(engine),
		System:      NewSystemHandlers(connectionRepo, tableRepo, incidentRepo, anomalyRepo, lineageRepo, scan),
		WS:          NewWSHandlers(hub, log),
		APIKey:      testAPIKey,
	})

	conn := &models.Connection{ID: uuid.NewString(), Name: "wh", Dialect: models.DialectPostgres, URIEncrypted: "x", IsActive: true}
	require.NoError(t, connectionRepo.Create(context.Background(), conn))

	return &testServer{router: router, store: store, orch: orch, tables: tableRepo, incidents: incidentRepo, conn: conn}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedIncident(t *testing.T) *models.Incident {
	t.Helper()
	table := &models.MonitoredTable{
		ID: uuid.NewString(), ConnectionID: s.conn.ID,
		SchemaName: "analytics", TableName: "orders_" + uuid.NewString()[:8],
		CheckTypes: []models.CheckType{models.CheckSchema},
	}
	require.NoError(t, s.tables.Create(context.Background(), table))

	anomaly := &models.Anomaly{
		ID: uuid.NewString(), TableID: table.ID,
		Type: models.AnomalySchemaDrift, Severity: models.SeverityHigh,
		Detail: []byte(`{"changes":[]}`), DetectedAt: time.Now().UTC(),
	}
	inc, err := s.orch.HandleAnomaly(context.Background(), anomaly, table)
	require.NoError(t, err)
	return inc
}

// TestAPI_RequiresAuth verifies the shared-secret gate and the open health
// endpoint.
func TestAPI_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestAPI_DismissRequiresReason covers both halves of the dismissal rule.
func TestAPI_DismissRequiresReason(t *testing.T) {
	s := newTestServer(t)
	inc := s.seedIncident(t)

	rec := s.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/dismiss", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "missing_reason", errBody["code"])

	rec = s.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/dismiss", map[string]any{"reason": "expected change"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var dismissed models.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dismissed))
	assert.Equal(t, models.StatusDismissed, dismissed.Status)

	// No further transitions succeed on a terminal incident.
	rec = s.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "invalid_transition", errBody["code"])
}

// TestAPI_IncidentReport_StatusContract verifies 200/204/404.
func TestAPI_IncidentReport_StatusContract(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/incidents/"+uuid.NewString()+"/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	inc := s.seedIncident(t)
	rec = s.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/report", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var report models.IncidentReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report.Title)

	// An incident still investigating has no report yet.
	bare := &models.Incident{ID: uuid.NewString(), AnomalyID: "a", TableID: inc.TableID, Type: models.AnomalyFreshnessViolation, Severity: models.SeverityLow}
	require.NoError(t, s.incidents.CreateInvestigating(context.Background(), bare))
	rec = s.do(t, http.MethodGet, "/api/v1/incidents/"+bare.ID+"/report", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// TestAPI_Approve_Resolves verifies the approval route.
func TestAPI_Approve_Resolves(t *testing.T) {
	s := newTestServer(t)
	inc := s.seedIncident(t)

	rec := s.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/approve", map[string]any{"approved_by": "alice"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var resolved models.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.Equal(t, "alice", resolved.ResolvedBy)
}

// TestAPI_TableCreate_DuplicateSurfaced verifies direct enrollment conflicts
// are reported, unlike confirm.
func TestAPI_TableCreate_DuplicateSurfaced(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"connection_id": s.conn.ID,
		"schema_name":   "public",
		"table_name":    "users",
		"check_types":   []string{"schema"},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/tables", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/tables", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "duplicate_enrollment", errBody["code"])
}

// TestAPI_ConfirmDiscovery_Idempotent verifies confirm-then-confirm yields
// the same monitored set with duplicates skipped silently.
func TestAPI_ConfirmDiscovery_Idempotent(t *testing.T) {
	s := newTestServer(t)

	sla := 60
	body := map[string]any{
		"table_selections": []map[string]any{
			{"schema": "public", "table": "a", "check_types": []string{"schema"}},
			{"schema": "public", "table": "b", "check_types": []string{"schema", "freshness"}, "freshness_sla_minutes": sla},
		},
	}

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/connections/%s/discover/confirm", s.conn.ID), body)
	require.Equal(t, http.StatusOK, rec.Code)
	var first map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, 2, first["enrolled"])
	assert.Equal(t, 0, first["skipped"])

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/connections/%s/discover/confirm", s.conn.ID), body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, 0, second["enrolled"])
	assert.Equal(t, 2, second["skipped"])

	tables, err := s.tables.ListByConnection(context.Background(), s.conn.ID)
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}

// TestAPI_Stats_Shape verifies the aggregate endpoint.
func TestAPI_Stats_Shape(t *testing.T) {
	s := newTestServer(t)
	s.seedIncident(t)

	rec := s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["connections"])
	assert.EqualValues(t, 1, stats["monitored_tables"])
	assert.EqualValues(t, 1, stats["open_incidents"])
}

// TestAPI_ScanTrigger_Accepted verifies the manual trigger contract.
func TestAPI_ScanTrigger_Accepted(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/scan/trigger", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// TestAPI_LineageGraph_Empty verifies the graph endpoint shape.
func TestAPI_LineageGraph_Empty(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/lineage/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "nodes")
	assert.Contains(t, body, "edges")
}
