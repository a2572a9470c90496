// Package scanner drives the periodic inspection cadences: table scans,
// lineage refresh, and rediscovery, plus manual triggers.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/sentinel"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// Per-call deadlines for external work inside a cycle.
const (
	tableScanTimeout   = 30 * time.Second
	lineagePullTimeout = 2 * time.Minute
	queryLogBatchLimit = 500
)

// ConnectionStore serves active connections for scanning.
type ConnectionStore interface {
	ListActive(ctx context.Context) ([]models.Connection, error)
}

// TableStore serves the monitored tables of one connection.
type TableStore interface {
	ListByConnection(ctx context.Context, connectionID string) ([]models.MonitoredTable, error)
}

// EventPublisher broadcasts scan lifecycle events.
type EventPublisher interface {
	Publish(kind notifier.EventKind, payload map[string]any) notifier.Event
}

// Intervals holds the three independent cadences.
type Intervals struct {
	Scan        time.Duration
	Lineage     time.Duration
	Rediscovery time.Duration
}

// Scanner is the single background agent owning the cadence state.
type Scanner struct {
	connections  ConnectionStore
	tables       TableStore
	cipher       crypto.Cipher
	schema       *sentinel.SchemaSentinel
	freshness    *sentinel.FreshnessSentinel
	orchestrator *orchestrator.Orchestrator
	lineage      *lineage.Engine
	investigator *investigator.Investigator
	events       EventPublisher
	log          zerolog.Logger

	intervals Intervals
	workers   int64

	// openConn is the connector factory; replaced in tests.
	openConn func(*models.Connection) (warehouse.Connector, error)

	lastScanAt      time.Time
	lastLineagePull time.Time
	stateMu         sync.Mutex

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	trigger chan struct{}
	done    chan struct{}
}

// New creates a Scanner.
func New(connections ConnectionStore, tables TableStore, cipher crypto.Cipher,
	schemaSentinel *sentinel.SchemaSentinel, freshnessSentinel *sentinel.FreshnessSentinel,
	orch *orchestrator.Orchestrator, lineageEngine *lineage.Engine, inv *investigator.Investigator,
	events EventPublisher, intervals Intervals, workers int, log zerolog.Logger) *Scanner {
	if workers <= 0 {
		workers = 4
	}
	s := &Scanner{
		connections:  connections,
		tables:       tables,
		cipher:       cipher,
		schema:       schemaSentinel,
		freshness:    freshnessSentinel,
		orchestrator: orch,
		lineage:      lineageEngine,
		investigator: inv,
		events:       events,
		intervals:    intervals,
		workers:      int64(workers),
		log:          log.With().Str("component", "scanner").Logger(),
		stopCh:       make(chan struct{}),
		trigger:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	s.openConn = s.openConnector
	return s
}

// Start launches the background loop.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.run()
}

// Stop signals the loop and waits for the current cycle to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.done
}

// TriggerScan requests an immediate scan cycle. Non-blocking; collapses
// into an already-pending trigger.
func (s *Scanner) TriggerScan() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// LastScanAt reports when the last scan cycle finished.
func (s *Scanner) LastScanAt() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastScanAt
}

// run drives three wall-clock deadlines rather than tickers; each deadline
// is re-armed from the end of its own cycle. The cadences share this one
// loop, so a long cycle also holds back any other cadence that falls due.
func (s *Scanner) run() {
	defer close(s.done)

	now := time.Now()
	nextScan := now
	nextLineage := now.Add(s.intervals.Lineage)
	nextRediscovery := now.Add(s.intervals.Rediscovery)

	for {
		next := nextScan
		if nextLineage.Before(next) {
			next = nextLineage
		}
		if nextRediscovery.Before(next) {
			next = nextRediscovery
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.trigger:
			timer.Stop()
			s.runScanCycle(context.Background())
			nextScan = time.Now().Add(s.intervals.Scan)
		case <-timer.C:
			now = time.Now()
			if !now.Before(nextScan) {
				s.runScanCycle(context.Background())
				nextScan = time.Now().Add(s.intervals.Scan)
			}
			if !now.Before(nextLineage) {
				s.runLineageRefresh(context.Background())
				nextLineage = time.Now().Add(s.intervals.Lineage)
			}
			if !now.Before(nextRediscovery) {
				s.runRediscovery(context.Background())
				nextRediscovery = time.Now().Add(s.intervals.Rediscovery)
			}
		}
	}
}

// runScanCycle inspects every monitored table of every active connection
// with a bounded worker pool. All sentinel work for one table is serial.
func (s *Scanner) runScanCycle(ctx context.Context) {
	started := time.Now()
	var (
		tablesScanned int
		anomalies     int
		counterMu     sync.Mutex
	)

	connections, err := s.connections.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scan cycle aborted: cannot list connections")
		return
	}

	for _, connection := range connections {
		conn, err := s.openConn(&connection)
		if err != nil {
			s.log.Error().Err(err).Str("connection", connection.Name).Msg("skipping connection")
			continue
		}

		tables, err := s.tables.ListByConnection(ctx, connection.ID)
		if err != nil {
			s.log.Error().Err(err).Str("connection", connection.Name).Msg("cannot list tables")
			s.dispose(conn, connection.Name)
			continue
		}

		sem := semaphore.NewWeighted(s.workers)
		var wg sync.WaitGroup
		for i := range tables {
			table := tables[i]
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				found := s.scanTable(ctx, conn, &table)
				counterMu.Lock()
				tablesScanned++
				anomalies += found
				counterMu.Unlock()
			}()
		}
		wg.Wait()
		s.dispose(conn, connection.Name)
	}

	duration := time.Since(started)
	s.stateMu.Lock()
	s.lastScanAt = time.Now().UTC()
	s.stateMu.Unlock()

	s.events.Publish(notifier.EventScanCompleted, map[string]any{
		"tables_scanned":  tablesScanned,
		"anomalies_found": anomalies,
		"duration_ms":     duration.Milliseconds(),
	})
	s.log.Info().Int("tables", tablesScanned).Int("anomalies", anomalies).Dur("took", duration).Msg("scan cycle completed")
}

// scanTable runs both sentinels for one table, serially, and routes any
// anomaly through the orchestrator. Errors skip the table, never the cycle.
func (s *Scanner) scanTable(ctx context.Context, conn warehouse.Connector, table *models.MonitoredTable) int {
	ctx, cancel := context.WithTimeout(ctx, tableScanTimeout)
	defer cancel()

	found := 0
	if table.HasCheck(models.CheckSchema) {
		anomaly, err := s.schema.Check(ctx, conn, table)
		if err != nil {
			s.log.Warn().Err(err).Str("table", table.FQN()).Msg("schema check failed")
		} else if anomaly != nil {
			found++
			s.handleAnomaly(ctx, anomaly, table)
		}
	}
	if table.HasCheck(models.CheckFreshness) {
		anomaly, err := s.freshness.Check(ctx, conn, table)
		if err != nil {
			s.log.Warn().Err(err).Str("table", table.FQN()).Msg("freshness check failed")
		} else if anomaly != nil {
			found++
			s.handleAnomaly(ctx, anomaly, table)
		}
	}
	return found
}

func (s *Scanner) handleAnomaly(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) {
	s.events.Publish(notifier.EventAnomalyDetected, map[string]any{
		"anomaly_id": anomaly.ID,
		"table":      table.FQN(),
		"type":       anomaly.Type,
	})
	if _, err := s.orchestrator.HandleAnomaly(ctx, anomaly, table); err != nil {
		s.log.Error().Err(err).Str("table", table.FQN()).Msg("failed to handle anomaly")
	}
}

// runLineageRefresh ingests each connection's query log into the lineage
// graph.
func (s *Scanner) runLineageRefresh(ctx context.Context) {
	connections, err := s.connections.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("lineage refresh aborted: cannot list connections")
		return
	}

	s.stateMu.Lock()
	since := s.lastLineagePull
	if since.IsZero() {
		since = time.Now().UTC().Add(-s.intervals.Lineage)
	}
	s.stateMu.Unlock()

	for _, connection := range connections {
		conn, err := s.openConn(&connection)
		if err != nil {
			s.log.Error().Err(err).Str("connection", connection.Name).Msg("skipping lineage refresh")
			continue
		}

		pullCtx, cancel := context.WithTimeout(ctx, lineagePullTimeout)
		entries, err := conn.ExtractQueryLog(pullCtx, since, queryLogBatchLimit)
		if err != nil {
			s.log.Warn().Err(err).Str("connection", connection.Name).Msg("query log extraction failed")
		} else if written, err := s.lineage.Ingest(pullCtx, entries); err != nil {
			s.log.Warn().Err(err).Str("connection", connection.Name).Msg("lineage ingest failed")
		} else {
			s.log.Info().Str("connection", connection.Name).Int("queries", len(entries)).Int("edges", written).Msg("lineage refreshed")
		}
		cancel()
		s.dispose(conn, connection.Name)
	}

	s.stateMu.Lock()
	s.lastLineagePull = time.Now().UTC()
	s.stateMu.Unlock()
}

// runRediscovery emits table deltas per connection and publishes a
// discovery.update event when anything changed.
func (s *Scanner) runRediscovery(ctx context.Context) {
	connections, err := s.connections.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("rediscovery aborted: cannot list connections")
		return
	}

	for _, connection := range connections {
		conn, err := s.openConn(&connection)
		if err != nil {
			s.log.Error().Err(err).Str("connection", connection.Name).Msg("skipping rediscovery")
			continue
		}
		deltas, err := s.investigator.Rediscover(ctx, conn, connection.ID)
		s.dispose(conn, connection.Name)
		if err != nil {
			s.log.Warn().Err(err).Str("connection", connection.Name).Msg("rediscovery failed")
			continue
		}
		if len(deltas) == 0 {
			continue
		}
		s.events.Publish(notifier.EventDiscoveryUpdate, map[string]any{
			"connection_id": connection.ID,
			"total_deltas":  len(deltas),
		})
		s.log.Info().Str("connection", connection.Name).Int("deltas", len(deltas)).Msg("rediscovery found changes")
	}
}

// openConnector decrypts the connection URI and instantiates the dialect
// connector. The plaintext URI never leaves this frame.
func (s *Scanner) openConnector(connection *models.Connection) (warehouse.Connector, error) {
	uri, err := s.cipher.Decrypt(connection.URIEncrypted)
	if err != nil {
		return nil, err
	}
	return warehouse.Open(connection.Dialect, uri)
}

func (s *Scanner) dispose(conn warehouse.Connector, name string) {
	if err := conn.Dispose(); err != nil {
		s.log.Warn().Err(err).Str("connection", name).Msg("connector dispose failed")
	}
}
