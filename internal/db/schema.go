package db

// migrations holds one statement list per schema version, applied in order.
// Never edit a shipped version; append a new one.
var migrations = [][]string{
	// v1: core entities and the indexes the query paths depend on.
	{
		`CREATE TABLE connections (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			dialect       TEXT NOT NULL,
			uri_encrypted TEXT NOT NULL,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE monitored_tables (
			id                    TEXT PRIMARY KEY,
			connection_id         TEXT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
			schema_name           TEXT NOT NULL,
			table_name            TEXT NOT NULL,
			check_types           TEXT NOT NULL,
			freshness_sla_minutes INTEGER,
			created_at            TIMESTAMP NOT NULL,
			updated_at            TIMESTAMP NOT NULL,
			UNIQUE (connection_id, schema_name, table_name)
		)`,
		`CREATE TABLE schema_snapshots (
			id            TEXT PRIMARY KEY,
			table_id      TEXT NOT NULL REFERENCES monitored_tables(id) ON DELETE CASCADE,
			columns       TEXT NOT NULL,
			snapshot_hash TEXT NOT NULL,
			captured_at   TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX idx_snapshots_table_captured ON schema_snapshots (table_id, captured_at DESC)`,
		`CREATE TABLE anomalies (
			id          TEXT PRIMARY KEY,
			table_id    TEXT NOT NULL REFERENCES monitored_tables(id) ON DELETE CASCADE,
			type        TEXT NOT NULL,
			severity    TEXT NOT NULL,
			detail      TEXT NOT NULL,
			detected_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX idx_anomalies_table_type ON anomalies (table_id, type)`,
		`CREATE TABLE incidents (
			id             TEXT PRIMARY KEY,
			anomaly_id     TEXT NOT NULL,
			table_id       TEXT NOT NULL REFERENCES monitored_tables(id) ON DELETE CASCADE,
			type           TEXT NOT NULL,
			status         TEXT NOT NULL,
			severity       TEXT NOT NULL,
			diagnosis      TEXT,
			remediation    TEXT,
			blast_radius   TEXT,
			report         TEXT,
			last_error     TEXT NOT NULL DEFAULT '',
			is_active      INTEGER NOT NULL DEFAULT 1,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL,
			resolved_at    TIMESTAMP,
			resolved_by    TEXT NOT NULL DEFAULT '',
			dismiss_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX idx_incidents_one_active ON incidents (table_id, type) WHERE is_active = 1`,
		`CREATE INDEX idx_incidents_status ON incidents (status, severity, created_at DESC)`,
		`CREATE TABLE lineage_edges (
			source        TEXT NOT NULL,
			target        TEXT NOT NULL,
			relationship  TEXT NOT NULL,
			confidence    REAL NOT NULL,
			query_hash    TEXT NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (source, target)
		)`,
		`CREATE INDEX idx_lineage_source ON lineage_edges (source)`,
		`CREATE INDEX idx_lineage_target ON lineage_edges (target)`,
	},
}
