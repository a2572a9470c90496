package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// PostgresConnector introspects a PostgreSQL warehouse through the
// information_schema and statistics catalogs.
type PostgresConnector struct {
	db *sql.DB
}

// NewPostgresConnector opens a pooled connection to the warehouse.
func NewPostgresConnector(uri string) (*PostgresConnector, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return &PostgresConnector{db: db}, nil
}

// ListSchemas returns user schemas, filtering pg_* and information_schema.
func (c *PostgresConnector) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT LIKE 'pg\_%'
		  AND schema_name <> 'information_schema'
		ORDER BY schema_name
	`)
	if err != nil {
		return nil, classifyPostgresError(err, "list schemas")
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan schema name: %w", err)
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

// ListTables returns tables and views within a schema.
func (c *PostgresConnector) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, classifyPostgresError(err, "list tables")
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var tables []TableInfo
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		kind := KindTable
		if strings.Contains(typ, "VIEW") {
			kind = KindView
		}
		tables = append(tables, TableInfo{Schema: schema, Name: name, Kind: kind})
	}
	return tables, rows.Err()
}

// FetchColumns returns the column list ordered by ordinal position.
func (c *PostgresConnector) FetchColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, classifyPostgresError(err, "fetch columns")
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var cols []models.Column
	for rows.Next() {
		var (
			col      models.Column
			nullable string
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// FetchLastUpdateTime probes recognized audit columns first and falls back to
// the maintenance timestamps in pg_stat_all_tables. Nil means freshness is
// not evaluable for this table.
func (c *PostgresConnector) FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error) {
	cols, err := c.FetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	if audit := findAuditColumn(cols); audit != "" {
		query := fmt.Sprintf(`SELECT MAX(%s) FROM %s.%s`,
			pq.QuoteIdentifier(audit), pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table))
		var ts sql.NullTime
		if err := c.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
			return nil, classifyPostgresError(err, "fetch audit timestamp")
		}
		if ts.Valid {
			t := ts.Time.UTC()
			return &t, nil
		}
	}

	var ts sql.NullTime
	err = c.db.QueryRowContext(ctx, `
		SELECT GREATEST(last_vacuum, last_autovacuum, last_analyze, last_autoanalyze)
		FROM pg_stat_all_tables
		WHERE schemaname = $1 AND relname = $2
	`, schema, table).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPostgresError(err, "fetch catalog timestamp")
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time.UTC()
	return &t, nil
}

// ExtractQueryLog reads pg_stat_statements for write queries. The extension
// keeps no per-execution timestamps, so since is not applied, rows are
// ordered by call count rather than recency, and ExecutedAt is the
// observation time.
func (c *PostgresConnector) ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]QueryLogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.query, COALESCE(u.usename, ''), s.mean_exec_time
		FROM pg_stat_statements s
		LEFT JOIN pg_user u ON u.usesysid = s.userid
		WHERE s.query ~* '^\s*(insert|create\s+table|merge)'
		ORDER BY s.calls DESC
		LIMIT $1
	`, limit)
	if err != nil {
		if strings.Contains(err.Error(), "pg_stat_statements") {
			return nil, fmt.Errorf("pg_stat_statements not installed: %w", ErrUnsupported)
		}
		return nil, classifyPostgresError(err, "extract query log")
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	observedAt := time.Now().UTC()
	var entries []QueryLogEntry
	for rows.Next() {
		var (
			entry  QueryLogEntry
			meanMS float64
		)
		if err := rows.Scan(&entry.SQL, &entry.User, &meanMS); err != nil {
			return nil, fmt.Errorf("failed to scan query log entry: %w", err)
		}
		entry.ExecutedAt = observedAt
		entry.DurationMS = int64(meanMS)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Dispose closes the connection pool.
func (c *PostgresConnector) Dispose() error {
	return c.db.Close()
}

// classifyPostgresError maps driver errors onto the connector error kinds.
func classifyPostgresError(err error, op string) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "insufficient privilege"):
		return fmt.Errorf("%s: %v: %w", op, err, ErrPermission)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "password authentication failed") || strings.Contains(msg, "timeout"):
		return fmt.Errorf("%s: %v: %w", op, err, ErrConnectivity)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
