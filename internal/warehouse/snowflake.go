package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// snowflakeSystemSchemas are filtered out of schema listings.
var snowflakeSystemSchemas = map[string]bool{
	"INFORMATION_SCHEMA": true,
	"SNOWFLAKE":          true,
	"ACCOUNT_USAGE":      true,
}

// SnowflakeConnector introspects a Snowflake warehouse through the
// information_schema and the account_usage query history.
type SnowflakeConnector struct {
	db *sql.DB
}

// NewSnowflakeConnector opens a pooled connection to the warehouse.
func NewSnowflakeConnector(uri string) (*SnowflakeConnector, error) {
	db, err := sql.Open("snowflake", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return &SnowflakeConnector{db: db}, nil
}

// ListSchemas returns user schemas, filtering Snowflake catalog schemas.
func (c *SnowflakeConnector) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT schema_name FROM information_schema.schemata ORDER BY schema_name
	`)
	if err != nil {
		return nil, classifySnowflakeError(err, "list schemas")
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan schema name: %w", err)
		}
		if snowflakeSystemSchemas[strings.ToUpper(name)] {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

// ListTables returns tables and views within a schema.
func (c *SnowflakeConnector) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name
	`, strings.ToUpper(schema))
	if err != nil {
		return nil, classifySnowflakeError(err, "list tables")
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
func (c *SnowflakeConnector) FetchColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`, strings.ToUpper(schema), strings.ToUpper(table))
	if err != nil {
		return nil, classifySnowflakeError(err, "fetch columns")
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
		col.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// FetchLastUpdateTime probes audit columns first and falls back to the
// catalog's LAST_ALTERED timestamp.
func (c *SnowflakeConnector) FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error) {
	cols, err := c.FetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	if audit := findAuditColumn(cols); audit != "" {
		query := fmt.Sprintf(`SELECT MAX(%s) FROM %s.%s`,
			quoteSnowflakeIdent(audit), quoteSnowflakeIdent(schema), quoteSnowflakeIdent(table))
		var ts sql.NullTime
		if err := c.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
			return nil, classifySnowflakeError(err, "fetch audit timestamp")
		}
		if ts.Valid {
			t := ts.Time.UTC()
			return &t, nil
		}
	}

	var ts sql.NullTime
	err = c.db.QueryRowContext(ctx, `
		SELECT last_altered
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`, strings.ToUpper(schema), strings.ToUpper(table)).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifySnowflakeError(err, "fetch catalog timestamp")
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time.UTC()
	return &t, nil
}

// ExtractQueryLog reads the account_usage query history for write queries.
func (c *SnowflakeConnector) ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]QueryLogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT query_text, user_name, start_time, total_elapsed_time
		FROM snowflake.account_usage.query_history
		WHERE start_time >= ?
		  AND query_type IN ('INSERT', 'CREATE_TABLE_AS_SELECT', 'MERGE')
		  AND execution_status = 'SUCCESS'
		ORDER BY start_time
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, classifySnowflakeError(err, "extract query log")
	}
	defer rows.Close() //nolint:errcheck // close error ignored in defer

	var entries []QueryLogEntry
	for rows.Next() {
		var entry QueryLogEntry
		if err := rows.Scan(&entry.SQL, &entry.User, &entry.ExecutedAt, &entry.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan query log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Dispose closes the connection pool.
func (c *SnowflakeConnector) Dispose() error {
	return c.db.Close()
}

func quoteSnowflakeIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// classifySnowflakeError maps driver errors onto the connector error kinds.
func classifySnowflakeError(err error, op string) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient privileges") || strings.Contains(msg, "does not exist or not authorized"):
		return fmt.Errorf("%s: %v: %w", op, err, ErrPermission)
	case strings.Contains(msg, "incorrect username or password") || strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "no such host"):
		return fmt.Errorf("%s: %v: %w", op, err, ErrConnectivity)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
