package warehouse

import (
	"fmt"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// Open instantiates the connector for a dialect with a decrypted URI.
// The URI must never be logged or persisted by callers.
func Open(dialect models.Dialect, uri string) (Connector, error) {
	switch dialect {
	case models.DialectPostgres:
		return NewPostgresConnector(uri)
	case models.DialectSnowflake:
		return NewSnowflakeConnector(uri)
	default:
		return nil, fmt.Errorf("dialect %q: %w", dialect, ErrUnsupported)
	}
}
