package warehouse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
)

// TestOpen_UnknownDialect_Unsupported verifies the factory contract.
func TestOpen_UnknownDialect_Unsupported(t *testing.T) {
	_, err := Open(models.Dialect("oracle"), "oracle://x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

// TestFindAuditColumn_PrecedenceOrder verifies updated_at wins over
// created_at when both exist.
func TestFindAuditColumn_PrecedenceOrder(t *testing.T) {
	cols := []models.Column{
		{Name: "created_at", Type: "TIMESTAMP", Ordinal: 1},
		{Name: "UPDATED_AT", Type: "TIMESTAMP", Ordinal: 2},
		{Name: "id", Type: "INT", Ordinal: 3},
	}
	assert.Equal(t, "updated_at", findAuditColumn(cols))

	assert.Equal(t, "created_at", findAuditColumn(cols[:1]))
	assert.Equal(t, "", findAuditColumn([]models.Column{{Name: "id", Type: "INT"}}))
}

// TestClassifyPostgresError_Kinds verifies error mapping.
func TestClassifyPostgresError_Kinds(t *testing.T) {
	assert.ErrorIs(t, classifyPostgresError(errors.New("pq: permission denied for table x"), "op"), ErrPermission)
	assert.ErrorIs(t, classifyPostgresError(errors.New("dial tcp: connection refused"), "op"), ErrConnectivity)
	assert.ErrorIs(t, classifyPostgresError(errors.New("pq: password authentication failed"), "op"), ErrConnectivity)

	plain := classifyPostgresError(errors.New("pq: syntax error"), "op")
	assert.NotErrorIs(t, plain, ErrPermission)
	assert.NotErrorIs(t, plain, ErrConnectivity)
}

// TestClassifySnowflakeError_Kinds verifies error mapping.
func TestClassifySnowflakeError_Kinds(t *testing.T) {
	assert.ErrorIs(t, classifySnowflakeError(errors.New("Object does not exist or not authorized"), "op"), ErrPermission)
	assert.ErrorIs(t, classifySnowflakeError(errors.New("Incorrect username or password was specified"), "op"), ErrConnectivity)
}
