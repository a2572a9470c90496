package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("AEGIS_API_KEY", "secret")
	t.Setenv("AEGIS_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("OPENAI_API_KEY", "")
}

// TestLoad_Defaults_AppliedWhenUnset verifies every default value.
func TestLoad_Defaults_AppliedWhenUnset(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, 300*time.Second, cfg.ScanInterval)
	assert.Equal(t, 3600*time.Second, cfg.LineageRefresh)
	assert.Equal(t, 86400*time.Second, cfg.RediscoveryInterval)
	assert.Equal(t, DefaultScanWorkers, cfg.ScanWorkers)
	assert.Equal(t, DefaultEventBuffer, cfg.EventBuffer)
	assert.Equal(t, 30*24*time.Hour, cfg.LineageStaleAfter)
	assert.False(t, cfg.LLMEnabled())
}

// TestLoad_MissingAPIKey_Fails verifies the required credential.
func TestLoad_MissingAPIKey_Fails(t *testing.T) {
	t.Setenv("AEGIS_API_KEY", "")
	t.Setenv("AEGIS_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")

	_, err := Load()
	assert.ErrorContains(t, err, "AEGIS_API_KEY")
}

// TestLoad_HexEncryptionKey_Decoded verifies hex keys decode to 32 bytes.
func TestLoad_HexEncryptionKey_Decoded(t *testing.T) {
	t.Setenv("AEGIS_API_KEY", "secret")
	t.Setenv("AEGIS_ENCRYPTION_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.EncryptionKey, 32)
}

// TestLoad_BadEncryptionKey_Fails verifies length validation.
func TestLoad_BadEncryptionKey_Fails(t *testing.T) {
	t.Setenv("AEGIS_API_KEY", "secret")
	t.Setenv("AEGIS_ENCRYPTION_KEY", "too-short")

	_, err := Load()
	assert.ErrorContains(t, err, "AEGIS_ENCRYPTION_KEY")
}

// TestLoad_IntervalOverrides_Applied verifies cadence overrides.
func TestLoad_IntervalOverrides_Applied(t *testing.T) {
	setRequired(t)
	t.Setenv("AEGIS_SCAN_INTERVAL_SECONDS", "60")
	t.Setenv("AEGIS_LINEAGE_REFRESH_SECONDS", "120")
	t.Setenv("AEGIS_REDISCOVERY_INTERVAL_SECONDS", "240")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.ScanInterval)
	assert.Equal(t, 120*time.Second, cfg.LineageRefresh)
	assert.Equal(t, 240*time.Second, cfg.RediscoveryInterval)
}

// TestLoad_OpenAIKey_EnablesLLM verifies primary-path gating.
func TestLoad_OpenAIKey_EnablesLLM(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LLMEnabled())
}
