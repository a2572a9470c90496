// Package config provides environment-based configuration loading for Aegis.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultHTTPAddr            = ":8090"
	DefaultDBPath              = "aegis.db"
	DefaultScanInterval        = 300 * time.Second
	DefaultLineageRefresh      = 3600 * time.Second
	DefaultRediscoveryInterval = 86400 * time.Second
	DefaultScanWorkers         = 4
	DefaultEventBuffer         = 1000
	DefaultLLMModel            = "gpt-4o"
	DefaultLineageMaxDepth     = 10
	DefaultLineageStaleDays    = 30
	DefaultLineageMinConf      = 0.5
	DefaultLogLevel            = "info"
)

// Config holds the resolved runtime configuration.
type Config struct {
	HTTPAddr string
	APIKey   string
	DBPath   string

	ScanInterval        time.Duration
	LineageRefresh      time.Duration
	RediscoveryInterval time.Duration
	ScanWorkers         int

	EncryptionKey []byte
	LogLevel      string

	OpenAIAPIKey string
	LLMModel     string

	EventBuffer       int
	LineageMaxDepth   int
	LineageStaleAfter time.Duration
	LineageMinConf    float64
}

// Load reads configuration from the environment, applying defaults and
// validating required values. Returns an error rather than exiting so main
// can map failures to a non-zero exit code.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:            getString("AEGIS_HTTP_ADDR", DefaultHTTPAddr),
		APIKey:              strings.TrimSpace(os.Getenv("AEGIS_API_KEY")),
		DBPath:              getString("AEGIS_DB_PATH", DefaultDBPath),
		ScanInterval:        getSeconds("AEGIS_SCAN_INTERVAL_SECONDS", DefaultScanInterval),
		LineageRefresh:      getSeconds("AEGIS_LINEAGE_REFRESH_SECONDS", DefaultLineageRefresh),
		RediscoveryInterval: getSeconds("AEGIS_REDISCOVERY_INTERVAL_SECONDS", DefaultRediscoveryInterval),
		ScanWorkers:         getInt("AEGIS_SCAN_WORKERS", DefaultScanWorkers),
		LogLevel:            getString("AEGIS_LOG_LEVEL", DefaultLogLevel),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		LLMModel:            getString("AEGIS_LLM_MODEL", DefaultLLMModel),
		EventBuffer:         getInt("AEGIS_EVENT_BUFFER", DefaultEventBuffer),
		LineageMaxDepth:     getInt("AEGIS_LINEAGE_MAX_DEPTH", DefaultLineageMaxDepth),
		LineageStaleAfter:   time.Duration(getInt("AEGIS_LINEAGE_STALE_DAYS", DefaultLineageStaleDays)) * 24 * time.Hour,
		LineageMinConf:      getFloat("AEGIS_LINEAGE_MIN_CONFIDENCE", DefaultLineageMinConf),
	}

	key, err := parseEncryptionKey(os.Getenv("AEGIS_ENCRYPTION_KEY"))
	if err != nil {
		return nil, fmt.Errorf("invalid AEGIS_ENCRYPTION_KEY: %w", err)
	}
	cfg.EncryptionKey = key

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AEGIS_API_KEY is required")
	}
	if cfg.ScanWorkers <= 0 {
		return nil, fmt.Errorf("AEGIS_SCAN_WORKERS must be positive, got %d", cfg.ScanWorkers)
	}
	if cfg.LineageMinConf < 0 || cfg.LineageMinConf > 1 {
		return nil, fmt.Errorf("AEGIS_LINEAGE_MIN_CONFIDENCE must be in [0,1], got %v", cfg.LineageMinConf)
	}

	return cfg, nil
}

// LLMEnabled reports whether the Architect/Investigator primary paths are
// available. Absent key means fallback-only operation.
func (c *Config) LLMEnabled() bool { return c.OpenAIAPIKey != "" }

// parseEncryptionKey accepts a 32-byte key, raw or hex-encoded.
func parseEncryptionKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("key is required")
	}
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded, nil
		}
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes raw or 64 hex chars, got %d chars", len(raw))
	}
	return []byte(raw), nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getSeconds(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}
