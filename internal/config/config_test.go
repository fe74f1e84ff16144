package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, 10000, cfg.MaxRows)
	assert.Equal(t, 200, cfg.MaxSchemaTables)
	assert.Equal(t, 50, cfg.MaxChartRows)
	assert.Equal(t, "gemini-1.5-flash-latest", cfg.GeminiModel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUERYSCOPE_LISTEN_ADDR", ":9000")
	t.Setenv("QUERYSCOPE_MAX_ROWS", "50")
	t.Setenv("QUERYSCOPE_QUERY_TIMEOUT", "5s")
	t.Setenv("QUERYSCOPE_COMPLETION_TIMEOUT", "8s")
	t.Setenv("QUERYSCOPE_GEMINI_API_KEY", "key-from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 50, cfg.MaxRows)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 8*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "key-from-env", cfg.GeminiAPIKey)
}

func TestLoadGeminiKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "fallback-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", cfg.GeminiAPIKey)
}
