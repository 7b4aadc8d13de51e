package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "normgate.db", cfg.Database.Path)
	assert.Equal(t, "data", cfg.Corpus.Dir)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.OpenRouter.Model)
	assert.InDelta(t, 0.3, cfg.OpenRouter.Temperature, 0.001)
	assert.Equal(t, 200, cfg.OpenRouter.MaxTokens)
	assert.Equal(t, 10, cfg.Evaluator.Concurrency)
	assert.Equal(t, 30, cfg.Evaluator.CallTimeoutSeconds)
	assert.Equal(t, 300, cfg.Entitlements.CacheTTLSeconds)
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())
	assert.Equal(t, 5*time.Minute, cfg.EntitlementCacheTTL())
	assert.Equal(t, 10, cfg.Concurrency())

	cfg.Evaluator.CallTimeoutSeconds = 10
	cfg.Entitlements.CacheTTLSeconds = 60
	cfg.Evaluator.Concurrency = 4
	assert.Equal(t, 10*time.Second, cfg.CallTimeout())
	assert.Equal(t, time.Minute, cfg.EntitlementCacheTTL())
	assert.Equal(t, 4, cfg.Concurrency())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "normgate.toml")
	content := `
[corpus]
dir = "/var/lib/normgate/rules"

[evaluator]
concurrency = 4
call_timeout_seconds = 15

[openrouter]
model = "anthropic/claude-3.5-sonnet"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/normgate/rules", cfg.Corpus.Dir)
	assert.Equal(t, 4, cfg.Evaluator.Concurrency)
	assert.Equal(t, 15, cfg.Evaluator.CallTimeoutSeconds)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.OpenRouter.Model)
	// Unset keys keep defaults
	assert.Equal(t, "normgate.db", cfg.Database.Path)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("NORMGATE_OPENROUTER_API_KEY", "sk-test-123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.OpenRouter.APIKey)
}
