package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "cashback.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Crawl.DelayMillis)
	assert.Equal(t, 3, cfg.Crawl.MaxRetries)
	assert.Equal(t, 10, cfg.Crawl.Concurrency)
	assert.Equal(t, 500, cfg.Crawl.MinContentLength)
	assert.Equal(t, 200, cfg.Admission.MaxLength)
	assert.Equal(t, 5, cfg.Admission.MaxQueryParams)
	assert.Equal(t, "standard", cfg.Extract.Level)
	assert.Equal(t, "openai", cfg.Extract.Backend)
	assert.InDelta(t, 0.9, cfg.Extract.HighConfidence, 0.001)
	assert.InDelta(t, 0.7, cfg.Extract.LearningThreshold, 0.001)
	assert.Equal(t, 3000, cfg.Extract.MaxInputTokens)
	assert.Equal(t, "learned_patterns.json", cfg.Patterns.Path)
	assert.Equal(t, 10, cfg.Budget.Target)
	assert.Equal(t, int64(0), cfg.Budget.Ceiling)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.PremiumModel)
	assert.Equal(t, []string{"csv"}, cfg.Output.Formats)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/cashback
log:
  level: debug
  format: console
extract:
  level: comprehensive
  backend: gemini
budget:
  target: 25
  ceiling: 40000
admission:
  deny_patterns:
    - /help/*
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "comprehensive", cfg.Extract.Level)
	assert.Equal(t, "gemini", cfg.Extract.Backend)
	assert.Equal(t, 25, cfg.Budget.Target)
	assert.Equal(t, int64(40000), cfg.Budget.Ceiling)
	assert.Equal(t, []string{"/help/*"}, cfg.Admission.DenyPatterns)
	// Defaults still apply for unset values
	assert.Equal(t, 200, cfg.Admission.MaxLength)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
extract:
  backend: anthropic
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("CASHBACK_EXTRACT_BACKEND", "openai")
	t.Setenv("CASHBACK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Extract.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CASHBACK_BUDGET_TARGET", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Budget.Target)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validCrawl returns a Config that passes crawl validation.
func validCrawl() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Budget.Target = 5
	cfg.Extract.Level = "standard"
	cfg.Extract.Backend = "openai"
	cfg.Extract.HighConfidence = 0.9
	cfg.Extract.LearningThreshold = 0.7
	cfg.OpenAI.Key = "sk-test"
	cfg.Crawl.Concurrency = 10
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateCrawl_AllPresent(t *testing.T) {
	assert.NoError(t, validCrawl().Validate("crawl"))
}

func TestValidateCrawl_MissingBackendKey(t *testing.T) {
	cfg := validCrawl()
	cfg.Extract.Backend = "anthropic"

	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateCrawl_BadLevelAndTarget(t *testing.T) {
	cfg := validCrawl()
	cfg.Extract.Level = "deep"
	cfg.Budget.Target = 0

	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.level")
	assert.Contains(t, err.Error(), "budget.target must be positive")
}

func TestValidateCrawl_LearningThresholdFloor(t *testing.T) {
	cfg := validCrawl()
	cfg.Extract.LearningThreshold = 0.5

	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.learning_threshold must be in [0.7, 1]")

	cfg.Extract.LearningThreshold = 0.85
	assert.NoError(t, cfg.Validate("crawl"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validCrawl()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateNotion_Missing(t *testing.T) {
	cfg := validCrawl()

	err := cfg.Validate("notion")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
	assert.Contains(t, err.Error(), "notion.database_id is required")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validCrawl()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}
