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
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "X-Oceanid-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, 10, cfg.Ingest.Workers)
	assert.Equal(t, 100, cfg.Ingest.QueueSize)
	assert.Equal(t, 300, cfg.Ingest.TaskTimeoutSecs)
	assert.Equal(t, 120, cfg.Ingest.DownloadTimeoutSecs)
	assert.Equal(t, 3, cfg.Ingest.MaxPasses)
	assert.Equal(t, "http://review-queue-manager.apps:8080", cfg.Review.URL)
	assert.Equal(t, 60, cfg.Monitoring.QueueDepthIntervalSecs)
	assert.ElementsMatch(t, []string{"IMO", "LLOYD", "FAO", "OFFICIAL"}, cfg.Confidence.TrustedSources)
	assert.ElementsMatch(t, []string{"CROWD", "UNVERIFIED", "ANONYMOUS"}, cfg.Confidence.UntrustedSources)
	assert.InDelta(t, 0.98, cfg.Confidence.Fields["IMO"].Base, 0.001)
	assert.InDelta(t, 0.85, cfg.Confidence.Fields["DEFAULT"].Base, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
confidence:
  fields:
    vessel_name:
      base: 0.92
      trusted_bonus: 0.01
      untrusted_malus: 0.03
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.92, cfg.Confidence.Fields["VESSEL_NAME"].Base, 0.001)
	assert.InDelta(t, 0.03, cfg.Confidence.Fields["VESSEL_NAME"].UntrustedMalus, 0.001)
	// Defaults still apply for unset field types
	assert.InDelta(t, 0.98, cfg.Confidence.Fields["MMSI"].Base, 0.001)
	assert.Equal(t, 10, cfg.Ingest.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INGEST_STORE_DRIVER", "postgres")
	t.Setenv("INGEST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("INGEST_SERVER_PORT", "3000")
	t.Setenv("INGEST_WEBHOOK_SECRET", "s3cret")
	t.Setenv("INGEST_INGEST_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
	assert.Equal(t, 4, cfg.Ingest.Workers)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0644))

	_, err := Load()
	assert.Error(t, err)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Server.Port = 8080
	cfg.Ingest.Workers = 10
	cfg.Ingest.QueueSize = 100
	cfg.Ingest.MaxPasses = 3
	cfg.Confidence.Fields = DefaultFieldThresholds()
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateIngest_RulesFileSuffices(t *testing.T) {
	cfg := validDefaults()
	cfg.Rules.File = "rules.yaml"

	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidateIngest_NoRuleSource(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.file")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	cfg.Ingest.Workers = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.workers must be between 1 and 100")

	cfg.Ingest.Workers = 101
	assert.Error(t, cfg.Validate("serve"))

	cfg.Ingest.Workers = 100
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateDriverAndThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Store.Driver = "mysql"
	cfg.Confidence.Fields["IMO"] = FieldThreshold{Base: 1.5}

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
	assert.Contains(t, err.Error(), "confidence.fields.IMO.base")
}
