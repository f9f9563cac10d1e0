package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanid/ingest-worker/internal/config"
	"github.com/oceanid/ingest-worker/internal/rules"
	"github.com/oceanid/ingest-worker/internal/store/mocks"
)

func TestInitStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	// Run in a temp dir so the default ingest.db lands there.
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	_, err = os.Stat(filepath.Join(tmpDir, "ingest.db"))
	assert.NoError(t, err)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver: mysql")
}

func TestRuleSource(t *testing.T) {
	st := mocks.NewMockStore(t)

	cfg = &config.Config{Rules: config.RulesConfig{File: "rules.yaml"}}
	src, err := ruleSource(st)
	require.NoError(t, err)
	assert.Equal(t, rules.FileSource{Path: "rules.yaml"}, src)

	cfg = &config.Config{}
	src, err = ruleSource(st)
	require.NoError(t, err)
	assert.Same(t, st, src)

	_, err = ruleSource(nil)
	assert.Error(t, err)
}

func TestInitWorker_RulesFileWithoutStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o644))

	cfg = &config.Config{Rules: config.RulesConfig{File: path}}
	env, err := initWorker(context.Background(), false)
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Store)
	assert.Nil(t, env.Orchestrator)
	assert.Nil(t, env.Collector)
	assert.Equal(t, 2, env.Rules.Len())
	assert.NotNil(t, env.Engine)
	assert.NotNil(t, env.Metrics)
}

func TestInitWorker_WithStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o644))

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "w.db")},
		Rules: config.RulesConfig{File: path},
	}
	env, err := initWorker(context.Background(), true)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Collector)
	assert.NotNil(t, env.Orchestrator)
}

func TestInitWorker_NoRuleSource(t *testing.T) {
	cfg = &config.Config{}
	_, err := initWorker(context.Background(), false)
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	cfg = &config.Config{}
	assert.NotNil(t, newNotifier())

	cfg = &config.Config{Review: config.ReviewConfig{URL: "http://review.internal/notify", TimeoutSecs: 5}}
	assert.NotNil(t, newNotifier())
}

const rulesYAML = `rules:
  - id: 1
    rule_name: strip_spaces
    rule_type: regex_replace
    pattern: '\s+'
    replacement: ''
    column_name: IMO
    priority: 1
    confidence: 0.95
    is_active: true
  - id: 2
    rule_name: upper_flag
    rule_type: format_standardizer
    pattern: '{"format":"uppercase"}'
    column_name: FLAG
    priority: 2
    confidence: 0.9
    is_active: true
  - id: 3
    rule_name: retired
    rule_type: validator
    pattern: '^x$'
    priority: 3
    confidence: 0.5
    is_active: false
`
