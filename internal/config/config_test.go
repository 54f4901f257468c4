package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	// Missing files yield defaults.
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 100, cfg.Bus.InboundCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
model:
  provider: anthropic
  model: claude-sonnet-4-20250514
agent:
  systemPrompt: "You are helpful."
  maxIterations: 5
bus:
  inboundCapacity: 32
store:
  driver: redis
  redis:
    addr: localhost:6379
schedule:
  jobs:
    - name: daily
      expr: "0 9 * * *"
      message: morning check
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model.Model)
	assert.Equal(t, "You are helpful.", cfg.Agent.SystemPrompt)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 32, cfg.Bus.InboundCapacity)
	assert.Equal(t, 100, cfg.Bus.OutboundCapacity) // untouched default
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	require.Len(t, cfg.Schedule.Jobs, 1)
	assert.Equal(t, "daily", cfg.Schedule.Jobs[0].Name)

	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_LOG_LEVEL", "DEBUG")
	t.Setenv("SWITCHBOARD_STORE_DRIVER", "memory")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestExpandSensitiveFields(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-secret")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
model:
  apiKey: ${TEST_API_KEY}
store:
  redis:
    password: ${UNSET_VAR_XYZ}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.Model.APIKey)
	// Unset variables are left as-is.
	assert.Equal(t, "${UNSET_VAR_XYZ}", cfg.Store.Redis.Password)
}

func TestValidateCatchesIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Provider = "watson"
	cfg.Bus.InboundCapacity = 0
	cfg.Store.Driver = "redis" // no addr
	cfg.Schedule.Jobs = []ScheduleJob{
		{Name: "j", Expr: "* * * * *", Message: "hi"},
		{Name: "j", Expr: "* * * * *", Message: "hi again"},
	}

	issues := Validate(&cfg)
	paths := make([]string, 0, len(issues))
	for _, issue := range issues {
		paths = append(paths, issue.Path)
	}
	assert.Contains(t, paths, "model.provider")
	assert.Contains(t, paths, "bus.inboundCapacity")
	assert.Contains(t, paths, "store.redis.addr")
	assert.Contains(t, paths, "schedule.jobs[1].name")
}

func TestValidateDefaultsClean(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}
