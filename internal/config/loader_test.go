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

func isolatedLoader(t *testing.T) *Loader {
	t.Helper()
	t.Setenv(EnvPort, "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	return NewLoaderWithViper(viper.New())
}

func TestLoadWithNoConfigFile(t *testing.T) {
	cfg, err := isolatedLoader(t).Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10000, cfg.Server.Port)
	assert.Equal(t, []string{"gate", "fuse", "classify"}, cfg.Cascade.Stages)
}

func TestLoadFindsFileInWorkingDirectory(t *testing.T) {
	l := isolatedLoader(t)
	content := `
log_level: debug
cascade:
  leaf_threshold: 0.65
  timeout: 5s
  stages: [fuse, classify]
server:
  port: 9000
`
	require.NoError(t, os.WriteFile("oryza.yaml", []byte(content), 0o600))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.65, cfg.Cascade.LeafThreshold, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Cascade.Timeout)
	assert.Equal(t, []string{"fuse", "classify"}, cfg.Cascade.Stages)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 224, cfg.Preprocess.Size, "unset keys keep their defaults")
	assert.Contains(t, l.GetConfigFileUsed(), "oryza.yaml")
}

func TestLoadWithFile(t *testing.T) {
	l := isolatedLoader(t)
	path := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"batch": {"workers": 8, "format": "csv"}}`), 0o600))

	cfg, err := l.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, "csv", cfg.Batch.Format)
}

func TestLoadWithMissingFile(t *testing.T) {
	_, err := isolatedLoader(t).LoadWithFile("/nonexistent/oryza.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	l := isolatedLoader(t)
	require.NoError(t, os.WriteFile("oryza.yaml", []byte("log_level: chatty\n"), 0o600))

	_, err := l.Load()
	assert.Error(t, err)

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithoutValidation()
	require.NoError(t, err)
	assert.Equal(t, "chatty", cfg.LogLevel)
}

func TestEnvironmentOverrides(t *testing.T) {
	l := isolatedLoader(t)
	t.Setenv("ORYZA_LOG_LEVEL", "warn")
	t.Setenv("ORYZA_CASCADE_GATE_ENABLED", "false")
	t.Setenv("ORYZA_MODELS_SESSIONS_PER_MODEL", "4")
	t.Setenv("ORYZA_SERVER_RATE_LIMIT_ENABLED", "true")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Cascade.GateEnabled)
	assert.Equal(t, 4, cfg.Models.SessionsPerModel)
	assert.True(t, cfg.Server.RateLimit.Enabled)
}

func TestPortEnvironmentOverride(t *testing.T) {
	l := isolatedLoader(t)
	t.Setenv(EnvPort, "4321")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.Server.Port)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	isolatedLoader(t)
	path := filepath.Join(t.TempDir(), "oryza.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
	assert.Equal(t, DefaultConfig().Models, cfg.Models)
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, "/xdg/oryza")
	assert.Equal(t, "/etc/oryza", paths[len(paths)-1])
}
