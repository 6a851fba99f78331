package cmd

import (
	"testing"

	"github.com/MeKo-Tech/oryza/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigFromFlags(t *testing.T) {
	cfg := config.DefaultConfig()

	sc, shutdown := serverConfigFromFlags(&cfg, serveCmd)
	assert.Equal(t, 10000, sc.Port)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.EqualValues(t, 10, sc.MaxUploadMB)
	assert.Equal(t, 10, shutdown)
	assert.False(t, sc.RateLimit.Enabled)
	assert.EqualValues(t, 1024<<20, sc.RateLimit.MaxDataPerDay)

	require.NoError(t, serveCmd.Flags().Set("port", "8081"))
	require.NoError(t, serveCmd.Flags().Set("rate-limit-enabled", "true"))
	require.NoError(t, serveCmd.Flags().Set("requests-per-minute", "5"))
	t.Cleanup(func() {
		_ = serveCmd.Flags().Set("port", "10000")
		_ = serveCmd.Flags().Set("rate-limit-enabled", "false")
		_ = serveCmd.Flags().Set("requests-per-minute", "60")
	})

	sc, _ = serverConfigFromFlags(&cfg, serveCmd)
	assert.Equal(t, 8081, sc.Port)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, 5, sc.RateLimit.RequestsPerMinute)
}

func TestBuildCascade_Mock(t *testing.T) {
	isolateCLI(t)
	cfg := config.DefaultConfig()

	p, err := buildCascade(&cfg, true)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, 10, p.Table().Len())
	assert.Equal(t, true, p.Info()["gate_enabled"])
}

func TestBuildCascade_MissingModels(t *testing.T) {
	dir := isolateCLI(t)
	cfg := config.DefaultConfig()
	cfg.Models.Dir = dir

	_, err := buildCascade(&cfg, false)
	assert.Error(t, err)
}

func TestBuildCascade_BadTableFile(t *testing.T) {
	dir := isolateCLI(t)
	cfg := config.DefaultConfig()
	cfg.Disease.TableFile = dir + "/missing.yaml"

	_, err := buildCascade(&cfg, true)
	assert.ErrorContains(t, err, "disease table")
}
