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

func loadInTempDir(t *testing.T) {
	t.Helper()
	viper.Reset()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(cwd)
		viper.Reset()
	})
	Load("")
}

func TestLoadDefaults(t *testing.T) {
	loadInTempDir(t)

	assert.Equal(t, 3, viper.GetInt("max_parallel_agents"))
	assert.Equal(t, 2, viper.GetInt("max_retries"))
	assert.Equal(t, int64(5000), viper.GetInt64("verification_timeout_ms"))
	assert.Equal(t, 3, viper.GetInt("max_vg_fast_retries"))
	assert.Equal(t, "claude", viper.GetString("agent_runtime"))
	assert.Equal(t, "origin", viper.GetString("remote"))
	assert.True(t, viper.GetBool("cleanup_on_success"))
}

func TestLoadWritesDefaultConfigFile(t *testing.T) {
	loadInTempDir(t)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(cwd, "mobius.yaml"))
	assert.NoError(t, statErr, "Load should write mobius.yaml when no config exists")
}

func TestResolveSnapshot(t *testing.T) {
	loadInTempDir(t)
	viper.Set("backend", "linear")
	viper.Set("max_parallel_agents", 5)
	viper.Set("agent_timeout", "10m")

	s := Resolve()
	assert.Equal(t, "linear", s.Backend)
	assert.Equal(t, 5, s.MaxParallelAgents)
	assert.Equal(t, 10*time.Minute, s.AgentTimeout)
	assert.Equal(t, 2*time.Second, s.PollInterval)
}

func TestDurationOrSecondsAcceptsBareInt(t *testing.T) {
	loadInTempDir(t)
	viper.Set("agent_timeout", 1800)

	s := Resolve()
	assert.Equal(t, 30*time.Minute, s.AgentTimeout)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MOBIUS_MAX_PARALLEL_AGENTS", "7")
	loadInTempDir(t)

	assert.Equal(t, 7, viper.GetInt("max_parallel_agents"))
}
