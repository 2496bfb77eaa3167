package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VISION_API_KEY", "k")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":8888", cfg.ListenAddr)
	assert.Equal(t, BackendMemory, cfg.StatsBackend)
	assert.Equal(t, 8<<20, cfg.MaxFrame)
	assert.Equal(t, time.Duration(0), cfg.JudgeTimeout)
	assert.Equal(t, "logs/pictionary-server.log", cfg.Log.File)
	assert.Equal(t, cfg.JudgeWorkers, cfg.VisionMaxConns)
}

func TestLoadServerVisionMaxConns(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VISION_API_KEY", "k")
	t.Setenv("JUDGE_WORKERS", "3")
	t.Setenv("VISION_MAX_CONNS", "")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.VisionMaxConns)

	t.Setenv("VISION_MAX_CONNS", "10")
	cfg, err = LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.VisionMaxConns)
}

func TestLoadServerRequiresBackendURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VISION_API_KEY", "k")
	t.Setenv("STATS_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := LoadServer()
	assert.Error(t, err)

	t.Setenv("STATS_BACKEND", "mongo")
	_, err = LoadServer()
	assert.Error(t, err)
}

func TestLoadServerRequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VISION_API_KEY", "")
	_, err := LoadServer()
	assert.Error(t, err)
}

func TestLoadServerReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JUDGE_WORKERS=9\nJUDGE_TIMEOUT=45\n"), 0o644))
	t.Setenv("VISION_API_KEY", "k")
	t.Setenv("JUDGE_WORKERS", "")
	t.Setenv("JUDGE_TIMEOUT", "")
	// godotenv.Load does not override variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("JUDGE_WORKERS"))
	require.NoError(t, os.Unsetenv("JUDGE_TIMEOUT"))

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.JudgeWorkers)
	assert.Equal(t, 45*time.Second, cfg.JudgeTimeout)
}

func TestLoadClientDurations(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FIRST_ROUND", "2s")
	t.Setenv("NEXT_ROUND", "bogus")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.FirstRound)
	assert.Equal(t, 15*time.Second, cfg.NextRound)
	assert.Equal(t, "localhost:8888", cfg.ServerURL)
}
