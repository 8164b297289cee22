package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-spark-range/internal/common"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, common.DefaultThreads, cfg.Executor.Threads)
	assert.Zero(t, cfg.Executor.MemoryLimitBytes)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RANGEPART_EXECUTOR_THREADS", "3")
	t.Setenv("RANGEPART_EXECUTOR_MEMORY_LIMIT_BYTES", "1048576")
	t.Setenv("RANGEPART_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Executor.Threads)
	assert.Equal(t, int64(1<<20), cfg.Executor.MemoryLimitBytes)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := "executor:\n  threads: 5\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Chdir(dir)
	t.Setenv("RANGEPART_EXECUTOR_THREADS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	// El entorno gana sobre el archivo
	assert.Equal(t, 7, cfg.Executor.Threads)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_InvalidLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RANGEPART_LOG_LEVEL", "ruidoso")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NonPositiveThreads(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RANGEPART_EXECUTOR_THREADS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, common.DefaultThreads, cfg.Executor.Threads)
}
