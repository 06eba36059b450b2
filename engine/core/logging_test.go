package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogToFile(t *testing.T) {
	LogConfigure("debug", "")
	path := filepath.Join(t.TempDir(), "logs", "anima.log")
	require.NoError(t, LogToFile(LogFileConfig{Path: path, MaxSizeMB: 1}))
	t.Cleanup(func() { _ = LogToFile(LogFileConfig{}) })

	LogInfo("tlas rebuilt for %d hit programs", 3)
	LogDebug("refit skipped")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tlas rebuilt for 3 hit programs")
	assert.Contains(t, string(data), "refit skipped")

	require.NoError(t, LogToFile(LogFileConfig{}))
	LogInfo("stderr only")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stderr only")
}

func TestLogConfigureUnknownLevel(t *testing.T) {
	LogConfigure("verbose", "")
	assert.Equal(t, "info", getLogger().GetLevel().String())
	LogConfigure("debug", "")
}
