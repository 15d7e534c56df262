package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given a config pointing at a temp log file, stderr mirror off
	path := filepath.Join(t.TempDir(), "filesense.log")
	cfg := Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	// When logging and flushing
	logger.Info("indexing started", "folder", "/tmp/docs")
	cleanup()

	// Then the file holds one JSON line with the structured fields
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	line := strings.TrimSpace(string(data))
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "indexing started", entry["msg"])
	assert.Equal(t, "/tmp/docs", entry["folder"])
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	// Given an info-level config
	path := filepath.Join(t.TempDir(), "filesense.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When logging below the threshold
	logger.Debug("noisy detail")
	cleanup()

	// Then nothing reaches the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	// Given a writer with a 1MB cap keeping two files
	path := filepath.Join(t.TempDir(), "filesense.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)

	// When writing past the cap
	chunk := strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		_, err = w.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	// Then the rotated file exists alongside the live one
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}
