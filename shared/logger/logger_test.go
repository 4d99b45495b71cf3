package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, config Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	config.writer = output
	logger, err := New(&config)
	require.NoError(t, err)
	return logger, output
}

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level      string
		wantLevels []string
	}{
		{level: "debug", wantLevels: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", wantLevels: []string{"INFO", "WARN", "ERROR"}},
		{level: "warning", wantLevels: []string{"WARN", "ERROR"}},
		{level: "error", wantLevels: []string{"ERROR"}},
		{level: "", wantLevels: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			logger, output := newBuffered(t, Config{Level: tt.level, Format: "json"})

			logger.Debug("job received", slog.String("file_name", "a.jpg"))
			logger.Info("result published", slog.String("file_name", "a.jpg"))
			logger.Warn("job requeued", slog.String("file_name", "a.jpg"))
			logger.Error("device lost", slog.String("driver", "reference"))

			entries := decodeLines(t, output)
			require.Len(t, entries, len(tt.wantLevels))
			for i, e := range entries {
				assert.Equal(t, tt.wantLevels[i], e["level"])
				assert.Contains(t, e, "time")
			}
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "console", NoColor: true, TimeFormat: time.RFC3339})

	logger.Info("worker started", slog.String("backend", "simd"))

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "worker started")
	assert.Contains(t, output.String(), "backend=simd")
}

func TestNew_UnknownFormatFallsBackToJSON(t *testing.T) {
	logger, output := newBuffered(t, Config{Format: "xml"})

	logger.Info("fallback")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	assert.Equal(t, "fallback", entries[0]["msg"])
}

func TestNew_Source(t *testing.T) {
	logger, output := newBuffered(t, Config{Format: "json", EnableSource: true})

	logger.Info("message with source")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"DEBUG":   slog.LevelInfo, // case-sensitive
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for level, want := range tests {
		assert.Equal(t, want, parseLevel(level), "level %q", level)
	}
}

func TestLogger_WithGroup(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json"})

	groupLogger := logger.WithGroup("mygroup")
	require.NotNil(t, groupLogger)

	groupLogger.Info("test message", slog.String("key", "value"))

	logEntry := decodeLines(t, output)[0]

	// Check that the group exists
	assert.Contains(t, logEntry, "mygroup")
	group := logEntry["mygroup"].(map[string]any)
	assert.Equal(t, "value", group["key"])
}

func TestLogger_WithAttrs(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json"})

	attrLogger := logger.WithAttrs(
		slog.String("file_name", "cat.jpg"),
		slog.String("backend", "gpu"),
	)
	require.NotNil(t, attrLogger)

	attrLogger.Info("test message")

	logEntry := decodeLines(t, output)[0]

	assert.Equal(t, "cat.jpg", logEntry["file_name"])
	assert.Equal(t, "gpu", logEntry["backend"])
	assert.Equal(t, "test message", logEntry["msg"])
}

func TestLogger_With(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json"})

	contextLogger := logger.With(
		slog.String("service", "worker"),
		slog.Int("version", 1),
	)
	require.NotNil(t, contextLogger)

	contextLogger.Info("operation complete")

	logEntry := decodeLines(t, output)[0]

	assert.Equal(t, "worker", logEntry["service"])
	assert.Equal(t, float64(1), logEntry["version"]) // JSON numbers are float64
	assert.Equal(t, "operation complete", logEntry["msg"])
}

func TestLogger_Component(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json"})

	logger.Component("coordinator").Info("result counted", slog.Int("received", 3))

	logEntry := decodeLines(t, output)[0]

	assert.Equal(t, "coordinator", logEntry["component"])
	assert.Equal(t, float64(3), logEntry["received"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "worker.log")

	logger, err := New(&Config{Output: path})
	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)
	logger.Info("discarded")
	assert.NoError(t, logger.Close())
}
