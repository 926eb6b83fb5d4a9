package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	l, err := New(&Config{Level: level, Format: format, Output: "stdout", writer: output})
	require.NoError(t, err)
	return l, output
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
		level     string
		wantLevel string
	}{
		{level: "debug", wantLevel: "DEBUG"},
		{level: "info", wantLevel: "INFO"},
		{level: "warn", wantLevel: "WARN"},
		{level: "error", wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, output := newBufferLogger(t, tt.level, "json")

			l.Debug("export batch written", slog.String("job_id", "exp-1"))
			l.Info("export batch written", slog.String("job_id", "exp-1"))
			l.Warn("export batch written", slog.String("job_id", "exp-1"))
			l.Error("export batch written", slog.String("job_id", "exp-1"))

			entries := decodeLines(t, output)
			require.NotEmpty(t, entries)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
			assert.Equal(t, "exp-1", entries[0]["job_id"])
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	l, output := newBufferLogger(t, "info", "console")

	l.Info("upload completed")

	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "upload completed")
}

func TestNew_SourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	l, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: output})
	require.NoError(t, err)

	l.Info("message with source")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_FileOutputFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	console := &bytes.Buffer{}

	l, err := New(&Config{Level: "info", Format: "console", Output: path, writer: console})
	require.NoError(t, err)

	l.Info("download token issued", slog.String("export_id", "exp-9"))
	require.NoError(t, l.Close())

	assert.Contains(t, console.String(), "download token issued")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "download token issued", entry["msg"])
	assert.Equal(t, "exp-9", entry["export_id"])
}

func TestNew_UnwritableFile(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "api.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	l := NewDefault()
	require.NotNil(t, l)
	assert.NotNil(t, l.Logger)
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "DEBUG", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_Derived(t *testing.T) {
	l, output := newBufferLogger(t, "info", "json")

	l.WithGroup("job").Info("grouped", slog.String("id", "up-1"))
	l.WithAttrs(slog.String("owner_id", "owner-1")).Info("attrs")
	l.With(slog.String("service", "worker"), slog.Int("attempt", 2)).Info("kv")

	entries := decodeLines(t, output)
	require.Len(t, entries, 3)

	group, ok := entries[0]["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "up-1", group["id"])
	assert.Equal(t, "owner-1", entries[1]["owner_id"])
	assert.Equal(t, "worker", entries[2]["service"])
	assert.Equal(t, float64(2), entries[2]["attempt"])
}
