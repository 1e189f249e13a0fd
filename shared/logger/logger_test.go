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

func newBufferLogger(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cfg.writer = buf
	l, err := New(&cfg)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l, buf
}

// entries decodes one JSON object per output line
func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func emitAllLevels(l *Logger) {
	l.Debug("job decoded")
	l.Info("job submitted")
	l.Warn("run log missing")
	l.Error("store unavailable")
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level    string
		expected []string
	}{
		{level: "debug", expected: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", expected: []string{"INFO", "WARN", "ERROR"}},
		{level: "", expected: []string{"INFO", "WARN", "ERROR"}},
		{level: "warn", expected: []string{"WARN", "ERROR"}},
		{level: "error", expected: []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			l, buf := newBufferLogger(t, Config{Level: tt.level, Format: "json"})
			emitAllLevels(l)

			var levels []string
			for _, e := range entries(t, buf) {
				levels = append(levels, e["level"].(string))
			}
			assert.Equal(t, tt.expected, levels)
		})
	}
}

func TestNew_JSONAttributes(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Level: "info", Format: "json"})

	l.Info("job finished",
		slog.String("job_id", "0b7e"),
		slog.Int("frame_count", 42),
		slog.Bool("terminal", true),
		slog.Float64("rg", 12.5),
	)

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "job finished", got[0]["msg"])
	assert.Equal(t, "0b7e", got[0]["job_id"])
	assert.Equal(t, float64(42), got[0]["frame_count"])
	assert.Equal(t, true, got[0]["terminal"])
	assert.Equal(t, 12.5, got[0]["rg"])
	assert.Contains(t, got[0], "time")
}

func TestNew_Source(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Format: "json", EnableSource: true})
	l.Info("with caller")

	got := entries(t, buf)
	require.Len(t, got, 1)
	source, ok := got[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_Console(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Level: "info", Format: "console"})
	l.Info("worker started", slog.Duration("poll_interval", 0))

	out := buf.String()
	// tint abbreviates levels
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "worker started")
	assert.Contains(t, out, "poll_interval")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	l, err := New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)

	l.Info("written to file", slog.String("job_id", "abc"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "job_id=abc")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestNew_UnwritableFile(t *testing.T) {
	l, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "service.log")})
	require.Error(t, err)
	assert.Nil(t, l)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	l := NewDefault()
	require.NotNil(t, l.Logger)
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, expected := range tests {
		assert.Equal(t, expected, parseLevel(in), "level %q", in)
	}
}

func TestLogger_WithGroup(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Format: "json"})

	l.WithGroup("job").Info("state change", slog.String("status", "RUNNING"))

	got := entries(t, buf)
	require.Len(t, got, 1)
	group, ok := got[0]["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RUNNING", group["status"])
}

func TestLogger_With(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Format: "json"})

	scoped := l.With(slog.String("service", "worker"), "cycle", 1)
	scoped.Info("cycle complete")
	l.Info("unscoped")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "worker", got[0]["service"])
	assert.Equal(t, float64(1), got[0]["cycle"])
	assert.NotContains(t, got[1], "service")
}
