package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Environment: "production", Level: slog.LevelInfo})

	log.Info("record resolved", "outcome", "matched")

	out := buf.String()
	assert.Contains(t, out, `"msg":"record resolved"`)
	assert.Contains(t, out, `"outcome":"matched"`)
}

func TestNew_PrettyOutsideProduction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Environment: "development", Level: slog.LevelDebug})

	log.Debug("querying overpass", "endpoint", "https://overpass-api.de/api/interpreter")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "querying overpass")
	assert.Contains(t, out, "endpoint=https://overpass-api.de/api/interpreter")
	assert.NotContains(t, out, `"msg"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestPrettyHandler_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "pretty", Level: slog.LevelWarn})

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WRN")
}

func TestPrettyHandler_GroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(h).WithGroup("scorer").With("weights", "default")

	log.Info("scored", "candidates", 3)

	out := buf.String()
	assert.Contains(t, out, "scorer.weights=default")
	assert.Contains(t, out, "scorer.candidates=3")
}

func TestLogger_ScopingHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: slog.LevelInfo})

	log.ForRecord("ses-1", "rec-2").WithError(errors.New("overpass down")).Warn("degraded to fallback")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"session_id":"ses-1"`)
	assert.Contains(t, lines[0], `"record_id":"rec-2"`)
	assert.Contains(t, lines[0], `"error":"overpass down"`)
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: slog.LevelInfo})

	log.WithFields(map[string]any{"policy": "threshold", "threshold": 0.8}).Info("session started")

	assert.Contains(t, buf.String(), `"policy":"threshold"`)
	assert.Contains(t, buf.String(), `"threshold":0.8`)
}
