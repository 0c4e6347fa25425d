package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.log")
	cfg := DefaultConfig()
	cfg.LogFile = path
	cfg.Console = false

	l, err := New(cfg)
	require.NoError(t, err)

	l.WithOperation("startup").Info("hello")
	end := l.TrackPerformance("load")
	end()
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"operation":"startup"`)
	assert.Contains(t, lines[0], `"correlation_id"`)
	assert.Contains(t, lines[1], `"Operation completed"`)
}

func TestNew_DebugOnlyInDevelopment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.log")
	cfg := &Config{LogFile: path, MaxSize: 1}

	l, err := New(cfg)
	require.NoError(t, err)
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	data, _ := os.ReadFile(path)
	assert.NotContains(t, string(data), "hidden")
}
