package infra

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_FileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rtsp_recorder.log")
	var console bytes.Buffer

	logger, err := NewLogger(LogOptions{
		Level:      "info",
		FilePath:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		Console:    &console,
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("session started", zap.Int("pid", 42))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "session started", entry["msg"])
	assert.Equal(t, float64(42), entry["pid"])
	assert.Contains(t, entry, "time")

	assert.Contains(t, console.String(), "INFO")
	assert.Contains(t, console.String(), "session started")
	assert.NotContains(t, console.String(), "hidden")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(LogOptions{Level: "loud"})
	assert.Error(t, err)
}

func TestNewAuditLogger_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "launcher.log")

	for _, msg := range []string{"recorder started", "recorder stopped"} {
		audit, err := NewAuditLogger(path)
		require.NoError(t, err)
		audit.Info(msg)
		_ = audit.Sync()
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "recorder started")
	assert.Contains(t, string(data), "recorder stopped")
}
