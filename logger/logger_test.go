package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.log")
	log, err := New(Config{Level: "WARN", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept", zap.String("stream", "cam-1"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cam-1", entry["stream"])
	assert.Contains(t, entry, "caller")
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "loud", Format: "console", Output: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewBadOutput(t *testing.T) {
	_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
