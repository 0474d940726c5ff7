package common

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/berrythewa/bandman/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bandmand.log")
	cfg := config.DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	cfg.Log.File = path

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger.Info("hidden")
	logger.Warn("Client disconnected", zap.String("conn", "c1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Client disconnected", entry["msg"])
	assert.Equal(t, "c1", entry["conn"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "chatty"
	cfg.Log.File = filepath.Join(t.TempDir(), "out.log")

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
