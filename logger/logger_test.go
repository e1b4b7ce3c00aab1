package logger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/logger"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logger.Level("debug"))
	assert.Equal(t, zapcore.WarnLevel, logger.Level("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, logger.Level("error"))
	assert.Equal(t, zapcore.InfoLevel, logger.Level("loud"))
	assert.Equal(t, zapcore.InfoLevel, logger.Level(""))
}

func TestNew_StdoutHonoursLevel(t *testing.T) {
	log, err := logger.New(config.LoggerConfig{Level: "warn", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_FileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "timesheet.log")
	log, err := logger.New(config.LoggerConfig{
		Level: "info", Format: "json", Output: "file", FilePath: path, MaxSize: 1,
	})
	require.NoError(t, err)

	log.Named("reconciler").Info("time entry merged", zap.String("entry_id", "e-1"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "time entry merged", line["msg"])
	assert.Equal(t, "reconciler", line["logger"])
	assert.Equal(t, "e-1", line["entry_id"])
}
