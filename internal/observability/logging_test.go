package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/damagable/internal/config"
)

func newBuffered(t *testing.T, cfg config.LoggingConfig) (*zap.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLoggerTo("damagesim", cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return logger, &buf
}

func TestNewLogger_JSON(t *testing.T) {
	logger, err := NewLogger("damagesim", config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNewLoggerTo_JSONEntryShape(t *testing.T) {
	logger, buf := newBuffered(t, config.LoggingConfig{Level: "info", Format: "json"})
	logger.Info("hit", zap.Int("final", 16))
	logger.Debug("filtered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "damagesim", entry["logger"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "hit", entry["msg"])
	assert.EqualValues(t, 16, entry["final"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T`, entry["ts"], "ISO8601 timestamps")
}

func TestNewLoggerTo_NoSampling(t *testing.T) {
	logger, buf := newBuffered(t, config.LoggingConfig{Level: "info", Format: "json"})
	for i := 0; i < 500; i++ {
		logger.Info("hit")
	}
	assert.Equal(t, 500, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestNewLoggerTo_Console(t *testing.T) {
	logger, buf := newBuffered(t, config.LoggingConfig{Level: "debug", Format: "console"})
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	logger.Debug("spawned")
	assert.Contains(t, buf.String(), "spawned")
	assert.Contains(t, buf.String(), "damagesim")
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger("damagesim", config.LoggingConfig{Level: "trace", Format: "json"})
	assert.Error(t, err)
	_, err = NewLogger("damagesim", config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewLogger_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger("", config.LoggingConfig{Level: level, Format: "json"})
		require.NoError(t, err, "level %q should be valid", level)
		assert.NotNil(t, logger)
	}
}

func TestFor_TagsEntries(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)
	ForEntity(ForScenario(ForRun(base, "r-1"), "gauntlet"), "e-1", "goblin").Info("step")
	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "r-1", ctx[RunKey])
	assert.Equal(t, "gauntlet", ctx[ScenarioKey])
	assert.Equal(t, "e-1", ctx[EntityKey])
	assert.Equal(t, "goblin", ctx[NameKey])
}
