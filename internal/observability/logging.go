// Package observability builds the zap loggers of the simulator binaries and
// the field conventions shared by arenas, scenarios and entities.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/damagable/internal/config"
)

// Field keys attached by the For* helpers.
const (
	RunKey      = "run"
	ScenarioKey = "scenario"
	EntityKey   = "entity"
	NameKey     = "name"
)

// NewLogger creates a logger writing to stderr from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(name string, cfg config.LoggingConfig) (*zap.Logger, error) {
	return NewLoggerTo(name, cfg, zapcore.Lock(os.Stderr))
}

// NewLoggerTo is NewLogger writing to ws. Entries are never sampled: a damage
// burst logs every hit. The logger is named after the binary when name is set.
//
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLoggerTo(name string, cfg config.LoggingConfig, ws zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var (
		enc  zapcore.Encoder
		opts []zap.Option
	)
	switch cfg.Format {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	case "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
		opts = append(opts, zap.AddCaller(), zap.Development())
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger := zap.New(zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level)), opts...)
	if name != "" {
		logger = logger.Named(name)
	}
	return logger, nil
}

// ForRun tags base with a simulation run ID.
func ForRun(base *zap.Logger, run string) *zap.Logger {
	return base.With(zap.String(RunKey, run))
}

// ForScenario tags base with a scenario name.
func ForScenario(base *zap.Logger, scenario string) *zap.Logger {
	return base.With(zap.String(ScenarioKey, scenario))
}

// ForEntity tags base with an entity ID and display name.
func ForEntity(base *zap.Logger, id, name string) *zap.Logger {
	return base.With(zap.String(EntityKey, id), zap.String(NameKey, name))
}
