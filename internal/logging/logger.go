// Package logging provides the process logger for mber.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Options selects the logger flavour. The first call to Init wins.
type Options struct {
	// JSON switches to the production JSON encoder.
	JSON bool
	// Debug lowers the level to debug.
	Debug bool
}

// Init initializes the global logger. Safe to call multiple times.
func Init(opts Options) {
	once.Do(func() {
		var err error
		logger, err = build(opts)
		if err != nil {
			// Fallback to nop logger
			logger = zap.NewNop()
		}
		sugar = logger.Sugar()
	})
}

func build(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.JSON {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.TimeKey = ""
		cfg.EncoderConfig.CallerKey = ""
		cfg.DisableStacktrace = true
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}

// L returns the global structured logger
func L() *zap.Logger {
	if logger == nil {
		Init(Options{})
	}
	return logger
}

// S returns the global sugared logger (printf-style)
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init(Options{})
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithContext returns a logger with additional structured fields
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// ForBuild returns a child of base tagged with the build id. A nil base uses the
// global logger.
func ForBuild(base *zap.Logger, buildID string) *zap.Logger {
	if base == nil {
		return WithContext(zap.String("build_id", buildID))
	}
	return base.With(zap.String("build_id", buildID))
}
