package logging

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and sinks
type Config struct {
	Level      string
	File       string // rotated with lumberjack when set
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
	// Stderr routes console output to stderr; stdio transports need stdout clean.
	Stderr bool
}

type ctxKey struct{}

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// New builds a logger with a console core and/or a rotating file core.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var cores []zapcore.Core
	if cfg.File != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level))
	}
	if cfg.Console || cfg.File == "" {
		out := zapcore.Lock(os.Stdout)
		if cfg.Stderr {
			out = zapcore.Lock(os.Stderr)
		}
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), out, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Init builds a logger and installs it as the process default
func Init(cfg Config) (*zap.Logger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	SetDefault(logger)
	return logger, nil
}

// SetDefault replaces the logger returned when a context carries none
func SetDefault(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	global.Store(logger)
}

// Default returns the process default logger
func Default() *zap.Logger {
	return global.Load()
}

// WithLogger returns a context carrying logger
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the context logger, falling back to the default
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// Measure runs fn as the named operation and logs its duration and outcome.
func Measure(ctx context.Context, op string, fn func(ctx context.Context) error, fields ...zap.Field) error {
	logger := FromContext(ctx).With(zap.String("op", op))
	start := time.Now()
	err := fn(WithLogger(ctx, logger))
	elapsed := time.Since(start)

	fields = append(fields, zap.Duration("duration", elapsed))
	if err != nil {
		logger.Warn("operation failed", append(fields, zap.Error(err))...)
		return err
	}
	logger.Debug("operation finished", fields...)
	return nil
}
