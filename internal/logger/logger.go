// Package logger builds the daemon's zap logger on top of a rotating log file.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where and how the daemon logs.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Path       string // log file; empty logs to stderr only
	Stdout     bool   // also write to stdout
	Debug      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// EncoderConfig is the production JSON encoder with an ISO8601 "time" key.
func EncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

// New builds a logger writing JSON lines to the rotating file at c.Path.
// The returned sync func flushes the logger and closes the file.
func New(c Config) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if c.Debug {
		level.SetLevel(zap.DebugLevel)
	}

	var sinks []zapcore.WriteSyncer
	var rotator *lj.Logger
	if c.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator = &lj.Logger{
			Filename:   c.Path,
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
		sinks = append(sinks, zapcore.AddSync(rotator))
	}
	if c.Stdout {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zapcore.Lock(os.Stderr))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(EncoderConfig()),
		zapcore.NewMultiWriteSyncer(sinks...),
		level,
	)
	logger := zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))

	done := func() {
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger, done, nil
}

// NewOrFallback is New, falling back to zap's production logger when the file cannot be opened.
func NewOrFallback(c Config) (*zap.Logger, func()) {
	logger, done, err := New(c)
	if err == nil {
		return logger, done
	}
	logger, _ = zap.NewProduction()
	logger.Warn("log file unavailable, logging to stderr",
		zap.String("path", c.Path),
		zap.Error(err))
	return logger, func() { _ = logger.Sync() }
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
