// Package logger builds the process-wide zap logger.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where logs go.
type Options struct {
	// FilePath enables a rotating JSON log file when non-empty.
	FilePath string
	// Debug lowers the console level from warn to debug.
	Debug bool
}

// New returns a logger writing human-readable lines to stderr and, when
// FilePath is set, JSON lines at every level to a rotated file. The console
// stays at warn unless Debug is set so it does not clutter interactive use.
func New(opts Options) *zap.Logger {
	consoleLevel := zap.WarnLevel
	if opts.Debug {
		consoleLevel = zap.DebugLevel
	}
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)

	core := consoleCore
	if opts.FilePath != "" {
		core = zapcore.NewTee(consoleCore, fileCore(opts.FilePath))
	}
	return zap.New(core, zap.AddCaller())
}

func fileCore(path string) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // Megabytes
		MaxBackups: 3,
		MaxAge:     30, // Days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zap.DebugLevel)
}
