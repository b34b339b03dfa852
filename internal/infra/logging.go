package infra

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions controls logger construction.
type LogOptions struct {
	Level      string // debug, info, warn, error
	FilePath   string // Rotating log file; empty disables file output
	MaxSizeMB  int
	MaxBackups int
	Console    io.Writer // Optional human-readable mirror, usually stdout
}

// NewLogger builds the supervisor logger: JSON lines into a size-rotated file,
// mirrored to Console in console encoding.
func NewLogger(opts LogOptions) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if opts.FilePath != "" {
		writer, err := NewRotatingWriter(opts.FilePath, opts.MaxSizeMB, opts.MaxBackups)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(writer),
			level,
		))
	}
	if opts.Console != nil {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.AddSync(opts.Console),
			level,
		))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

// NewRotatingWriter returns a size-rotated log file writer.
func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}, nil
}

// NewAuditLogger opens the launcher's append-only audit log. Every line is
// timestamped, human-readable and never rotated.
func NewAuditLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.CallerKey = ""
	config.EncoderConfig.StacktraceKey = ""
	config.Sampling = nil

	return config.Build()
}
