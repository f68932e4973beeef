package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rechtstreeks/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New constructs a zap logger using the provided options.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "console" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zcfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       opts.Development,
		DisableCaller:     !opts.Development && level > zapcore.DebugLevel,
		DisableStacktrace: !opts.Development,
		Encoding:          format,
		EncoderConfig:     encoderCfg,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}
	return zcfg.Build()
}

// NewFromConfig creates a logger from application config, tagged with the process name.
func NewFromConfig(cfg config.Config, component string) (*zap.Logger, error) {
	logger, err := New(Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("component", component)), nil
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
