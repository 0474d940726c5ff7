package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/berrythewa/bandman/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new logger instance from the log section of cfg.
// An unknown level falls back to info.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Log.Format != "json" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Colors && cfg.Log.File == "" {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}

	output := "stderr"
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		output = cfg.Log.File
	}

	encoding := "console"
	if cfg.Log.Format == "json" {
		encoding = "json"
	}

	zcfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: level > zapcore.DebugLevel,
	}

	return zcfg.Build()
}
