package cmd

import (
	"github.com/berrythewa/bandman/internal/config"
	"go.uber.org/zap"
)

// Shared variables across all commands
var (
	cfg       *config.Config
	cfgFile   string
	zapLogger *zap.Logger
)

// SetConfig shares the loaded configuration and the --config path with
// the subcommands
func SetConfig(config *config.Config, path string) {
	cfg = config
	cfgFile = path
}

// SetZapLogger shares the logger built by the root command
func SetZapLogger(log *zap.Logger) {
	zapLogger = log
}

// GetZapLogger returns a no-op logger before the root has run
func GetZapLogger() *zap.Logger {
	if zapLogger == nil {
		return zap.NewNop()
	}
	return zapLogger
}
