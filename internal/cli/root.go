package cli

import (
	"errors"
	"fmt"
	"os"

	cmdpkg "github.com/berrythewa/bandman/internal/cli/cmd"
	"github.com/berrythewa/bandman/internal/common"
	"github.com/berrythewa/bandman/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags that apply to all commands of both binaries
	cfgFile  string
	logLevel string

	// The loaded configuration
	cfg *config.Config

	// Logger instance
	logger *zap.Logger

	// Version information - set by main
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "none"
)

// flagOverrides copies explicitly set flags of one binary into cfg.
type flagOverrides func(cmd *cobra.Command)

// newRoot builds a root command with the persistent flags and subcommands
// shared by bandman and bandmand.
func newRoot(use string, overrides flagOverrides) *cobra.Command {
	root := &cobra.Command{
		Use:           use,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, overrides)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the user config dir, see 'config path')")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	for _, command := range cmdpkg.GetCommands(use) {
		root.AddCommand(command)
	}
	return root
}

// loadConfig loads the configuration file, applies flag overrides and
// builds the logger.
func loadConfig(cmd *cobra.Command, overrides flagOverrides) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		missingOK := cmd.Annotations[cmdpkg.AnnotationMissingConfigOK] != ""
		if !missingOK || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = config.DefaultConfig()
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if overrides != nil {
		overrides(cmd)
	}

	logger, err = common.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Debug("Configuration loaded",
		zap.String("config", cfgFile),
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_format", cfg.Log.Format))

	// Share cfg and logger with cmd package
	cmdpkg.SetConfig(cfg, cfgFile)
	cmdpkg.SetZapLogger(logger)
	return nil
}

// cleanup flushes the logger before exit
func cleanup() {
	if logger != nil {
		_ = logger.Sync()
	}
}

func execute(root *cobra.Command) int {
	defer cleanup()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// ExecuteServer runs the bandmand root command and returns the exit code.
func ExecuteServer() int {
	return execute(newServerCmd())
}

// ExecuteClient runs the bandman root command and returns the exit code.
func ExecuteClient() int {
	return execute(newClientCmd())
}

// SetVersionInfo sets the version information used by the version command
func SetVersionInfo(version, buildTime, commit string) {
	Version = version
	BuildTime = buildTime
	Commit = commit
	cmdpkg.SetVersionInfo(version, buildTime, commit)
}
