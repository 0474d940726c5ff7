package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/berrythewa/bandman/internal/config"
)

// AnnotationMissingConfigOK marks commands that run with defaults when the
// --config file does not exist yet.
const AnnotationMissingConfigOK = "missing_config_ok"

// newConfigCmd creates the config command
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bandman configuration",
		Long: `Manage the configuration shared by bandman and bandmand:
  • Initialize a configuration file with defaults
  • Show the effective configuration
  • Validate the configuration file
  • Print the configuration file location`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			AnnotationMissingConfigOK: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := targetConfigPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("configuration already exists at %s\nUse --force to overwrite or 'config show' to view it", configPath)
			}

			defaults := config.DefaultConfig()
			GetZapLogger().Info("Initializing configuration", zap.String("config_path", configPath))
			if err := defaults.Save(configPath); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration initialized at: %s\n", configPath)
			fmt.Fprintf(out, "✓ Collection storage: %s\n", defaults.Server.StoragePath)
			fmt.Fprintf(out, "✓ Server address: %s:%d\n", defaults.Client.Host, defaults.Client.Port)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "force overwrite existing configuration")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after the file, environment overrides and flags are applied.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return errors.New("configuration not loaded")
			}
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("unsupported format: %s", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml or json)")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration for both binaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return errors.New("configuration not loaded")
			}
			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("server configuration: %w", err)
			}
			if err := cfg.ValidateClient(); err != nil {
				return fmt.Errorf("client configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := targetConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
			return nil
		},
	}
}

// targetConfigPath prefers the --config flag over the default location
func targetConfigPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	configPath, err := config.GetActiveConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get active config path: %w", err)
	}
	return configPath, nil
}
