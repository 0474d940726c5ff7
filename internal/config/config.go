package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 4815
	DefaultHost        = "localhost"
	DefaultMaxAttempts = 5
)

// Config holds all application configuration
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`

	// Colored terminal output
	Colors bool `yaml:"colors"`
}

// LogConfig holds logging-related configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
	File   string `yaml:"file"`   // empty logs to stderr
}

// ServerConfig holds configuration for bandmand
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	StoragePath  string `yaml:"storage_path"` // *.db and *.bolt use bbolt, anything else JSON
	AutoSave     bool   `yaml:"autosave"`
	Backlog      int    `yaml:"backlog"`
	MaxFrameSize int    `yaml:"max_frame_size"`
}

// ClientConfig holds configuration for the bandman console
type ClientConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	ReconnectTimeout string `yaml:"reconnect_timeout"` // invalid values fall back to 0 with a warning
	MaxAttempts      int    `yaml:"max_attempts"`
	DialTimeout      string `yaml:"dial_timeout"`
	IOTimeout        string `yaml:"io_timeout"` // empty or 0 waits forever
	HistoryFile      string `yaml:"history_file"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	paths, err := GetConfigPaths()
	if err != nil {
		paths = &ConfigPaths{StorageFile: "bands.json"}
	}

	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Host:         "",
			Port:         DefaultPort,
			StoragePath:  paths.StorageFile,
			AutoSave:     true,
			Backlog:      128,
			MaxFrameSize: 1 << 20,
		},
		Client: ClientConfig{
			Host:             DefaultHost,
			Port:             DefaultPort,
			ReconnectTimeout: "5s",
			MaxAttempts:      DefaultMaxAttempts,
			DialTimeout:      "3s",
			HistoryFile:      paths.HistoryFile,
		},
		Colors: true,
	}
}

// Load reads the configuration from configPath. An empty path selects the
// default location, which may be missing; defaults are used then.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		var err error
		configPath, err = getConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(cfg)
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetActiveConfigPath returns the default config file location
func GetActiveConfigPath() (string, error) {
	return getConfigPath()
}

// Validate checks the settings shared by both binaries.
func (c *Config) Validate() error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format %q, expected console or json", c.Log.Format)
	}
	return nil
}

// ValidateServer checks the settings bandmand needs before it starts.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := ValidatePort(c.Server.Port); err != nil {
		return err
	}
	if strings.TrimSpace(c.Server.StoragePath) == "" {
		return errors.New("storage path must not be empty")
	}
	if info, err := os.Stat(c.Server.StoragePath); err == nil && info.IsDir() {
		return fmt.Errorf("storage path %s is a directory", c.Server.StoragePath)
	}
	return nil
}

// ValidateClient checks the settings the console needs before it connects.
// The reconnect timeout is not checked here, an invalid value only warns.
func (c *Config) ValidateClient() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Client.Host) == "" {
		return errors.New("server host must not be empty")
	}
	if err := ValidatePort(c.Client.Port); err != nil {
		return err
	}
	if c.Client.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.Client.MaxAttempts)
	}
	if _, err := ParseTimeout(c.Client.DialTimeout); err != nil {
		return fmt.Errorf("dial timeout: %w", err)
	}
	if _, err := ParseTimeout(c.Client.IOTimeout); err != nil {
		return fmt.Errorf("io timeout: %w", err)
	}
	return nil
}

// ValidatePort checks that port is a usable TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d is out of range 1-65535", port)
	}
	return nil
}

// ParseTimeout parses a non-negative duration. An empty string means 0.
func ParseTimeout(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", raw)
	}
	return d, nil
}

// overrideFromEnv overrides configuration values from environment variables
func overrideFromEnv(config *Config) {
	if val := os.Getenv("BANDMAN_LOG_LEVEL"); val != "" {
		config.Log.Level = val
	}
	if val := os.Getenv("BANDMAN_LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := os.Getenv("BANDMAN_LOG_FILE"); val != "" {
		config.Log.File = val
	}

	if val := os.Getenv("BANDMAN_HOST"); val != "" {
		config.Client.Host = val
	}
	if val := os.Getenv("BANDMAN_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.Port = port
			config.Client.Port = port
		}
	}
	if val := os.Getenv("BANDMAN_STORAGE"); val != "" {
		config.Server.StoragePath = val
	}
	if val := os.Getenv("BANDMAN_AUTOSAVE"); val != "" {
		config.Server.AutoSave = val == "true"
	}

	if val := os.Getenv("BANDMAN_RECONNECT_TIMEOUT"); val != "" {
		config.Client.ReconnectTimeout = val
	}
	if val := os.Getenv("BANDMAN_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Client.MaxAttempts = n
		}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		config.Colors = false
	}
}
