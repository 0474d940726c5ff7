package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Overridable in tests
var (
	getConfigPath     = defaultConfigPath
	getDefaultDataDir = defaultDataDir
)

// ConfigPaths holds the locations bandman reads and writes by default
type ConfigPaths struct {
	ConfigFile  string // YAML configuration
	DataDir     string // collection storage, console history, logs
	StorageFile string // default collection file
	HistoryFile string // console line editor history
}

// GetConfigPaths resolves the default paths without creating anything.
func GetConfigPaths() (*ConfigPaths, error) {
	configFile, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	dataDir, err := getDefaultDataDir()
	if err != nil {
		return nil, err
	}
	return &ConfigPaths{
		ConfigFile:  configFile,
		DataDir:     dataDir,
		StorageFile: filepath.Join(dataDir, "bands.json"),
		HistoryFile: filepath.Join(dataDir, "console_history"),
	}, nil
}

func defaultConfigPath() (string, error) {
	if path := os.Getenv("BANDMAN_CONFIG"); path != "" {
		return path, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(configDir, "com.berrythewa.bandman", "config.yaml"), nil
	}
	return filepath.Join(configDir, "bandman", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	if dir := os.Getenv("BANDMAN_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "bandman"), nil
	case "windows":
		if appData, err := os.UserConfigDir(); err == nil {
			return filepath.Join(appData, "bandman", "data"), nil
		}
		return filepath.Join(home, "AppData", "Local", "bandman"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "bandman"), nil
		}
		return filepath.Join(home, ".bandman"), nil
	}
}
