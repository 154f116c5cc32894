// Package config holds the TOML file helpers and directory conventions used by printrelay.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// AppName is the directory name used under system and user locations.
const AppName = "printrelay"

// ErrConfigNotFound is returned when no candidate location holds the file.
var ErrConfigNotFound = errors.New("config file not found")

// FindConfigFile returns the first readable file among GetConfigSearchPaths.
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s: %w", filename, ErrConfigNotFound)
}

// GetConfigSearchPaths lists candidate locations, highest priority first:
// system directory, user config directory, executable directory, working directory.
func GetConfigSearchPaths(filename string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), AppName, filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", AppName, filename))
	default:
		paths = append(paths, filepath.Join("/etc", AppName, filename))
	}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, AppName, filename))
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), filename))
	}

	return append(paths, filepath.Join(".", filename))
}

// GetDataDirectory returns (and creates) the directory for the database and state files.
// Services use a system-wide location, interactive runs a per-user one.
func GetDataDirectory(isService bool) (string, error) {
	var dir string
	if isService {
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(os.Getenv("ProgramData"), AppName)
		default:
			dir = filepath.Join("/var/lib", AppName)
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(home, "AppData", "Local", AppName)
		case "darwin":
			dir = filepath.Join(home, "Library", "Application Support", AppName)
		default:
			dir = filepath.Join(home, ".local", "share", AppName)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// GetLogDirectory returns (and creates) the log directory.
func GetLogDirectory(isService bool) (string, error) {
	dir := "logs"
	if isService {
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(os.Getenv("ProgramData"), AppName, "logs")
		default:
			dir = filepath.Join("/var/log", AppName)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return dir, nil
}

// WriteDefaultTOML encodes cfg to configPath. An existing file is left alone.
func WriteDefaultTOML(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(configPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadTOML decodes configPath into cfg. Keys absent from the file keep cfg's values,
// so callers pass a struct already holding defaults.
func LoadTOML(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("%s: %w", configPath, ErrConfigNotFound)
	}
	md, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config keys: %v", undecoded)
	}
	return nil
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// ApplyDatabaseEnvOverrides applies DB_PATH.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig) {
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.Path = val
	}
}

// ApplyLoggingEnvOverrides applies LOG_LEVEL and LOG_DIR.
func ApplyLoggingEnvOverrides(cfg *LoggingConfig) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Level = val
	}
	if val := os.Getenv("LOG_DIR"); val != "" {
		cfg.Dir = val
	}
}
