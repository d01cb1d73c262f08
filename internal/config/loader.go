package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SettingsFileName is the settings file inside the host config directory.
const SettingsFileName = "settings.json"

// HostConfigDirName is the per-user config directory under $HOME.
const HostConfigDirName = ".vaultpilot"

// Loader handles settings loading and saving.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path resolves to the default location
// under the user's home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the resolved settings file path.
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, HostConfigDirName, SettingsFileName)
}

// Load reads, schema-checks, and unmarshals the settings file. A missing
// file yields the defaults; a present but invalid file is an error, never a
// silent fallback.
func (l *Loader) Load() (*Config, error) {
	configPath := l.Path()
	if configPath == "" {
		return nil, fmt.Errorf("cannot resolve settings path: no home directory")
	}

	raw, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return l.withDerivedPaths(DefaultConfig())
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("VAULTPILOT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return l.withDerivedPaths(cfg)
}

// withDerivedPaths fills path fields that default relative to the data dir.
func (l *Loader) withDerivedPaths(cfg *Config) (*Config, error) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, HostConfigDirName)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "vaultpilot.log")
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.DataDir, "history.db")
	}
	return cfg, nil
}

// Save writes the settings file, creating the config directory as needed.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.Path()
	if configPath == "" {
		return fmt.Errorf("cannot resolve settings path: no home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("engine", cfg.Engine)
	v.Set("permissions", cfg.Permissions)
	v.Set("limits", cfg.Limits)
	v.Set("history", cfg.History)
	v.Set("logging", cfg.Logging)
	v.Set("bridge", cfg.Bridge)
	v.Set("metrics", cfg.Metrics)
	v.Set("vault_dir", cfg.VaultDir)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("write settings file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads once.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
