// Package config loads pilot configuration from YAML and environment
// variables via viper.
//
// A Config is rebuilt from defaults on every credential-refresh
// lifecycle event; runtime model/provider choices do not survive a
// rebuild on their own. The preserve package exists to carry them
// across.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ProviderConfig holds per-provider overrides from the config file.
type ProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Config holds all pilot configuration.
type Config struct {
	DataDir          string                    `mapstructure:"data_dir"`
	LogLevel         string                    `mapstructure:"log_level"`
	LogFormat        string                    `mapstructure:"log_format"`
	DefaultMaxTokens int                       `mapstructure:"default_max_tokens"`
	Providers        map[string]ProviderConfig `mapstructure:"providers"`

	// Runtime-only model selection. Deliberately not read from the
	// config file: rebuilt empty on every Load, preserved across
	// rebuilds by the preserve manager.
	ActiveProvider string `mapstructure:"-"`
	ActiveModel    string `mapstructure:"-"`
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pilot")
}

// Load reads configuration from ~/.config/pilot/pilot.yaml and the
// PILOT_* environment, falling back to defaults. A missing config file
// is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("pilot")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pilot"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("default_max_tokens", 0)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DataDir = expandPath(cfg.DataDir)
	return &cfg, nil
}

// ProfilesPath returns the model-profile file location.
func (c *Config) ProfilesPath() string {
	return filepath.Join(c.DataDir, "profiles.json")
}

// CredentialsDir returns the per-provider credential file directory.
func (c *Config) CredentialsDir() string {
	return filepath.Join(c.DataDir, "credentials")
}

// UsageDBPath returns the usage ledger location.
func (c *Config) UsageDBPath() string {
	return filepath.Join(c.DataDir, "usage.db")
}

// LogDir returns the log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// EndpointOverride returns the configured endpoint override for a
// provider, or "".
func (c *Config) EndpointOverride(provider string) string {
	if pc, ok := c.Providers[provider]; ok {
		return pc.Endpoint
	}
	return ""
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
