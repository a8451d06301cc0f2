// Package config provides configuration management for the notes tracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig `mapstructure:"database"`
	Prices      PricesConfig   `mapstructure:"prices"`
	Engine      EngineConfig   `mapstructure:"engine"`
	UI          UIConfig       `mapstructure:"ui"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PricesConfig holds price retrieval configuration.
type PricesConfig struct {
	// DelayMillis is the minimum spacing between upstream API calls.
	DelayMillis int `mapstructure:"delay_millis"`
	// LookbackDays is the default history window when none is given.
	LookbackDays int `mapstructure:"lookback_days"`
}

// EngineConfig holds evaluation engine configuration.
type EngineConfig struct {
	Workers int `mapstructure:"workers"`
	// DeferredPolicy: "forfeit" or "pay_at_ko"
	DeferredPolicy string `mapstructure:"deferred_policy"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/notes-tracker"
	}
	return filepath.Join(home, ".config", "notes-tracker")
}

// DefaultDatabasePath returns the default SQLite database path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultConfigDir(), "notes.db")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("database.path", filepath.Join(configDir, "notes.db"))
	v.SetDefault("prices.delay_millis", 1000)
	v.SetDefault("prices.lookback_days", 370)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.deferred_policy", "forfeit")
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("openai.model", "gpt-4o")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// extraction is optional; a missing credentials file is fine
			createTemplateCredentials(configDir)
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("NOTES_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath()
	}
	if cfg.Prices.DelayMillis == 0 {
		cfg.Prices.DelayMillis = 1000
	}
	if cfg.Prices.LookbackDays == 0 {
		cfg.Prices.LookbackDays = 370
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.DeferredPolicy == "" {
		cfg.Engine.DeferredPolicy = "forfeit"
	}
	if cfg.Credentials.OpenAI.Model == "" {
		cfg.Credentials.OpenAI.Model = "gpt-4o"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Prices.DelayMillis < 0 {
		return fmt.Errorf("prices.delay_millis must be non-negative")
	}
	if c.Prices.LookbackDays < 1 {
		return fmt.Errorf("prices.lookback_days must be at least 1")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1")
	}
	if c.Engine.DeferredPolicy != "forfeit" && c.Engine.DeferredPolicy != "pay_at_ko" {
		return fmt.Errorf("invalid deferred_policy: %s (must be 'forfeit' or 'pay_at_ko')", c.Engine.DeferredPolicy)
	}
	return nil
}
