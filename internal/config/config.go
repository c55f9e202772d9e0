// Package config loads the shortener's settings from config.yaml in the data
// directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/maruel/urlshort/internal/storage"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file in the data directory.
const FileName = "config.yaml"

// Config stores all settings. Loaded from config.yaml, created with defaults
// if missing.
type Config struct {
	// BaseURL is the public URL short links are printed under. Targets on the
	// same host are rejected.
	BaseURL string `yaml:"base_url"`

	// AliasLength is the length of generated aliases.
	AliasLength int `yaml:"alias_length"`

	// AliasRetries bounds the attempts at finding a free random alias.
	AliasRetries int `yaml:"alias_retries"`

	// BcryptCost is the cost of password hashes.
	BcryptCost int `yaml:"bcrypt_cost"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BaseURL:      "http://localhost:8080",
		AliasLength:  storage.DefaultAliasLength,
		AliasRetries: 100,
		BcryptCost:   bcrypt.DefaultCost,
		LogLevel:     "info",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http or https url, got %q", c.BaseURL)
	}
	if c.AliasLength < 1 || c.AliasLength > 64 {
		return errors.New("alias_length must be between 1 and 64")
	}
	if c.AliasRetries < 1 {
		return errors.New("alias_retries must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Load loads configuration from dataDir/config.yaml. Missing keys keep their
// default. Creates the file with defaults if it doesn't exist.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/config.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
