// Package config loads bothive's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete bothive configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	// Tiers maps a tenant tier to its bot quota. Zero or missing means
	// unlimited.
	Tiers map[string]int `yaml:"tiers"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name          string        `yaml:"name"`
	LogLevel      string        `yaml:"log_level"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// StorageConfig defines sqlite and bot data locations.
type StorageConfig struct {
	Path    string `yaml:"path"`
	DataDir string `yaml:"data_dir"`
}

// APIConfig defines HTTP server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// AuthConfig defines credential settings.
type AuthConfig struct {
	CodeTTL time.Duration `yaml:"code_ttl"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file, expanding ${VAR}
// references against the environment.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", absPath)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "bothive"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Service.ShutdownGrace <= 0 {
		cfg.Service.ShutdownGrace = 10 * time.Second
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "bothive.db"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data/bots"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:8420"
	}
	if cfg.Auth.CodeTTL <= 0 {
		cfg.Auth.CodeTTL = 5 * time.Minute
	}
	if cfg.Tiers == nil {
		cfg.Tiers = map[string]int{"free": 2}
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is empty")
	}
	for tier, limit := range cfg.Tiers {
		if limit < 0 {
			return fmt.Errorf("tiers.%s must not be negative", tier)
		}
	}
	return nil
}

// QuotaFor returns the bot quota for a tier. Unknown tiers fall back to the
// "free" quota; 0 means unlimited.
func (c *Config) QuotaFor(tier string) int {
	if limit, ok := c.Tiers[tier]; ok {
		return limit
	}
	return c.Tiers["free"]
}
