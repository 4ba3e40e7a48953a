package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// StatusRule maps one backend status token (a list/column id or name) to a
// normalized status. Rules are ordered: when several tokens map to the same
// status, reverse lookup resolves to the first-configured token.
type StatusRule struct {
	Token  string `mapstructure:"token" yaml:"token"`
	Status Status `mapstructure:"status" yaml:"status"`
}

// ProjectMapping holds the status mapping for a single project or board.
type ProjectMapping struct {
	ProjectID string       `mapstructure:"project_id" yaml:"project_id"`
	Statuses  []StatusRule `mapstructure:"statuses" yaml:"statuses"`
}

// BackendConfig holds the configuration for one backend instance.
type BackendConfig struct {
	// Kind identifies the backend platform (e.g. "jira", "github").
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Instance is the user-defined name distinguishing multiple accounts
	// on the same platform.
	Instance string `mapstructure:"instance" yaml:"instance"`

	// BaseURL is the root URL of the backend service.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// CredentialKey overrides the keyring entry name; defaults to
	// "<kind>/<instance>".
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`

	// WebhookSecret is the shared secret used to verify inbound webhook
	// signatures. Verification fails closed when empty.
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`

	// PollIntervalSec is how often the polling fallback lists issues for
	// backends without webhook delivery.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// Projects carries the per-project status mappings.
	Projects []ProjectMapping `mapstructure:"projects" yaml:"projects"`

	// Options holds backend-specific key-value settings
	// (e.g. default project keys, GraphQL endpoints).
	Options map[string]string `mapstructure:"options" yaml:"options"`
}

// Config is the top-level bridge configuration.
type Config struct {
	Backends []BackendConfig `mapstructure:"backends" yaml:"backends"`
	DBPath   string          `mapstructure:"db_path" yaml:"db_path"`
	Listen   string          `mapstructure:"listen" yaml:"listen"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/pmbridge/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "pmbridge", "config.yaml")
}

// defaultConfig returns a sensible default configuration.
func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DBPath: filepath.Join(home, ".config", "pmbridge", "pmbridge.db"),
		Listen: "127.0.0.1:8377",
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("listen", "127.0.0.1:8377")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Backends {
		if cfg.Backends[i].PollIntervalSec == 0 {
			cfg.Backends[i].PollIntervalSec = 120
		}
	}

	return cfg, nil
}

// Validate checks a backend entry before any adapter is constructed.
// It reports every missing required field in a single error rather than
// stopping at the first.
func (c *BackendConfig) Validate() error {
	var missing []string
	if c.Kind == "" {
		missing = append(missing, "kind")
	}
	if c.Instance == "" {
		missing = append(missing, "instance")
	}
	if c.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf(
			"backend config missing required field(s): %s",
			strings.Join(missing, ", "),
		)
	}

	for _, pm := range c.Projects {
		if pm.ProjectID == "" {
			return fmt.Errorf(
				"backend %s/%s: project mapping missing project_id",
				c.Kind, c.Instance,
			)
		}
		for _, rule := range pm.Statuses {
			if !rule.Status.Valid() {
				return fmt.Errorf(
					"backend %s/%s: project %s maps token %q to unknown status %q",
					c.Kind, c.Instance, pm.ProjectID, rule.Token, rule.Status,
				)
			}
		}
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backends", cfg.Backends)
	v.Set("db_path", cfg.DBPath)
	v.Set("listen", cfg.Listen)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
