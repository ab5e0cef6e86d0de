// Package config loads tcards configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/clockmail_cards/internal/conversation"
)

// DefaultPath is where the config file is looked for, relative to the
// directory holding the clockmail database.
const DefaultPath = ".clockmail/tcards.yaml"

// Config is the full tcards configuration.
type Config struct {
	// TickInterval is the delay between two card reconciliations.
	TickInterval string `yaml:"tick_interval"`
	// Refresh is the polling fallback for database changes.
	Refresh string `yaml:"refresh"`
	// Sender is the agent id messages are sent as.
	Sender string `yaml:"sender"`
	// ReplySets is the path of the reply set library.
	ReplySets string `yaml:"reply_sets"`
	// Language is the BCP 47 tag cards are collated by.
	Language string `yaml:"language"`

	Groups   []conversation.GroupDef `yaml:"groups"`
	Settings SettingsConfig          `yaml:"settings"`
	Log      LogConfig               `yaml:"log"`
}

// SettingsConfig selects the settings backend.
type SettingsConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	Debounce string `yaml:"debounce"`
}

// LogConfig configures the log file.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TickInterval: "500ms",
		Refresh:      "2s",
		Sender:       "tcards",
		ReplySets:    ".clockmail/replies.yaml",
		Language:     "und",
		Settings: SettingsConfig{
			Backend:  "file",
			Path:     ".clockmail/tcards-settings.yaml",
			Debounce: "250ms",
		},
		Log: LogConfig{
			Path:  ".clockmail/tcards.log",
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies TCARDS_* overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"TCARDS_TICK_INTERVAL", &c.TickInterval},
		{"TCARDS_REFRESH", &c.Refresh},
		{"TCARDS_SENDER", &c.Sender},
		{"TCARDS_REPLY_SETS", &c.ReplySets},
		{"TCARDS_LANGUAGE", &c.Language},
		{"TCARDS_SETTINGS_BACKEND", &c.Settings.Backend},
		{"TCARDS_SETTINGS_PATH", &c.Settings.Path},
		{"TCARDS_REDIS_URL", &c.Settings.RedisURL},
		{"TCARDS_LOG_PATH", &c.Log.Path},
		{"TCARDS_LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks the durations and required fields.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"tick_interval":     c.TickInterval,
		"refresh":           c.Refresh,
		"settings.debounce": c.Settings.Debounce,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("config %s: must be positive, got %s", name, v)
		}
	}
	if c.Sender == "" {
		return errors.New("config sender: must not be empty")
	}
	for _, g := range c.Groups {
		if g.Name == "" {
			return errors.New("config groups: a group needs a name")
		}
	}
	return nil
}

// Resolve makes relative paths relative to root, the directory that holds
// the .clockmail directory.
func (c *Config) Resolve(root string) {
	for _, p := range []*string{&c.ReplySets, &c.Settings.Path, &c.Log.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

// Tick returns TickInterval as a duration.
func (c *Config) Tick() time.Duration { return mustDuration(c.TickInterval, 500*time.Millisecond) }

// RefreshEvery returns Refresh as a duration.
func (c *Config) RefreshEvery() time.Duration { return mustDuration(c.Refresh, 2*time.Second) }

// DebounceDelay returns Settings.Debounce as a duration.
func (c *Config) DebounceDelay() time.Duration {
	return mustDuration(c.Settings.Debounce, 250*time.Millisecond)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
