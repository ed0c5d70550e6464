// Package config loads daemon configuration from a YAML file with
// environment overrides for deploy-specific endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts values like "30s" or "5m".
// Bare integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon configuration.
type Config struct {
	DB struct {
		Path string `yaml:"path"`
	} `yaml:"db"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	Game struct {
		TurnTimer      Duration `yaml:"turn_timer"`
		StartCountdown Duration `yaml:"start_countdown"`
		SweepInterval  Duration `yaml:"sweep_interval"`
	} `yaml:"game"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.DB.Path = filepath.Join("data", "pokerpal.db")
	cfg.Log.Level = "info"
	cfg.Game.TurnTimer = Duration(30 * time.Second)
	cfg.Game.StartCountdown = Duration(30 * time.Second)
	cfg.Game.SweepInterval = Duration(2 * time.Second)
	return cfg
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; environment variables POKERPAL_DB_PATH and POKERPAL_NATS_URL
// override either source.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if v := os.Getenv("POKERPAL_DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("POKERPAL_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.Game.SweepInterval <= 0 {
		return fmt.Errorf("game.sweep_interval must be positive")
	}
	if c.Game.TurnTimer < 0 || c.Game.StartCountdown < 0 {
		return fmt.Errorf("timers cannot be negative")
	}
	return nil
}
