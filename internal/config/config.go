package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml. The scheduling/capacity/invoicing sections hold
// the policies that are deliberately overridable rather than hard-coded:
// whether touching interval endpoints counts as a conflict, whether
// unverified hours already reserve contract capacity, and whether payouts
// lock the activities they cover.
type Config struct {
	Scheduling struct {
		EndpointTouchConflicts bool `yaml:"endpoint_touch_conflicts"`
	} `yaml:"scheduling"`
	Capacity struct {
		ReserveUnverified bool `yaml:"reserve_unverified"`
	} `yaml:"capacity"`
	Invoicing struct {
		LockPayoutActivities bool `yaml:"lock_payout_activities"`
	} `yaml:"invoicing"`
	Billing struct {
		DefaultPeriodDays int `yaml:"default_period_days"`
	} `yaml:"billing"`
	Server struct {
		RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Billing.DefaultPeriodDays < 0 {
		return fmt.Errorf("config.billing.default_period_days must not be negative")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("config.server.request_timeout_seconds must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// Load reads and validates config from the workspace, falling back to
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields absent
// from the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `scheduling:
  # Back-to-back bookings that touch at an endpoint count as a conflict.
  endpoint_touch_conflicts: true

capacity:
  # When true, scheduled/in_progress/done hours already count against the
  # contract; by default only verified and invoiced hours do, so several
  # unverified activities can collectively request more than the remainder.
  reserve_unverified: false

invoicing:
  # When true, worker payouts flip the covered activities to invoiced the
  # same way client billing does, preventing duplicate payout generation.
  lock_payout_activities: false

billing:
  default_period_days: 30

server:
  request_timeout_seconds: 10
`
