// Package config handles pagebeacon configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pagebeacon/idgen"
)

// Duration wraps time.Duration with YAML support for "30s" style values.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("90s", "2m") or a plain
// integer, read as seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if v, err := time.ParseDuration(node.Value); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs int64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("config: invalid duration %q", node.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level pagebeacon configuration.
type Config struct {
	Relay    RelayConfig   `yaml:"relay"`
	Pages    []PageConfig  `yaml:"pages"`
	Interval Duration      `yaml:"interval"`
	Browser  BrowserConfig `yaml:"browser"`
}

// RelayConfig locates the presence relay.
type RelayConfig struct {
	URL string `yaml:"url"`
}

// PageConfig defines one page to report presence for.
type PageConfig struct {
	ID                  string `yaml:"id"`
	URL                 string `yaml:"url"`
	Source              string `yaml:"source"` // static | browser | auto
	NameOverride        string `yaml:"name_override"`
	DescriptionOverride string `yaml:"description_override"`
}

// BrowserConfig controls the Chrome-backed document source.
type BrowserConfig struct {
	Remote string `yaml:"remote"` // WebSocket URL of an external Chrome; empty = launch local
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var newPageID = idgen.NanoID(12)

// ApplyDefaults fills zero values with operational defaults. Pages without
// an id get a generated one so per-page reporting never shows an empty
// identifier.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = Duration(time.Minute)
	}
	for i := range c.Pages {
		if c.Pages[i].Source == "" {
			c.Pages[i].Source = "auto"
		}
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = newPageID()
		}
	}
}

// Validate rejects configurations the runner cannot act on. A missing relay
// URL is legal here: it disables every beacon, which the runner reports per
// page instead of refusing to start.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Pages))
	for i, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: pages[%d]: url is required", i)
		}
		switch p.Source {
		case "static", "browser", "auto":
		default:
			return fmt.Errorf("config: pages[%d]: unknown source %q", i, p.Source)
		}
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				return fmt.Errorf("config: duplicate page id %q", p.ID)
			}
			seen[p.ID] = struct{}{}
		}
	}
	return nil
}
