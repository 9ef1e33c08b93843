package pagebeacon

import (
	"github.com/hazyhaar/pagebeacon/internal/config"
)

// RunnerConfig is the top-level runner configuration. Re-exported from
// internal.
type RunnerConfig = config.Config

// RelayConfig locates the presence relay.
type RelayConfig = config.RelayConfig

// PageConfig defines one page to report presence for.
type PageConfig = config.PageConfig

// BrowserConfig controls the Chrome-backed document source.
type BrowserConfig = config.BrowserConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*RunnerConfig, error) {
	return config.LoadFile(path)
}
