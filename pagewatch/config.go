package pagewatch

import "github.com/hazyhaar/credkeeper/pagewatch/internal/config"

// Re-exports so callers outside the package tree can load the daemon
// configuration without reaching into internal.

type (
	DaemonConfig   = config.Config
	BrowserConfig  = config.BrowserConfig
	PageConfig     = config.PageConfig
	DebounceConfig = config.DebounceConfig
	BrokerConfig   = config.BrokerConfig
	HTTPConfig     = config.HTTPConfig
)

// LoadConfigFile reads a YAML daemon configuration file.
func LoadConfigFile(path string) (*DaemonConfig, error) {
	return config.LoadFile(path)
}
