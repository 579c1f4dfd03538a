package discovery

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "3s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ScanConfig is the on-disk scan configuration.
type ScanConfig struct {
	// Interfaces restricts scanning to the named interfaces.
	Interfaces []string `yaml:"interfaces,omitempty"`

	// ResolveTimeout bounds a single resolve attempt.
	ResolveTimeout Duration `yaml:"resolve_timeout,omitempty"`

	// ResolveRetries is the retry count after a resolve timeout.
	ResolveRetries int `yaml:"resolve_retries,omitempty"`

	// ResolveBackoffInitial and ResolveBackoffMax bound the retry delay.
	ResolveBackoffInitial Duration `yaml:"resolve_backoff_initial,omitempty"`
	ResolveBackoffMax     Duration `yaml:"resolve_backoff_max,omitempty"`

	// BrowseInterval is the browse re-query period.
	BrowseInterval Duration `yaml:"browse_interval,omitempty"`

	// EventLog is an optional path for the CBOR event log.
	EventLog string `yaml:"event_log,omitempty"`

	// Presets maps a preset name to the service types it queries.
	Presets map[string][]string `yaml:"presets,omitempty"`
}

// DefaultScanConfig returns the default scan configuration, including
// the built-in Dante audio network preset.
func DefaultScanConfig() ScanConfig {
	defaults := DefaultConfig()
	return ScanConfig{
		ResolveTimeout:        Duration(defaults.ResolveTimeout),
		ResolveRetries:        defaults.ResolveRetries,
		ResolveBackoffInitial: Duration(defaults.ResolveBackoffInitial),
		ResolveBackoffMax:     Duration(defaults.ResolveBackoffMax),
		BrowseInterval:        Duration(defaults.BrowseInterval),
		Presets: map[string][]string{
			"dante": {
				"_dante-safe._udp",
				"_dante-upgr._udp",
				"_netaudio-arc._udp",
				"_netaudio-chan._udp",
				"_netaudio-cmc._udp",
				"_netaudio-dbc._udp",
				"_dante-ddm-d._udp",
				"_dante-ddm-c._tcp",
			},
		},
	}
}

// LoadScanConfig reads a YAML scan configuration, filling unset fields
// from the defaults. A missing file yields the defaults unchanged.
func LoadScanConfig(path string) (ScanConfig, error) {
	config := DefaultScanConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, fmt.Errorf("reading scan config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing scan config: %w", err)
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c ScanConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding scan config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ControllerConfig converts the on-disk configuration into a runtime
// controller configuration.
func (c ScanConfig) ControllerConfig() Config {
	config := DefaultConfig()
	config.Interfaces = c.Interfaces
	if c.ResolveTimeout > 0 {
		config.ResolveTimeout = time.Duration(c.ResolveTimeout)
	}
	if c.ResolveRetries > 0 {
		config.ResolveRetries = c.ResolveRetries
	}
	if c.ResolveBackoffInitial > 0 {
		config.ResolveBackoffInitial = time.Duration(c.ResolveBackoffInitial)
	}
	if c.ResolveBackoffMax > 0 {
		config.ResolveBackoffMax = time.Duration(c.ResolveBackoffMax)
	}
	if c.BrowseInterval > 0 {
		config.BrowseInterval = time.Duration(c.BrowseInterval)
	}
	return config
}
