// Package pureconfig decodes the host platform's storage.cfg options table
// (arriving as map[string]string) into a typed, validated Config, failing
// fast on the first invalid or missing field rather than deferring to
// whatever operation first touches the bad value.
package pureconfig

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Protocol identifies the SAN transport in use.
type Protocol string

const (
	ProtocolISCSI Protocol = "iscsi"
	ProtocolFC    Protocol = "fc"
)

// HostMode controls whether this plugin registers one array Host object per
// cluster node or a single object shared by the whole cluster.
type HostMode string

const (
	HostModePerNode HostMode = "per-node"
	HostModeShared  HostMode = "shared"
)

const (
	minDeviceTimeout = 10
	maxDeviceTimeout = 300
	defaultDeviceTimeout = 60
)

// Config is the validated, typed form of the plugin's storage.cfg options.
type Config struct {
	Portal        string   `mapstructure:"portal"`
	APIToken      string   `mapstructure:"api-token"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	SSLVerify     bool     `mapstructure:"ssl-verify"`
	Protocol      Protocol `mapstructure:"protocol"`
	HostMode      HostMode `mapstructure:"host-mode"`
	ClusterName   string   `mapstructure:"cluster-name"`
	DeviceTimeout int      `mapstructure:"device-timeout"`
	Pod           string   `mapstructure:"pod"`
}

// Decode builds a Config from the raw options map, applying defaults before
// validating. A decode or validation failure is always fatal: the plugin
// never starts with a partially-applied, silently-defaulted configuration.
func Decode(raw map[string]string) (Config, error) {
	cfg := Config{
		SSLVerify:     false,
		Protocol:      ProtocolISCSI,
		HostMode:      HostModePerNode,
		ClusterName:   "pve",
		DeviceTimeout: defaultDeviceTimeout,
	}

	decoderCfg := &mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true, // the options table is map[string]string; bools/ints arrive as strings
	}
	decoder, err := mapstructure.NewDecoder(decoderCfg)
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding storage options: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the bounds and required-field rules for the options.
func (c Config) Validate() error {
	if c.Portal == "" {
		return fmt.Errorf("portal is required")
	}
	if c.APIToken == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("either api-token or both username and password must be set")
	}
	if c.Protocol != ProtocolISCSI && c.Protocol != ProtocolFC {
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolISCSI, ProtocolFC, c.Protocol)
	}
	if c.HostMode != HostModePerNode && c.HostMode != HostModeShared {
		return fmt.Errorf("host-mode must be %q or %q, got %q", HostModePerNode, HostModeShared, c.HostMode)
	}
	if c.DeviceTimeout < minDeviceTimeout || c.DeviceTimeout > maxDeviceTimeout {
		return fmt.Errorf("device-timeout must be between %d and %d seconds, got %d",
			minDeviceTimeout, maxDeviceTimeout, c.DeviceTimeout)
	}
	return nil
}
