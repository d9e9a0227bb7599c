package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	ModeListen = "listen"
	ModeDial   = "dial"
)

// ControllerConfig describes how the control channel is established
type ControllerConfig struct {
	Mode          string `yaml:"mode"`
	ListenAddress string `yaml:"listen_address"`
	PeerAddress   string `yaml:"peer_address"`
}

// ParseControllerConfig reads a controller config file
func ParseControllerConfig(cfgPath string) (*ControllerConfig, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return &ControllerConfig{}, err
	}
	var cfg ControllerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &ControllerConfig{}, fmt.Errorf("failed to parse controller config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return &ControllerConfig{}, fmt.Errorf("invalid controller config %s: %w", cfgPath, err)
	}
	return &cfg, nil
}

// Validate checks the mode and the address it needs
func (c *ControllerConfig) Validate() error {
	switch c.Mode {
	case ModeListen:
		if c.ListenAddress == "" {
			return errors.New("listen_address is required in listen mode")
		}
	case ModeDial:
		if c.PeerAddress == "" {
			return errors.New("peer_address is required in dial mode")
		}
	default:
		return fmt.Errorf("invalid mode %q: expected %q or %q", c.Mode, ModeListen, ModeDial)
	}
	return nil
}
