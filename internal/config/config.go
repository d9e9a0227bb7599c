package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mavleo96/h2sync/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	defaultGlobalTimeout = 60 * time.Second
	// one-unit stagger applied before the HTTP/2 client is built
	defaultStaggerDelay = 1 * time.Second
)

// Config holds the configuration of one test instance
type Config struct {
	Role                     string                  `yaml:"role"`
	RoleComparisonValue      string                  `yaml:"role_comparison_value"`
	ControllerConfigFilename string                  `yaml:"controller_config_filename"`
	GlobalTimeout            time.Duration           `yaml:"global_timeout"`
	// SyncTimeout bounds each rendezvous; zero leaves only the global deadline
	SyncTimeout              time.Duration           `yaml:"sync_timeout"`
	StaggerDelay             *time.Duration          `yaml:"stagger_delay"`
	Client                   ClientEndpoint          `yaml:"client"`
	Server                   ServerEndpoint          `yaml:"server"`
	ClientFrames             models.ScenarioFrameSet `yaml:"client_frames"`
	ServerFrames             models.ScenarioFrameSet `yaml:"server_frames"`
	ReportDB                 string                  `yaml:"report_db"`

	// directory of the config file; relative paths are resolved against it
	baseDir string
}

// ClientEndpoint configures the HTTP/2 client built in the client role
type ClientEndpoint struct {
	Address            string               `yaml:"address"`
	TLS                bool                 `yaml:"tls"`
	InsecureSkipVerify bool                 `yaml:"insecure_skip_verify"`
	ServerName         string               `yaml:"server_name"`
	Settings           []models.SettingSpec `yaml:"settings"`
}

// ServerEndpoint configures the HTTP/2 server built in the server role
type ServerEndpoint struct {
	ListenAddress string               `yaml:"listen_address"`
	TLS           bool                 `yaml:"tls"`
	CertFile      string               `yaml:"cert_file"`
	KeyFile       string               `yaml:"key_file"`
	Settings      []models.SettingSpec `yaml:"settings"`
}

// ParseConfig reads and validates a test config file
func ParseConfig(cfgPath string) (*Config, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return &Config{}, err
	}
	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return &Config{}, fmt.Errorf("failed to parse config %s: %w", cfgPath, err)
	}
	cfg.baseDir = filepath.Dir(cfgPath)
	cfg.Server.CertFile = cfg.ResolvePath(cfg.Server.CertFile)
	cfg.Server.KeyFile = cfg.ResolvePath(cfg.Server.KeyFile)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return &Config{}, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GlobalTimeout == 0 {
		c.GlobalTimeout = defaultGlobalTimeout
	}
	if c.StaggerDelay == nil {
		d := defaultStaggerDelay
		c.StaggerDelay = &d
	}
}

// Validate checks that the config can drive a run in its role
func (c *Config) Validate() error {
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return err
	}
	if c.ControllerConfigFilename == "" {
		return errors.New("controller_config_filename is required")
	}
	if c.GlobalTimeout < 0 || c.SyncTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	// the endpoint of the configured role is required; the other one is only used
	// when the negotiated comparison value puts this instance on the opposite branch
	switch role {
	case models.RoleClient:
		if c.Client.Address == "" {
			return errors.New("client.address is required in the client role")
		}
	case models.RoleServer:
		if c.Server.ListenAddress == "" {
			return errors.New("server.listen_address is required in the server role")
		}
	}
	if c.Server.TLS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return errors.New("server.cert_file and server.key_file are required with tls")
	}
	if c.RoleComparisonValue != "" {
		if _, err := models.ParseRole(c.RoleComparisonValue); err != nil {
			return fmt.Errorf("role_comparison_value: %w", err)
		}
	}
	return nil
}

// normalize rewrites role values to their canonical spelling
func (c *Config) normalize() {
	c.Role = string(c.ParsedRole())
	if r, err := models.ParseRole(c.RoleComparisonValue); err == nil {
		c.RoleComparisonValue = string(r)
	}
}

// ParsedRole returns the validated role
func (c *Config) ParsedRole() models.Role {
	role, _ := models.ParseRole(c.Role)
	return role
}

// Stagger returns the delay held before the HTTP/2 client is built
func (c *Config) Stagger() time.Duration {
	if c.StaggerDelay == nil {
		return defaultStaggerDelay
	}
	return *c.StaggerDelay
}

// ResolvePath resolves a path relative to the config file directory
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// ControllerConfigPath returns the resolved controller config path
func (c *Config) ControllerConfigPath() string {
	return c.ResolvePath(c.ControllerConfigFilename)
}
