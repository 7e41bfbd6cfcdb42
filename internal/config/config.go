package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"focusline/internal/domain"
)

// FileName is the workspace config file.
const FileName = "focusline.yml"

// Config models focusline.yml.
type Config struct {
	Optimizer struct {
		Enabled  bool          `yaml:"enabled"`
		Endpoint string        `yaml:"endpoint"`
		Timeout  time.Duration `yaml:"timeout"`
		APIKey   string        `yaml:"api_key"`
	} `yaml:"optimizer"`
	Session struct {
		EnergyLevel   domain.EnergyLevel `yaml:"energy_level"`
		SessionLength int                `yaml:"session_length"`
	} `yaml:"session"`
	Timer struct {
		Tick time.Duration `yaml:"tick"`
	} `yaml:"timer"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Optimizer.Enabled {
		if strings.TrimSpace(c.Optimizer.Endpoint) == "" {
			return fmt.Errorf("config.optimizer.endpoint is required when the optimizer is enabled")
		}
		u, err := url.Parse(c.Optimizer.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.optimizer.endpoint must be an http(s) URL")
		}
	}
	if c.Optimizer.Timeout <= 0 {
		return fmt.Errorf("config.optimizer.timeout must be positive")
	}
	if !c.Session.EnergyLevel.IsValid() {
		return fmt.Errorf("config.session.energy_level must be low, medium or high")
	}
	if c.Session.SessionLength < 5 || c.Session.SessionLength > 120 {
		return fmt.Errorf("config.session.session_length must be between 5 and 120 minutes")
	}
	if c.Timer.Tick <= 0 {
		return fmt.Errorf("config.timer.tick must be positive")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace. The file must exist.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with focusline init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
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
	cfg.Optimizer.Timeout = 30 * time.Second
	cfg.Session.EnergyLevel = domain.EnergyMedium
	cfg.Session.SessionLength = 25
	cfg.Timer.Tick = time.Second
	cfg.Server.Addr = "127.0.0.1:8080"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset keys keep
// their defaults.
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

const defaultTemplate = `optimizer:
  enabled: false
  # endpoint: https://optimizer.example.com/api/optimize
  timeout: 30s
  # api_key may also come from FOCUSLINE_OPTIMIZER_API_KEY

session:
  energy_level: medium
  session_length: 25

timer:
  tick: 1s

server:
  addr: 127.0.0.1:8080
  base_path: ""
`
