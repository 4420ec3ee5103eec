package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models formflow.yml.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		BasePath       string   `yaml:"base_path"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Storage struct {
		FormsDir     string `yaml:"forms_dir"`
		CompletedDir string `yaml:"completed_dir"`
	} `yaml:"storage"`
	Sessions struct {
		TTLMinutes   int `yaml:"ttl_minutes"`
		SweepSeconds int `yaml:"sweep_seconds"`
	} `yaml:"sessions"`
	Chat struct {
		WelcomeMessage    string `yaml:"welcome_message"`
		CompletionMessage string `yaml:"completion_message"`
	} `yaml:"chat"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with ff config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" || !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for _, o := range c.Server.AllowedOrigins {
		if o == "" {
			return fmt.Errorf("config.server.allowed_origins contains empty origin")
		}
	}
	if c.Storage.FormsDir == "" {
		return fmt.Errorf("config.storage.forms_dir is required")
	}
	if c.Storage.CompletedDir == "" {
		return fmt.Errorf("config.storage.completed_dir is required")
	}
	if c.Sessions.TTLMinutes <= 0 {
		return fmt.Errorf("config.sessions.ttl_minutes must be positive")
	}
	if c.Sessions.SweepSeconds <= 0 {
		return fmt.Errorf("config.sessions.sweep_seconds must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "formflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8000
  base_path: /api
  allowed_origins:
    - http://localhost:5173
    - http://localhost:5174
    - http://localhost:5175
    - http://localhost:3000

storage:
  forms_dir: forms
  completed_dir: completed_forms

sessions:
  ttl_minutes: 30
  sweep_seconds: 60

chat:
  welcome_message: "Welcome to the formflow API!"
  completion_message: "Thank you! You have completed the form successfully."
`
