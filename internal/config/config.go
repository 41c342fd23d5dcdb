package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models datarequest.yml.
type Config struct {
	Zone      string `yaml:"zone"`
	PortalURL string `yaml:"portal_url"`

	ServiceAccount string `yaml:"service_account"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Mail MailConfig `yaml:"mail"`

	// Groups seeds the review-body memberships on init.
	Groups map[string][]GroupMember `yaml:"groups"`
}

type MailConfig struct {
	// Mode is "smtp" or "simulate". Simulate logs every message instead of
	// delivering it.
	Mode        string `yaml:"mode"`
	SMTPAddress string `yaml:"smtp_address"`
	From        string `yaml:"from"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type GroupMember struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with drq init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Zone == "" {
		return fmt.Errorf("config.zone is required")
	}
	switch c.Mail.Mode {
	case "", "simulate":
	case "smtp":
		if c.Mail.SMTPAddress == "" {
			return fmt.Errorf("config.mail.smtp_address is required in smtp mode")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("config.mail.from is required in smtp mode")
		}
	default:
		return fmt.Errorf("config.mail.mode must be 'smtp' or 'simulate'")
	}
	for group, members := range c.Groups {
		if group == "" {
			return fmt.Errorf("config.groups contains empty group name")
		}
		for _, m := range members {
			if m.Username == "" {
				return fmt.Errorf("group %s has member without username", group)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "datarequest.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(zone string) string {
	return fmt.Sprintf(defaultTemplate, zone)
}

// Default returns the default Config struct for a zone.
func Default(zone string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, zone))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.ServiceAccount == "" {
		cfg.ServiceAccount = "rods"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Mail.Mode == "" {
		cfg.Mail.Mode = "simulate"
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

const defaultTemplate = `zone: %s
portal_url: http://localhost:8080

service_account: rods

auth:
  jwt_secret: change-me

server:
  addr: ":8080"

mail:
  mode: simulate
  smtp_address: ""
  from: ""

groups:
  datarequests-research-board-of-directors: []
  datarequests-research-datamanagers: []
  datarequests-research-data-management-committee: []
`
