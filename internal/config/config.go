// Package config provides YAML-based configuration loading for Sketchbridge.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBoard is the target profile used when a request does not name one.
const DefaultBoard = "arduino:avr:uno"

// DefaultRates is the allowed serial data-rate set when none is configured.
var DefaultRates = []int{300, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// Config is the top-level Sketchbridge configuration, loaded from
// sketchbridge.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Auth      AuthConfig      `yaml:"auth"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Store     StoreConfig     `yaml:"store"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ServerConfig holds settings for the local bridge HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RemoteConfig holds base URLs for the remote collaborators.
type RemoteConfig struct {
	BuildURL    string `yaml:"build_url"`    // compile/flash service
	CatalogURL  string `yaml:"catalog_url"`  // board/library catalog service
	ProjectsURL string `yaml:"projects_url"` // project persistence service
	StreamURL   string `yaml:"stream_url"`   // device streaming service (reserve/release + ws)
}

// AuthConfig holds OAuth settings for the identity provider.
type AuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// MonitorConfig holds serial monitor settings.
type MonitorConfig struct {
	Rates        []int  `yaml:"rates"`         // allowed data rates
	DefaultRate  int    `yaml:"default_rate"`  // rate used when a request omits one
	DefaultBoard string `yaml:"default_board"` // fqbn used when a request omits one
}

// StoreConfig holds settings for the local sqlite store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig holds port discovery settings.
type DiscoveryConfig struct {
	RefreshCron string `yaml:"refresh_cron"` // 5-field cron expression
}

// MirrorConfig holds optional GitHub sketch mirroring settings.
type MirrorConfig struct {
	Token string `yaml:"token"` // personal access token; empty disables mirroring
	Owner string `yaml:"owner"` // repo owner for mirrored sketches
}

// NotifyConfig holds optional chat notification settings.
type NotifyConfig struct {
	Discord DiscordNotifyConfig `yaml:"discord"`
	Slack   SlackNotifyConfig   `yaml:"slack"`
}

// DiscordNotifyConfig configures build/monitor notifications to Discord.
type DiscordNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackNotifyConfig configures build/monitor notifications to Slack.
type SlackNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8266
	}
	if len(c.Monitor.Rates) == 0 {
		c.Monitor.Rates = append([]int(nil), DefaultRates...)
	}
	if c.Monitor.DefaultRate == 0 {
		c.Monitor.DefaultRate = 9600
	}
	if c.Monitor.DefaultBoard == "" {
		c.Monitor.DefaultBoard = DefaultBoard
	}
	if c.Store.Path == "" {
		c.Store.Path = "sketchbridge.db"
	}
	if c.Discovery.RefreshCron == "" {
		c.Discovery.RefreshCron = "* * * * *"
	}
	if c.Auth.RedirectURL == "" && c.Server.Port > 0 {
		c.Auth.RedirectURL = fmt.Sprintf("http://localhost:%d/api/auth/callback", c.Server.Port)
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Remote.BuildURL == "" {
		errs = append(errs, "remote.build_url is required")
	}
	if c.Remote.CatalogURL == "" {
		errs = append(errs, "remote.catalog_url is required")
	}
	if c.Remote.ProjectsURL == "" {
		errs = append(errs, "remote.projects_url is required")
	}
	if c.Remote.StreamURL == "" {
		errs = append(errs, "remote.stream_url is required")
	}
	for _, r := range c.Monitor.Rates {
		if r <= 0 {
			errs = append(errs, fmt.Sprintf("monitor.rates: %d is not a positive rate", r))
		}
	}
	if !containsRate(c.Monitor.Rates, c.Monitor.DefaultRate) {
		errs = append(errs, fmt.Sprintf("monitor.default_rate %d is not in monitor.rates", c.Monitor.DefaultRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// containsRate reports whether rate is in the allowed set.
func containsRate(rates []int, rate int) bool {
	for _, r := range rates {
		if r == rate {
			return true
		}
	}
	return false
}
