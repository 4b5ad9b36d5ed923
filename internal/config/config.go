package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrNoUpstream = errors.New("webhooks_proxy.url and shared_secret are required")

// WebhooksProxy points at the authenticated remote webhook-events endpoint
// that the relay dials on behalf of browsers.
type WebhooksProxy struct {
	URL          string `mapstructure:"url"`
	SharedSecret string `mapstructure:"shared_secret"`
}

// Preset is one selectable platform configuration. The first preset, when
// any are defined, becomes the active configuration.
type Preset struct {
	Name          string        `mapstructure:"name"`
	Domain        string        `mapstructure:"domain"`
	Tenant        string        `mapstructure:"tenant"`
	Kid           string        `mapstructure:"kid"`
	PrivateKey    string        `mapstructure:"private_key"`
	WebhooksProxy WebhooksProxy `mapstructure:"webhooks_proxy"`
}

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	StaticPath       string        `mapstructure:"static_path"`
	SessionSecret    string        `mapstructure:"session_secret"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	Domain        string        `mapstructure:"domain"`
	Tenant        string        `mapstructure:"tenant"`
	Kid           string        `mapstructure:"kid"`
	PrivateKey    string        `mapstructure:"private_key"`
	WebhooksProxy WebhooksProxy `mapstructure:"webhooks_proxy"`

	Presets []Preset `mapstructure:"presets"`
}

// ClientConfig is the sanitized view served to browsers. Secrets stay out.
type ClientConfig struct {
	Domain   string `json:"domain"`
	Tenant   string `json:"tenant,omitempty"`
	RelayURL string `json:"relayUrl,omitempty"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("domain", "meet.example.com")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyPreset()
	return &cfg, nil
}

// applyPreset activates the first preset when any are defined, keeping the
// full preset list around for the dashboard's preset switcher.
func (c *Config) applyPreset() {
	if len(c.Presets) == 0 {
		return
	}
	p := c.Presets[0]
	if p.Domain != "" {
		c.Domain = p.Domain
	}
	if p.Tenant != "" {
		c.Tenant = p.Tenant
	}
	if p.Kid != "" {
		c.Kid = p.Kid
	}
	if p.PrivateKey != "" {
		c.PrivateKey = p.PrivateKey
	}
	if p.WebhooksProxy.URL != "" {
		c.WebhooksProxy = p.WebhooksProxy
	}
	log.Info().Str("module", "config").Str("preset", p.Name).Msg("applied preset")
}

// ValidateUpstream checks the fields the relay cannot run without.
func (c *Config) ValidateUpstream() error {
	if c.WebhooksProxy.URL == "" || c.WebhooksProxy.SharedSecret == "" {
		return ErrNoUpstream
	}
	return nil
}

// ForClient strips everything a browser must not see.
func (c *Config) ForClient(relayURL string) ClientConfig {
	return ClientConfig{
		Domain:   c.Domain,
		Tenant:   c.Tenant,
		RelayURL: relayURL,
	}
}
