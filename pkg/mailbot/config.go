// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

// Config is the bot's runtime configuration, read from a YAML file
// with environment overrides applied on top.
type Config struct {
	// ServerURL is the Mattermost server base URL.
	ServerURL string `yaml:"server_url" env:"MODMAIL_SERVER_URL"`
	// BotToken is the bot account's personal access token.
	BotToken string `yaml:"bot_token" env:"MODMAIL_BOT_TOKEN"`
	// CallbackURL is the public base URL under which the interactive
	// callback endpoints are reachable from the Mattermost server.
	CallbackURL string `yaml:"callback_url" env:"MODMAIL_CALLBACK_URL"`
	// ListenAddr is the listen address for the callback server.
	// Defaults to ":29330".
	ListenAddr string `yaml:"listen_addr" env:"MODMAIL_LISTEN_ADDR"`
	// HostedURL is the public base URL of the transcript viewer.
	HostedURL string `yaml:"hosted_url" env:"HOSTED_URL"`

	Database dbutil.Config     `yaml:"database"`
	Logging  zeroconfig.Config `yaml:"logging"`
}

// LoadConfig reads the YAML config at path, applies environment
// overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":29330"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite3"
	}
	if c.Database.URI == "" {
		c.Database.URI = "modmail.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 5
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 1
	}
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.BotToken == "" {
		return fmt.Errorf("bot_token is required")
	}
	if c.CallbackURL == "" {
		return fmt.Errorf("callback_url is required")
	}
	return nil
}
