// Package config handles application configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/tkclough/salescrawler/internal/discord"
	"github.com/tkclough/salescrawler/internal/reddit"
	"github.com/tkclough/salescrawler/internal/sms"
)

// Config holds the application configuration.
type Config struct {
	RulesFile string `toml:"rules_file"`
	LogLevel  string `toml:"log_level"`

	DB struct {
		Path string `toml:"path"`
	} `toml:"db"`

	Reddit  reddit.Config  `toml:"reddit"`
	Discord discord.Config `toml:"discord"`

	// Twilio is optional; when absent, crash alerts are disabled.
	Twilio *sms.Config `toml:"twilio"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Twilio != nil && cfg.Twilio.APIURL == "" {
		cfg.Twilio.APIURL = "https://api.twilio.com/2010-04-01"
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{
		RulesFile: "./rules.json",
		LogLevel:  "info",
		Reddit: reddit.Config{
			AuthHost:     "https://www.reddit.com",
			APIHost:      "https://oauth.reddit.com",
			TokenFile:    "./data/token.json",
			Subreddit:    "buildapcsales",
			PageSize:     10,
			WaitTimeSecs: 5,
		},
		Discord: discord.Config{
			APIURL:              "https://discord.com/api",
			SendingIntervalSecs: 10,
		},
	}
	cfg.DB.Path = "./data/salescrawler.db"
	return cfg
}

func (c *Config) validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"reddit.username", c.Reddit.Username},
		{"reddit.password", c.Reddit.Password},
		{"reddit.client_id", c.Reddit.ClientID},
		{"reddit.client_secret", c.Reddit.ClientSecret},
		{"reddit.user_agent", c.Reddit.UserAgent},
		{"discord.token", c.Discord.Token},
		{"discord.channel_id", c.Discord.ChannelID},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s is required", f.key)
		}
	}

	if c.Twilio != nil {
		twilioRequired := []struct {
			key   string
			value string
		}{
			{"twilio.api_key", c.Twilio.APIKey},
			{"twilio.api_key_secret", c.Twilio.APIKeySecret},
			{"twilio.account_sid", c.Twilio.AccountSID},
			{"twilio.phone_number_from", c.Twilio.PhoneNumberFrom},
			{"twilio.phone_number_to", c.Twilio.PhoneNumberTo},
		}
		for _, f := range twilioRequired {
			if f.value == "" {
				return fmt.Errorf("%s is required", f.key)
			}
		}
	}
	return nil
}
