package config

import (
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/lifecycle"
	"github.com/arnavbhatt/rollcall/internal/mailer"
)

var (
	logger = log.With().Str("component", "config").Logger()
)

// MailConfig selects the delivery backend. With Enabled false the
// server logs messages instead of sending them.
type MailConfig struct {
	Enabled bool              `yaml:"enabled"`
	SMTP    mailer.SMTPConfig `yaml:"smtp"`
}

// ChatConfig points side effects at the bot gateway relay. An empty
// URL keeps side effects log-only.
type ChatConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TokenConfig shapes issued verification tokens.
type TokenConfig struct {
	// ExpiryDays is how long a token stays valid after issuance.
	ExpiryDays int `yaml:"expiry_days"`

	// FailureLimit throttles repeated failed verifies per email.
	// Zero disables the throttle.
	FailureLimit int `yaml:"failure_limit"`
}

type Config struct {
	Port    uint   `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	// APIKey is the opaque static key guarding the whole surface.
	APIKey string `yaml:"api_key"`

	Token        TokenConfig      `yaml:"token"`
	Verification lifecycle.Config `yaml:"verification"`
	Mail         MailConfig       `yaml:"mail"`
	Chat         ChatConfig       `yaml:"chat"`
	DB           gormw.Config     `yaml:"db"`
}

func LoadConfig(path string) *Config {
	cfg := &Config{}

	file, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open config file: %s", path)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to decode config file")
	}

	cfg.validate()

	return cfg
}

func (c *Config) validate() {
	if c.Port == 0 {
		logger.Fatal().Msg("Port is missing")
	}

	if c.GinMode == "" {
		logger.Fatal().Msg("GinMode is missing")
	}

	if c.APIKey == "" {
		logger.Fatal().Msg("APIKey is missing")
	}

	if c.Token.ExpiryDays <= 0 {
		c.Token.ExpiryDays = 7
	}

	if c.Verification.TimeoutSeconds <= 0 {
		// 5 minutes, matching the original bot default.
		c.Verification.TimeoutSeconds = 300
	}

	if c.Verification.RoleName == "" {
		c.Verification.RoleName = "Member"
	}

	if c.Verification.CommunityName == "" {
		c.Verification.CommunityName = "the community"
	}

	if c.Mail.Enabled && c.Mail.SMTP.Host == "" {
		logger.Fatal().Msg("Mail is enabled but smtp host is missing")
	}
}
