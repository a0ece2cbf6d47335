package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"

	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/lifecycle"
	"github.com/arnavbhatt/rollcall/internal/mailer"
)

func TestLoadConfigSuccess(t *testing.T) {
	// Create a temporary directory
	tmpDir := t.TempDir()

	// Create a temporary config file path
	tmpConfigFile := filepath.Join(tmpDir, "config.yaml")

	// Sample valid configuration data
	sampleConfig := &Config{
		Port:    8080,
		GinMode: "debug",
		APIKey:  "test-api-key",
		Token: TokenConfig{
			ExpiryDays:   14,
			FailureLimit: 5,
		},
		Verification: lifecycle.Config{
			TimeoutSeconds: 600,
			RoleName:       "Member",
			MaxAttempts:    3,
			CommunityName:  "Test Community",
		},
		Mail: MailConfig{
			Enabled: true,
			SMTP: mailer.SMTPConfig{
				Host:     "smtp.example.com",
				Port:     587,
				User:     "mailer",
				Password: "secret",
				From:     "noreply@example.com",
			},
		},
		Chat: ChatConfig{
			WebhookURL: "http://localhost:9090/relay",
		},
		DB: gormw.Config{
			DSN:                  "testdsn",
			DisableAutomaticPing: false,
			MaxOpenConns:         10,
			MaxIdleConns:         5,
			LogLevel:             2, // gormlog.Error
		},
	}

	// Marshal the sample config to YAML
	configData, err := yaml.Marshal(&sampleConfig)
	assert.NoError(t, err)

	// Write the YAML data to the temporary file
	err = os.WriteFile(tmpConfigFile, configData, 0644)
	assert.NoError(t, err)

	// Load the config from the temporary file
	loadedConfig := LoadConfig(tmpConfigFile)

	// Assert that the loaded config matches the sample config
	assert.NotNil(t, loadedConfig)
	assert.Equal(t, sampleConfig, loadedConfig)
}

func TestLoadConfigDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	tmpConfigFile := filepath.Join(tmpDir, "config.yaml")

	minimal := []byte("port: 8080\ngin_mode: release\napi_key: k\n")
	err := os.WriteFile(tmpConfigFile, minimal, 0644)
	assert.NoError(t, err)

	cfg := LoadConfig(tmpConfigFile)

	assert.Equal(t, 7, cfg.Token.ExpiryDays)
	assert.Equal(t, 300, cfg.Verification.TimeoutSeconds)
	assert.Equal(t, "Member", cfg.Verification.RoleName)
	assert.Equal(t, 0, cfg.Verification.MaxAttempts)
	assert.Equal(t, "the community", cfg.Verification.CommunityName)
	assert.False(t, cfg.Mail.Enabled)
}
