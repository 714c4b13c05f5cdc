// Package config loads the bridge configuration from config.yaml with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"chatbridge/pkg/message"
)

// Config is the root runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Channels ChannelsConfig `yaml:"channels"`
	Chatwoot ChatwootConfig `yaml:"chatwoot"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"CHATBRIDGE_HOST"`
	Port int    `yaml:"port" envconfig:"CHATBRIDGE_PORT"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `yaml:"format" envconfig:"CHATBRIDGE_LOG_FORMAT"`
	Level     string `yaml:"level" envconfig:"CHATBRIDGE_LOG_LEVEL"`
	AddSource bool   `yaml:"add_source" envconfig:"CHATBRIDGE_LOG_ADD_SOURCE"`
}

// ChannelsConfig stores per-provider adapter settings. A channel with an
// incomplete block is disabled, not a startup failure.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Wasender WasenderConfig `yaml:"wasender"`
	VK       VKConfig       `yaml:"vk"`
}

// TelegramConfig configures the Telegram bot adapter.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	InboxID int    `yaml:"inbox_id" envconfig:"TELEGRAM_INBOX_ID"`
}

// Enabled reports whether the Telegram block is complete.
func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

// WasenderConfig configures the WhatsApp adapter backed by the Wasender API.
type WasenderConfig struct {
	WebhookID     string `yaml:"webhook_id" envconfig:"WASENDER_WEBHOOK_ID"`
	WebhookSecret string `yaml:"webhook_secret" envconfig:"WASENDER_WEBHOOK_SECRET"`
	APIKey        string `yaml:"api_key" envconfig:"WASENDER_API_KEY"`
	BaseURL       string `yaml:"base_url" envconfig:"WASENDER_BASE_URL"`
	InboxID       int    `yaml:"inbox_id" envconfig:"WASENDER_INBOX_ID"`
}

// Enabled reports whether the Wasender block is complete.
func (c WasenderConfig) Enabled() bool {
	return strings.TrimSpace(c.WebhookID) != "" &&
		strings.TrimSpace(c.WebhookSecret) != "" &&
		strings.TrimSpace(c.APIKey) != ""
}

// VKConfig configures the VK community adapter (Callback API).
type VKConfig struct {
	CallbackID   string `yaml:"callback_id" envconfig:"VK_CALLBACK_ID"`
	GroupID      int    `yaml:"group_id" envconfig:"VK_GROUP_ID"`
	AccessToken  string `yaml:"access_token" envconfig:"VK_ACCESS_TOKEN"`
	Secret       string `yaml:"secret" envconfig:"VK_SECRET"`
	Confirmation string `yaml:"confirmation" envconfig:"VK_CONFIRMATION"`
	APIVersion   string `yaml:"api_version" envconfig:"VK_API_VERSION"`
	InboxID      int    `yaml:"inbox_id" envconfig:"VK_INBOX_ID"`
}

// Enabled reports whether the VK block is complete.
func (c VKConfig) Enabled() bool {
	return strings.TrimSpace(c.CallbackID) != "" &&
		c.GroupID != 0 &&
		strings.TrimSpace(c.AccessToken) != "" &&
		strings.TrimSpace(c.Secret) != "" &&
		strings.TrimSpace(c.Confirmation) != ""
}

// ChatwootConfig configures the support-desk API client and the per-channel
// webhook ids the HTTP boundary uses to tag payloads with a channel.
type ChatwootConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"CHATWOOT_BASE_URL"`
	AccountID      int    `yaml:"account_id" envconfig:"CHATWOOT_ACCOUNT_ID"`
	APIAccessToken string `yaml:"api_access_token" envconfig:"CHATWOOT_API_ACCESS_TOKEN"`

	WebhookIDs ChatwootWebhookIDs `yaml:"webhook_ids"`
}

// ChatwootWebhookIDs maps one webhook path id per channel.
type ChatwootWebhookIDs struct {
	WhatsApp string `yaml:"whatsapp" envconfig:"CHATWOOT_WEBHOOK_ID_WHATSAPP"`
	Telegram string `yaml:"telegram" envconfig:"CHATWOOT_WEBHOOK_ID_TELEGRAM"`
	VK       string `yaml:"vk" envconfig:"CHATWOOT_WEBHOOK_ID_VK"`
}

// ChannelByWebhookID builds the webhook-id → channel lookup used by the HTTP
// boundary to inject the resolved channel into payload metadata.
func (c ChatwootConfig) ChannelByWebhookID() map[string]message.Channel {
	mapping := make(map[string]message.Channel, 3)
	if id := strings.TrimSpace(c.WebhookIDs.WhatsApp); id != "" {
		mapping[id] = message.ChannelWhatsApp
	}
	if id := strings.TrimSpace(c.WebhookIDs.Telegram); id != "" {
		mapping[id] = message.ChannelTelegram
	}
	if id := strings.TrimSpace(c.WebhookIDs.VK); id != "" {
		mapping[id] = message.ChannelVK
	}
	return mapping
}

// LoadConfig resolves config.yaml, unmarshals it, applies environment
// overrides, and validates required fields.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Channels.VK.APIVersion == "" {
		cfg.Channels.VK.APIVersion = "5.199"
	}
	if cfg.Channels.Wasender.BaseURL == "" {
		cfg.Channels.Wasender.BaseURL = "https://www.wasenderapi.com/api"
	}
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.Chatwoot.BaseURL) == "" {
		return fmt.Errorf("chatwoot.base_url is required")
	}
	if cfg.Chatwoot.AccountID == 0 {
		return fmt.Errorf("chatwoot.account_id is required")
	}
	if strings.TrimSpace(cfg.Chatwoot.APIAccessToken) == "" {
		return fmt.Errorf("chatwoot.api_access_token is required")
	}
	return nil
}

// findConfigPath resolves the active config file location.
//
// Precedence is CHATBRIDGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("CHATBRIDGE_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("CHATBRIDGE_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.yaml not found (checked %s and %s)", candidates[0], candidates[1])
}
