// Package config loads and validates the voxgram YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config is the root configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Speech   SpeechConfig   `yaml:"speech"`
	Limits   LimitsConfig   `yaml:"limits"`
	Redis    RedisConfig    `yaml:"redis"`
	Store    StoreConfig    `yaml:"store"`
	Operator OperatorConfig `yaml:"operator"`
	Server   ServerConfig   `yaml:"server"`
	Digest   DigestConfig   `yaml:"digest"`
}

// TelegramConfig holds the Bot API connection settings.
type TelegramConfig struct {
	Token          string   `yaml:"token"`
	Mode           string   `yaml:"mode"` // "polling" or "webhook"
	PollingTimeout int      `yaml:"polling_timeout"`
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookSecret  string   `yaml:"webhook_secret"`
	AllowedUpdates []string `yaml:"allowed_updates"`
	APIURL         string   `yaml:"api_url"`

	// MinCallSpacing is the minimum interval between outbound Bot API
	// calls, enforced process-wide.
	MinCallSpacing time.Duration `yaml:"min_call_spacing"`
}

// SpeechConfig holds the Groq speech API settings.
type SpeechConfig struct {
	APIKey           string        `yaml:"api_key"`
	BaseURL          string        `yaml:"base_url"`
	Model            string        `yaml:"model"`
	TranslationModel string        `yaml:"translation_model"`
	Retries          int           `yaml:"retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
}

// LimitsConfig holds validation ceilings and rate-limit windows.
// Zero values disable the corresponding limit.
type LimitsConfig struct {
	MaxFileSize  int64 `yaml:"max_file_size"` // bytes
	MaxDuration  int   `yaml:"max_duration"`  // seconds
	UserLimit    int   `yaml:"user_rate_limit"`
	UserWindow   int   `yaml:"user_requests_window"` // seconds
	GlobalLimit  int   `yaml:"global_rate_limit"`
	GlobalWindow int   `yaml:"global_requests_window"` // seconds
}

// RedisConfig holds the shared rate-limit cache connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig holds the durable store location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// OperatorConfig holds the operator channel and moderation settings.
type OperatorConfig struct {
	ChatID   int64   `yaml:"chat_id"`
	ThreadID int     `yaml:"thread_id"`
	Admins   []int64 `yaml:"admins"`

	// Chats and users whose requests are never relayed to the operator
	// channel. The operator chat itself is always skipped.
	SkipLogChats []int64 `yaml:"skip_log_chats"`
	SkipLogUsers []int64 `yaml:"skip_log_users"`
}

// ServerConfig holds the HTTP listener used for webhooks and metrics.
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// DigestConfig controls the periodic usage digest posted to the operator channel.
type DigestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "polling"
	}
	if c.Telegram.PollingTimeout == 0 {
		c.Telegram.PollingTimeout = 30
	}
	if c.Telegram.AllowedUpdates == nil {
		c.Telegram.AllowedUpdates = []string{"message"}
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Telegram.MinCallSpacing <= 0 {
		c.Telegram.MinCallSpacing = 200 * time.Millisecond
	}
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Speech.Model == "" {
		c.Speech.Model = "whisper-large-v3-turbo"
	}
	if c.Speech.TranslationModel == "" {
		c.Speech.TranslationModel = "whisper-large-v3"
	}
	if c.Speech.Retries == 0 {
		c.Speech.Retries = 3
	}
	if c.Limits.MaxFileSize == 0 {
		c.Limits.MaxFileSize = 10 << 20
	}
	if c.Store.Path == "" {
		c.Store.Path = "voxgram.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = "0 9 * * *"
	}
}

// Validate checks configuration invariants after defaults were applied.
func Validate(c *Config) error {
	if c.Telegram.Token == "" {
		return errors.New("config: telegram.token is required")
	}
	if !tokenPattern.MatchString(c.Telegram.Token) {
		return errors.New("config: telegram.token format invalid (expected <bot_id>:<hash>)")
	}

	switch c.Telegram.Mode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("config: invalid telegram.mode %q (must be \"polling\" or \"webhook\")", c.Telegram.Mode)
	}
	if c.Telegram.Mode == "webhook" && c.Telegram.WebhookURL == "" {
		return errors.New("config: telegram.webhook_url is required when mode is \"webhook\"")
	}
	if c.Telegram.PollingTimeout < 0 || c.Telegram.PollingTimeout > 50 {
		return fmt.Errorf("config: telegram.polling_timeout must be 0-50, got %d", c.Telegram.PollingTimeout)
	}
	if u, err := url.Parse(c.Telegram.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: telegram.api_url must be a valid http/https URL, got %q", c.Telegram.APIURL)
	}

	if c.Speech.APIKey == "" {
		return errors.New("config: speech.api_key is required")
	}
	if c.Speech.Retries < 0 {
		return fmt.Errorf("config: speech.retries must be >= 0, got %d", c.Speech.Retries)
	}

	if c.Limits.MaxFileSize < 0 || c.Limits.MaxDuration < 0 {
		return errors.New("config: limits must not be negative")
	}
	for name, pair := range map[string][2]int{
		"user":   {c.Limits.UserLimit, c.Limits.UserWindow},
		"global": {c.Limits.GlobalLimit, c.Limits.GlobalWindow},
	} {
		if pair[0] < 0 || pair[1] < 0 {
			return fmt.Errorf("config: %s rate limit settings must not be negative", name)
		}
		if (pair[0] == 0) != (pair[1] == 0) {
			return fmt.Errorf("config: %s rate limit and window must be set together", name)
		}
	}

	if (c.Limits.UserLimit > 0 || c.Limits.GlobalLimit > 0) && c.Redis.URL == "" {
		return errors.New("config: redis.url is required when rate limits are configured")
	}

	return nil
}
