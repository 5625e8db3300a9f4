package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/aleister1102/webwatch/internal/errs"
	"github.com/aleister1102/webwatch/internal/logger"
)

// Settings is the process-wide configuration. Values come from an
// optional settings file, with environment variables taking precedence.
type Settings struct {
	ConfigDir     string `json:"config_dir,omitempty" yaml:"config_dir,omitempty"`
	StateDir      string `json:"state_dir,omitempty" yaml:"state_dir,omitempty"`
	ScreenshotDir string `json:"screenshot_dir,omitempty" yaml:"screenshot_dir,omitempty"`
	SessionDir    string `json:"session_dir,omitempty" yaml:"session_dir,omitempty"`

	CheckIntervalMs        int64 `json:"check_interval_ms,omitempty" yaml:"check_interval_ms,omitempty"`
	HealthPort             int   `json:"health_port,omitempty" yaml:"health_port,omitempty"`
	MaxRetries             int   `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryBaseDelayMs       int64 `json:"retry_base_delay_ms,omitempty" yaml:"retry_base_delay_ms,omitempty"`
	StaggerDelayMs         int64 `json:"stagger_delay_ms,omitempty" yaml:"stagger_delay_ms,omitempty"`
	NotificationThrottleMs int64 `json:"notification_throttle_ms,omitempty" yaml:"notification_throttle_ms,omitempty"`
	ErrorNotifyThreshold   int   `json:"error_notify_threshold,omitempty" yaml:"error_notify_threshold,omitempty"`
	ReloadIntervalMs       int64 `json:"reload_interval_ms,omitempty" yaml:"reload_interval_ms,omitempty"`
	ShutdownGraceMs        int64 `json:"shutdown_grace_ms,omitempty" yaml:"shutdown_grace_ms,omitempty"`
	MaxMemoryMB            int64 `json:"max_memory_mb,omitempty" yaml:"max_memory_mb,omitempty"`

	ProxyServer   string `json:"proxy_server,omitempty" yaml:"proxy_server,omitempty"`
	ProxyUsername string `json:"proxy_username,omitempty" yaml:"proxy_username,omitempty"`
	ProxyPassword string `json:"proxy_password,omitempty" yaml:"proxy_password,omitempty"`

	TelegramBotToken string `json:"telegram_bot_token,omitempty" yaml:"telegram_bot_token,omitempty"`
	TelegramChatID   string `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty"`
	NtfyURL          string `json:"ntfy_url,omitempty" yaml:"ntfy_url,omitempty"`
	WebhookURL       string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`

	Log logger.Config `json:"log_config,omitempty" yaml:"log_config,omitempty"`
}

// NewDefaultSettings returns the documented defaults.
func NewDefaultSettings() *Settings {
	return &Settings{
		ConfigDir:              "configs",
		StateDir:               "state",
		ScreenshotDir:          "screenshots",
		SessionDir:             "sessions",
		CheckIntervalMs:        300000,
		HealthPort:             8080,
		MaxRetries:             3,
		RetryBaseDelayMs:       5000,
		StaggerDelayMs:         2000,
		NotificationThrottleMs: 60000,
		ErrorNotifyThreshold:   3,
		ReloadIntervalMs:       30000,
		ShutdownGraceMs:        10000,
		Log:                    logger.NewDefaultConfig(),
	}
}

// LoadSettings builds Settings from defaults, an optional settings file
// (YAML preferred by extension, JSON otherwise) and the environment.
func LoadSettings(filePath string) (*Settings, error) {
	s := NewDefaultSettings()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, errs.Wrapf(err, "failed to read settings file '%s'", filePath)
		}
		if err := parseSettingsContent(data, filePath, s); err != nil {
			return nil, err
		}
	}

	s.applyEnv()
	return s, nil
}

func parseSettingsContent(data []byte, filePath string, s *Settings) error {
	ext := filepath.Ext(filePath)
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, s); err != nil {
			return errs.Wrapf(err, "failed to unmarshal YAML from '%s'", filePath)
		}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return errs.Wrapf(err, "failed to unmarshal JSON from '%s'", filePath)
	}
	return nil
}

// applyEnv overrides fields from the documented environment variables.
func (s *Settings) applyEnv() {
	envStr(&s.ConfigDir, "CONFIG_DIR")
	envStr(&s.StateDir, "STATE_DIR")
	envStr(&s.ScreenshotDir, "SCREENSHOT_DIR")
	envStr(&s.SessionDir, "SESSION_DIR")
	envInt64(&s.CheckIntervalMs, "CHECK_INTERVAL_MS")
	envInt(&s.HealthPort, "HEALTH_PORT")
	envInt(&s.MaxRetries, "MAX_RETRIES")
	envInt64(&s.RetryBaseDelayMs, "RETRY_BASE_DELAY_MS")
	envInt64(&s.StaggerDelayMs, "STAGGER_DELAY_MS")
	envInt64(&s.NotificationThrottleMs, "NOTIFICATION_THROTTLE_MS")
	envInt(&s.ErrorNotifyThreshold, "ERROR_NOTIFY_THRESHOLD")
	envInt64(&s.ReloadIntervalMs, "RELOAD_INTERVAL_MS")
	envInt64(&s.ShutdownGraceMs, "SHUTDOWN_GRACE_MS")
	envInt64(&s.MaxMemoryMB, "MAX_MEMORY_MB")
	envStr(&s.ProxyServer, "PROXY_SERVER")
	envStr(&s.ProxyUsername, "PROXY_USERNAME")
	envStr(&s.ProxyPassword, "PROXY_PASSWORD")
	envStr(&s.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	envStr(&s.TelegramChatID, "TELEGRAM_CHAT_ID")
	envStr(&s.NtfyURL, "NTFY_URL")
	envStr(&s.WebhookURL, "WEBHOOK_URL")
	envStr(&s.Log.Level, "LOG_LEVEL")
}

func envStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
