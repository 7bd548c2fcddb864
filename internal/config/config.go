package config

import (
	"fmt"
	"time"
)

const (
	StateBackendFile     = "file"
	StateBackendBolt     = "bolt"
	StateBackendPostgres = "postgres"
)

type Config struct {
	Env            string
	DiscordToken   string
	DiscordGuildID string

	AzkarDataPath string
	DuaDataPath   string
	QuranDataPath string

	StateBackend      string
	StateFilePath     string
	StateBoltPath     string
	DatabaseURL       string
	StateSaveInterval time.Duration

	VoiceHealthInterval  time.Duration
	VoiceMonitorInterval time.Duration
	CleanupInterval      time.Duration
	RestoreDelay         time.Duration
	FFmpegPath           string

	AlertWebhookURL string

	CommandRateLimit  int
	CommandRateWindow time.Duration
	CommandCooldown   time.Duration

	EnableAzkar bool
	EnableDua   bool
	EnableQuran bool
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	switch c.StateBackend {
	case StateBackendFile:
		if c.StateFilePath == "" {
			return fmt.Errorf("STATE_FILE_PATH is required when STATE_BACKEND=file")
		}
	case StateBackendBolt:
		if c.StateBoltPath == "" {
			return fmt.Errorf("STATE_BOLT_PATH is required when STATE_BACKEND=bolt")
		}
	case StateBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STATE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be one of file, bolt, postgres, got %q", c.StateBackend)
	}
	for _, d := range c.intervalChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.CommandRateLimit < 1 {
		return fmt.Errorf("COMMAND_RATE_LIMIT must be at least 1, got %d", c.CommandRateLimit)
	}
	if c.CommandCooldown < 0 {
		return fmt.Errorf("COMMAND_COOLDOWN must not be negative, got %s", c.CommandCooldown)
	}
	if c.EnableAzkar && c.AzkarDataPath == "" {
		return fmt.Errorf("AZKAR_DATA_PATH is required when ENABLE_AZKAR=true")
	}
	if c.EnableDua && c.DuaDataPath == "" {
		return fmt.Errorf("DUA_DATA_PATH is required when ENABLE_DUA=true")
	}
	if c.EnableQuran && c.QuranDataPath == "" {
		return fmt.Errorf("QURAN_DATA_PATH is required when ENABLE_QURAN=true")
	}
	return nil
}

type durationField struct {
	name  string
	value time.Duration
}

func (c *Config) intervalChecks() []durationField {
	return []durationField{
		{name: "STATE_SAVE_INTERVAL", value: c.StateSaveInterval},
		{name: "VOICE_HEALTH_INTERVAL", value: c.VoiceHealthInterval},
		{name: "VOICE_MONITOR_INTERVAL", value: c.VoiceMonitorInterval},
		{name: "CLEANUP_INTERVAL", value: c.CleanupInterval},
		{name: "COMMAND_RATE_WINDOW", value: c.CommandRateWindow},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
