package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/azkar-bot/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                  string        `env:"ENV" envDefault:"production"`
	DiscordToken         string        `env:"DISCORD_TOKEN,required"`
	DiscordGuildID       string        `env:"DISCORD_GUILD_ID"`
	AzkarDataPath        string        `env:"AZKAR_DATA_PATH" envDefault:"data/azkar.json"`
	DuaDataPath          string        `env:"DUA_DATA_PATH" envDefault:"data/dua.json"`
	QuranDataPath        string        `env:"QURAN_DATA_PATH" envDefault:"data/mp3quran.json"`
	StateBackend         string        `env:"STATE_BACKEND" envDefault:"file"`
	StateFilePath        string        `env:"STATE_FILE_PATH" envDefault:"storage/botState.json"`
	StateBoltPath        string        `env:"STATE_BOLT_PATH" envDefault:"storage/botState.bolt"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	StateSaveInterval    time.Duration `env:"STATE_SAVE_INTERVAL" envDefault:"60s"`
	VoiceHealthInterval  time.Duration `env:"VOICE_HEALTH_INTERVAL" envDefault:"60s"`
	VoiceMonitorInterval time.Duration `env:"VOICE_MONITOR_INTERVAL" envDefault:"30s"`
	CleanupInterval      time.Duration `env:"CLEANUP_INTERVAL" envDefault:"15m"`
	RestoreDelay         time.Duration `env:"RESTORE_DELAY" envDefault:"3s"`
	FFmpegPath           string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	AlertWebhookURL      string        `env:"ALERT_WEBHOOK_URL"`
	CommandRateLimit     int           `env:"COMMAND_RATE_LIMIT" envDefault:"10"`
	CommandRateWindow    time.Duration `env:"COMMAND_RATE_WINDOW" envDefault:"60s"`
	CommandCooldown      time.Duration `env:"COMMAND_COOLDOWN" envDefault:"3s"`
	EnableAzkar          bool          `env:"ENABLE_AZKAR" envDefault:"true"`
	EnableDua            bool          `env:"ENABLE_DUA" envDefault:"true"`
	EnableQuran          bool          `env:"ENABLE_QURAN" envDefault:"true"`
}

func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf(".env file is invalid: %w", err)
		}
		slog.Debug("no .env file found, using process environment")
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		DiscordToken:         raw.DiscordToken,
		DiscordGuildID:       raw.DiscordGuildID,
		AzkarDataPath:        raw.AzkarDataPath,
		DuaDataPath:          raw.DuaDataPath,
		QuranDataPath:        raw.QuranDataPath,
		StateBackend:         raw.StateBackend,
		StateFilePath:        raw.StateFilePath,
		StateBoltPath:        raw.StateBoltPath,
		DatabaseURL:          raw.DatabaseURL,
		StateSaveInterval:    raw.StateSaveInterval,
		VoiceHealthInterval:  raw.VoiceHealthInterval,
		VoiceMonitorInterval: raw.VoiceMonitorInterval,
		CleanupInterval:      raw.CleanupInterval,
		RestoreDelay:         raw.RestoreDelay,
		FFmpegPath:           raw.FFmpegPath,
		AlertWebhookURL:      raw.AlertWebhookURL,
		CommandRateLimit:     raw.CommandRateLimit,
		CommandRateWindow:    raw.CommandRateWindow,
		CommandCooldown:      raw.CommandCooldown,
		EnableAzkar:          raw.EnableAzkar,
		EnableDua:            raw.EnableDua,
		EnableQuran:          raw.EnableQuran,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
