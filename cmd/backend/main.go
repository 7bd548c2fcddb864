package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/azkar-bot/external/audio"
	catalogimpl "github.com/foxseedlab/azkar-bot/external/catalog"
	configloader "github.com/foxseedlab/azkar-bot/external/config"
	"github.com/foxseedlab/azkar-bot/external/discord"
	"github.com/foxseedlab/azkar-bot/external/statestore"
	webhookimpl "github.com/foxseedlab/azkar-bot/external/webhook"
	"github.com/foxseedlab/azkar-bot/internal/config"
	discordpkg "github.com/foxseedlab/azkar-bot/internal/discord"
	"github.com/foxseedlab/azkar-bot/internal/session"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	shutdownSaveTimeout   = 15 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded",
		"env", cfg.Env,
		"state_backend", cfg.StateBackend,
		"azkar", cfg.EnableAzkar,
		"dua", cfg.EnableDua,
		"quran", cfg.EnableQuran,
	)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	catalogimpl.RegisterDI(injector)
	statestore.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func runBot(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(ctx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		slog.Error("failed to resolve bot user id", "error", err)
		os.Exit(1)
	}
	manager.SetBotUserID(botUserID)

	defs := manager.SlashCommandDefinitions()
	if err := dc.UpsertSlashCommands(cfg.DiscordGuildID, defs); err != nil {
		slog.Error("failed to upsert slash commands", "error", err, "guild_id", cfg.DiscordGuildID)
		os.Exit(1)
	}

	dc.RegisterVoiceStateUpdateHandler(manager.HandleVoiceStateUpdate)
	dc.RegisterSlashCommandHandler(manager.HandleSlashCommand)
	dc.RegisterGuildDeleteHandler(manager.HandleGuildDelete)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "commands", len(defs))

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	runCtx, stopRun := context.WithCancel(context.Background())
	loopsDone := make(chan struct{})
	restored := false
	go func() {
		defer close(loopsDone)
		select {
		case <-time.After(cfg.RestoreDelay):
		case <-runCtx.Done():
			return
		}
		slog.Info("startup: restoring saved state")
		manager.RestoreOnStartup(runCtx)
		restored = true
		manager.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-done:
	}

	stopRun()
	<-loopsDone

	if !restored {
		slog.Warn("stopped before saved state was restored, leaving it untouched")
		manager.Close()
		return
	}
	saveCtx, cancelSave := context.WithTimeout(context.Background(), shutdownSaveTimeout)
	defer cancelSave()
	manager.Shutdown(saveCtx)
	slog.Info("shutdown complete")
}
