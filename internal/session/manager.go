package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/audio"
	"github.com/foxseedlab/azkar-bot/internal/broadcast"
	"github.com/foxseedlab/azkar-bot/internal/config"
	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/discord"
	"github.com/foxseedlab/azkar-bot/internal/state"
	"github.com/foxseedlab/azkar-bot/internal/voice"
	"github.com/foxseedlab/azkar-bot/internal/webhook"
)

const alertTimeout = 10 * time.Second

var ErrFeatureDisabled = errors.New("feature is disabled")

// Manager is the single entry point for commands, gateway events and the
// process lifecycle. It owns the schedulers, the voice manager, the shared
// selector and the persistence store.
type Manager struct {
	cfg     *config.Config
	discord discord.Client
	library *content.Library
	alerts  webhook.Sender

	selector   *content.Selector
	schedulers map[content.Kind]*broadcast.Scheduler
	voice      *voice.Manager
	store      *state.Store
	gate       *commandGate

	mu        sync.Mutex
	botUserID string
}

func NewManager(
	cfg *config.Config,
	dc discord.Client,
	library *content.Library,
	backend state.Backend,
	newPlayer audio.PlayerFactory,
	alerts webhook.Sender,
) *Manager {
	m := &Manager{
		cfg:        cfg,
		discord:    dc,
		library:    library,
		alerts:     alerts,
		selector:   content.NewSelector(),
		schedulers: make(map[content.Kind]*broadcast.Scheduler),
		gate:       newCommandGate(cfg.CommandRateLimit, cfg.CommandRateWindow, cfg.CommandCooldown),
	}

	src := state.Sources{History: m.selector, Resolver: dc}
	for _, kind := range []content.Kind{content.KindAzkar, content.KindDua} {
		if !m.kindEnabled(kind) {
			continue
		}
		catalog := library.Catalog(kind)
		if catalog == nil {
			continue
		}
		s := broadcast.NewScheduler(catalog, m.selector, dc, broadcast.RendererFor(kind), broadcast.Hooks{
			Changed:     m.requestSave,
			SelfStopped: m.broadcastSelfStopped(kind),
		})
		m.schedulers[kind] = s
		if kind == content.KindAzkar {
			src.Azkar = s
		} else {
			src.Duas = s
		}
	}

	if cfg.EnableQuran && newPlayer != nil {
		m.voice = voice.NewManager(dc, library, newPlayer, voice.DefaultPolicy(), voice.Hooks{
			Changed:   m.requestSave,
			Abandoned: m.voiceAbandoned,
		})
		src.Voice = m.voice
	}

	m.store = state.NewStore(backend, src, cfg.StateSaveInterval)
	return m
}

func (m *Manager) kindEnabled(kind content.Kind) bool {
	switch kind {
	case content.KindAzkar:
		return m.cfg.EnableAzkar
	case content.KindDua:
		return m.cfg.EnableDua
	}
	return false
}

func (m *Manager) SetBotUserID(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = userID
}

func (m *Manager) getBotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// StartBroadcast begins periodic delivery of kind to channelID.
func (m *Manager) StartBroadcast(guildID, channelID string, kind content.Kind, minutes int) error {
	s := m.schedulers[kind]
	if s == nil {
		return ErrFeatureDisabled
	}
	return s.Start(guildID, channelID, minutes)
}

func (m *Manager) StopBroadcast(guildID string, kind content.Kind) error {
	s := m.schedulers[kind]
	if s == nil {
		return ErrFeatureDisabled
	}
	return s.Stop(guildID)
}

func (m *Manager) StartVoiceStream(guildID, channelID, url, label string) error {
	if m.voice == nil {
		return ErrFeatureDisabled
	}
	return m.voice.StartStream(guildID, channelID, url, label)
}

func (m *Manager) StartVoicePlaylist(guildID, channelID, playlistRef, label string) error {
	if m.voice == nil {
		return ErrFeatureDisabled
	}
	return m.voice.StartPlaylist(guildID, channelID, playlistRef, label)
}

func (m *Manager) StopVoice(guildID string) error {
	if m.voice == nil {
		return voice.ErrNotActive
	}
	return m.voice.Stop(guildID)
}

func (m *Manager) SaveNow(ctx context.Context) error {
	return m.store.Save(ctx)
}

func (m *Manager) ClearPersisted(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// RestoreOnStartup re-creates the saved sessions and writes a fresh snapshot
// so skipped entries are dropped from storage.
func (m *Manager) RestoreOnStartup(ctx context.Context) state.RestoreReport {
	report := m.store.Restore(ctx)
	if err := m.store.Save(ctx); err != nil {
		slog.Error("failed to save state after restore", "error", err)
	}
	return report
}

// Run drives the save loop and the maintenance sweeps until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	spawn(func() { m.store.Run(ctx) })
	spawn(func() { every(ctx, m.cfg.CleanupInterval, m.sweepHistory) })
	if m.voice != nil {
		spawn(func() { every(ctx, m.cfg.VoiceHealthInterval, m.voice.CheckHealth) })
		spawn(func() { every(ctx, m.cfg.VoiceMonitorInterval, m.voice.CheckConnections) })
	}
	wg.Wait()
}

func every(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f()
		}
	}
}

func (m *Manager) sweepHistory() {
	if removed := m.selector.Sweep(); removed > 0 {
		slog.Info("recent history swept", "removed_entries", removed)
		m.requestSave()
	}
}

// Shutdown halts every timer and voice session while keeping their records,
// writes the final snapshot and closes the backend.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, s := range m.schedulers {
		s.Halt()
	}
	if m.voice != nil {
		m.voice.Shutdown()
	}
	if err := m.store.Save(ctx); err != nil {
		slog.Error("failed to save final state", "error", err)
	}
	m.Close()
}

// Close releases the state backend without saving.
func (m *Manager) Close() {
	if err := m.store.Close(); err != nil {
		slog.Error("failed to close state backend", "error", err)
	}
}

func (m *Manager) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if m.voice == nil {
		return
	}
	botUserID := m.getBotUserID()
	if botUserID == "" || event.UserID != botUserID {
		return
	}
	if event.BeforeChannelID == event.AfterChannelID {
		return
	}
	slog.Debug("bot voice state changed",
		"guild_id", event.GuildID,
		"before_channel_id", event.BeforeChannelID,
		"after_channel_id", event.AfterChannelID,
	)
	m.voice.HandleBotMoved(event.GuildID, event.AfterChannelID)
}

// HandleGuildDelete drops every session and history the guild owned.
func (m *Manager) HandleGuildDelete(guildID string) {
	slog.Info("guild removed, dropping its sessions", "guild_id", guildID)
	if m.voice != nil {
		m.voice.ForgetGuild(guildID)
	}
	for _, s := range m.schedulers {
		s.ForgetGuild(guildID)
	}
	m.selector.ForgetGuild(guildID)
	m.requestSave()
}

func (m *Manager) requestSave() {
	if m.store != nil {
		m.store.RequestSave()
	}
}

func (m *Manager) broadcastSelfStopped(kind content.Kind) func(broadcast.Session, error) {
	return func(sess broadcast.Session, reason error) {
		m.sendAlert(webhook.Alert{
			Event:     webhook.AlertBroadcastStopped,
			GuildID:   sess.GuildID,
			ChannelID: sess.ChannelID,
			Kind:      string(kind),
			Reason:    reasonText(reason),
		})
	}
}

func (m *Manager) voiceAbandoned(desc voice.Descriptor, reason error) {
	m.sendAlert(webhook.Alert{
		Event:     webhook.AlertVoiceAbandoned,
		GuildID:   desc.GuildID,
		ChannelID: desc.ChannelID,
		Reason:    reasonText(reason),
	})
}

func (m *Manager) sendAlert(alert webhook.Alert) {
	if m.alerts == nil {
		return
	}
	alert.OccurredAt = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := m.alerts.SendAlert(ctx, alert); err != nil {
			slog.Error("failed to send alert", "event", alert.Event, "guild_id", alert.GuildID, "error", err)
		}
	}()
}

func reasonText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
