package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
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

type mockDiscordClient struct {
	mu                   sync.Mutex
	sent                 []discord.Embed
	missingChannels      map[string]bool
	userVoiceChannelByID map[string]string
	joined               []string
}

func (m *mockDiscordClient) Connect(context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                  { return nil }
func (m *mockDiscordClient) Run() error                    { return nil }
func (m *mockDiscordClient) GetBotUserID() (string, error) { return "bot-self", nil }

func (m *mockDiscordClient) SendEmbed(_ string, embed discord.Embed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, embed)
	return nil
}

func (m *mockDiscordClient) ChannelExists(_, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.missingChannels[channelID]
}

func (m *mockDiscordClient) GuildExists(string) bool { return true }

func (m *mockDiscordClient) GetUserVoiceChannelID(_, userID string) (string, error) {
	return m.userVoiceChannelByID[userID], nil
}

func (m *mockDiscordClient) BotVoiceChannelID(string) string { return "" }

func (m *mockDiscordClient) JoinVoiceChannel(_, channelID string) (discord.VoiceConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined = append(m.joined, channelID)
	return &mockVoiceConnection{channelID: channelID}, nil
}

func (m *mockDiscordClient) RegisterSlashCommandHandler(func(discord.SlashCommandEvent))  {}
func (m *mockDiscordClient) RegisterVoiceStateUpdateHandler(func(discord.VoiceStateEvent)) {}
func (m *mockDiscordClient) RegisterGuildDeleteHandler(func(string))                       {}
func (m *mockDiscordClient) UpsertSlashCommands(string, []discord.SlashCommandDefinition) error {
	return nil
}

func (m *mockDiscordClient) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockVoiceConnection struct{ channelID string }

func (c *mockVoiceConnection) ChannelID() string                      { return c.channelID }
func (c *mockVoiceConnection) Ready() bool                            { return true }
func (c *mockVoiceConnection) Speaking(bool) error                    { return nil }
func (c *mockVoiceConnection) SendOpus(context.Context, []byte) error { return nil }
func (c *mockVoiceConnection) Disconnect() error                      { return nil }

type silentPlayer struct{}

func (silentPlayer) Play(string) error { return nil }
func (silentPlayer) Stop()             {}

type memBackend struct {
	mu      sync.Mutex
	current []byte
}

func (b *memBackend) Read(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil, state.ErrSnapshotNotFound
	}
	return append([]byte(nil), b.current...), nil
}

func (b *memBackend) Write(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = append([]byte(nil), data...)
	return nil
}

func (b *memBackend) Backup(context.Context) error        { return nil }
func (b *memBackend) RestoreBackup(context.Context) error { return nil }

func (b *memBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	return nil
}

func (b *memBackend) Close() error { return nil }

func (b *memBackend) snapshot(t *testing.T) state.Snapshot {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		t.Fatal("no snapshot written")
	}
	var snap state.Snapshot
	if err := json.Unmarshal(b.current, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

type mockWebhookSender struct {
	alerts chan webhook.Alert
}

func (m *mockWebhookSender) SendAlert(_ context.Context, alert webhook.Alert) error {
	m.alerts <- alert
	return nil
}

func testLibrary() *content.Library {
	items := func(n int) []content.Item {
		out := make([]content.Item, n)
		for i := range out {
			out[i] = content.Item{ID: content.ItemID(string(rune('a' + i))), Text: "text"}
		}
		return out
	}
	tracks := make([]content.Track, 114)
	for i := range tracks {
		tracks[i] = content.Track{Number: i + 1, URL: "https://example.invalid/" + string(rune('A'+i%26)) + ".mp3"}
	}
	return &content.Library{
		Catalogs: map[content.Kind]*content.Catalog{
			content.KindAzkar: content.NewCatalog(content.KindAzkar, items(5)),
			content.KindDua:   content.NewCatalog(content.KindDua, items(3)),
		},
		Playlists:       map[string]*content.Playlist{"hawashi": {Ref: "hawashi", Name: "reader", Tracks: tracks}},
		DefaultPlaylist: "hawashi",
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "test",
		StateSaveInterval:    time.Hour,
		VoiceHealthInterval:  time.Hour,
		VoiceMonitorInterval: time.Hour,
		CleanupInterval:      time.Hour,
		CommandRateLimit:     100,
		CommandRateWindow:    time.Minute,
		CommandCooldown:      0,
		EnableAzkar:          true,
		EnableDua:            true,
		EnableQuran:          true,
	}
}

func newTestManager(cfg *config.Config, dc *mockDiscordClient) (*Manager, *memBackend, *mockWebhookSender) {
	backend := &memBackend{}
	wh := &mockWebhookSender{alerts: make(chan webhook.Alert, 4)}
	newPlayer := audio.PlayerFactory(func(discord.VoiceConnection, func(audio.Event)) audio.Player {
		return silentPlayer{}
	})
	return NewManager(cfg, dc, testLibrary(), backend, newPlayer, wh), backend, wh
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func command(name, guildID, userID string, reply *string) discord.SlashCommandEvent {
	return discord.SlashCommandEvent{
		GuildID:       guildID,
		ChannelID:     "text-1",
		CommandName:   name,
		UserID:        userID,
		IntOptions:    map[string]int64{},
		StringOptions: map[string]string{},
		RespondEphemeral: func(content string) error {
			*reply = content
			return nil
		},
	}
}

func TestHandleSlashCommand_StartAndStopAzkar(t *testing.T) {
	dc := &mockDiscordClient{}
	manager, _, _ := newTestManager(testConfig(), dc)

	var reply string
	start := command(commandAzkar, "guild-1", "user-1", &reply)
	start.IntOptions[optionDuration] = 30
	manager.HandleSlashCommand(start)
	if reply != broadcastStartedMessage(content.KindAzkar, 30) {
		t.Fatalf("unexpected start response: %q", reply)
	}
	waitFor(t, func() bool { return dc.sentCount() == 1 })

	manager.HandleSlashCommand(start)
	if reply != messageEphemeralAzkarActive {
		t.Fatalf("expected already-active response, got %q", reply)
	}

	manager.HandleSlashCommand(command(commandStopAzkar, "guild-1", "user-1", &reply))
	if reply != messageEphemeralAzkarStopped {
		t.Fatalf("unexpected stop response: %q", reply)
	}
	manager.HandleSlashCommand(command(commandStopAzkar, "guild-1", "user-1", &reply))
	if reply != messageEphemeralAzkarNotActive {
		t.Fatalf("expected not-active response, got %q", reply)
	}
}

func TestHandleSlashCommand_RejectsOutOfRangeDuration(t *testing.T) {
	dc := &mockDiscordClient{}
	manager, _, _ := newTestManager(testConfig(), dc)

	for _, minutes := range []int64{29, 361} {
		var reply string
		ev := command(commandDua, "guild-1", "user-1", &reply)
		ev.IntOptions[optionDuration] = minutes
		manager.HandleSlashCommand(ev)
		if reply != messageEphemeralInvalidDuration {
			t.Fatalf("minutes=%d: unexpected response %q", minutes, reply)
		}
	}
	if err := manager.StopBroadcast("guild-1", content.KindDua); !errors.Is(err, broadcast.ErrNotActive) {
		t.Fatalf("no session expected, got %v", err)
	}
}

func TestHandleSlashCommand_PlayRequiresVoiceChannel(t *testing.T) {
	dc := &mockDiscordClient{}
	manager, _, _ := newTestManager(testConfig(), dc)

	var reply string
	ev := command(commandPlay, "guild-1", "user-1", &reply)
	ev.StringOptions[optionStation] = "cairo"
	manager.HandleSlashCommand(ev)

	if reply != messageEphemeralJoinVoiceFirst {
		t.Fatalf("unexpected response: %q", reply)
	}
	if len(dc.joined) != 0 {
		t.Fatalf("bot must not join any channel, joined %v", dc.joined)
	}
}

func TestHandleSlashCommand_PlayPlaylistThenStopClearsState(t *testing.T) {
	dc := &mockDiscordClient{userVoiceChannelByID: map[string]string{"user-1": "vc-1"}}
	manager, backend, _ := newTestManager(testConfig(), dc)

	var reply string
	ev := command(commandPlay, "guild-1", "user-1", &reply)
	ev.StringOptions[optionStation] = "mp3_quran"
	manager.HandleSlashCommand(ev)
	if !strings.HasPrefix(reply, "🎵") {
		t.Fatalf("unexpected play response: %q", reply)
	}
	desc, ok := manager.voice.Session("guild-1")
	if !ok || desc.Mode != voice.ModePlaylist || desc.ChannelID != "vc-1" || desc.PlaylistRef != "hawashi" {
		t.Fatalf("unexpected voice session: %+v (ok=%v)", desc, ok)
	}

	if err := manager.SaveNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if snap := backend.snapshot(t); len(snap.Connections) != 1 || !snap.Connections[0].IsMP3Quran {
		t.Fatalf("expected the playlist session in the snapshot, got %+v", snap.Connections)
	}

	manager.HandleSlashCommand(command(commandStop, "guild-1", "user-1", &reply))
	if reply != messageEphemeralVoiceStopped {
		t.Fatalf("unexpected stop response: %q", reply)
	}
	if _, err := backend.Read(context.Background()); !errors.Is(err, state.ErrSnapshotNotFound) {
		t.Fatalf("expected persisted state to be cleared, got %v", err)
	}

	manager.HandleSlashCommand(command(commandStop, "guild-1", "user-1", &reply))
	if reply != messageEphemeralVoiceNotActive {
		t.Fatalf("expected not-active response, got %q", reply)
	}
}

func TestHandleSlashCommand_Cooldown(t *testing.T) {
	cfg := testConfig()
	cfg.CommandCooldown = time.Minute
	manager, _, _ := newTestManager(cfg, &mockDiscordClient{})

	var reply string
	manager.HandleSlashCommand(command(commandStop, "guild-1", "user-1", &reply))
	if reply != messageEphemeralVoiceNotActive {
		t.Fatalf("unexpected first response: %q", reply)
	}
	manager.HandleSlashCommand(command(commandStop, "guild-1", "user-1", &reply))
	if !strings.HasPrefix(reply, "⏳") {
		t.Fatalf("expected cooldown response, got %q", reply)
	}
}

func TestSlashCommandDefinitions_FollowFeatureFlags(t *testing.T) {
	cfg := testConfig()
	cfg.EnableDua = false
	cfg.EnableQuran = false
	manager, _, _ := newTestManager(cfg, &mockDiscordClient{})

	names := map[string]bool{}
	for _, def := range manager.SlashCommandDefinitions() {
		if !def.AdminOnly {
			t.Fatalf("command %q must be admin only", def.Name)
		}
		names[def.Name] = true
	}
	if !names[commandAzkar] || !names[commandStopAzkar] {
		t.Fatalf("azkar commands missing: %v", names)
	}
	if names[commandDua] || names[commandPlay] || names[commandStop] {
		t.Fatalf("disabled features must not register commands: %v", names)
	}
	if err := manager.StartVoiceStream("guild-1", "vc-1", "https://example.invalid", "x"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestBroadcastSelfStop_SendsAlert(t *testing.T) {
	dc := &mockDiscordClient{missingChannels: map[string]bool{"text-gone": true}}
	manager, _, wh := newTestManager(testConfig(), dc)

	if err := manager.StartBroadcast("guild-1", "text-gone", content.KindAzkar, 60); err != nil {
		t.Fatal(err)
	}

	select {
	case alert := <-wh.alerts:
		if alert.Event != webhook.AlertBroadcastStopped || alert.Kind != string(content.KindAzkar) || alert.ChannelID != "text-gone" {
			t.Fatalf("unexpected alert: %+v", alert)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert after the broadcast stopped itself")
	}
	if err := manager.StopBroadcast("guild-1", content.KindAzkar); !errors.Is(err, broadcast.ErrNotActive) {
		t.Fatalf("expected ErrNotActive after self-stop, got %v", err)
	}
}

func TestHandleGuildDelete_DropsEverything(t *testing.T) {
	dc := &mockDiscordClient{}
	manager, _, _ := newTestManager(testConfig(), dc)

	if err := manager.StartBroadcast("guild-1", "text-1", content.KindAzkar, 30); err != nil {
		t.Fatal(err)
	}
	if err := manager.StartBroadcast("guild-1", "text-1", content.KindDua, 30); err != nil {
		t.Fatal(err)
	}
	if err := manager.StartVoiceStream("guild-1", "vc-1", "https://example.invalid/live", "radio"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return dc.sentCount() == 2 })

	manager.HandleGuildDelete("guild-1")

	if _, ok := manager.voice.Session("guild-1"); ok {
		t.Fatal("voice session should be gone")
	}
	for _, kind := range []content.Kind{content.KindAzkar, content.KindDua} {
		if manager.schedulers[kind].Active("guild-1") {
			t.Fatalf("%s broadcast should be gone", kind)
		}
	}
	if got := manager.selector.Recent(content.KindAzkar, "guild-1"); len(got) != 0 {
		t.Fatalf("history should be dropped, got %v", got)
	}
}

func TestShutdown_FinalSnapshotKeepsSessions(t *testing.T) {
	dc := &mockDiscordClient{}
	manager, backend, _ := newTestManager(testConfig(), dc)

	if err := manager.StartBroadcast("guild-1", "text-1", content.KindDua, 45); err != nil {
		t.Fatal(err)
	}
	if err := manager.StartVoiceStream("guild-2", "vc-2", "https://example.invalid/live", "radio"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return dc.sentCount() == 1 })

	manager.Shutdown(context.Background())

	snap := backend.snapshot(t)
	if len(snap.Duas) != 1 || snap.Duas[0].Duration != (45*time.Minute).Milliseconds() || !snap.Duas[0].Interval {
		t.Fatalf("unexpected dua records: %+v", snap.Duas)
	}
	if len(snap.Connections) != 1 || snap.Connections[0].AudioFile != "https://example.invalid/live" {
		t.Fatalf("unexpected voice records: %+v", snap.Connections)
	}
	if len(snap.RecentDuas) != 1 || len(snap.RecentDuas[0].UsedItems) != 1 {
		t.Fatalf("expected the delivered dua in history, got %+v", snap.RecentDuas)
	}
}

func TestRestoreOnStartup_ResumesSavedSessions(t *testing.T) {
	dc := &mockDiscordClient{}
	first, backend, _ := newTestManager(testConfig(), dc)
	if err := first.StartBroadcast("guild-1", "text-1", content.KindAzkar, 120); err != nil {
		t.Fatal(err)
	}
	if err := first.StartVoicePlaylist("guild-1", "vc-1", "", "reader"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return dc.sentCount() == 1 })
	first.Shutdown(context.Background())

	second := NewManager(testConfig(), dc, testLibrary(), backend, func(discord.VoiceConnection, func(audio.Event)) audio.Player {
		return silentPlayer{}
	}, nil)
	report := second.RestoreOnStartup(context.Background())
	defer second.Shutdown(context.Background())

	if report.Broadcasts != 1 || report.Voice != 1 || report.Skipped != 0 {
		t.Fatalf("unexpected restore report: %+v", report)
	}
	sess, ok := second.schedulers[content.KindAzkar].Session("guild-1")
	if !ok || sess.Interval != 120*time.Minute || sess.ChannelID != "text-1" {
		t.Fatalf("unexpected restored broadcast: %+v (ok=%v)", sess, ok)
	}
	if got := second.selector.Recent(content.KindAzkar, "guild-1"); len(got) != 1 {
		t.Fatalf("expected restored history, got %v", got)
	}
	if dc.sentCount() != 1 {
		t.Fatal("a resumed broadcast must not send before its first interval")
	}
}

func TestHandleVoiceStateUpdate_IgnoresOtherUsers(t *testing.T) {
	dc := &mockDiscordClient{}
	manager, _, _ := newTestManager(testConfig(), dc)
	manager.SetBotUserID("bot-self")
	if err := manager.StartVoiceStream("guild-1", "vc-1", "https://example.invalid/live", "radio"); err != nil {
		t.Fatal(err)
	}

	manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{
		GuildID:         "guild-1",
		UserID:          "user-1",
		BeforeChannelID: "vc-1",
		AfterChannelID:  "vc-2",
	})
	time.Sleep(20 * time.Millisecond)

	if len(dc.joined) != 1 {
		t.Fatalf("a user moving must not trigger a reconnect, joins: %v", dc.joined)
	}
}
