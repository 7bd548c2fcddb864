package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/audio"
	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/discord"
)

var (
	ErrNotActive          = errors.New("no active voice session in guild")
	ErrChannelUnavailable = errors.New("voice guild or channel no longer resolves")
	ErrEmptyPlaylist      = errors.New("playlist has no tracks")
	ErrUnknownPlaylist    = errors.New("playlist not found")
	ErrEmptySource        = errors.New("stream source is empty")
)

type Mode string

const (
	ModeStream   Mode = "stream"
	ModePlaylist Mode = "playlist"
)

// Descriptor is everything needed to re-create a voice session.
type Descriptor struct {
	GuildID     string
	ChannelID   string
	Mode        Mode
	Label       string
	Source      string
	PlaylistRef string
	Cursor      int
}

type Connector interface {
	JoinVoiceChannel(guildID, channelID string) (discord.VoiceConnection, error)
	GuildExists(guildID string) bool
	ChannelExists(guildID, channelID string) bool
	BotVoiceChannelID(guildID string) string
}

type Playlists interface {
	Playlist(ref string) *content.Playlist
}

type Policy struct {
	StreamReplayDelay   time.Duration
	TrackAdvanceDelay   time.Duration
	ErrorRetryDelay     time.Duration
	MovedReconnectDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		StreamReplayDelay:   3 * time.Second,
		TrackAdvanceDelay:   2 * time.Second,
		ErrorRetryDelay:     5 * time.Second,
		MovedReconnectDelay: 2 * time.Second,
	}
}

type Hooks struct {
	// Changed runs after a session is added, removed or its cursor moves.
	Changed func()
	// Abandoned runs after a session was dropped because its guild or channel
	// disappeared.
	Abandoned func(Descriptor, error)
}

type session struct {
	desc     Descriptor
	playlist *content.Playlist
	conn     discord.VoiceConnection
	player   audio.Player
	// gen changes whenever the player is replaced; callbacks carrying an older
	// value are ignored.
	gen      uint64
	resuming bool
	timer    *time.Timer
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Manager owns at most one voice session per guild and keeps it playing
// through idle sources, playback errors and dropped connections.
type Manager struct {
	connector Connector
	playlists Playlists
	newPlayer audio.PlayerFactory
	policy    Policy
	hooks     Hooks

	mu       sync.Mutex
	sessions map[string]*session
	// ops holds one lock per guild serializing changes that join or leave its
	// voice channel. Guilds never wait on each other.
	ops      map[string]*sync.Mutex
	nextGen  uint64
}

func NewManager(connector Connector, playlists Playlists, newPlayer audio.PlayerFactory, policy Policy, hooks Hooks) *Manager {
	return &Manager{
		connector: connector,
		playlists: playlists,
		newPlayer: newPlayer,
		policy:    policy,
		hooks:     hooks,
		sessions:  make(map[string]*session),
		ops:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) guildOps(guildID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ops[guildID]
	if !ok {
		l = &sync.Mutex{}
		m.ops[guildID] = l
	}
	return l
}

// StartStream plays a continuous source, replacing any session in the guild.
func (m *Manager) StartStream(guildID, channelID, source, label string) error {
	if source == "" {
		return ErrEmptySource
	}
	return m.start(Descriptor{
		GuildID:   guildID,
		ChannelID: channelID,
		Mode:      ModeStream,
		Label:     label,
		Source:    source,
	})
}

// StartPlaylist plays a playlist from its first track, replacing any session
// in the guild.
func (m *Manager) StartPlaylist(guildID, channelID, ref, label string) error {
	return m.start(Descriptor{
		GuildID:     guildID,
		ChannelID:   channelID,
		Mode:        ModePlaylist,
		Label:       label,
		PlaylistRef: ref,
	})
}

// Resume re-creates a persisted session after checking that its guild and
// channel still resolve.
func (m *Manager) Resume(desc Descriptor) error {
	if !m.connector.GuildExists(desc.GuildID) || !m.connector.ChannelExists(desc.GuildID, desc.ChannelID) {
		return ErrChannelUnavailable
	}
	if desc.Mode == ModeStream && desc.Source == "" {
		return ErrEmptySource
	}
	return m.start(desc)
}

func (m *Manager) start(desc Descriptor) error {
	var playlist *content.Playlist
	if desc.Mode == ModePlaylist {
		playlist = m.playlists.Playlist(desc.PlaylistRef)
		if playlist == nil {
			return fmt.Errorf("%w: %q", ErrUnknownPlaylist, desc.PlaylistRef)
		}
		if playlist.Len() == 0 {
			return ErrEmptyPlaylist
		}
		desc.PlaylistRef = playlist.Ref
		if desc.Cursor < 0 || desc.Cursor >= playlist.Len() {
			desc.Cursor = 0
		}
		desc.Source = playlist.Tracks[desc.Cursor].URL
	}

	ops := m.guildOps(desc.GuildID)
	ops.Lock()
	defer ops.Unlock()

	m.mu.Lock()
	existing := m.sessions[desc.GuildID]
	var reuse discord.VoiceConnection
	if existing != nil {
		existing.resuming = false
		existing.stopTimer()
		delete(m.sessions, desc.GuildID)
		if existing.conn != nil && existing.conn.Ready() && existing.conn.ChannelID() == desc.ChannelID {
			reuse = existing.conn
		}
	}
	m.mu.Unlock()

	if existing != nil {
		if existing.player != nil {
			existing.player.Stop()
		}
		if reuse == nil && existing.conn != nil {
			if err := existing.conn.Disconnect(); err != nil {
				slog.Warn("failed to leave previous voice channel", "guild_id", desc.GuildID, "error", err)
			}
		}
	}

	conn := reuse
	if conn == nil {
		var err error
		conn, err = m.connector.JoinVoiceChannel(desc.GuildID, desc.ChannelID)
		if err != nil {
			if existing != nil {
				m.changed()
			}
			return fmt.Errorf("join voice channel: %w", err)
		}
	}

	m.mu.Lock()
	s := &session{desc: desc, playlist: playlist, conn: conn, resuming: true}
	m.attachPlayerLocked(s)
	m.sessions[desc.GuildID] = s
	player, gen, source := s.player, s.gen, s.desc.Source
	m.mu.Unlock()

	slog.Info("voice session started",
		"guild_id", desc.GuildID,
		"channel_id", desc.ChannelID,
		"mode", desc.Mode,
		"label", desc.Label,
		"cursor", desc.Cursor,
		"reused_connection", reuse != nil,
	)
	m.play(desc.GuildID, gen, player, source)
	m.changed()
	return nil
}

func (m *Manager) attachPlayerLocked(s *session) {
	m.nextGen++
	s.gen = m.nextGen
	guildID, gen := s.desc.GuildID, s.gen
	s.player = m.newPlayer(s.conn, func(ev audio.Event) {
		m.onPlayerEvent(guildID, gen, ev)
	})
}

func (m *Manager) play(guildID string, gen uint64, player audio.Player, source string) {
	if err := player.Play(source); err != nil {
		m.onPlayerEvent(guildID, gen, audio.Event{Kind: audio.EventError, Err: err})
	}
}

func (m *Manager) onPlayerEvent(guildID string, gen uint64, ev audio.Event) {
	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil || s.gen != gen || !s.resuming {
		m.mu.Unlock()
		return
	}

	var delay time.Duration
	advanced := false
	switch ev.Kind {
	case audio.EventIdle:
		if s.desc.Mode == ModePlaylist {
			s.desc.Cursor = (s.desc.Cursor + 1) % s.playlist.Len()
			s.desc.Source = s.playlist.Tracks[s.desc.Cursor].URL
			delay = m.policy.TrackAdvanceDelay
			advanced = true
		} else {
			delay = m.policy.StreamReplayDelay
		}
	case audio.EventError:
		delay = m.policy.ErrorRetryDelay
		slog.Warn("voice playback failed, retrying",
			"guild_id", guildID,
			"source", s.desc.Source,
			"retry_in", delay.String(),
			"error", ev.Err,
		)
	default:
		m.mu.Unlock()
		return
	}

	s.stopTimer()
	s.timer = time.AfterFunc(delay, func() { m.replay(guildID, gen) })
	cursor := s.desc.Cursor
	m.mu.Unlock()

	if advanced {
		slog.Debug("playlist advanced", "guild_id", guildID, "cursor", cursor)
		m.changed()
	}
}

func (m *Manager) replay(guildID string, gen uint64) {
	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil || s.gen != gen || !s.resuming || s.player == nil {
		m.mu.Unlock()
		return
	}
	s.timer = nil
	player, source := s.player, s.desc.Source
	m.mu.Unlock()

	m.play(guildID, gen, player, source)
}

// Stop ends the guild's session and leaves its voice channel.
func (m *Manager) Stop(guildID string) error {
	ops := m.guildOps(guildID)
	ops.Lock()
	defer ops.Unlock()

	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil {
		m.mu.Unlock()
		return ErrNotActive
	}
	s.resuming = false
	s.stopTimer()
	delete(m.sessions, guildID)
	m.mu.Unlock()

	m.teardown(s)
	slog.Info("voice session stopped", "guild_id", guildID)
	m.changed()
	return nil
}

// ForgetGuild drops the guild's session, if any.
func (m *Manager) ForgetGuild(guildID string) bool {
	return m.Stop(guildID) == nil
}

func (m *Manager) teardown(s *session) {
	if s.player != nil {
		s.player.Stop()
	}
	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			slog.Warn("failed to leave voice channel", "guild_id", s.desc.GuildID, "error", err)
		}
	}
}

// Reconnect rejoins the recorded channel and restarts playback at the current
// source. Sessions whose guild or channel vanished are abandoned.
func (m *Manager) Reconnect(guildID, reason string) error {
	ops := m.guildOps(guildID)
	ops.Lock()
	defer ops.Unlock()

	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil || !s.resuming {
		m.mu.Unlock()
		return nil
	}
	s.stopTimer()
	desc := s.desc
	m.mu.Unlock()

	slog.Info("reconnecting voice session", "guild_id", guildID, "channel_id", desc.ChannelID, "reason", reason)

	if !m.connector.GuildExists(guildID) || !m.connector.ChannelExists(guildID, desc.ChannelID) {
		m.abandon(s, ErrChannelUnavailable)
		return ErrChannelUnavailable
	}

	m.mu.Lock()
	oldPlayer, oldConn := s.player, s.conn
	s.player, s.conn = nil, nil
	m.mu.Unlock()
	if oldPlayer != nil {
		oldPlayer.Stop()
	}
	if oldConn != nil {
		if err := oldConn.Disconnect(); err != nil {
			slog.Debug("stale voice connection did not close cleanly", "guild_id", guildID, "error", err)
		}
	}

	conn, err := m.connector.JoinVoiceChannel(guildID, desc.ChannelID)

	m.mu.Lock()
	if m.sessions[guildID] != s || !s.resuming {
		m.mu.Unlock()
		if err == nil {
			_ = conn.Disconnect()
		}
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		slog.Warn("voice reconnect failed, will retry on next check",
			"guild_id", guildID,
			"channel_id", desc.ChannelID,
			"error", err,
		)
		return fmt.Errorf("rejoin voice channel: %w", err)
	}
	s.conn = conn
	m.attachPlayerLocked(s)
	player, gen, source := s.player, s.gen, s.desc.Source
	m.mu.Unlock()

	m.play(guildID, gen, player, source)
	slog.Info("voice session reconnected", "guild_id", guildID, "channel_id", desc.ChannelID)
	m.changed()
	return nil
}

func (m *Manager) abandon(s *session, reason error) {
	m.mu.Lock()
	if m.sessions[s.desc.GuildID] != s {
		m.mu.Unlock()
		return
	}
	s.resuming = false
	s.stopTimer()
	delete(m.sessions, s.desc.GuildID)
	desc := s.desc
	m.mu.Unlock()

	m.teardown(s)
	slog.Warn("voice session abandoned", "guild_id", desc.GuildID, "channel_id", desc.ChannelID, "reason", reason)
	m.changed()
	if m.hooks.Abandoned != nil {
		m.hooks.Abandoned(desc, reason)
	}
}

// CheckHealth abandons sessions whose guild or channel vanished and reconnects
// sessions whose bot is not in the recorded channel.
func (m *Manager) CheckHealth() {
	m.sweep(func(s *session) {
		guildID, channelID := s.desc.GuildID, s.desc.ChannelID
		if !m.connector.GuildExists(guildID) || !m.connector.ChannelExists(guildID, channelID) {
			m.abandon(s, ErrChannelUnavailable)
			return
		}
		if current := m.connector.BotVoiceChannelID(guildID); current != channelID {
			_ = m.Reconnect(guildID, "bot is not in the recorded channel")
		}
	})
}

// CheckConnections reconnects sessions whose voice connection dropped.
func (m *Manager) CheckConnections() {
	m.sweep(func(s *session) {
		m.mu.Lock()
		conn := s.conn
		m.mu.Unlock()
		if conn == nil || !conn.Ready() {
			_ = m.Reconnect(s.desc.GuildID, "voice connection lost")
		}
	})
}

// sweep runs check for every resuming session, one goroutine per guild, and
// returns once all of them finished.
func (m *Manager) sweep(check func(*session)) {
	var wg sync.WaitGroup
	for _, s := range m.resumingSessions() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check(s)
		}()
	}
	wg.Wait()
}

// HandleBotMoved schedules a reconnect when the bot left the recorded channel.
// The move is re-checked when the delay elapses.
func (m *Manager) HandleBotMoved(guildID, newChannelID string) {
	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil || !s.resuming || s.desc.ChannelID == newChannelID {
		m.mu.Unlock()
		return
	}
	channelID := s.desc.ChannelID
	m.mu.Unlock()

	slog.Info("bot left its voice channel", "guild_id", guildID, "channel_id", channelID, "new_channel_id", newChannelID)
	time.AfterFunc(m.policy.MovedReconnectDelay, func() {
		m.mu.Lock()
		cur := m.sessions[guildID]
		stillCurrent := cur == s && s.resuming
		m.mu.Unlock()
		if !stillCurrent {
			return
		}
		if m.connector.BotVoiceChannelID(guildID) == channelID {
			return
		}
		_ = m.Reconnect(guildID, "bot was moved")
	})
}

// Shutdown silences and disconnects every session but keeps the descriptors
// so a final snapshot still includes them.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	guilds := make([]string, 0, len(m.sessions))
	for guildID := range m.sessions {
		guilds = append(guilds, guildID)
	}
	m.mu.Unlock()

	for _, guildID := range guilds {
		m.shutdownGuild(guildID)
	}
}

func (m *Manager) shutdownGuild(guildID string) {
	ops := m.guildOps(guildID)
	ops.Lock()
	defer ops.Unlock()

	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil {
		m.mu.Unlock()
		return
	}
	s.resuming = false
	s.stopTimer()
	m.mu.Unlock()

	m.teardown(s)
}

func (m *Manager) Session(guildID string) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	if !ok {
		return Descriptor{}, false
	}
	return s.desc, true
}

// Sessions returns all descriptors ordered by guild ID.
func (m *Manager) Sessions() []Descriptor {
	m.mu.Lock()
	out := make([]Descriptor, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.desc)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

func (m *Manager) resumingSessions() []*session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.resuming {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) changed() {
	if m.hooks.Changed != nil {
		m.hooks.Changed()
	}
}
