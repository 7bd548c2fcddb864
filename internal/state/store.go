package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/broadcast"
	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/voice"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Backend stores the encoded snapshot and keeps the previous version as a
// backup.
type Backend interface {
	// Read returns ErrSnapshotNotFound when nothing was saved yet.
	Read(ctx context.Context) ([]byte, error)
	// Backup copies the current snapshot over the backup. It is a no-op when
	// nothing was saved yet.
	Backup(ctx context.Context) error
	// Write replaces the current snapshot and verifies it reads back intact.
	Write(ctx context.Context, data []byte) error
	RestoreBackup(ctx context.Context) error
	Clear(ctx context.Context) error
	Close() error
}

type BroadcastRegistry interface {
	Sessions() []broadcast.Session
	Resume(broadcast.Session) error
}

type VoiceRegistry interface {
	Sessions() []voice.Descriptor
	Resume(voice.Descriptor) error
}

type HistoryRegistry interface {
	Snapshot(kind content.Kind) map[string][]content.RecentUse
	Restore(kind content.Kind, history map[string][]content.RecentUse)
}

type Resolver interface {
	GuildExists(guildID string) bool
	ChannelExists(guildID, channelID string) bool
}

// Sources are the live registries a snapshot is captured from and restored
// into. A nil registry belongs to a disabled feature.
type Sources struct {
	Azkar    BroadcastRegistry
	Duas     BroadcastRegistry
	Voice    VoiceRegistry
	History  HistoryRegistry
	Resolver Resolver
}

type RestoreReport struct {
	Voice      int
	Broadcasts int
	Skipped    int
}

const (
	defaultSaveAttempts     = 3
	defaultRetryDelay       = time.Second
	defaultRestoredInterval = time.Hour
)

type Store struct {
	backend      Backend
	src          Sources
	saveInterval time.Duration

	attempts   int
	retryDelay time.Duration
	now        func() time.Time

	saveMu   sync.Mutex
	requests chan struct{}
}

func NewStore(backend Backend, src Sources, saveInterval time.Duration) *Store {
	return &Store{
		backend:      backend,
		src:          src,
		saveInterval: saveInterval,
		attempts:     defaultSaveAttempts,
		retryDelay:   defaultRetryDelay,
		now:          time.Now,
		requests:     make(chan struct{}, 1),
	}
}

// Capture projects the live registries into a snapshot.
func (s *Store) Capture() Snapshot {
	snap := Snapshot{
		Connections: []VoiceRecord{},
		Azkar:       captureBroadcasts(s.src.Azkar),
		Duas:        captureBroadcasts(s.src.Duas),
		RecentAzkar: []HistoryRecord{},
		RecentDuas:  []HistoryRecord{},
		SavedAt:     s.now().UnixMilli(),
	}
	if s.src.Voice != nil {
		for _, d := range s.src.Voice.Sessions() {
			snap.Connections = append(snap.Connections, VoiceRecord{
				GuildID:           d.GuildID,
				ChannelID:         d.ChannelID,
				Type:              voiceTypeQuran,
				AudioFile:         d.Source,
				RadioName:         d.Label,
				IsMP3Quran:        d.Mode == voice.ModePlaylist,
				CurrentSurahIndex: d.Cursor,
				Playlist:          d.PlaylistRef,
			})
		}
	}
	if s.src.History != nil {
		snap.RecentAzkar = captureHistory(s.src.History.Snapshot(content.KindAzkar))
		snap.RecentDuas = captureHistory(s.src.History.Snapshot(content.KindDua))
	}
	return snap
}

func captureBroadcasts(reg BroadcastRegistry) []BroadcastRecord {
	out := []BroadcastRecord{}
	if reg == nil {
		return out
	}
	for _, sess := range reg.Sessions() {
		out = append(out, BroadcastRecord{
			GuildID:   sess.GuildID,
			ChannelID: sess.ChannelID,
			Interval:  true,
			Duration:  sess.Interval.Milliseconds(),
			StartTime: sess.StartedAt.UnixMilli(),
		})
	}
	return out
}

func captureHistory(history map[string][]content.RecentUse) []HistoryRecord {
	guilds := make([]string, 0, len(history))
	for g := range history {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)

	out := make([]HistoryRecord, 0, len(guilds))
	for _, g := range guilds {
		rec := HistoryRecord{GuildID: g, UsedItems: make([]UsedEntry, 0, len(history[g]))}
		for _, u := range history[g] {
			rec.UsedItems = append(rec.UsedItems, UsedEntry{ID: u.ItemID, Timestamp: u.UsedAt.UnixMilli()})
		}
		out = append(out, rec)
	}
	return out
}

// Save backs up the stored snapshot once, then writes the current one,
// retrying with a growing delay. When every attempt fails the backup taken
// here is restored.
func (s *Store) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.Capture()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if berr := s.backend.Backup(ctx); berr != nil {
		slog.Warn("failed to back up state before save", "error", berr)
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.backend.Write(ctx, data)
		if err == nil {
			slog.Debug("state saved",
				"voice_sessions", len(snap.Connections),
				"azkar_sessions", len(snap.Azkar),
				"dua_sessions", len(snap.Duas),
				"bytes", len(data),
			)
			return nil
		}
		slog.Error("failed to save state", "attempt", attempt, "max_attempts", s.attempts, "error", err)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay * time.Duration(attempt)):
		}
	}

	if rerr := s.backend.RestoreBackup(ctx); rerr != nil {
		slog.Error("failed to restore state backup", "error", rerr)
	} else {
		slog.Warn("state backup restored after failed save")
	}
	return fmt.Errorf("save state: %w", err)
}

// Restore loads the saved snapshot into the registries. Missing or unreadable
// snapshots are treated as a fresh start.
func (s *Store) Restore(ctx context.Context) RestoreReport {
	var report RestoreReport

	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrSnapshotNotFound) {
		slog.Info("no saved state, starting fresh")
		return report
	}
	if err != nil {
		slog.Warn("failed to read saved state, starting fresh", "error", err)
		return report
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("saved state is corrupt, starting fresh", "error", err)
		return report
	}

	if s.src.History != nil {
		s.src.History.Restore(content.KindAzkar, restoreHistory(snap.RecentAzkar))
		s.src.History.Restore(content.KindDua, restoreHistory(snap.RecentDuas))
	}

	for _, rec := range snap.Connections {
		if s.src.Voice == nil {
			report.Skipped++
			continue
		}
		desc := voice.Descriptor{
			GuildID:     rec.GuildID,
			ChannelID:   rec.ChannelID,
			Mode:        voice.ModeStream,
			Label:       rec.RadioName,
			Source:      rec.AudioFile,
			PlaylistRef: rec.Playlist,
		}
		if rec.IsMP3Quran {
			desc.Mode = voice.ModePlaylist
			desc.Cursor = rec.CurrentSurahIndex
		}
		if err := s.src.Voice.Resume(desc); err != nil {
			slog.Warn("skipped saved voice session",
				"guild_id", rec.GuildID,
				"channel_id", rec.ChannelID,
				"error", err,
			)
			report.Skipped++
			continue
		}
		report.Voice++
	}

	s.restoreBroadcasts(content.KindAzkar, s.src.Azkar, snap.Azkar, &report)
	s.restoreBroadcasts(content.KindDua, s.src.Duas, snap.Duas, &report)

	slog.Info("state restored",
		"voice_sessions", report.Voice,
		"broadcast_sessions", report.Broadcasts,
		"skipped", report.Skipped,
	)
	return report
}

func (s *Store) restoreBroadcasts(kind content.Kind, reg BroadcastRegistry, records []BroadcastRecord, report *RestoreReport) {
	for _, rec := range records {
		switch {
		case reg == nil, !rec.Interval:
			report.Skipped++
			continue
		case s.src.Resolver != nil &&
			(!s.src.Resolver.GuildExists(rec.GuildID) || !s.src.Resolver.ChannelExists(rec.GuildID, rec.ChannelID)):
			slog.Warn("skipped saved broadcast, channel no longer resolves",
				"kind", kind,
				"guild_id", rec.GuildID,
				"channel_id", rec.ChannelID,
			)
			report.Skipped++
			continue
		}
		sess := broadcast.Session{
			GuildID:   rec.GuildID,
			ChannelID: rec.ChannelID,
			Interval:  restoredInterval(rec.Duration),
		}
		if rec.StartTime > 0 {
			sess.StartedAt = time.UnixMilli(rec.StartTime)
		}
		if err := reg.Resume(sess); err != nil {
			slog.Warn("skipped saved broadcast", "kind", kind, "guild_id", rec.GuildID, "error", err)
			report.Skipped++
			continue
		}
		report.Broadcasts++
	}
}

// restoredInterval falls back to an hour for records without a duration and
// clamps the rest into the accepted range.
func restoredInterval(durationMillis int64) time.Duration {
	if durationMillis <= 0 {
		return defaultRestoredInterval
	}
	d := time.Duration(durationMillis) * time.Millisecond
	return min(max(d, broadcast.MinIntervalMinutes*time.Minute), broadcast.MaxIntervalMinutes*time.Minute)
}

func restoreHistory(records []HistoryRecord) map[string][]content.RecentUse {
	out := make(map[string][]content.RecentUse, len(records))
	for _, rec := range records {
		for _, u := range rec.UsedItems {
			out[rec.GuildID] = append(out[rec.GuildID], content.RecentUse{
				ItemID: u.ID,
				UsedAt: time.UnixMilli(u.Timestamp),
			})
		}
	}
	return out
}

// Clear deletes the saved snapshot and its backup.
func (s *Store) Clear(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	slog.Info("saved state cleared")
	return nil
}

// RequestSave asks the Run loop for a save without blocking. Requests made
// while one is pending are merged.
func (s *Store) RequestSave() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Run saves on every interval and on every request until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Save(ctx)
		case <-s.requests:
			_ = s.Save(ctx)
		}
	}
}

func (s *Store) Close() error {
	return s.backend.Close()
}
