package state

import "github.com/foxseedlab/azkar-bot/internal/content"

// Snapshot is the persisted form of every live session and the recent-use
// histories. Field names are kept stable across releases.
type Snapshot struct {
	Connections []VoiceRecord     `json:"connections"`
	Azkar       []BroadcastRecord `json:"azkar"`
	Duas        []BroadcastRecord `json:"duas"`
	RecentAzkar []HistoryRecord   `json:"recentAzkar"`
	RecentDuas  []HistoryRecord   `json:"recentDuas"`
	SavedAt     int64             `json:"savedAt,omitempty"`
}

type VoiceRecord struct {
	GuildID           string `json:"guildId"`
	ChannelID         string `json:"channelId"`
	Type              string `json:"type"`
	AudioFile         string `json:"audioFile"`
	RadioName         string `json:"radioName"`
	IsMP3Quran        bool   `json:"isMP3Quran"`
	CurrentSurahIndex int    `json:"currentSurahIndex"`
	Playlist          string `json:"playlist,omitempty"`
}

type BroadcastRecord struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	Interval  bool   `json:"interval"`
	// Duration is the interval in milliseconds.
	Duration int64 `json:"duration"`
	// StartTime is a Unix timestamp in milliseconds.
	StartTime int64 `json:"startTime"`
}

type HistoryRecord struct {
	GuildID   string      `json:"guildId"`
	UsedItems []UsedEntry `json:"usedItems"`
}

type UsedEntry struct {
	ID content.ItemID `json:"id"`
	// Timestamp is a Unix timestamp in milliseconds.
	Timestamp int64 `json:"timestamp"`
}

const voiceTypeQuran = "quran"
