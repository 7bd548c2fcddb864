package webhook

import (
	"context"
	"time"
)

const (
	AlertBroadcastStopped = "broadcast_stopped"
	AlertVoiceAbandoned   = "voice_abandoned"
)

type Alert struct {
	Event      string    `json:"event"`
	GuildID    string    `json:"guild_id"`
	ChannelID  string    `json:"channel_id"`
	Kind       string    `json:"kind,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sender interface {
	SendAlert(ctx context.Context, alert Alert) error
}
