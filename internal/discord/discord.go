package discord

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermanentDelivery marks send failures that will not recover by retrying:
	// the channel is gone or the bot lost access to it.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	ErrVoiceNotReady     = errors.New("voice connection is not ready")
)

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

type CommandOptionType int

const (
	CommandOptionInteger CommandOptionType = iota + 1
	CommandOptionString
)

type CommandChoice struct {
	Name  string
	Value string
}

type CommandOption struct {
	Type        CommandOptionType
	Name        string
	Description string
	Required    bool
	MinValue    int
	MaxValue    int
	Choices     []CommandChoice
}

type SlashCommandDefinition struct {
	Name        string
	Description string
	AdminOnly   bool
	Options     []CommandOption
}

type SlashCommandEvent struct {
	GuildID          string
	ChannelID        string
	CommandName      string
	UserID           string
	IntOptions       map[string]int64
	StringOptions    map[string]string
	RespondEphemeral func(content string) error
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Run() error
	GetBotUserID() (string, error)

	SendEmbed(channelID string, embed Embed) error
	// ChannelExists reports false only when the platform confirms the channel is gone.
	ChannelExists(guildID, channelID string) bool
	GuildExists(guildID string) bool
	GetUserVoiceChannelID(guildID, userID string) (string, error)
	BotVoiceChannelID(guildID string) string
	JoinVoiceChannel(guildID, channelID string) (VoiceConnection, error)

	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterGuildDeleteHandler(handler func(guildID string))
	UpsertSlashCommands(guildID string, defs []SlashCommandDefinition) error
}

type VoiceConnection interface {
	ChannelID() string
	Ready() bool
	Speaking(speaking bool) error
	SendOpus(ctx context.Context, frame []byte) error
	Disconnect() error
}
