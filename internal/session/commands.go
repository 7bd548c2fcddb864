package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/broadcast"
	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/discord"
	"github.com/foxseedlab/azkar-bot/internal/voice"
)

const (
	commandAzkar     = "اذكار"
	commandStopAzkar = "توقف_الاذكار"
	commandDua       = "دعاء"
	commandStopDua   = "توقف_الدعاء"
	commandPlay      = "تشغيل_قران"
	commandStop      = "توقف"

	optionDuration = "المدة"
	optionStation  = "الإذاعة"

	persistTimeout = 10 * time.Second
)

type station struct {
	key      string
	label    string
	url      string
	playlist bool
}

var stations = []station{
	{key: "cairo", label: "إذاعة القرآن الكريم من القاهرة", url: "https://stream.radiojar.com/8s5u5tpdtwzuv"},
	{key: "saudi", label: "إذاعة القرآن الكريم من السعودية", url: "http://www.quran-radio.org:8002/"},
	{key: "mp3_quran", label: "القرآن الكريم كاملاً - أحمد الحواشي", playlist: true},
}

func findStation(key string) (station, bool) {
	for _, s := range stations {
		if s.key == key {
			return s, true
		}
	}
	return station{}, false
}

// SlashCommandDefinitions lists the commands of every enabled feature.
func (m *Manager) SlashCommandDefinitions() []discord.SlashCommandDefinition {
	var defs []discord.SlashCommandDefinition
	durationOption := discord.CommandOption{
		Type:        discord.CommandOptionInteger,
		Name:        optionDuration,
		Description: optionDescriptionDuration,
		Required:    true,
		MinValue:    broadcast.MinIntervalMinutes,
		MaxValue:    broadcast.MaxIntervalMinutes,
	}
	if m.schedulers[content.KindAzkar] != nil {
		defs = append(defs,
			discord.SlashCommandDefinition{Name: commandAzkar, Description: commandDescriptionAzkar, AdminOnly: true, Options: []discord.CommandOption{durationOption}},
			discord.SlashCommandDefinition{Name: commandStopAzkar, Description: commandDescriptionStopAzkar, AdminOnly: true},
		)
	}
	if m.schedulers[content.KindDua] != nil {
		defs = append(defs,
			discord.SlashCommandDefinition{Name: commandDua, Description: commandDescriptionDua, AdminOnly: true, Options: []discord.CommandOption{durationOption}},
			discord.SlashCommandDefinition{Name: commandStopDua, Description: commandDescriptionStopDua, AdminOnly: true},
		)
	}
	if m.voice != nil {
		choices := make([]discord.CommandChoice, 0, len(stations))
		for _, s := range stations {
			if s.playlist && m.library.Playlist("") == nil {
				continue
			}
			choices = append(choices, discord.CommandChoice{Name: s.label, Value: s.key})
		}
		defs = append(defs,
			discord.SlashCommandDefinition{
				Name:        commandPlay,
				Description: commandDescriptionPlay,
				AdminOnly:   true,
				Options: []discord.CommandOption{{
					Type:        discord.CommandOptionString,
					Name:        optionStation,
					Description: optionDescriptionStation,
					Required:    true,
					Choices:     choices,
				}},
			},
			discord.SlashCommandDefinition{Name: commandStop, Description: commandDescriptionStop, AdminOnly: true},
		)
	}
	return defs
}

func (m *Manager) HandleSlashCommand(event discord.SlashCommandEvent) {
	slog.Info("slash command received", "command", event.CommandName, "guild_id", event.GuildID, "user_id", event.UserID)

	verdict := m.gate.check(event.GuildID, event.UserID)
	if !verdict.allowed {
		format := messageEphemeralCooldownFormat
		if verdict.rateLimited {
			format = messageEphemeralRateLimitedFormat
		}
		m.respond(event, fmt.Sprintf(format, waitSeconds(verdict.wait)))
		return
	}

	reply, err := m.dispatch(event)
	m.respond(event, reply)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if event.CommandName == commandStop {
		if err := m.ClearPersisted(ctx); err != nil {
			slog.Error("failed to clear persisted state", "error", err)
		}
		return
	}
	m.requestSave()
}

func (m *Manager) respond(event discord.SlashCommandEvent, reply string) {
	if event.RespondEphemeral == nil {
		return
	}
	if err := event.RespondEphemeral(reply); err != nil {
		slog.Error("failed to respond to slash command", "command", event.CommandName, "error", err)
	}
}

func (m *Manager) dispatch(event discord.SlashCommandEvent) (string, error) {
	switch event.CommandName {
	case commandAzkar:
		return m.handleStartBroadcast(event, content.KindAzkar)
	case commandDua:
		return m.handleStartBroadcast(event, content.KindDua)
	case commandStopAzkar:
		return m.handleStopBroadcast(event, content.KindAzkar)
	case commandStopDua:
		return m.handleStopBroadcast(event, content.KindDua)
	case commandPlay:
		return m.handlePlay(event)
	case commandStop:
		return m.handleStopVoice(event)
	default:
		return messageEphemeralUnknownCommand, fmt.Errorf("unknown command %q", event.CommandName)
	}
}

func (m *Manager) handleStartBroadcast(event discord.SlashCommandEvent, kind content.Kind) (string, error) {
	minutes := int(event.IntOptions[optionDuration])
	err := m.StartBroadcast(event.GuildID, event.ChannelID, kind, minutes)
	switch {
	case err == nil:
		return broadcastStartedMessage(kind, minutes), nil
	case errors.Is(err, broadcast.ErrInvalidDuration):
		return messageEphemeralInvalidDuration, err
	case errors.Is(err, broadcast.ErrAlreadyActive):
		if kind == content.KindDua {
			return messageEphemeralDuaActive, err
		}
		return messageEphemeralAzkarActive, err
	case errors.Is(err, ErrFeatureDisabled):
		return messageEphemeralFeatureDisabled, err
	default:
		slog.Error("failed to start broadcast", "kind", kind, "guild_id", event.GuildID, "error", err)
		return messageEphemeralStartFailed, err
	}
}

func (m *Manager) handleStopBroadcast(event discord.SlashCommandEvent, kind content.Kind) (string, error) {
	err := m.StopBroadcast(event.GuildID, kind)
	switch {
	case err == nil:
		if kind == content.KindDua {
			return messageEphemeralDuaStopped, nil
		}
		return messageEphemeralAzkarStopped, nil
	case errors.Is(err, broadcast.ErrNotActive):
		if kind == content.KindDua {
			return messageEphemeralDuaNotActive, err
		}
		return messageEphemeralAzkarNotActive, err
	case errors.Is(err, ErrFeatureDisabled):
		return messageEphemeralFeatureDisabled, err
	default:
		return messageEphemeralStopFailed, err
	}
}

func (m *Manager) handlePlay(event discord.SlashCommandEvent) (string, error) {
	if m.voice == nil {
		return messageEphemeralFeatureDisabled, ErrFeatureDisabled
	}
	st, ok := findStation(event.StringOptions[optionStation])
	if !ok {
		return messageEphemeralUnknownStation, fmt.Errorf("unknown station %q", event.StringOptions[optionStation])
	}
	channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
	if err != nil {
		slog.Error("failed to look up user voice channel", "guild_id", event.GuildID, "user_id", event.UserID, "error", err)
		return messageEphemeralVoiceLookup, err
	}
	if channelID == "" {
		return messageEphemeralJoinVoiceFirst, errors.New("user is not in a voice channel")
	}

	if st.playlist {
		err = m.StartVoicePlaylist(event.GuildID, channelID, "", st.label)
	} else {
		err = m.StartVoiceStream(event.GuildID, channelID, st.url, st.label)
	}
	switch {
	case err == nil:
		return voiceStartedMessage(st.label, st.playlist), nil
	case errors.Is(err, voice.ErrChannelUnavailable):
		return messageEphemeralChannelGone, err
	case errors.Is(err, voice.ErrUnknownPlaylist), errors.Is(err, voice.ErrEmptyPlaylist):
		return messageEphemeralDataUnavailable, err
	default:
		slog.Error("failed to start voice session", "guild_id", event.GuildID, "station", st.key, "error", err)
		return messageEphemeralPlaybackFailed, err
	}
}

func (m *Manager) handleStopVoice(event discord.SlashCommandEvent) (string, error) {
	err := m.StopVoice(event.GuildID)
	switch {
	case err == nil:
		return messageEphemeralVoiceStopped, nil
	case errors.Is(err, voice.ErrNotActive):
		return messageEphemeralVoiceNotActive, err
	default:
		return messageEphemeralStopFailed, err
	}
}
