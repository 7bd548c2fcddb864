package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/azkar-bot/internal/discord"
)

// Discord JSON error codes that mean a channel or guild is gone or closed to
// the bot.
const (
	errCodeUnknownChannel     = 10003
	errCodeUnknownGuild       = 10004
	errCodeMissingAccess      = 50001
	errCodeMissingPermissions = 50013
)

const opusSendTimeout = 5 * time.Second

var _ discordpkg.Client = (*Client)(nil)

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
	}
}

// Connect opens the gateway session. Handlers registered before Connect see
// every event from the first READY on.
func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	if err := c.ensureSession(); err != nil {
		return err
	}
	if err := c.session.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) ensureSession() error {
	if c.session != nil {
		return nil
	}
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates)
	s.State.TrackVoice = true
	s.State.TrackChannels = true
	c.session = s
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) SendEmbed(channelID string, embed discordpkg.Embed) error {
	_, err := c.session.ChannelMessageSendEmbed(channelID, toMessageEmbed(embed))
	if err != nil {
		return classifyRESTError(err)
	}
	return nil
}

func toMessageEmbed(e discordpkg.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return out
}

// classifyRESTError wraps errors that will not go away on retry with
// ErrPermanentDelivery.
func classifyRESTError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case errCodeUnknownChannel, errCodeUnknownGuild, errCodeMissingAccess, errCodeMissingPermissions:
			return fmt.Errorf("%w: %w", discordpkg.ErrPermanentDelivery, err)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return fmt.Errorf("%w: %w", discordpkg.ErrPermanentDelivery, err)
		}
	}
	return err
}

func (c *Client) ChannelExists(guildID, channelID string) bool {
	if c.session.State != nil {
		ch, err := c.session.State.Channel(channelID)
		if err == nil && ch != nil {
			return ch.GuildID == "" || ch.GuildID == guildID
		}
	}

	ch, err := c.session.Channel(channelID)
	if err != nil {
		if errors.Is(classifyRESTError(err), discordpkg.ErrPermanentDelivery) {
			return false
		}
		slog.Warn("channel lookup failed, assuming it still exists", "guild_id", guildID, "channel_id", channelID, "error", err)
		return true
	}
	return ch.GuildID == "" || ch.GuildID == guildID
}

func (c *Client) GuildExists(guildID string) bool {
	if c.session.State != nil {
		if g, err := c.session.State.Guild(guildID); err == nil && g != nil {
			return !g.Unavailable
		}
	}

	_, err := c.session.Guild(guildID)
	if err != nil {
		if errors.Is(classifyRESTError(err), discordpkg.ErrPermanentDelivery) {
			return false
		}
		slog.Warn("guild lookup failed, assuming it still exists", "guild_id", guildID, "error", err)
		return true
	}
	return true
}

func (c *Client) BotVoiceChannelID(guildID string) string {
	if c.session == nil || c.session.State == nil || c.botUserID == "" {
		return ""
	}
	vs, err := c.session.State.VoiceState(guildID, c.botUserID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func (c *Client) JoinVoiceChannel(guildID, channelID string) (discordpkg.VoiceConnection, error) {
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return &voiceConnectionImpl{vc: vc}, nil
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	_ = c.ensureSession()
	c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs == nil || vs.VoiceState == nil {
			return
		}
		beforeChannelID := ""
		if vs.BeforeUpdate != nil {
			beforeChannelID = vs.BeforeUpdate.ChannelID
		}
		afterChannelID := vs.ChannelID
		if beforeChannelID == afterChannelID && beforeChannelID != "" {
			return
		}
		if vs.GuildID == "" || vs.UserID == "" {
			return
		}
		handler(discordpkg.VoiceStateEvent{
			GuildID:         vs.GuildID,
			UserID:          vs.UserID,
			UserIsBot:       vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot,
			BeforeChannelID: beforeChannelID,
			AfterChannelID:  afterChannelID,
		})
	})
}

func (c *Client) RegisterGuildDeleteHandler(handler func(guildID string)) {
	_ = c.ensureSession()
	c.session.AddHandler(func(s *discordgo.Session, gd *discordgo.GuildDelete) {
		// Unavailable guilds are outages, not removals.
		if gd == nil || gd.Guild == nil || gd.Unavailable {
			return
		}
		handler(gd.ID)
	})
}

func (c *Client) RegisterSlashCommandHandler(handler func(discordpkg.SlashCommandEvent)) {
	_ = c.ensureSession()
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		data := ic.ApplicationCommandData()
		if data.Name == "" {
			return
		}
		userID := ""
		if ic.Member != nil && ic.Member.User != nil {
			userID = ic.Member.User.ID
		}
		if userID == "" && ic.User != nil {
			userID = ic.User.ID
		}
		if userID == "" {
			return
		}
		slog.Info("slash command interaction received", "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "command", data.Name, "user_id", userID)

		event := discordpkg.SlashCommandEvent{
			GuildID:       ic.GuildID,
			ChannelID:     ic.ChannelID,
			CommandName:   data.Name,
			UserID:        userID,
			IntOptions:    make(map[string]int64),
			StringOptions: make(map[string]string),
			RespondEphemeral: func(content string) error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: content,
						Flags:   discordgo.MessageFlagsEphemeral,
					},
				})
			},
		}
		for _, opt := range data.Options {
			switch opt.Type {
			case discordgo.ApplicationCommandOptionInteger:
				event.IntOptions[opt.Name] = opt.IntValue()
			case discordgo.ApplicationCommandOptionString:
				event.StringOptions[opt.Name] = opt.StringValue()
			}
		}
		handler(event)
	})
}

// UpsertSlashCommands replaces the command set of guildID, or the global set
// when guildID is empty.
func (c *Client) UpsertSlashCommands(guildID string, defs []discordpkg.SlashCommandDefinition) error {
	appID := c.applicationID()
	if appID == "" {
		return fmt.Errorf("discord application id is not available")
	}
	cmds := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		cmds = append(cmds, toApplicationCommand(def))
	}
	_, err := c.session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	return err
}

func toApplicationCommand(def discordpkg.SlashCommandDefinition) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
	}
	if def.AdminOnly {
		perm := int64(discordgo.PermissionAdministrator)
		cmd.DefaultMemberPermissions = &perm
	}
	for _, o := range def.Options {
		opt := &discordgo.ApplicationCommandOption{
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		}
		switch o.Type {
		case discordpkg.CommandOptionInteger:
			opt.Type = discordgo.ApplicationCommandOptionInteger
			if o.MinValue != 0 || o.MaxValue != 0 {
				minValue := float64(o.MinValue)
				opt.MinValue = &minValue
				opt.MaxValue = float64(o.MaxValue)
			}
		default:
			opt.Type = discordgo.ApplicationCommandOptionString
		}
		for _, ch := range o.Choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: ch.Name, Value: ch.Value})
		}
		cmd.Options = append(cmd.Options, opt)
	}
	return cmd
}

func (c *Client) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	if c.session == nil {
		return "", nil
	}
	if c.session.State != nil {
		vs, err := c.session.State.VoiceState(guildID, userID)
		if err == nil && vs != nil {
			return vs.ChannelID, nil
		}
	}

	// Cache may be cold right after bot startup; ask Discord API directly as fallback.
	vs, err := c.session.UserVoiceState(guildID, userID)
	if err != nil {
		if isRESTNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if vs == nil {
		return "", nil
	}
	return vs.ChannelID, nil
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

func (c *Client) applicationID() string {
	if c.session == nil || c.session.State == nil {
		return ""
	}
	if c.session.State.Application != nil && c.session.State.Application.ID != "" {
		return c.session.State.Application.ID
	}
	if c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

func (c *Client) Run() error {
	select {}
}

type voiceConnectionImpl struct {
	vc *discordgo.VoiceConnection
}

func (v *voiceConnectionImpl) ChannelID() string {
	v.vc.RLock()
	defer v.vc.RUnlock()
	return v.vc.ChannelID
}

func (v *voiceConnectionImpl) Ready() bool {
	v.vc.RLock()
	defer v.vc.RUnlock()
	return v.vc.Ready
}

func (v *voiceConnectionImpl) Speaking(speaking bool) error {
	return v.vc.Speaking(speaking)
}

func (v *voiceConnectionImpl) SendOpus(ctx context.Context, frame []byte) error {
	if !v.Ready() || v.vc.OpusSend == nil {
		return discordpkg.ErrVoiceNotReady
	}
	timer := time.NewTimer(opusSendTimeout)
	defer timer.Stop()
	select {
	case v.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return discordpkg.ErrVoiceNotReady
	}
}

func (v *voiceConnectionImpl) Disconnect() error {
	return v.vc.Disconnect()
}
