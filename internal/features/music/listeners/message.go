package listeners

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/database"
	musiccmd "github.com/hxnx/moetune/internal/features/music/commands"
	queueview "github.com/hxnx/moetune/internal/features/music/queueview"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
	"github.com/rs/zerolog/log"
)

const (
	requestAutoDeleteDelay = 30 * time.Second
	requestTimeout         = 60 * time.Second
	settingsTimeout        = 2 * time.Second
)

// HandleMusicMessage treats plain messages in the guild's announce channel
// as play requests.
func (h *Handler) HandleMusicMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s == nil || m == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" || strings.HasPrefix(content, "/") || strings.HasPrefix(content, "!") {
		return
	}
	if !h.isAnnounceChannel(m.GuildID, m.ChannelID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	scheduleDelete(s, m.ChannelID, m.ID, requestAutoDeleteDelay)

	track, err := h.svc.Resolver.Resolve(ctx, content, music.TrackSourceUnknown)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", m.GuildID).Str("query", content).Msg("message request: resolve failed")
		h.reply(s, m, notice("Search failed", "I could not find anything for that."))
		return
	}

	position, total, err := musiccmd.EnqueueAndPlay(ctx, h.svc, s, m.GuildID, m.Author.ID, track)
	if err != nil && position == 0 {
		log.Warn().Err(err).Str("guild_id", m.GuildID).Msg("message request: enqueue failed")
		h.reply(s, m, notice("Request failed", "Join a voice channel and try again."))
		return
	}
	h.reply(s, m, queueview.BuildAddedComponents(track, position, total))
}

func (h *Handler) isAnnounceChannel(guildID, channelID string) bool {
	if h.svc.Settings == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	defer cancel()

	settings, err := h.svc.Settings.Settings(ctx, guildID)
	if err != nil {
		log.Debug().Err(err).Str("guild_id", guildID).Msg("failed to load guild settings")
		return false
	}
	announce := settings.String(database.SettingAnnounceChannel, "")
	return announce != "" && announce == channelID
}

func (h *Handler) reply(s *discordgo.Session, m *discordgo.MessageCreate, components []discordgo.MessageComponent) {
	msg, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Components: components,
		Flags:      discordgo.MessageFlagsIsComponentsV2,
		Reference:  &discordgo.MessageReference{MessageID: m.ID, ChannelID: m.ChannelID, GuildID: m.GuildID},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{},
			RepliedUser: false,
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("guild_id", m.GuildID).Msg("message request: reply failed")
		return
	}
	scheduleDelete(s, m.ChannelID, msg.ID, requestAutoDeleteDelay)
}

func notice(title, body string) []discordgo.MessageComponent {
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall
	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &shared.AccentColor,
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: title},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.TextDisplay{Content: body},
			},
		},
	}
}

func scheduleDelete(s *discordgo.Session, channelID, messageID string, delay time.Duration) {
	if s == nil || channelID == "" || messageID == "" {
		return
	}
	time.AfterFunc(delay, func() {
		_ = s.ChannelMessageDelete(channelID, messageID)
	})
}
