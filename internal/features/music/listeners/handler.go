package listeners

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	musiccmd "github.com/hxnx/moetune/internal/features/music/commands"
	queueview "github.com/hxnx/moetune/internal/features/music/queueview"
	search "github.com/hxnx/moetune/internal/features/music/search"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
	"github.com/hxnx/moetune/internal/voice"
	"github.com/rs/zerolog/log"
)

const selectTimeout = 60 * time.Second

func (h *Handler) HandleMusicComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if s == nil || i == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}

	data := i.MessageComponentData()
	switch {
	case strings.HasPrefix(data.CustomID, queueview.CustomIDPrefix):
		h.handleQueuePagination(s, i, data.CustomID)
	case strings.HasPrefix(data.CustomID, search.CustomIDPrefix):
		h.handleSearchSelect(s, i, data.Values)
	}
}

func (h *Handler) handleSearchSelect(s *discordgo.Session, i *discordgo.InteractionCreate, values []string) {
	userID := shared.GetInteractionUserID(i)
	if userID == "" || i.GuildID == "" {
		shared.RespondEphemeral(s, i, "I could not tell who picked that.")
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("music search: defer failed")
		return
	}

	index, ok := search.ParseSelection(values)
	if !ok {
		shared.FollowupEphemeral(s, i, "That selection is not valid.")
		return
	}

	track, err := h.svc.Searches.Pick(i.GuildID, userID, index)
	if err != nil {
		if errors.Is(err, music.ErrSearchExpired) {
			shared.FollowupEphemeral(s, i, "That search expired, run it again.")
			return
		}
		shared.FollowupEphemeral(s, i, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), selectTimeout)
	defer cancel()

	position, total, err := musiccmd.EnqueueAndPlay(ctx, h.svc, s, i.GuildID, userID, track)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Msg("music search: enqueue failed")
		if errors.Is(err, voice.ErrNoVoiceChannel) {
			shared.FollowupEphemeral(s, i, "Join a voice channel first.")
			return
		}
		if position == 0 {
			shared.FollowupEphemeral(s, i, "I could not queue that track.")
			return
		}
	}

	components := queueview.BuildAddedComponents(track, position, total)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Components: &components,
	}); err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Msg("music search: result update failed")
	}
}

func (h *Handler) handleQueuePagination(s *discordgo.Session, i *discordgo.InteractionCreate, customID string) {
	page, perPage, ok := queueview.ParseQueuePageCustomID(customID)
	if !ok {
		shared.RespondEphemeral(s, i, "That page does not exist.")
		return
	}
	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "This only works in a server.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.svc.Music.Preload(ctx, i.GuildID); err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Msg("queue page: preload failed")
		shared.RespondEphemeral(s, i, "I could not load the queue.")
		return
	}

	components := musiccmd.QueuePage(h.svc, i.GuildID, page, perPage)
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2,
		},
	}); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("queue page respond failed")
	}
}
