package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/events"
	queueview "github.com/hxnx/moetune/internal/features/music/queueview"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/rs/zerolog/log"
)

func (h *Handler) Queue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := h.svc.Music.Preload(ctx, i.GuildID); err != nil {
		shared.RespondEphemeral(s, i, userMessage(err))
		return
	}

	page := shared.GetOptionInt(i.ApplicationCommandData().Options, "page")
	components := QueuePage(h.svc, i.GuildID, page, queueview.DefaultPerPage)

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("queue respond failed")
	}
}

// QueuePage renders one page of the guild queue with the current track
// marked.
func QueuePage(svc *shared.Services, guildID string, page, perPage int) []discordgo.MessageComponent {
	current := -1
	if info, err := svc.Music.CurrentTrack(guildID); err == nil {
		current = info.Position
	}
	components, _ := queueview.BuildQueueComponents(svc.Music.MusicQueue(guildID), current, page, perPage)
	return components
}

// Remove deletes one track, or the whole queue for position 0. The outcome
// arrives as a remove event and is echoed back to the caller.
func (h *Handler) Remove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	position := shared.GetOptionInt(i.ApplicationCommandData().Options, "position")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := h.svc.Music.Preload(ctx, i.GuildID); err != nil {
		shared.RespondEphemeral(s, i, userMessage(err))
		return
	}

	guildID := i.GuildID
	result := make(chan string, 1)
	unsubscribe := h.svc.Music.Events().Subscribe(func(e events.Event) {
		if e.Kind != events.KindRemove || e.GuildID != guildID {
			return
		}
		select {
		case result <- e.Message:
		default:
		}
	})
	err := h.svc.Music.RemoveTrack(ctx, guildID, position)
	unsubscribe()

	message := "Done."
	select {
	case message = <-result:
	default:
	}
	if err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Msg("remove: failed to persist queue")
	}
	shared.RespondEphemeral(s, i, message)
}

func (h *Handler) Jump(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	position := shared.GetOptionInt(i.ApplicationCommandData().Options, "position")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := h.svc.Music.Preload(ctx, i.GuildID); err != nil {
		shared.RespondEphemeral(s, i, userMessage(err))
		return
	}
	if err := h.svc.Music.Jump(ctx, i.GuildID, position); err != nil {
		shared.RespondEphemeral(s, i, capitalize(err.Error()))
		return
	}

	if !h.svc.Music.IsPlaying(i.GuildID) {
		if _, err := h.svc.Voice.JoinUser(s, i.GuildID, shared.GetInteractionUserID(i)); err != nil {
			shared.RespondEphemeral(s, i, userMessage(err))
			return
		}
		if err := startMusic(ctx, h.svc, i.GuildID); err != nil {
			shared.RespondEphemeral(s, i, userMessage(err))
			return
		}
	}
	shared.RespondEphemeral(s, i, fmt.Sprintf("Jumping to track %d.", position))
}

func (h *Handler) Shuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := h.svc.Music.Preload(ctx, i.GuildID); err != nil {
		shared.RespondEphemeral(s, i, userMessage(err))
		return
	}
	if err := h.svc.Music.ShuffleQueue(ctx, i.GuildID); err != nil {
		shared.RespondEphemeral(s, i, userMessage(err))
		return
	}
	shared.RespondEphemeral(s, i, "Shuffled the upcoming tracks.")
}
