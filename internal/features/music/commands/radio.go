package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/database"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/rs/zerolog/log"
)

func (h *Handler) Radio(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}
	if h.svc.Radio == nil {
		shared.RespondEphemeral(s, i, "The radio is not available.")
		return
	}

	sub := shared.GetSubcommand(i.ApplicationCommandData())
	if sub == nil {
		shared.RespondEphemeral(s, i, "Pick a radio action.")
		return
	}

	switch sub.Name {
	case "play":
		h.radioPlay(s, i)
	case "stop":
		if !h.svc.Radio.StopStream(i.GuildID) {
			shared.RespondEphemeral(s, i, "The radio is not playing.")
			return
		}
		shared.RespondEphemeral(s, i, "Turned the radio off.")
	case "now":
		embed := h.svc.Radio.Info(i.GuildID)
		if embed == nil {
			shared.RespondEphemeral(s, i, "The radio is not playing.")
			return
		}
		shared.RespondEmbed(s, i, embed)
	default:
		shared.RespondEphemeral(s, i, "Unknown radio action.")
	}
}

func (h *Handler) radioPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := shared.DeferEphemeral(s, i); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("radio: defer failed")
		return
	}

	if _, err := h.svc.Voice.JoinUser(s, i.GuildID, shared.GetInteractionUserID(i)); err != nil {
		shared.FollowupEphemeral(s, i, userMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// Stream halts queued music itself; the now playing embed arrives as a
	// streaming event.
	if err := h.svc.Radio.Stream(ctx, i.GuildID); err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("radio: stream failed")
		shared.FollowupEphemeral(s, i, "I could not start the radio.")
		return
	}
	shared.FollowupEphemeral(s, i, "Tuning in.")
}

// Announce sets the channel that receives player notifications.
func (h *Handler) Announce(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	channelID := shared.GetOptionChannelID(i.ApplicationCommandData().Options, "channel")
	if channelID == "" {
		channelID = i.ChannelID
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.svc.Settings.SetSetting(ctx, i.GuildID, database.SettingAnnounceChannel, channelID); err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Msg("announce: failed to save channel")
		shared.RespondEphemeral(s, i, "I could not save the announce channel.")
		return
	}
	shared.RespondEphemeral(s, i, fmt.Sprintf("Player updates will be posted in <#%s>.", channelID))
}
