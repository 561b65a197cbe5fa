package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/database"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/rs/zerolog/log"
)

func (h *Handler) Skip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}
	if err := h.svc.Music.Skip(i.GuildID); err != nil {
		shared.RespondEphemeral(s, i, "There is nothing to skip.")
		return
	}
	shared.RespondEphemeral(s, i, "Skipped.")
}

func (h *Handler) Pause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}
	paused, err := h.svc.Music.TogglePause(i.GuildID)
	if err != nil {
		shared.RespondEphemeral(s, i, userMessage(err))
		return
	}
	if paused {
		shared.RespondEphemeral(s, i, "Paused.")
		return
	}
	shared.RespondEphemeral(s, i, "Resumed.")
}

// Stop ends music playback and the radio but keeps the queue and the voice
// connection.
func (h *Handler) Stop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	stopped := h.svc.Music.IsPlaying(i.GuildID)
	h.svc.Music.Stop(i.GuildID)
	if h.svc.Radio != nil && h.svc.Radio.StopStream(i.GuildID) {
		stopped = true
	}

	if !stopped {
		shared.RespondEphemeral(s, i, "Nothing is playing right now.")
		return
	}
	shared.RespondEphemeral(s, i, "Stopped playback.")
}

// Leave tears down everything the guild holds: queue, radio, searches and
// the voice connection.
func (h *Handler) Leave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	if h.svc.Voice.Connection(i.GuildID) == nil {
		shared.RespondEphemeral(s, i, "I am not in a voice channel.")
		return
	}
	if err := Teardown(h.svc, i.GuildID); err != nil {
		log.Warn().Err(err).Str("guild_id", i.GuildID).Msg("leave: disconnect failed")
	}
	shared.RespondEphemeral(s, i, "Left the voice channel.")
}

// Teardown ends playback in the guild and disconnects from voice.
func Teardown(svc *shared.Services, guildID string) error {
	svc.Music.Terminate(guildID)
	if svc.Radio != nil {
		svc.Radio.StopStream(guildID)
	}
	if svc.Searches != nil {
		svc.Searches.Purge(guildID)
	}
	return svc.Voice.Disconnect(guildID)
}

func (h *Handler) Loop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}
	state := h.svc.Music.ToggleLoop(i.GuildID)
	shared.RespondEphemeral(s, i, "Queue loop is now "+onOff(state.Loop)+".")
}

// Volume sets the music volume, or the saved radio volume while the radio
// plays. The radio picks the new value up through a forced resync.
func (h *Handler) Volume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !guildOnly(s, i) {
		return
	}

	percent := shared.GetOptionInt(i.ApplicationCommandData().Options, "percent")
	ratio := float64(percent) / 100

	if h.svc.Radio != nil && h.svc.Radio.IsStreaming(i.GuildID) {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		err := h.svc.Settings.SetSettings(ctx, i.GuildID, map[string]string{
			database.SettingDefaultDispatcherVolume: strconv.FormatFloat(ratio, 'f', -1, 64),
			database.SettingForcedStateResync:       strconv.FormatBool(true),
		})
		if err != nil {
			log.Warn().Err(err).Str("guild_id", i.GuildID).Msg("volume: failed to save radio volume")
			shared.RespondEphemeral(s, i, "I could not save the radio volume.")
			return
		}
		if err := h.svc.Radio.Restart(ctx, i.GuildID); err != nil {
			log.Error().Err(err).Str("guild_id", i.GuildID).Msg("volume: radio restart failed")
			shared.RespondEphemeral(s, i, "Saved, but the radio could not be restarted.")
			return
		}
		shared.RespondEphemeral(s, i, fmt.Sprintf("Radio volume set to %d%%.", percent))
		return
	}

	if _, err := h.svc.Music.SetVolume(i.GuildID, ratio); err != nil {
		shared.RespondEphemeral(s, i, capitalize(err.Error()))
		return
	}
	shared.RespondEphemeral(s, i, fmt.Sprintf("Volume set to %d%%. It applies from the next track.", percent))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
