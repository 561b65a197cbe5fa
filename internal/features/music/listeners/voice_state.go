package listeners

import (
	"time"

	"github.com/bwmarrin/discordgo"
	musiccmd "github.com/hxnx/moetune/internal/features/music/commands"
	"github.com/hxnx/moetune/internal/voice"
	"github.com/rs/zerolog/log"
)

const (
	noticeAlone = "🔇 Nobody is listening, so I stopped playback."
	noticeLeft  = "👋 Left the voice channel after being alone for a while."
)

// HandleVoiceStateUpdate stops playback once the bot is left alone and, with
// an auto leave timeout, disconnects when nobody comes back in time.
func (h *Handler) HandleVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s == nil || vs == nil || vs.GuildID == "" {
		return
	}

	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	if botID == "" {
		return
	}

	if vs.UserID == botID && vs.ChannelID == "" {
		// kicked or moved out by someone else
		h.cancelLeave(vs.GuildID)
		if h.svc.Voice.Connection(vs.GuildID) != nil {
			if err := musiccmd.Teardown(h.svc, vs.GuildID); err != nil {
				log.Warn().Err(err).Str("guild_id", vs.GuildID).Msg("voice cleanup failed")
			}
		}
		return
	}

	if !h.alone(s, vs.GuildID, botID) {
		h.cancelLeave(vs.GuildID)
		return
	}

	stopped := h.svc.Music.IsPlaying(vs.GuildID)
	h.svc.Music.Stop(vs.GuildID)
	if h.svc.Radio != nil && h.svc.Radio.StopStream(vs.GuildID) {
		stopped = true
	}
	if stopped {
		log.Info().Str("guild_id", vs.GuildID).Msg("stopped playback in an empty channel")
		h.svc.Announce(vs.GuildID, noticeAlone)
	}

	h.scheduleLeave(s, vs.GuildID, botID)
}

// alone reports whether the bot sits in a voice channel without anyone else.
func (h *Handler) alone(s *discordgo.Session, guildID, botID string) bool {
	guild := voice.GuildWithVoiceStates(s, guildID)
	if guild == nil {
		return false
	}

	botChannelID := ""
	for _, state := range guild.VoiceStates {
		if state.UserID == botID && state.ChannelID != "" {
			botChannelID = state.ChannelID
			break
		}
	}
	if botChannelID == "" {
		return false
	}
	return voice.CountChannelMembers(guild.VoiceStates, botChannelID) <= 1
}

func (h *Handler) scheduleLeave(s *discordgo.Session, guildID, botID string) {
	if h.svc.AutoLeave <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.timers[guildID]; ok {
		return
	}

	h.timers[guildID] = time.AfterFunc(h.svc.AutoLeave, func() {
		h.mu.Lock()
		delete(h.timers, guildID)
		h.mu.Unlock()

		if !h.alone(s, guildID, botID) {
			return
		}
		if err := musiccmd.Teardown(h.svc, guildID); err != nil {
			log.Warn().Err(err).Str("guild_id", guildID).Msg("auto leave failed")
			return
		}
		h.svc.Announce(guildID, noticeLeft)
	})
}

func (h *Handler) cancelLeave(guildID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.timers[guildID]; ok {
		t.Stop()
		delete(h.timers, guildID)
	}
}
