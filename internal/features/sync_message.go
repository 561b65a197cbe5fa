package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/rs/zerolog/log"
)

const syncCommand = "!sync"

// HandleSyncMessage registers the slash commands in the current guild when
// the bot owner types !sync.
func HandleSyncMessage(svc *shared.Services, s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if s == nil || m == nil || m.Author == nil {
		return false
	}
	if m.Author.Bot {
		return false
	}
	if m.GuildID == "" {
		return false
	}

	if strings.TrimSpace(m.Content) != syncCommand {
		return false
	}

	if svc == nil || svc.OwnerID == "" || m.Author.ID != svc.OwnerID {
		_, _ = s.ChannelMessageSend(m.ChannelID, "Only the bot owner can use this command.")
		return true
	}

	appID := svc.AppID
	if appID == "" && s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		_, _ = s.ChannelMessageSend(m.ChannelID, "Command sync failed: application ID is unknown.")
		return true
	}

	if _, err := RegisterCommands(s, appID, m.GuildID); err != nil {
		log.Error().Err(err).Str("guild_id", m.GuildID).Msg("command sync failed")
		_, _ = s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Command sync failed: %v", err))
		return true
	}

	log.Info().Str("guild_id", m.GuildID).Msg("commands synced")
	_, _ = s.ChannelMessageSend(m.ChannelID, "Slash commands synced to this server.")
	return true
}
