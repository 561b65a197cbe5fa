package listeners

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/ping"
	"github.com/hxnx/moetune/internal/features/shared"
)

func RoutePingComponent(svc *shared.Services, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Type != discordgo.InteractionMessageComponent {
		return false
	}

	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, "ping_") {
		return false
	}

	if customID == ping.RefreshCustomID {
		ping.RespondPing(s, i, svc, discordgo.InteractionResponseUpdateMessage)
	}
	return true
}
