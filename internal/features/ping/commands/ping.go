package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/ping"
	"github.com/hxnx/moetune/internal/features/shared"
)

func Ping(svc *shared.Services) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}

		ping.RespondPing(s, i, svc, discordgo.InteractionResponseChannelMessageWithSource)
	}
}
