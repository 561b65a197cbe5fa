package voice

import (
	"github.com/bwmarrin/discordgo"
)

// Connection is the outbound side of a guild voice connection.
type Connection interface {
	GuildID() string
	ChannelID() string
	Speaking(speaking bool) error
	Frames() chan<- []byte
	Disconnect() error
}

type discordConnection struct {
	vc *discordgo.VoiceConnection
}

func NewDiscordConnection(vc *discordgo.VoiceConnection) Connection {
	return &discordConnection{vc: vc}
}

func (c *discordConnection) GuildID() string {
	return c.vc.GuildID
}

func (c *discordConnection) ChannelID() string {
	return c.vc.ChannelID
}

func (c *discordConnection) Speaking(speaking bool) error {
	if c.vc == nil || !c.vc.Ready {
		return nil
	}
	return c.vc.Speaking(speaking)
}

func (c *discordConnection) Frames() chan<- []byte {
	return c.vc.OpusSend
}

func (c *discordConnection) Disconnect() error {
	return c.vc.Disconnect()
}
