package bot

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/database"
	"github.com/hxnx/moetune/internal/events"
	"github.com/rs/zerolog/log"
)

const notifySettingsTimeout = 2 * time.Second

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type settingsReader interface {
	Settings(ctx context.Context, guildID string) (database.Settings, error)
}

// playerMessages tracks the radio now playing message of every guild.
type playerMessages interface {
	PlayerMessage(guildID string) *discordgo.Message
	SavePlayerMessage(guildID string, msg *discordgo.Message)
}

// Notifier posts player events into the guild's announce channel, falling
// back to the channel the last command came from.
type Notifier struct {
	sender   messageSender
	settings settingsReader
	radio    playerMessages

	mu       sync.Mutex
	channels map[string]string
}

func NewNotifier(sender messageSender, settings settingsReader, radio playerMessages) *Notifier {
	return &Notifier{
		sender:   sender,
		settings: settings,
		radio:    radio,
		channels: make(map[string]string),
	}
}

func (n *Notifier) Remember(guildID, channelID string) {
	n.mu.Lock()
	n.channels[guildID] = channelID
	n.mu.Unlock()
}

func (n *Notifier) Announce(guildID, message string) {
	channelID := n.channel(guildID)
	if channelID == "" || message == "" {
		return
	}
	if _, err := n.sender.ChannelMessageSend(channelID, message); err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to send notice")
	}
}

// HandleMusic reacts to queue player events.
func (n *Notifier) HandleMusic(e events.Event) {
	switch e.Kind {
	case events.KindPlaying:
		n.sendEmbed(e.GuildID, e.Embed)
	case events.KindStream:
		n.Announce(e.GuildID, e.Message)
	case events.KindUpdate:
		log.Debug().Str("guild_id", e.GuildID).Msg("queue updated")
	}
}

// HandleRadio reacts to radio events. The now playing embed is edited in
// place while its message exists.
func (n *Notifier) HandleRadio(e events.Event) {
	switch e.Kind {
	case events.KindStream:
		n.Announce(e.GuildID, e.Message)
	case events.KindStreaming:
		if e.Embed == nil {
			return
		}
		if n.radio != nil {
			if msg := n.radio.PlayerMessage(e.GuildID); msg != nil {
				if _, err := n.sender.ChannelMessageEditEmbed(msg.ChannelID, msg.ID, e.Embed); err == nil {
					return
				}
				log.Debug().Str("guild_id", e.GuildID).Msg("radio message gone, sending a new one")
			}
		}
		msg := n.sendEmbed(e.GuildID, e.Embed)
		if msg != nil && n.radio != nil {
			n.radio.SavePlayerMessage(e.GuildID, msg)
		}
	}
}

func (n *Notifier) sendEmbed(guildID string, embed *discordgo.MessageEmbed) *discordgo.Message {
	channelID := n.channel(guildID)
	if channelID == "" || embed == nil {
		return nil
	}
	msg, err := n.sender.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to send embed")
		return nil
	}
	return msg
}

func (n *Notifier) channel(guildID string) string {
	if n.settings != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifySettingsTimeout)
		settings, err := n.settings.Settings(ctx, guildID)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("guild_id", guildID).Msg("failed to load announce channel")
		} else if id := settings.String(database.SettingAnnounceChannel, ""); id != "" {
			return id
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	channelID := n.channels[guildID]
	if channelID == "" {
		log.Debug().Str("guild_id", guildID).Msg("no channel to notify")
	}
	return channelID
}
