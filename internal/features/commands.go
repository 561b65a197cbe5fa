package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	musiccmd "github.com/hxnx/moetune/internal/features/music/commands"
	musiclisteners "github.com/hxnx/moetune/internal/features/music/listeners"
	pingcmd "github.com/hxnx/moetune/internal/features/ping/commands"
	pinglisteners "github.com/hxnx/moetune/internal/features/ping/listeners"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/rs/zerolog/log"
)

var (
	minPosition float64 = 0
	minPage     float64 = 1

	manageGuild int64 = discordgo.PermissionManageServer

	sourceChoices = []*discordgo.ApplicationCommandOptionChoice{
		{Name: "auto", Value: "auto"},
		{Name: "youtube", Value: "youtube"},
		{Name: "soundcloud", Value: "soundcloud"},
	}

	CommandList = []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Show the bot status",
		},
		{
			Name:        "play",
			Description: "Queue a track by link or search and start playing",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Link or search terms",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "source",
					Description: "Where to search",
					Choices:     sourceChoices,
				},
			},
		},
		{
			Name:        "search",
			Description: "Search for tracks and pick one to queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Search terms",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "source",
					Description: "Where to search",
					Choices:     sourceChoices,
				},
			},
		},
		{
			Name:        "queue",
			Description: "Show the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "Page to show",
					MinValue:    &minPage,
				},
			},
		},
		{
			Name:        "remove",
			Description: "Remove a track from the queue, 0 removes everything",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "position",
					Description: "Track number",
					Required:    true,
					MinValue:    &minPosition,
				},
			},
		},
		{
			Name:        "jump",
			Description: "Play a track from the queue next",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "position",
					Description: "Track number",
					Required:    true,
					MinValue:    &minPage,
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current track",
		},
		{
			Name:        "pause",
			Description: "Pause or resume the current track",
		},
		{
			Name:        "stop",
			Description: "Stop playback and keep the queue",
		},
		{
			Name:        "leave",
			Description: "Clear everything and leave the voice channel",
		},
		{
			Name:        "loop",
			Description: "Toggle looping the queue",
		},
		{
			Name:        "shuffle",
			Description: "Shuffle the upcoming tracks",
		},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "percent",
					Description: "0 to 200",
					Required:    true,
					MinValue:    &minPosition,
					MaxValue:    200,
				},
			},
		},
		{
			Name:        "radio",
			Description: "Internet radio",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "play",
					Description: "Stream the radio into your voice channel",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stop",
					Description: "Turn the radio off",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "now",
					Description: "Show what the radio is playing",
				},
			},
		},
		{
			Name:                     "announce",
			Description:              "Choose where player updates are posted",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Text channel, defaults to this one",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
	}
)

type handlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// Router dispatches gateway events to the feature handlers.
type Router struct {
	svc       *shared.Services
	listeners *musiclisteners.Handler
	handlers  map[string]handlerFunc
}

func NewRouter(svc *shared.Services) *Router {
	music := musiccmd.New(svc)

	return &Router{
		svc:       svc,
		listeners: musiclisteners.New(svc),
		handlers: map[string]handlerFunc{
			"ping":     pingcmd.Ping(svc),
			"play":     music.Play,
			"search":   music.Search,
			"queue":    music.Queue,
			"remove":   music.Remove,
			"jump":     music.Jump,
			"skip":     music.Skip,
			"pause":    music.Pause,
			"stop":     music.Stop,
			"leave":    music.Leave,
			"loop":     music.Loop,
			"shuffle":  music.Shuffle,
			"volume":   music.Volume,
			"radio":    music.Radio,
			"announce": music.Announce,
		},
	}
}

func RegisterCommands(s *discordgo.Session, appID string, guildID string) ([]*discordgo.ApplicationCommand, error) {
	scope := "global"
	if guildID != "" {
		scope = fmt.Sprintf("guild:%s", guildID)
	}

	log.Info().Int("count", len(CommandList)).Str("scope", scope).Msg("registering commands")

	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, CommandList)
	if err != nil {
		return nil, fmt.Errorf("cannot bulk overwrite commands: %w", err)
	}
	return cmds, nil
}

func (r *Router) AddHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if HandleSyncMessage(r.svc, s, m) {
			return
		}
		r.listeners.HandleMusicMessage(s, m)
	})

	s.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		r.listeners.HandleVoiceStateUpdate(s, vs)
	})

	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			data := i.ApplicationCommandData()
			handler, ok := r.handlers[data.Name]
			if !ok {
				return
			}
			r.svc.Remember(i.GuildID, i.ChannelID)
			log.Debug().Str("guild_id", i.GuildID).Str("command", data.Name).Msg("command received")
			handler(s, i)
		case discordgo.InteractionMessageComponent:
			if pinglisteners.RoutePingComponent(r.svc, s, i) {
				return
			}
			r.listeners.RouteMusicComponent(s, i)
		}
	})
}
