package ping

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/rs/zerolog/log"
)

const RefreshCustomID = "ping_refresh"

var startedAt = time.Now()

// Stats is the bot status shown by /ping.
type Stats struct {
	APILatency     time.Duration
	GatewayLatency time.Duration
	Guilds         int
	Shards         int
	Uptime         time.Duration
	MemoryMB       float64
	VoiceSessions  int
	RadioStreams   int
	Song           string
}

func Collect(s *discordgo.Session, svc *shared.Services) Stats {
	latency := s.HeartbeatLatency().Round(time.Millisecond)

	stats := Stats{
		APILatency:     latency,
		GatewayLatency: latency,
		Shards:         max(1, s.ShardCount),
		Uptime:         time.Since(startedAt).Round(time.Second),
	}
	if !s.LastHeartbeatAck.IsZero() {
		stats.GatewayLatency = time.Since(s.LastHeartbeatAck).Round(time.Millisecond)
	}
	if s.State != nil {
		stats.Guilds = len(s.State.Guilds)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.MemoryMB = float64(mem.Alloc) / 1024.0 / 1024.0

	if svc != nil {
		if svc.Voice != nil {
			stats.VoiceSessions = svc.Voice.Connections()
		}
		if svc.Radio != nil {
			stats.RadioStreams = svc.Radio.Streams()
			if song, ok := svc.Radio.Song(); ok {
				stats.Song = song.Artist + " - " + song.Title
			}
		}
	}
	return stats
}

func BuildPingComponentsV2(stats Stats, now time.Time) []discordgo.MessageComponent {
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	song := "nothing announced yet"
	if stats.Song != "" {
		song = shared.EscapeMarkdown(stats.Song)
	}

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &shared.AccentColor,
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: "**Pong!**"},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.Section{
					Components: []discordgo.MessageComponent{
						discordgo.TextDisplay{Content: fmt.Sprintf("**API latency:** %s\n**Gateway latency:** %s", stats.APILatency, stats.GatewayLatency)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**Servers:** %d • **Shards:** %d", stats.Guilds, stats.Shards)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**Uptime:** %s • **Memory:** %.2f MB", stats.Uptime, stats.MemoryMB)},
					},
					Accessory: discordgo.Button{
						Style:    discordgo.PrimaryButton,
						Label:    "Refresh",
						CustomID: RefreshCustomID,
					},
				},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.TextDisplay{Content: fmt.Sprintf("**Voice sessions:** %d • **Radio streams:** %d", stats.VoiceSessions, stats.RadioStreams)},
				discordgo.TextDisplay{Content: "**On air:** " + song},
				discordgo.TextDisplay{Content: fmt.Sprintf("Updated <t:%d:R>", now.Unix())},
			},
		},
	}
}

func RespondPing(s *discordgo.Session, i *discordgo.InteractionCreate, svc *shared.Services, respType discordgo.InteractionResponseType) {
	if s == nil || i == nil {
		return
	}

	components := BuildPingComponentsV2(Collect(s, svc), time.Now())

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: respType,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to respond to ping")
	}
}
