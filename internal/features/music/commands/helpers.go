package commands

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
	"github.com/hxnx/moetune/internal/voice"
	"github.com/rs/zerolog/log"
)

const (
	resolveTimeout = 60 * time.Second
	commandTimeout = 5 * time.Second
)

// Handler answers the music and radio slash commands.
type Handler struct {
	svc *shared.Services
}

func New(svc *shared.Services) *Handler {
	return &Handler{svc: svc}
}

func guildOnly(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "This command only works in a server.")
		return false
	}
	return true
}

// EnqueueAndPlay joins the caller's voice channel, queues track and starts
// playback when the guild is idle. It returns the 1-based queue position of
// the track and the queue length.
func EnqueueAndPlay(ctx context.Context, svc *shared.Services, s *discordgo.Session, guildID, userID string, track music.Track) (int, int, error) {
	if _, err := svc.Voice.JoinUser(s, guildID, userID); err != nil {
		return 0, 0, err
	}
	if _, err := svc.Music.Preload(ctx, guildID); err != nil {
		return 0, 0, err
	}
	if err := svc.Music.LoadTrack(ctx, guildID, track, userID); err != nil {
		return 0, 0, err
	}

	total := len(svc.Music.MusicQueue(guildID))
	if err := startMusic(ctx, svc, guildID); err != nil {
		return total, total, err
	}
	return total, total, nil
}

// startMusic hands the voice connection from the radio to the queue.
func startMusic(ctx context.Context, svc *shared.Services, guildID string) error {
	if svc.Radio != nil && svc.Radio.IsStreaming(guildID) {
		svc.Radio.StopStream(guildID)
	}
	return svc.Music.Play(ctx, guildID)
}

// userMessage turns an error into something worth showing in Discord.
func userMessage(err error) string {
	var trackErr *music.TrackError
	switch {
	case errors.Is(err, voice.ErrNoVoiceChannel):
		return "Join a voice channel first."
	case errors.Is(err, voice.ErrVoiceNotConnected):
		return "I am not connected to a voice channel."
	case errors.Is(err, music.ErrQueueFull):
		return "The queue is full."
	case errors.As(err, &trackErr):
		return capitalize(trackErr.Error())
	case errors.Is(err, music.ErrResolveFailed):
		return "I could not find anything for that."
	case errors.Is(err, music.ErrNotPlaying):
		return "Nothing is playing right now."
	case errors.Is(err, music.ErrQueueEmpty):
		return "The queue is empty."
	case errors.Is(err, music.ErrPlaybackUnavailable):
		return "Playback is not available right now."
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long, try again."
	default:
		log.Error().Err(err).Msg("music command failed")
		return "Something went wrong."
	}
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

func trimOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	return strings.TrimSpace(shared.GetOptionString(options, name))
}
