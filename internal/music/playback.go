package music

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/events"
	"github.com/hxnx/moetune/internal/voice"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotPlaying          = errors.New("nothing is playing")
	ErrPlaybackUnavailable = errors.New("playback is not configured")
)

const (
	reasonJump = voice.ReasonJump

	stopWait    = 5 * time.Second
	accentColor = 0xC9A0FF
)

// VoicePlayer plays an input on a guild voice connection.
type VoicePlayer interface {
	PlayStream(ctx context.Context, guildID, input string, opts voice.StreamOptions) (*voice.Dispatcher, error)
}

// session is one running playback loop.
type session struct {
	cancel     context.CancelFunc
	done       chan struct{}
	dispatcher *voice.Dispatcher
}

func (p *Player) WithSource(source SourceOpener) *Player {
	p.mu.Lock()
	p.source = source
	p.mu.Unlock()
	return p
}

func (p *Player) WithVoice(voices VoicePlayer) *Player {
	p.mu.Lock()
	p.voices = voices
	p.mu.Unlock()
	return p
}

// Play starts the playback loop of the guild in the background. It is a
// no-op when the loop is already running.
func (p *Player) Play(ctx context.Context, guildID string) error {
	if _, err := p.Preload(ctx, guildID); err != nil {
		return err
	}

	p.mu.Lock()
	if p.source == nil || p.voices == nil {
		p.mu.Unlock()
		return ErrPlaybackUnavailable
	}
	if _, ok := p.sessions[guildID]; ok {
		p.mu.Unlock()
		return nil
	}

	state := p.stateLocked(guildID)
	state.Stop = false
	state.IncrementQueue = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{cancel: cancel, done: make(chan struct{})}
	p.sessions[guildID] = s
	p.mu.Unlock()

	go p.loop(loopCtx, guildID, s)
	return nil
}

func (p *Player) IsPlaying(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[guildID]
	return ok
}

func (p *Player) Skip(guildID string) error {
	if !p.interrupt(guildID, voice.ReasonSkip) {
		return ErrNotPlaying
	}
	return nil
}

func (p *Player) Stop(guildID string) {
	p.Halt(guildID, voice.ReasonStop)
}

// Halt ends the playback loop, destroying the active track with reason, and
// waits briefly for the loop to exit.
func (p *Player) Halt(guildID, reason string) {
	p.mu.Lock()
	p.stateLocked(guildID).Stop = true
	s, ok := p.sessions[guildID]
	p.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	p.interrupt(guildID, reason)

	select {
	case <-s.done:
	case <-time.After(stopWait):
		log.Warn().Str("guild_id", guildID).Msg("playback loop did not stop in time")
	}
}

// TogglePause flips the pause flag of the playing track and reports the new
// value.
func (p *Player) TogglePause(guildID string) (bool, error) {
	d := p.activeDispatcher(guildID)
	if d == nil {
		return false, ErrNotPlaying
	}
	paused := !d.Paused()
	d.SetPaused(paused)
	return paused, nil
}

func (p *Player) activeDispatcher(guildID string) *voice.Dispatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[guildID]; ok {
		return s.dispatcher
	}
	return nil
}

func (p *Player) interrupt(guildID, reason string) bool {
	d := p.activeDispatcher(guildID)
	if d == nil {
		return false
	}
	d.Destroy(reason)
	return true
}

func (p *Player) loop(ctx context.Context, guildID string, s *session) {
	defer func() {
		p.mu.Lock()
		if p.sessions[guildID] == s {
			delete(p.sessions, guildID)
		}
		p.mu.Unlock()
		close(s.done)
	}()

	for {
		if ctx.Err() != nil || p.State(guildID).Stop {
			return
		}

		info, err := p.CurrentTrack(guildID)
		switch {
		case errors.Is(err, ErrQueueEnd):
			if p.restartQueue(ctx, guildID) {
				continue
			}
			p.bus.Emit(events.Event{Kind: events.KindStream, GuildID: guildID, Message: "Queue finished."})
			return
		case errors.Is(err, ErrQueueEmpty):
			p.bus.Emit(events.Event{Kind: events.KindStream, GuildID: guildID, Message: "The queue is empty."})
			return
		case err != nil:
			log.Warn().Err(err).Str("guild_id", guildID).Msg("playback loop stopped")
			return
		}

		reason, err := p.playTrack(ctx, s, guildID, info)
		if err != nil {
			attempts := p.IncrementTimeout(guildID)
			log.Error().Err(err).Str("guild_id", guildID).Str("track", info.Title).Int("attempt", attempts).Msg("track playback failed")
			if attempts < p.opts.MaxAttempts {
				continue
			}

			p.ClearTimeout(guildID)
			p.bus.Emit(events.Event{
				Kind:    events.KindStream,
				GuildID: guildID,
				Message: fmt.Sprintf("Skipping `%s` after %d failed attempts.", info.Title, attempts),
			})
			reason = voice.ReasonSkip
		}

		switch reason {
		case "", voice.ReasonSkip, voice.ReasonJump:
			if err := p.TryToIncrementQueue(ctx, guildID); err != nil {
				log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to advance queue")
			}
		default:
			log.Debug().Str("guild_id", guildID).Str("reason", reason).Msg("playback interrupted")
			return
		}
	}
}

// restartQueue rewinds a finished queue when looping is on, reshuffling it
// first when shuffle is on.
func (p *Player) restartQueue(ctx context.Context, guildID string) bool {
	state := p.State(guildID)
	if !state.Loop || len(p.MusicQueue(guildID)) == 0 {
		return false
	}

	if state.Shuffle {
		if err := p.shuffleAll(ctx, guildID); err != nil {
			log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to reshuffle queue")
		}
	}
	if err := p.ResetQueuePosition(ctx, guildID); err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to rewind queue")
	}
	p.bus.Emit(events.Event{Kind: events.KindUpdate, GuildID: guildID})
	return true
}

// playTrack returns the reason the track ended, empty when it ran out.
func (p *Player) playTrack(ctx context.Context, s *session, guildID string, info TrackInfo) (string, error) {
	p.mu.Lock()
	source, voices := p.source, p.voices
	p.mu.Unlock()

	stream, err := source.OpenStream(ctx, info.URL)
	if err != nil {
		if ctx.Err() != nil {
			return voice.ReasonStop, nil
		}
		return "", fmt.Errorf("failed to open source: %w", err)
	}

	path, err := p.ConvertToAudio(ctx, guildID, stream)
	_ = stream.Close()
	if ctx.Err() != nil {
		return voice.ReasonStop, nil
	}
	if err != nil {
		return "", err
	}

	state := p.State(guildID)
	d, err := voices.PlayStream(ctx, guildID, path, voice.StreamOptions{
		Volume: state.Volume,
		Passes: state.Passes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to play stream: %w", err)
	}

	p.mu.Lock()
	s.dispatcher = d
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		s.dispatcher = nil
		p.mu.Unlock()
	}()

	// a halt may have landed while the stream was starting
	if ctx.Err() != nil {
		d.Destroy(voice.ReasonStop)
		<-d.Done()
		return voice.ReasonStop, nil
	}

	for {
		select {
		case <-ctx.Done():
			d.Destroy(voice.ReasonStop)
			<-d.Done()
			return voice.ReasonStop, nil
		case ev, ok := <-d.Events():
			if !ok {
				return "", nil
			}
			switch ev.Type {
			case voice.EventStart:
				p.ClearTimeout(guildID)
				p.bus.Emit(events.Event{Kind: events.KindPlaying, GuildID: guildID, Embed: NowPlayingEmbed(info)})
			case voice.EventEnd:
				return ev.Reason, nil
			case voice.EventError:
				return "", ev.Err
			}
		}
	}
}

func NowPlayingEmbed(info TrackInfo) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Now playing",
		Description: fmt.Sprintf("[%s](%s)", info.Title, info.URL),
		Color:       accentColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Track %d of %d", info.Position+1, info.Total),
		},
	}
	if info.Image != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: info.Image}
	}
	if info.AddedBy != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Added by",
			Value:  "<@" + info.AddedBy + ">",
			Inline: true,
		})
	}
	if info.Duration > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Duration",
			Value:  FormatDuration(info.Duration),
			Inline: true,
		})
	}
	return embed
}

func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
