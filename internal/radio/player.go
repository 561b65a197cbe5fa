package radio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/database"
	"github.com/hxnx/moetune/internal/events"
	"github.com/hxnx/moetune/internal/voice"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var ErrVoiceNil = errors.New("voice streamer is not configured")

const (
	MessageAlreadyPlaying = "I am already playing radio."
	MessageNoListeners    = "No users in voice channel. Turning off radio for now."

	defaultVolume  = 0.5
	defaultPasses  = 2
	settingTimeout = 3 * time.Second
)

type Config struct {
	Stream         string
	Image          string
	URL            string
	UpdateInterval time.Duration
	DefaultVolume  float64
	DefaultPasses  int
}

// SongSource announces what the station is playing.
type SongSource interface {
	Info() (SongInfo, bool)
	Subscribe(fn func(SongInfo)) func()
}

type VoiceStreamer interface {
	PlayStream(ctx context.Context, guildID, input string, opts voice.StreamOptions) (*voice.Dispatcher, error)
	Listeners(guildID string) int
	Disconnect(guildID string) error
}

type SettingStore interface {
	Settings(ctx context.Context, guildID string) (database.Settings, error)
	SetSetting(ctx context.Context, guildID, key, value string) error
}

// MusicHalter ends queue playback before the radio takes over the connection.
type MusicHalter interface {
	Halt(guildID, reason string)
}

type MessageDeleter interface {
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type streamState struct {
	Volume       float64
	Passes       int
	ForcedResync bool
	Listening    bool

	dispatcher *voice.Dispatcher
}

// Player streams the radio station into guild voice channels.
type Player struct {
	cfg      Config
	socket   SongSource
	voices   VoiceStreamer
	settings SettingStore
	music    MusicHalter
	deleter  MessageDeleter
	bus      *events.Bus

	mu       sync.Mutex
	states   map[string]*streamState
	messages map[string]*discordgo.Message
	limiters map[string]*rate.Limiter

	unsubscribe func()
}

func NewPlayer(cfg Config, socket SongSource, voices VoiceStreamer, settings SettingStore, bus *events.Bus) *Player {
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = defaultVolume
	}
	if cfg.DefaultPasses <= 0 {
		cfg.DefaultPasses = defaultPasses
	}
	if bus == nil {
		bus = events.NewBus()
	}

	p := &Player{
		cfg:      cfg,
		socket:   socket,
		voices:   voices,
		settings: settings,
		bus:      bus,
		states:   make(map[string]*streamState),
		messages: make(map[string]*discordgo.Message),
		limiters: make(map[string]*rate.Limiter),
	}
	if socket != nil {
		p.unsubscribe = socket.Subscribe(p.onUpdate)
	}
	return p
}

func (p *Player) WithMusic(music MusicHalter) *Player {
	p.music = music
	return p
}

func (p *Player) WithDeleter(deleter MessageDeleter) *Player {
	p.deleter = deleter
	return p
}

func (p *Player) Events() *events.Bus {
	return p.bus
}

func (p *Player) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// Stream starts the station in the guild's voice connection. A guild that is
// already streaming gets an "already playing" stream event instead.
func (p *Player) Stream(ctx context.Context, guildID string) error {
	if p.voices == nil {
		return ErrVoiceNil
	}

	p.mu.Lock()
	if _, ok := p.states[guildID]; ok {
		p.mu.Unlock()
		p.bus.Emit(events.Event{Kind: events.KindStream, GuildID: guildID, Message: MessageAlreadyPlaying})
		return nil
	}
	state := &streamState{}
	p.states[guildID] = state
	p.mu.Unlock()

	if p.music != nil {
		p.music.Halt(guildID, voice.ReasonRadio)
	}

	p.preload(ctx, guildID, state)

	d, err := p.voices.PlayStream(ctx, guildID, p.cfg.Stream, voice.StreamOptions{
		Volume: state.Volume,
		Passes: state.Passes,
	})
	if err != nil {
		p.clearState(guildID, nil)
		return fmt.Errorf("failed to start radio stream: %w", err)
	}

	p.mu.Lock()
	state.dispatcher = d
	p.mu.Unlock()

	go p.watch(guildID, d)
	return nil
}

// preload fills state from the guild settings. A set forced resync flag is
// honoured once and cleared again.
func (p *Player) preload(ctx context.Context, guildID string, state *streamState) {
	settings := database.Settings{}
	if p.settings != nil {
		sctx, cancel := context.WithTimeout(ctx, settingTimeout)
		loaded, err := p.settings.Settings(sctx, guildID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to load radio settings, using defaults")
		} else {
			settings = loaded
		}
	}

	forced := settings.Bool(database.SettingForcedStateResync, false)

	p.mu.Lock()
	state.Volume = settings.Float(database.SettingDefaultDispatcherVolume, p.cfg.DefaultVolume)
	state.Passes = settings.Int(database.SettingQualityPasses, p.cfg.DefaultPasses)
	state.ForcedResync = false
	state.Listening = true
	p.mu.Unlock()

	if forced && p.settings != nil {
		sctx, cancel := context.WithTimeout(ctx, settingTimeout)
		defer cancel()
		if err := p.settings.SetSetting(sctx, guildID, database.SettingForcedStateResync, strconv.FormatBool(false)); err != nil {
			log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to clear forced resync")
		}
	}
}

func (p *Player) watch(guildID string, d *voice.Dispatcher) {
	for ev := range d.Events() {
		switch ev.Type {
		case voice.EventStart:
			p.mu.Lock()
			if state, ok := p.states[guildID]; ok && state.dispatcher == d {
				state.Listening = true
			}
			p.mu.Unlock()
			log.Info().Str("guild_id", guildID).Msg("radio stream started")
			p.bus.Emit(events.Event{Kind: events.KindStreaming, GuildID: guildID, Embed: p.Info(guildID)})
		case voice.EventEnd:
			log.Info().Str("guild_id", guildID).Str("reason", ev.Reason).Msg("radio stream ended")
			if p.clearState(guildID, d) {
				p.deletePlaybackMessage(guildID)
			}
		case voice.EventError:
			log.Error().Err(ev.Err).Str("guild_id", guildID).Msg("radio stream failed")
			p.clearState(guildID, d)
		}
	}
}

// clearState drops the guild state if it still belongs to d and reports
// whether it did.
func (p *Player) clearState(guildID string, d *voice.Dispatcher) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[guildID]
	if !ok || state.dispatcher != d {
		return false
	}
	delete(p.states, guildID)
	delete(p.limiters, guildID)
	return true
}

func (p *Player) onUpdate(SongInfo) {
	p.mu.Lock()
	listening := make([]string, 0, len(p.states))
	for guildID, state := range p.states {
		if state.Listening && state.dispatcher != nil {
			listening = append(listening, guildID)
		}
	}
	p.mu.Unlock()

	for _, guildID := range listening {
		if p.voices.Listeners(guildID) == 1 {
			p.deletePlaybackMessage(guildID)

			p.mu.Lock()
			delete(p.states, guildID)
			delete(p.limiters, guildID)
			p.mu.Unlock()

			if err := p.voices.Disconnect(guildID); err != nil {
				log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to leave idle voice channel")
			}
			p.bus.Emit(events.Event{Kind: events.KindStream, GuildID: guildID, Message: MessageNoListeners})
			continue
		}

		if !p.limiter(guildID).Allow() {
			continue
		}
		p.bus.Emit(events.Event{Kind: events.KindStreaming, GuildID: guildID, Embed: p.Info(guildID)})
	}
}

func (p *Player) limiter(guildID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[guildID]
	if !ok {
		every := rate.Inf
		if p.cfg.UpdateInterval > 0 {
			every = rate.Every(p.cfg.UpdateInterval)
		}
		l = rate.NewLimiter(every, 1)
		p.limiters[guildID] = l
	}
	return l
}

// IsStreaming reports whether the guild has an active radio dispatcher.
func (p *Player) IsStreaming(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[guildID]
	return ok && state.dispatcher != nil
}

// Streams counts the guilds currently streaming the station.
func (p *Player) Streams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, state := range p.states {
		if state.dispatcher != nil {
			n++
		}
	}
	return n
}

// StopStream ends the guild's radio stream, reporting whether one was active.
func (p *Player) StopStream(guildID string) bool {
	p.mu.Lock()
	state, ok := p.states[guildID]
	var d *voice.Dispatcher
	if ok {
		d = state.dispatcher
	}
	p.mu.Unlock()

	if d == nil {
		return false
	}
	d.Destroy(voice.ReasonStop)
	<-d.Done()
	if p.clearState(guildID, d) {
		p.deletePlaybackMessage(guildID)
	}
	return true
}

// Restart replays the station with settings loaded again, used after a
// setting change.
func (p *Player) Restart(ctx context.Context, guildID string) error {
	p.StopStream(guildID)
	return p.Stream(ctx, guildID)
}

// Song returns the track the station currently plays.
func (p *Player) Song() (SongInfo, bool) {
	if p.socket == nil {
		return SongInfo{}, false
	}
	return p.socket.Info()
}

// Info builds the now playing embed, nil when the guild is not streaming.
func (p *Player) Info(guildID string) *discordgo.MessageEmbed {
	if !p.IsStreaming(guildID) {
		return nil
	}

	var song SongInfo
	if p.socket != nil {
		song, _ = p.socket.Info()
	}
	return p.embed(song)
}

func (p *Player) embed(song SongInfo) *discordgo.MessageEmbed {
	name := "Playing - 🎵 waiting for track info 🎵"
	if song.Title != "" {
		name = fmt.Sprintf("Playing - 🎵 %s - %s 🎵", strings.ToUpper(song.Artist), strings.ToUpper(song.Title))
	}

	last := "Unknown"
	if song.LastTitle != "" {
		last = fmt.Sprintf("%s - %s", song.LastArtist, song.LastTitle)
	}
	requestedBy := song.RequestedBy
	if requestedBy == "" {
		requestedBy = "Unknown"
	}

	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    name,
			URL:     p.cfg.URL,
			IconURL: p.cfg.Image,
		},
		Color: rand.Intn(0xFFFFFF + 1),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Last played", Value: last, Inline: true},
			{Name: "Requested By", Value: requestedBy, Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if p.cfg.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: p.cfg.Image}
	}
	if song.Listeners > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d listeners on the station", song.Listeners)}
	}
	return embed
}

// SavePlayerMessage remembers the now playing message so it can be removed
// once the stream ends. A previously saved message is deleted.
func (p *Player) SavePlayerMessage(guildID string, msg *discordgo.Message) {
	if msg == nil {
		return
	}
	p.mu.Lock()
	previous := p.messages[guildID]
	p.messages[guildID] = msg
	p.mu.Unlock()

	if previous != nil && previous.ID != msg.ID {
		p.deleteMessage(guildID, previous)
	}
}

func (p *Player) PlayerMessage(guildID string) *discordgo.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[guildID]
}

func (p *Player) deletePlaybackMessage(guildID string) {
	p.mu.Lock()
	msg := p.messages[guildID]
	delete(p.messages, guildID)
	p.mu.Unlock()

	if msg != nil {
		p.deleteMessage(guildID, msg)
	}
}

func (p *Player) deleteMessage(guildID string, msg *discordgo.Message) {
	if p.deleter == nil {
		return
	}
	if err := p.deleter.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Str("message_id", msg.ID).Msg("failed to delete playback message")
	}
}
