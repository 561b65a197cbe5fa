package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoVoiceChannel    = errors.New("user is not in a voice channel")
	ErrVoiceNotConnected = errors.New("voice connection not established")
)

// Manager tracks the voice connection and the active dispatcher of every
// guild the bot is connected in.
type Manager struct {
	mu          sync.Mutex
	encoder     Encoder
	conns       map[string]Connection
	sessions    map[string]*discordgo.Session
	dispatchers map[string]*Dispatcher
}

func NewManager(encoder Encoder) *Manager {
	return &Manager{
		encoder:     encoder,
		conns:       make(map[string]Connection),
		sessions:    make(map[string]*discordgo.Session),
		dispatchers: make(map[string]*Dispatcher),
	}
}

// Join connects to channelID, reusing an existing connection in that channel.
func (m *Manager) Join(s *discordgo.Session, guildID, channelID string) (Connection, error) {
	if s == nil {
		return nil, fmt.Errorf("discord session is nil")
	}
	if channelID == "" {
		return nil, fmt.Errorf("channel ID is empty")
	}

	m.mu.Lock()
	if conn, ok := m.conns[guildID]; ok && conn.ChannelID() == channelID {
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()

	vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}

	conn := NewDiscordConnection(vc)
	m.mu.Lock()
	m.conns[guildID] = conn
	m.sessions[guildID] = s
	m.mu.Unlock()

	log.Info().Str("guild_id", guildID).Str("channel_id", channelID).Msg("joined voice channel")
	return conn, nil
}

// JoinUser joins the voice channel userID currently sits in.
func (m *Manager) JoinUser(s *discordgo.Session, guildID, userID string) (Connection, error) {
	if conn := m.Connection(guildID); conn != nil {
		return conn, nil
	}

	channelID, err := FindUserVoiceChannel(s, guildID, userID)
	if err != nil {
		return nil, err
	}
	return m.Join(s, guildID, channelID)
}

// Attach registers an already established connection.
func (m *Manager) Attach(guildID string, conn Connection) {
	m.mu.Lock()
	m.conns[guildID] = conn
	m.mu.Unlock()
}

func (m *Manager) Connection(guildID string) Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[guildID]
}

// Connections counts the guilds with an open voice connection.
func (m *Manager) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) Dispatcher(guildID string) *Dispatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatchers[guildID]
}

// PlayStream starts input on the guild connection, destroying whatever
// dispatcher was active before.
func (m *Manager) PlayStream(ctx context.Context, guildID, input string, opts StreamOptions) (*Dispatcher, error) {
	m.mu.Lock()
	conn, ok := m.conns[guildID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrVoiceNotConnected
	}
	previous := m.dispatchers[guildID]
	m.mu.Unlock()

	if previous != nil {
		previous.Destroy(ReasonSkip)
		<-previous.Done()
	}

	d := startDispatcher(context.WithoutCancel(ctx), conn, m.encoder, input, opts)

	m.mu.Lock()
	m.dispatchers[guildID] = d
	m.mu.Unlock()

	go func() {
		<-d.Done()
		m.mu.Lock()
		if m.dispatchers[guildID] == d {
			delete(m.dispatchers, guildID)
		}
		m.mu.Unlock()
	}()

	return d, nil
}

// Destroy stops the active dispatcher of the guild, if any, and waits for it.
func (m *Manager) Destroy(guildID, reason string) bool {
	d := m.Dispatcher(guildID)
	if d == nil {
		return false
	}
	d.Destroy(reason)
	<-d.Done()
	return true
}

func (m *Manager) Disconnect(guildID string) error {
	m.Destroy(guildID, ReasonLeave)

	m.mu.Lock()
	conn, ok := m.conns[guildID]
	delete(m.conns, guildID)
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	log.Info().Str("guild_id", guildID).Msg("left voice channel")
	return conn.Disconnect()
}

// DisconnectAll leaves every voice channel, returning the first error.
func (m *Manager) DisconnectAll() error {
	m.mu.Lock()
	guilds := make([]string, 0, len(m.conns))
	for guildID := range m.conns {
		guilds = append(guilds, guildID)
	}
	m.mu.Unlock()

	var first error
	for _, guildID := range guilds {
		if err := m.Disconnect(guildID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Listeners counts members (the bot included) in the guild's voice channel.
func (m *Manager) Listeners(guildID string) int {
	m.mu.Lock()
	conn, ok := m.conns[guildID]
	s := m.sessions[guildID]
	m.mu.Unlock()
	if !ok || s == nil {
		return 0
	}

	guild := GuildWithVoiceStates(s, guildID)
	if guild == nil {
		return 0
	}
	return CountChannelMembers(guild.VoiceStates, conn.ChannelID())
}

func CountChannelMembers(states []*discordgo.VoiceState, channelID string) int {
	count := 0
	for _, vs := range states {
		if vs != nil && vs.ChannelID == channelID {
			count++
		}
	}
	return count
}

func GuildWithVoiceStates(s *discordgo.Session, guildID string) *discordgo.Guild {
	if s == nil {
		return nil
	}
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			return g
		}
	}
	g, err := s.Guild(guildID)
	if err != nil {
		return nil
	}
	return g
}

func FindUserVoiceChannel(s *discordgo.Session, guildID string, userID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("discord session is nil")
	}

	guild := GuildWithVoiceStates(s, guildID)
	if guild == nil {
		return "", fmt.Errorf("guild %s not found", guildID)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}

	return "", ErrNoVoiceChannel
}
