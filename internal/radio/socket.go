package radio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Gateway opcodes.
const (
	opWelcome      = 0
	opEvent        = 1
	opHeartbeat    = 9
	opHeartbeatAck = 10
)

const (
	eventTrackUpdate        = "TRACK_UPDATE"
	eventTrackUpdateRequest = "TRACK_UPDATE_REQUEST"

	defaultHeartbeat = 35 * time.Second
	writeTimeout     = 10 * time.Second
	minBackoff       = time.Second
	maxBackoff       = time.Minute
)

// SongInfo is the last track announced by the metadata gateway.
type SongInfo struct {
	Artist      string
	Title       string
	RequestedBy string
	LastArtist  string
	LastTitle   string
	Listeners   int
	StartedAt   time.Time
}

type gatewayMessage struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

type welcomePayload struct {
	Message   string `json:"message"`
	Heartbeat int    `json:"heartbeat"`
}

type gatewaySong struct {
	Title   string `json:"title"`
	Artists []struct {
		Name       string `json:"name"`
		NameRomaji string `json:"nameRomaji"`
	} `json:"artists"`
}

func (s gatewaySong) artist() string {
	names := make([]string, 0, len(s.Artists))
	for _, a := range s.Artists {
		name := a.Name
		if name == "" {
			name = a.NameRomaji
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

type trackUpdatePayload struct {
	Song      gatewaySong `json:"song"`
	StartTime string      `json:"startTime"`
	Requester *struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"requester"`
	LastPlayed []gatewaySong `json:"lastPlayed"`
	Listeners  int           `json:"listeners"`
}

func decodeTrackUpdate(raw json.RawMessage) (SongInfo, error) {
	var payload trackUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SongInfo{}, fmt.Errorf("failed to decode track update: %w", err)
	}

	info := SongInfo{
		Artist:    payload.Song.artist(),
		Title:     payload.Song.Title,
		Listeners: payload.Listeners,
	}
	if payload.Requester != nil {
		info.RequestedBy = payload.Requester.DisplayName
		if info.RequestedBy == "" {
			info.RequestedBy = payload.Requester.Name
		}
	}
	if len(payload.LastPlayed) > 0 {
		info.LastArtist = payload.LastPlayed[0].artist()
		info.LastTitle = payload.LastPlayed[0].Title
	}
	if payload.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, payload.StartTime); err == nil {
			info.StartedAt = t
		}
	}
	return info, nil
}

// Socket keeps a connection to the metadata gateway and fans track updates
// out to subscribers.
type Socket struct {
	url    string
	dialer *websocket.Dialer

	mu      sync.RWMutex
	info    SongInfo
	hasInfo bool

	subMu  sync.RWMutex
	nextID int
	subs   map[int]func(SongInfo)

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewSocket(url string) *Socket {
	return &Socket{
		url:        url,
		dialer:     websocket.DefaultDialer,
		subs:       make(map[int]func(SongInfo)),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Info returns the current song and whether one has been announced yet.
func (s *Socket) Info() (SongInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info, s.hasInfo
}

// Subscribe registers fn for every track update and returns a function
// removing it again.
func (s *Socket) Subscribe(fn func(SongInfo)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Socket) publish(info SongInfo) {
	s.mu.Lock()
	s.info = info
	s.hasInfo = true
	s.mu.Unlock()

	s.subMu.RLock()
	subs := make([]func(SongInfo), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(info)
	}
}

// Run keeps the gateway connection alive until ctx is cancelled.
func (s *Socket) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		start := time.Now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// a session that lived a while resets the backoff
		if time.Since(start) > s.maxBackoff {
			backoff = s.minBackoff
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("radio socket disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Socket) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial radio socket: %w", err)
	}
	log.Info().Str("url", s.url).Msg("radio socket connected")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	go func() {
		<-ctx.Done()
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	for {
		var msg gatewayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
					return cause
				}
				return nil
			}
			return fmt.Errorf("failed to read radio socket: %w", err)
		}

		switch msg.Op {
		case opWelcome:
			var welcome welcomePayload
			if err := json.Unmarshal(msg.D, &welcome); err != nil {
				log.Warn().Err(err).Msg("malformed radio socket welcome")
			}
			interval := time.Duration(welcome.Heartbeat) * time.Millisecond
			if interval <= 0 {
				interval = defaultHeartbeat
			}
			go s.heartbeat(ctx, interval, write, cancel)
		case opEvent:
			if msg.T != eventTrackUpdate && msg.T != eventTrackUpdateRequest {
				continue
			}
			info, err := decodeTrackUpdate(msg.D)
			if err != nil {
				log.Warn().Err(err).Msg("skipping radio track update")
				continue
			}
			log.Debug().Str("artist", info.Artist).Str("title", info.Title).Msg("radio track update")
			s.publish(info)
		case opHeartbeatAck:
		default:
			log.Debug().Int("op", msg.Op).Msg("unhandled radio socket op")
		}
	}
}

// heartbeat keeps the session alive. A failed write ends the session so the
// blocked read returns and Run reconnects.
func (s *Socket) heartbeat(ctx context.Context, interval time.Duration, write func(any) error, end context.CancelCauseFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(gatewayMessage{Op: opHeartbeat}); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Warn().Err(err).Msg("radio socket heartbeat failed")
				}
				end(fmt.Errorf("radio socket heartbeat failed: %w", err))
				return
			}
		}
	}
}
