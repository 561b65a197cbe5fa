package listeners

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
	"github.com/hxnx/moetune/internal/voice"
)

const testBotID = "bot"

type nopQueues struct{}

func (nopQueues) Get(context.Context, string) (*music.Queue, error) { return nil, nil }
func (nopQueues) Set(context.Context, string, string, any) error { return nil }
func (nopQueues) SetMultiple(context.Context, string, map[string]any) error { return nil }

type recordingNotices struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotices) Remember(string, string) {}

func (n *recordingNotices) Announce(_ string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type stubConnection struct {
	mu           sync.Mutex
	guildID      string
	frames       chan []byte
	disconnected bool
}

func (c *stubConnection) GuildID() string { return c.guildID }
func (c *stubConnection) ChannelID() string { return "voice-1" }
func (c *stubConnection) Speaking(bool) error { return nil }
func (c *stubConnection) Frames() chan<- []byte { return c.frames }

func (c *stubConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *stubConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func newTestHandler(t *testing.T, autoLeave time.Duration) (*Handler, *recordingNotices) {
	t.Helper()

	player, err := music.NewPlayer(nopQueues{}, nil, nil, music.Options{
		DownloadDir:   t.TempDir(),
		MaxQueueSize:  10,
		DefaultVolume: 1,
		DefaultPasses: 2,
	})
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}

	notices := &recordingNotices{}
	h := New(&shared.Services{
		Music:     player,
		Voice:     voice.NewManager(nil),
		Notices:   notices,
		AutoLeave: autoLeave,
	})
	t.Cleanup(func() {
		h.cancelLeave("g1")
	})
	return h, notices
}

func newStateSession(t *testing.T, states ...*discordgo.VoiceState) *discordgo.Session {
	t.Helper()

	st := discordgo.NewState()
	st.User = &discordgo.User{ID: testBotID}
	if err := st.GuildAdd(&discordgo.Guild{ID: "g1", VoiceStates: states}); err != nil {
		t.Fatalf("GuildAdd failed: %v", err)
	}
	return &discordgo.Session{State: st}
}

func setVoiceStates(t *testing.T, s *discordgo.Session, states ...*discordgo.VoiceState) {
	t.Helper()
	if err := s.State.GuildAdd(&discordgo.Guild{ID: "g1", VoiceStates: states}); err != nil {
		t.Fatalf("GuildAdd failed: %v", err)
	}
}

func inChannel(userID, channelID string) *discordgo.VoiceState {
	return &discordgo.VoiceState{GuildID: "g1", UserID: userID, ChannelID: channelID}
}

func (h *Handler) pendingLeave(guildID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.timers[guildID]
	return ok
}

func TestAlone(t *testing.T) {
	tests := []struct {
		name   string
		states []*discordgo.VoiceState
		want   bool
	}{
		{name: "only the bot", states: []*discordgo.VoiceState{inChannel(testBotID, "v1")}, want: true},
		{name: "listener in the same channel", states: []*discordgo.VoiceState{inChannel(testBotID, "v1"), inChannel("u1", "v1")}, want: false},
		{name: "listener elsewhere", states: []*discordgo.VoiceState{inChannel(testBotID, "v1"), inChannel("u1", "v2")}, want: true},
		{name: "bot not in voice", states: []*discordgo.VoiceState{inChannel("u1", "v1")}, want: false},
		{name: "nobody in voice", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, 0)
			s := newStateSession(t, tt.states...)

			if got := h.alone(s, "g1", testBotID); got != tt.want {
				t.Errorf("alone = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleLeave(t *testing.T) {
	tests := []struct {
		name      string
		autoLeave time.Duration
		want      bool
	}{
		{name: "disabled", autoLeave: 0, want: false},
		{name: "enabled", autoLeave: time.Hour, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.autoLeave)
			s := newStateSession(t, inChannel(testBotID, "v1"))

			h.scheduleLeave(s, "g1", testBotID)
			if got := h.pendingLeave("g1"); got != tt.want {
				t.Fatalf("pending leave = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleLeave_KeepsExistingTimer(t *testing.T) {
	h, _ := newTestHandler(t, time.Hour)
	s := newStateSession(t, inChannel(testBotID, "v1"))

	h.scheduleLeave(s, "g1", testBotID)
	h.mu.Lock()
	first := h.timers["g1"]
	h.mu.Unlock()

	h.scheduleLeave(s, "g1", testBotID)
	h.mu.Lock()
	second := h.timers["g1"]
	count := len(h.timers)
	h.mu.Unlock()

	if first != second || count != 1 {
		t.Errorf("expected the first timer to be kept, got %d timers", count)
	}

	h.cancelLeave("g1")
	if h.pendingLeave("g1") {
		t.Error("expected cancelLeave to drop the timer")
	}
}

func TestHandleVoiceStateUpdate_AloneThenRejoined(t *testing.T) {
	h, _ := newTestHandler(t, time.Hour)
	s := newStateSession(t, inChannel(testBotID, "v1"))

	h.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: inChannel("u1", "")})
	if !h.pendingLeave("g1") {
		t.Fatal("expected a leave to be scheduled once the bot is alone")
	}

	setVoiceStates(t, s, inChannel(testBotID, "v1"), inChannel("u1", "v1"))
	h.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: inChannel("u1", "v1")})
	if h.pendingLeave("g1") {
		t.Error("expected the scheduled leave to be cancelled when someone rejoins")
	}
}

func TestHandleVoiceStateUpdate_BotRemovedTearsDown(t *testing.T) {
	h, _ := newTestHandler(t, time.Hour)
	s := newStateSession(t, inChannel(testBotID, "v1"))

	conn := &stubConnection{guildID: "g1", frames: make(chan []byte, 1)}
	h.svc.Voice.Attach("g1", conn)
	h.scheduleLeave(s, "g1", testBotID)

	h.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: inChannel(testBotID, "")})

	if !conn.isDisconnected() {
		t.Error("expected the voice connection to be closed")
	}
	if h.svc.Voice.Connection("g1") != nil {
		t.Error("expected the connection to be forgotten")
	}
	if h.pendingLeave("g1") {
		t.Error("expected the scheduled leave to be cancelled")
	}
}

func TestHandleVoiceStateUpdate_IgnoresUnknownBot(t *testing.T) {
	h, _ := newTestHandler(t, time.Hour)
	s := &discordgo.Session{State: discordgo.NewState()}

	h.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: inChannel("u1", "")})
	if h.pendingLeave("g1") {
		t.Error("expected nothing scheduled without a bot user")
	}
}

func TestAutoLeave_DisconnectsAndAnnounces(t *testing.T) {
	h, notices := newTestHandler(t, 10*time.Millisecond)
	s := newStateSession(t, inChannel(testBotID, "v1"))

	conn := &stubConnection{guildID: "g1", frames: make(chan []byte, 1)}
	h.svc.Voice.Attach("g1", conn)

	h.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: inChannel("u1", "")})

	deadline := time.Now().Add(2 * time.Second)
	for !conn.isDisconnected() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for auto leave")
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline = time.Now().Add(2 * time.Second)
	for len(notices.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the leave notice")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := notices.all(); got[len(got)-1] != noticeLeft {
		t.Errorf("expected leave notice, got %v", got)
	}
	if h.pendingLeave("g1") {
		t.Error("expected the fired timer to be removed")
	}
}

func TestAutoLeave_StaysWhenSomeoneReturned(t *testing.T) {
	h, notices := newTestHandler(t, 20*time.Millisecond)
	s := newStateSession(t, inChannel(testBotID, "v1"))

	conn := &stubConnection{guildID: "g1", frames: make(chan []byte, 1)}
	h.svc.Voice.Attach("g1", conn)

	h.scheduleLeave(s, "g1", testBotID)
	setVoiceStates(t, s, inChannel(testBotID, "v1"), inChannel("u1", "v1"))

	deadline := time.Now().Add(2 * time.Second)
	for h.pendingLeave("g1") {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the timer to fire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if conn.isDisconnected() {
		t.Error("expected the bot to stay connected")
	}
	if got := notices.all(); len(got) != 0 {
		t.Errorf("expected no notice, got %v", got)
	}
}
