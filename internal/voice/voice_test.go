package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type fakeConnection struct {
	mu           sync.Mutex
	guildID      string
	channelID    string
	frames       chan []byte
	speaking     []bool
	disconnected bool
}

func newFakeConnection(guildID string) *fakeConnection {
	return &fakeConnection{guildID: guildID, channelID: "voice-1", frames: make(chan []byte, 64)}
}

func (c *fakeConnection) GuildID() string  { return c.guildID }
func (c *fakeConnection) ChannelID() string { return c.channelID }

func (c *fakeConnection) Speaking(v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = append(c.speaking, v)
	return nil
}

func (c *fakeConnection) Frames() chan<- []byte { return c.frames }

func (c *fakeConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

// staticEncoder serves the same bytes for every input.
type staticEncoder struct {
	data []byte
	err  error
}

func (e staticEncoder) Encode(ctx context.Context, input string, opts StreamOptions) (io.ReadCloser, error) {
	if e.err != nil {
		return nil, e.err
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// blockingEncoder never produces data and unblocks once ctx is cancelled.
type blockingEncoder struct{}

func (blockingEncoder) Encode(ctx context.Context, input string, opts StreamOptions) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		_ = pw.CloseWithError(ctx.Err())
	}()
	return pr, nil
}

func oggPage(headerType byte, packets ...[]byte) []byte {
	var segments, data []byte
	for _, packet := range packets {
		n := len(packet)
		for n >= 255 {
			segments = append(segments, 255)
			n -= 255
		}
		segments = append(segments, byte(n))
		data = append(data, packet...)
	}

	header := make([]byte, oggHeaderSize)
	header[1] = headerType
	header[22] = byte(len(segments))

	page := []byte("OggS")
	page = append(page, header...)
	page = append(page, segments...)
	return append(page, data...)
}

func collect(t *testing.T, d *Dispatcher) []Event {
	t.Helper()

	var got []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-d.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("dispatcher did not finish, events so far: %+v", got)
		}
	}
}

func TestOggReader_ExtractsPacketsAndFlagsHeaders(t *testing.T) {
	long := bytes.Repeat([]byte{0x7}, 300)
	exact := bytes.Repeat([]byte{0x8}, 255)

	var stream []byte
	stream = append(stream, []byte("garbage")...)
	stream = append(stream, oggPage(0x02, []byte("OpusHead-and-more"))...)
	stream = append(stream, oggPage(0x00, []byte("OpusTags-vendor"))...)
	stream = append(stream, oggPage(0x00, []byte{1, 2, 3}, long, exact)...)

	reader := NewOggReader(bytes.NewReader(stream))

	for i := 0; i < 2; i++ {
		page, err := reader.NextPage()
		if err != nil {
			t.Fatalf("NextPage %d failed: %v", i, err)
		}
		if !page.IsHeader {
			t.Errorf("page %d: expected header page", i)
		}
	}

	page, err := reader.NextPage()
	if err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	if page.IsHeader {
		t.Error("expected audio page")
	}
	if len(page.Packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(page.Packets))
	}
	if !bytes.Equal(page.Packets[0], []byte{1, 2, 3}) {
		t.Errorf("unexpected first packet: %v", page.Packets[0])
	}
	if !bytes.Equal(page.Packets[1], long) {
		t.Errorf("expected 300 byte packet, got %d bytes", len(page.Packets[1]))
	}
	if !bytes.Equal(page.Packets[2], exact) {
		t.Errorf("expected 255 byte packet, got %d bytes", len(page.Packets[2]))
	}

	if _, err := reader.NextPage(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after last page, got %v", err)
	}
}

func TestOggReader_TruncatedPage(t *testing.T) {
	page := oggPage(0x00, []byte{1, 2, 3, 4})
	reader := NewOggReader(bytes.NewReader(page[:len(page)-2]))

	if _, err := reader.NextPage(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestDispatcher_SendsFramesAndEnds(t *testing.T) {
	var stream []byte
	stream = append(stream, oggPage(0x02, []byte("OpusHead-xxxxxxxx"))...)
	stream = append(stream, oggPage(0x00, []byte{1}, []byte{2}, []byte{3})...)

	conn := newFakeConnection("guild-1")
	d := startDispatcher(context.Background(), conn, staticEncoder{data: stream}, "input", StreamOptions{Volume: 1})

	got := collect(t, d)
	if len(got) != 2 || got[0].Type != EventStart || got[1].Type != EventEnd {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[1].Reason != "" {
		t.Errorf("expected natural end, got reason %q", got[1].Reason)
	}

	close(conn.frames)
	var frames [][]byte
	for f := range conn.frames {
		frames = append(frames, f)
	}
	if len(frames) != 3 || frames[0][0] != 1 || frames[2][0] != 3 {
		t.Fatalf("unexpected frames: %v", frames)
	}
	if d.Position() != 3*frameDuration {
		t.Errorf("expected position %s, got %s", 3*frameDuration, d.Position())
	}
}

func TestDispatcher_DestroyReportsReason(t *testing.T) {
	conn := newFakeConnection("guild-1")
	d := startDispatcher(context.Background(), conn, blockingEncoder{}, "input", StreamOptions{})

	first := <-d.Events()
	if first.Type != EventStart {
		t.Fatalf("expected start event, got %+v", first)
	}

	d.Destroy(ReasonRadio)
	d.Destroy(ReasonSkip)

	got := collect(t, d)
	if len(got) != 1 || got[0].Type != EventEnd || got[0].Reason != ReasonRadio {
		t.Fatalf("unexpected events after destroy: %+v", got)
	}
}

func TestDispatcher_EncodeError(t *testing.T) {
	boom := errors.New("ffmpeg missing")
	d := startDispatcher(context.Background(), newFakeConnection("guild-1"), staticEncoder{err: boom}, "input", StreamOptions{})

	got := collect(t, d)
	if len(got) != 1 || got[0].Type != EventError || !errors.Is(got[0].Err, boom) {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestManager_PlayStreamRequiresConnection(t *testing.T) {
	m := NewManager(staticEncoder{})
	if _, err := m.PlayStream(context.Background(), "guild-1", "input", StreamOptions{}); !errors.Is(err, ErrVoiceNotConnected) {
		t.Fatalf("expected ErrVoiceNotConnected, got %v", err)
	}
}

func TestManager_PlayStreamReplacesPrevious(t *testing.T) {
	m := NewManager(blockingEncoder{})
	conn := newFakeConnection("guild-1")
	m.Attach("guild-1", conn)

	first, err := m.PlayStream(context.Background(), "guild-1", "a", StreamOptions{})
	if err != nil {
		t.Fatalf("PlayStream failed: %v", err)
	}
	second, err := m.PlayStream(context.Background(), "guild-1", "b", StreamOptions{})
	if err != nil {
		t.Fatalf("PlayStream failed: %v", err)
	}

	events := collect(t, first)
	last := events[len(events)-1]
	if last.Type != EventEnd || last.Reason != ReasonSkip {
		t.Errorf("expected first dispatcher to end with skip, got %+v", last)
	}
	if m.Dispatcher("guild-1") != second {
		t.Error("expected second dispatcher to be active")
	}

	if err := m.Disconnect("guild-1"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	<-second.Done()
	if !conn.disconnected {
		t.Error("expected connection to be closed")
	}
	if m.Connection("guild-1") != nil {
		t.Error("expected connection to be forgotten")
	}
}

func TestFFmpegEncoder_Args(t *testing.T) {
	enc := NewFFmpegEncoder("")

	joined := strings.Join(enc.args("https://listen.moe/stream", StreamOptions{Volume: 0.5, Passes: 3}), " ")
	for _, want := range []string{"-reconnect 1", "volume=0.50", "-fec 1", "-packet_loss 20", "pipe:1"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in args: %s", want, joined)
		}
	}

	joined = strings.Join(enc.args("downloads/1.mp3", StreamOptions{Passes: 1}), " ")
	if strings.Contains(joined, "-reconnect") {
		t.Errorf("did not expect reconnect flags for local input: %s", joined)
	}
	if strings.Contains(joined, "-fec") {
		t.Errorf("did not expect fec for a single pass: %s", joined)
	}
	if !strings.Contains(joined, "volume=1.00") {
		t.Errorf("expected default volume: %s", joined)
	}
}

func TestCountChannelMembers(t *testing.T) {
	states := []*discordgo.VoiceState{
		{UserID: "bot", ChannelID: "voice-1"},
		{UserID: "a", ChannelID: "voice-1"},
		{UserID: "b", ChannelID: "voice-2"},
		nil,
	}

	if got := CountChannelMembers(states, "voice-1"); got != 2 {
		t.Errorf("expected 2 members, got %d", got)
	}
	if got := CountChannelMembers(states, "voice-3"); got != 0 {
		t.Errorf("expected empty channel, got %d", got)
	}
}

func TestManager_DisconnectAll(t *testing.T) {
	m := NewManager(staticEncoder{})
	a, b := newFakeConnection("guild-a"), newFakeConnection("guild-b")
	m.Attach("guild-a", a)
	m.Attach("guild-b", b)

	if m.Connections() != 2 {
		t.Fatalf("expected 2 connections, got %d", m.Connections())
	}
	if err := m.DisconnectAll(); err != nil {
		t.Fatalf("DisconnectAll failed: %v", err)
	}
	if m.Connections() != 0 {
		t.Errorf("expected no connections, got %d", m.Connections())
	}
	if !a.disconnected || !b.disconnected {
		t.Error("expected every connection to be closed")
	}
}
