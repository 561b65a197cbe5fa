package music

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hxnx/moetune/internal/events"
	"github.com/hxnx/moetune/internal/voice"
)

type stubSource struct{}

func (stubSource) OpenStream(ctx context.Context, trackURL string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("media:" + trackURL)), nil
}

type stubTranscoder struct {
	calls atomic.Int32
	err   error
}

func (s *stubTranscoder) Convert(ctx context.Context, src io.Reader, dst string) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// silentEncoder yields an empty ogg stream, so every track ends right away.
type silentEncoder struct {
	mu     sync.Mutex
	inputs []string
}

func (e *silentEncoder) Encode(ctx context.Context, input string, opts voice.StreamOptions) (io.ReadCloser, error) {
	e.mu.Lock()
	e.inputs = append(e.inputs, input)
	e.mu.Unlock()
	return io.NopCloser(strings.NewReader("")), nil
}

type nopConnection struct{ frames chan []byte }

func (c nopConnection) GuildID() string       { return "guild-1" }
func (c nopConnection) ChannelID() string     { return "voice-1" }
func (c nopConnection) Speaking(bool) error   { return nil }
func (c nopConnection) Frames() chan<- []byte { return c.frames }
func (c nopConnection) Disconnect() error     { return nil }

func newPlaybackPlayer(t *testing.T, transcoder Transcoder, titles ...string) (*Player, chan events.Event) {
	t.Helper()

	p, _ := loadedPlayer(t, titles...)
	p.transcoder = transcoder

	manager := voice.NewManager(&silentEncoder{})
	manager.Attach("guild-1", nopConnection{frames: make(chan []byte, 1)})
	p.WithSource(stubSource{}).WithVoice(manager)

	got := make(chan events.Event, 64)
	p.Events().Subscribe(func(e events.Event) { got <- e })
	return p, got
}

func waitForMessage(t *testing.T, got chan events.Event, prefix string) []events.Event {
	t.Helper()

	var seen []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-got:
			seen = append(seen, e)
			if e.Kind == events.KindStream && strings.HasPrefix(e.Message, prefix) {
				return seen
			}
		case <-timeout:
			t.Fatalf("no %q message, events so far: %+v", prefix, seen)
		}
	}
}

func TestPlay_RunsThroughQueue(t *testing.T) {
	transcoder := &stubTranscoder{}
	p, got := newPlaybackPlayer(t, transcoder, "a", "b")
	p.ToggleLoop("guild-1")

	if err := p.Play(context.Background(), "guild-1"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	seen := waitForMessage(t, got, "Queue finished.")

	var playing []string
	for _, e := range seen {
		if e.Kind == events.KindPlaying {
			playing = append(playing, e.Embed.Description)
		}
	}
	if len(playing) != 2 || !strings.Contains(playing[0], "[a]") || !strings.Contains(playing[1], "[b]") {
		t.Fatalf("expected a then b to play, got %v", playing)
	}
	if transcoder.calls.Load() != 2 {
		t.Errorf("expected 2 conversions, got %d", transcoder.calls.Load())
	}
	if _, err := p.CurrentTrack("guild-1"); !errors.Is(err, ErrQueueEnd) {
		t.Errorf("expected queue end, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for p.IsPlaying("guild-1") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.IsPlaying("guild-1") {
		t.Error("expected playback loop to exit")
	}
}

func TestPlay_SkipsTrackAfterFailedAttempts(t *testing.T) {
	transcoder := &stubTranscoder{err: errors.New("bad input")}
	p, got := newPlaybackPlayer(t, transcoder, "a")
	p.ToggleLoop("guild-1")

	if err := p.Play(context.Background(), "guild-1"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	seen := waitForMessage(t, got, "Queue finished.")

	skipped := false
	for _, e := range seen {
		if e.Kind == events.KindStream && strings.HasPrefix(e.Message, "Skipping `a` after 3") {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("expected skip message, got %+v", seen)
	}
	if transcoder.calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", transcoder.calls.Load())
	}
	if p.Timeout("guild-1") != 0 {
		t.Error("expected timeout counter to be cleared after skipping")
	}
}

func TestPlay_EmptyQueue(t *testing.T) {
	p, got := newPlaybackPlayer(t, &stubTranscoder{})

	if err := p.Play(context.Background(), "guild-1"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitForMessage(t, got, "The queue is empty.")
}

// endlessEncoder yields a stream that only ends once the dispatcher stops.
type endlessEncoder struct{}

func (endlessEncoder) Encode(ctx context.Context, input string, opts voice.StreamOptions) (io.ReadCloser, error) {
	r, w := io.Pipe()
	go func() {
		<-ctx.Done()
		_ = w.CloseWithError(ctx.Err())
	}()
	return r, nil
}

// slowStartVoices holds PlayStream until the playback loop is cancelled.
type slowStartVoices struct {
	manager *voice.Manager
	entered chan struct{}
	once    sync.Once
}

func (v *slowStartVoices) PlayStream(ctx context.Context, guildID, input string, opts voice.StreamOptions) (*voice.Dispatcher, error) {
	v.once.Do(func() { close(v.entered) })
	<-ctx.Done()
	return v.manager.PlayStream(ctx, guildID, input, opts)
}

func TestStop_DuringStreamStart(t *testing.T) {
	p, _ := loadedPlayer(t, "a")
	p.transcoder = &stubTranscoder{}

	manager := voice.NewManager(endlessEncoder{})
	manager.Attach("guild-1", nopConnection{frames: make(chan []byte, 1)})
	voices := &slowStartVoices{manager: manager, entered: make(chan struct{})}
	p.WithSource(stubSource{}).WithVoice(voices)

	if err := p.Play(context.Background(), "guild-1"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	select {
	case <-voices.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("playback never reached the voice connection")
	}

	start := time.Now()
	p.Stop("guild-1")
	if elapsed := time.Since(start); elapsed >= stopWait {
		t.Fatalf("Stop took %s", elapsed)
	}
	if p.IsPlaying("guild-1") {
		t.Error("expected the playback loop to be gone")
	}

	deadline := time.Now().Add(2 * time.Second)
	for manager.Dispatcher("guild-1") != nil {
		if time.Now().After(deadline) {
			t.Fatal("expected the started dispatcher to be destroyed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlay_RequiresVoice(t *testing.T) {
	p, _ := loadedPlayer(t, "a")
	if err := p.Play(context.Background(), "guild-1"); !errors.Is(err, ErrPlaybackUnavailable) {
		t.Fatalf("expected ErrPlaybackUnavailable, got %v", err)
	}
}

func TestSkipAndPause_NotPlaying(t *testing.T) {
	p, _ := loadedPlayer(t, "a")

	if err := p.Skip("guild-1"); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying from Skip, got %v", err)
	}
	if _, err := p.TogglePause("guild-1"); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying from TogglePause, got %v", err)
	}

	p.Stop("guild-1")
	if !p.State("guild-1").Stop {
		t.Error("expected stop flag to be set")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                  "live",
		59 * time.Second:   "00:59",
		185 * time.Second:  "03:05",
		3723 * time.Second: "1:02:03",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%s) = %q, want %q", in, got, want)
		}
	}
}
