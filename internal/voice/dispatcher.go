package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	frameDuration    = 20 * time.Millisecond
	frameSendTimeout = time.Second
	pausePoll        = 50 * time.Millisecond
)

// Reasons passed to Destroy.
const (
	ReasonSkip  = "skip"
	ReasonStop  = "stop"
	ReasonJump  = "jump"
	ReasonRadio = "radio-player"
	ReasonLeave = "leave"
)

type EventType int

const (
	EventStart EventType = iota
	EventEnd
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by a Dispatcher. End carries the Destroy reason, empty
// when the stream ran out on its own.
type Event struct {
	Type   EventType
	Reason string
	Err    error
}

// Dispatcher is the handle of one active outbound audio stream. Events
// yields a start event (unless encoding failed) and then exactly one end or
// error event before it is closed.
type Dispatcher struct {
	input  string
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	paused atomic.Bool

	mu     sync.Mutex
	reason string
	frames int64
}

func startDispatcher(ctx context.Context, conn Connection, enc Encoder, input string, opts StreamOptions) *Dispatcher {
	ctx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		input:  input,
		events: make(chan Event, 2),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go d.run(ctx, conn, enc, opts)
	return d
}

func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) Input() string {
	return d.input
}

// Destroy stops the stream. The first reason wins.
func (d *Dispatcher) Destroy(reason string) {
	d.mu.Lock()
	if d.reason == "" {
		d.reason = reason
	}
	d.mu.Unlock()
	d.cancel()
}

func (d *Dispatcher) SetPaused(paused bool) {
	d.paused.Store(paused)
}

func (d *Dispatcher) Paused() bool {
	return d.paused.Load()
}

// Position is the amount of audio sent so far.
func (d *Dispatcher) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.frames) * frameDuration
}

func (d *Dispatcher) destroyReason() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

func (d *Dispatcher) run(ctx context.Context, conn Connection, enc Encoder, opts StreamOptions) {
	defer close(d.done)
	defer close(d.events)
	defer d.cancel()

	stream, err := enc.Encode(ctx, d.input, opts)
	if err != nil {
		d.events <- Event{Type: EventError, Err: err}
		return
	}
	defer stream.Close()

	d.events <- Event{Type: EventStart}

	err = d.sendOgg(ctx, stream, conn)
	_ = conn.Speaking(false)

	switch {
	case ctx.Err() != nil:
		d.events <- Event{Type: EventEnd, Reason: d.destroyReason()}
	case err != nil:
		d.events <- Event{Type: EventError, Err: err}
	default:
		d.events <- Event{Type: EventEnd}
	}
}

func (d *Dispatcher) sendOgg(ctx context.Context, r io.Reader, conn Connection) error {
	reader := NewOggReader(r)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	speaking := false
	setSpeaking := func(v bool) {
		if speaking != v {
			_ = conn.Speaking(v)
			speaking = v
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		page, err := reader.NextPage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if page.IsHeader {
			continue
		}

		for _, packet := range page.Packets {
			if len(packet) == 0 {
				continue
			}

			for d.paused.Load() {
				setSpeaking(false)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(pausePoll):
				}
			}
			setSpeaking(true)

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			select {
			case conn.Frames() <- packet:
				d.mu.Lock()
				d.frames++
				d.mu.Unlock()
			case <-ctx.Done():
				return nil
			case <-time.After(frameSendTimeout):
				log.Warn().Str("guild_id", conn.GuildID()).Msg("timeout sending opus frame")
			}
		}
	}
}
