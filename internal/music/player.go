package music

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hxnx/moetune/internal/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueNotLoaded = errors.New("queue not preloaded")
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrQueueEnd       = errors.New("queue end reached")
	ErrQueueFull      = errors.New("queue is full")
	ErrRepositoryNil  = errors.New("queue repository is not configured")
)

const repoTimeout = 3 * time.Second

type Options struct {
	DownloadDir   string
	MaxQueueSize  int
	DefaultVolume float64
	DefaultPasses int
	MaxAttempts   int
}

// Player owns every per-guild queue, playback state and timeout counter.
type Player struct {
	mu       sync.Mutex
	queues   map[string]*Queue
	states   map[string]*PlaybackState
	timeouts map[string]int
	sessions map[string]*session
	rng      *rand.Rand

	repo       QueueRepository
	bus        *events.Bus
	transcoder Transcoder
	source     SourceOpener
	voices     VoicePlayer
	opts       Options
}

func NewPlayer(repo QueueRepository, bus *events.Bus, transcoder Transcoder, opts Options) (*Player, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	if opts.DefaultVolume <= 0 {
		opts.DefaultVolume = 1
	}
	if opts.DefaultPasses <= 0 {
		opts.DefaultPasses = 2
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if bus == nil {
		bus = events.NewBus()
	}

	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	return &Player{
		queues:     make(map[string]*Queue),
		states:     make(map[string]*PlaybackState),
		timeouts:   make(map[string]int),
		sessions:   make(map[string]*session),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		repo:       repo,
		bus:        bus,
		transcoder: transcoder,
		opts:       opts,
	}, nil
}

func (p *Player) Events() *events.Bus {
	return p.bus
}

// Preload returns the guild queue, loading it from the repository or
// creating an empty one on first use.
func (p *Player) Preload(ctx context.Context, guildID string) (Queue, error) {
	p.mu.Lock()
	if q, ok := p.queues[guildID]; ok {
		out := q.clone()
		p.mu.Unlock()
		return out, nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	stored, err := p.repo.Get(ctx, guildID)
	if err != nil {
		return Queue{}, fmt.Errorf("failed to load queue: %w", err)
	}
	if stored == nil {
		stored = &Queue{Tracks: []Track{}}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// another handler may have loaded it meanwhile
	if q, ok := p.queues[guildID]; ok {
		return q.clone(), nil
	}
	p.queues[guildID] = stored
	return stored.clone(), nil
}

func (p *Player) MusicQueue(guildID string) []Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[guildID]
	if !ok {
		return []Track{}
	}
	return q.clone().Tracks
}

// RemoveTrack removes the 1-based position from the queue. Position 0
// clears the whole queue. Out of range positions are reported through a
// remove event only.
func (p *Player) RemoveTrack(ctx context.Context, guildID string, position int) error {
	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return ErrQueueNotLoaded
	}

	var message string
	switch {
	case position == 0:
		message = fmt.Sprintf("Removing `ALL` tracks from the queue. Total: `%d`", len(q.Tracks))
		q.Tracks = []Track{}
		q.Position = 0
	case position < 0 || position > len(q.Tracks):
		message = fmt.Sprintf("Invalid track number provided. Allowed: 1-%d", len(q.Tracks))
		p.mu.Unlock()
		p.bus.Emit(events.Event{Kind: events.KindRemove, GuildID: guildID, Message: message})
		return nil
	default:
		idx := position - 1
		message = fmt.Sprintf("Removing `%s` from the queue.", q.Tracks[idx].Title)

		rebuilt := make([]Track, 0, len(q.Tracks)-1)
		rebuilt = append(rebuilt, q.Tracks[:idx]...)
		rebuilt = append(rebuilt, q.Tracks[idx+1:]...)
		q.Tracks = rebuilt

		switch {
		case idx < q.Position:
			q.Position--
		case idx == q.Position:
			// the following track slid into the current slot
			p.stateLocked(guildID).IncrementQueue = false
		}
		if len(q.Tracks) > 0 && q.Position >= len(q.Tracks) {
			q.QueueEndReached = true
		}
	}
	values := map[string]any{
		FieldTracks:   q.clone().Tracks,
		FieldPosition: q.Position,
	}
	if q.QueueEndReached {
		values[FieldQueueEndReached] = true
	}
	p.mu.Unlock()

	p.bus.Emit(events.Event{Kind: events.KindRemove, GuildID: guildID, Message: message})

	err := p.persist(ctx, guildID, values)

	p.bus.Emit(events.Event{Kind: events.KindUpdate, GuildID: guildID})
	return err
}

func (p *Player) LoadTrack(ctx context.Context, guildID string, track Track, userID string) error {
	return p.LoadTracks(ctx, guildID, []Track{track}, userID)
}

// LoadTracks validates and appends tracks to a preloaded queue.
func (p *Player) LoadTracks(ctx context.Context, guildID string, tracks []Track, userID string) error {
	if err := validateTracks(tracks); err != nil {
		return err
	}

	added := make([]Track, len(tracks))
	for i, track := range tracks {
		track.AddedBy = userID
		if track.ID == "" {
			track.ID = uuid.NewString()
		}
		added[i] = track
	}

	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return ErrQueueNotLoaded
	}
	if p.opts.MaxQueueSize > 0 && len(q.Tracks)+len(added) > p.opts.MaxQueueSize {
		p.mu.Unlock()
		return fmt.Errorf("%w: limit is %d tracks", ErrQueueFull, p.opts.MaxQueueSize)
	}
	if len(added) == 0 {
		p.mu.Unlock()
		p.bus.Emit(events.Event{Kind: events.KindUpdate, GuildID: guildID})
		return nil
	}

	values := map[string]any{}
	if q.QueueEndReached {
		q.Position = len(q.Tracks)
		q.QueueEndReached = false
		values[FieldPosition] = q.Position
		values[FieldQueueEndReached] = false
	}
	q.Tracks = append(q.Tracks, added...)
	values[FieldTracks] = q.clone().Tracks
	p.mu.Unlock()

	err := p.persist(ctx, guildID, values)
	p.bus.Emit(events.Event{Kind: events.KindUpdate, GuildID: guildID})
	return err
}

// TryToIncrementQueue advances the position after a track finished, or marks
// the end of the queue. A cleared IncrementQueue flag suppresses exactly one
// advance.
func (p *Player) TryToIncrementQueue(ctx context.Context, guildID string) error {
	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("can't increment queue: %w", ErrQueueNotLoaded)
	}
	state := p.stateLocked(guildID)

	values := map[string]any{}
	switch {
	case q.Position >= len(q.Tracks):
		q.QueueEndReached = true
		values[FieldQueueEndReached] = true
	case q.Position >= len(q.Tracks)-1 && state.IncrementQueue:
		q.QueueEndReached = true
		values[FieldQueueEndReached] = true
	case state.IncrementQueue:
		q.Position++
		values[FieldPosition] = q.Position
	}
	state.IncrementQueue = true
	p.mu.Unlock()

	return p.persist(ctx, guildID, values)
}

func (p *Player) ResetQueuePosition(ctx context.Context, guildID string) error {
	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return ErrQueueNotLoaded
	}
	q.Position = 0
	q.QueueEndReached = false
	p.mu.Unlock()

	return p.persist(ctx, guildID, map[string]any{
		FieldPosition:        0,
		FieldQueueEndReached: false,
	})
}

// Jump makes the given 1-based position play next, without the usual
// advance once the current track ends.
func (p *Player) Jump(ctx context.Context, guildID string, position int) error {
	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return ErrQueueNotLoaded
	}
	if position < 1 || position > len(q.Tracks) {
		total := len(q.Tracks)
		p.mu.Unlock()
		return fmt.Errorf("invalid track number provided. Allowed: 1-%d", total)
	}
	q.Position = position - 1
	q.QueueEndReached = false
	p.stateLocked(guildID).IncrementQueue = false
	p.mu.Unlock()

	if err := p.persist(ctx, guildID, map[string]any{
		FieldPosition:        position - 1,
		FieldQueueEndReached: false,
	}); err != nil {
		return err
	}

	p.interrupt(guildID, reasonJump)
	return nil
}

// ShuffleQueue shuffles every track after the current one.
func (p *Player) ShuffleQueue(ctx context.Context, guildID string) error {
	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return ErrQueueNotLoaded
	}
	start := q.Position + 1
	if q.QueueEndReached || start > len(q.Tracks) {
		start = len(q.Tracks)
	}
	randomizeTracks(p.rng, q.Tracks[start:])
	tracks := q.clone().Tracks
	p.mu.Unlock()

	err := p.persist(ctx, guildID, map[string]any{FieldTracks: tracks})
	p.bus.Emit(events.Event{Kind: events.KindUpdate, GuildID: guildID})
	return err
}

func (p *Player) shuffleAll(ctx context.Context, guildID string) error {
	p.mu.Lock()
	q, ok := p.queues[guildID]
	if !ok {
		p.mu.Unlock()
		return ErrQueueNotLoaded
	}
	randomizeTracks(p.rng, q.Tracks)
	tracks := q.clone().Tracks
	p.mu.Unlock()

	return p.persist(ctx, guildID, map[string]any{FieldTracks: tracks})
}

func (p *Player) CurrentTrack(guildID string) (TrackInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[guildID]
	if !ok {
		return TrackInfo{}, ErrQueueNotLoaded
	}
	if len(q.Tracks) == 0 {
		return TrackInfo{}, ErrQueueEmpty
	}
	if q.QueueEndReached || q.Position < 0 || q.Position >= len(q.Tracks) {
		return TrackInfo{}, ErrQueueEnd
	}

	return TrackInfo{
		Track:    q.Tracks[q.Position],
		Position: q.Position,
		Total:    len(q.Tracks),
	}, nil
}

// Terminate stops playback and forgets everything held for the guild. The
// repository mirror is kept so the queue can be preloaded again.
func (p *Player) Terminate(guildID string) {
	p.Stop(guildID)

	p.mu.Lock()
	delete(p.queues, guildID)
	delete(p.timeouts, guildID)
	p.initDefaultStateLocked(guildID)
	p.mu.Unlock()
}

func (p *Player) persist(ctx context.Context, guildID string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if err := p.repo.SetMultiple(ctx, guildID, values); err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("failed to mirror queue")
		return fmt.Errorf("failed to mirror queue: %w", err)
	}
	return nil
}

// randomizeTracks is an in-place Fisher–Yates shuffle.
func randomizeTracks(rng *rand.Rand, tracks []Track) []Track {
	if len(tracks) < 2 {
		return tracks
	}
	for i := len(tracks) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
	return tracks
}
