package music

import "fmt"

const maxVolume = 2.0

// InitDefaultState resets the guild playback state.
func (p *Player) InitDefaultState(guildID string) PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.initDefaultStateLocked(guildID)
}

func (p *Player) initDefaultStateLocked(guildID string) *PlaybackState {
	state := &PlaybackState{
		Passes:         p.opts.DefaultPasses,
		Seek:           0,
		Volume:         p.opts.DefaultVolume,
		IncrementQueue: true,
		Loop:           true,
		Shuffle:        true,
		Stop:           false,
	}
	p.states[guildID] = state
	return state
}

func (p *Player) stateLocked(guildID string) *PlaybackState {
	if state, ok := p.states[guildID]; ok {
		return state
	}
	return p.initDefaultStateLocked(guildID)
}

func (p *Player) State(guildID string) PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.stateLocked(guildID)
}

func (p *Player) updateState(guildID string, fn func(*PlaybackState)) PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.stateLocked(guildID)
	fn(state)
	return *state
}

// SetVolume applies to the next track started for the guild.
func (p *Player) SetVolume(guildID string, volume float64) (PlaybackState, error) {
	if volume < 0 || volume > maxVolume {
		return PlaybackState{}, fmt.Errorf("volume must be between 0 and %.0f", maxVolume)
	}
	return p.updateState(guildID, func(s *PlaybackState) { s.Volume = volume }), nil
}

func (p *Player) ToggleLoop(guildID string) PlaybackState {
	return p.updateState(guildID, func(s *PlaybackState) { s.Loop = !s.Loop })
}

func (p *Player) ToggleShuffle(guildID string) PlaybackState {
	return p.updateState(guildID, func(s *PlaybackState) { s.Shuffle = !s.Shuffle })
}

// IncrementTimeout bumps the retry counter for id and returns the new count.
func (p *Player) IncrementTimeout(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timeouts[id]++
	return p.timeouts[id]
}

func (p *Player) Timeout(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeouts[id]
}

func (p *Player) ClearTimeout(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.timeouts, id)
}
