package shared

import (
	"context"
	"time"

	"github.com/hxnx/moetune/internal/database"
	"github.com/hxnx/moetune/internal/music"
	"github.com/hxnx/moetune/internal/radio"
	"github.com/hxnx/moetune/internal/voice"
)

// Resolver turns user input into playable tracks.
type Resolver interface {
	Resolve(ctx context.Context, input string, sourceHint music.TrackSource) (music.Track, error)
	ResolveSearch(ctx context.Context, input string, sourceHint music.TrackSource, limit int) ([]music.Track, error)
}

// Announcer posts player notices to a guild and remembers the last text
// channel commands came from.
type Announcer interface {
	Remember(guildID, channelID string)
	Announce(guildID, message string)
}

// Services is everything the command layer talks to.
type Services struct {
	Music    *music.Player
	Radio    *radio.Player
	Voice    *voice.Manager
	Resolver Resolver
	Searches *music.Searches
	Settings *database.SettingRepository
	Notices  Announcer

	AppID     string
	OwnerID   string
	AutoLeave time.Duration
}

func (s *Services) Remember(guildID, channelID string) {
	if s == nil || s.Notices == nil || guildID == "" || channelID == "" {
		return
	}
	s.Notices.Remember(guildID, channelID)
}

func (s *Services) Announce(guildID, message string) {
	if s == nil || s.Notices == nil || guildID == "" {
		return
	}
	s.Notices.Announce(guildID, message)
}
