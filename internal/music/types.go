package music

import "time"

type TrackSource string

const (
	TrackSourceYouTube    TrackSource = "youtube"
	TrackSourceSoundCloud TrackSource = "soundcloud"
	TrackSourceUnknown    TrackSource = "unknown"
)

type Track struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	URL      string        `json:"url"`
	Source   TrackSource   `json:"source"`
	Image    string        `json:"image"`
	Duration time.Duration `json:"duration,omitempty"`
	AddedBy  string        `json:"added_by,omitempty"`
}

// Queue is the per-guild queue record. Position stays inside Tracks unless
// QueueEndReached is set.
type Queue struct {
	Tracks          []Track `json:"tracks"`
	Position        int     `json:"position"`
	QueueEndReached bool    `json:"queue_end_reached"`
}

func (q Queue) clone() Queue {
	out := q
	out.Tracks = append([]Track(nil), q.Tracks...)
	if out.Tracks == nil {
		out.Tracks = []Track{}
	}
	return out
}

// TrackInfo is a queued track together with where it sits in the queue.
type TrackInfo struct {
	Track
	Position int `json:"position"`
	Total    int `json:"total"`
}

type PlaybackState struct {
	Passes int           `json:"passes"`
	Seek   time.Duration `json:"seek"`
	Volume float64       `json:"volume"`
	// IncrementQueue is cleared for exactly one TryToIncrementQueue call.
	IncrementQueue bool `json:"increment_queue"`
	Loop           bool `json:"loop"`
	Shuffle        bool `json:"shuffle"`
	Stop           bool `json:"stop"`
}
