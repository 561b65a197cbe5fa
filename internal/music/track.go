package music

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTrack = errors.New("invalid track")

// TrackError names the field that made a track unusable.
type TrackError struct {
	Field   string
	Message string
}

func (e *TrackError) Error() string {
	return e.Message
}

func (e *TrackError) Unwrap() error {
	return ErrInvalidTrack
}

func ValidateTrack(track *Track) error {
	if track == nil {
		return &TrackError{Message: "no track object passed"}
	}
	if strings.TrimSpace(track.Title) == "" {
		return &TrackError{Field: "title", Message: "track must specify track name [track.title]"}
	}
	if strings.TrimSpace(track.URL) == "" {
		return &TrackError{Field: "url", Message: "track must specify stream url [track.url]"}
	}
	if strings.TrimSpace(string(track.Source)) == "" {
		return &TrackError{Field: "source", Message: "track must specify stream source [track.source]"}
	}
	if strings.TrimSpace(track.Image) == "" {
		return &TrackError{Field: "image", Message: "track must specify stream image [track.image]"}
	}
	return nil
}

func validateTracks(tracks []Track) error {
	for i := range tracks {
		if err := ValidateTrack(&tracks[i]); err != nil {
			return fmt.Errorf("track %d: %w", i+1, err)
		}
	}
	return nil
}
