package commands

import (
	"context"
	"fmt"
	"testing"

	"github.com/hxnx/moetune/internal/music"
	"github.com/hxnx/moetune/internal/voice"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{voice.ErrNoVoiceChannel, "Join a voice channel first."},
		{fmt.Errorf("join: %w", voice.ErrNoVoiceChannel), "Join a voice channel first."},
		{fmt.Errorf("%w: limit is 10 tracks", music.ErrQueueFull), "The queue is full."},
		{&music.TrackError{Field: "image", Message: "track must specify stream image [track.image]"}, "Track must specify stream image [track.image]"},
		{fmt.Errorf("%w: no match", music.ErrResolveFailed), "I could not find anything for that."},
		{music.ErrNotPlaying, "Nothing is playing right now."},
		{context.DeadlineExceeded, "That took too long, try again."},
		{fmt.Errorf("boom"), "Something went wrong."},
	}

	for _, tt := range tests {
		if got := userMessage(tt.err); got != tt.want {
			t.Errorf("userMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"":                               "",
		"invalid track number provided.": "Invalid track number provided.",
		"volume must be between 0 and 2": "Volume must be between 0 and 2",
		"Already":                        "Already",
	}
	for in, want := range tests {
		if got := capitalize(in); got != want {
			t.Errorf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOnOff(t *testing.T) {
	if onOff(true) != "on" || onOff(false) != "off" {
		t.Error("unexpected onOff output")
	}
}
