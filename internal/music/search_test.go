package music

import (
	"errors"
	"testing"
	"time"
)

func TestSearches_PickClosesSession(t *testing.T) {
	searches := NewSearches(time.Minute)
	searches.Save(SearchSession{
		GuildID: "guild-1",
		UserID:  "user-1",
		Query:   "lofi",
		Results: []Track{testTrack("a"), testTrack("b")},
	})

	if _, err := searches.Pick("guild-1", "user-1", 2); err == nil {
		t.Fatal("expected error for out of range selection")
	}

	track, err := searches.Pick("guild-1", "user-1", 1)
	if err != nil {
		t.Fatalf("Pick failed: %v", err)
	}
	if track.Title != "b" {
		t.Errorf("expected b, got %q", track.Title)
	}

	if _, err := searches.Pick("guild-1", "user-1", 0); !errors.Is(err, ErrSearchExpired) {
		t.Errorf("expected session to be closed, got %v", err)
	}
}

func TestSearches_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	searches := NewSearches(time.Minute)
	searches.now = func() time.Time { return now }

	searches.Save(SearchSession{GuildID: "guild-1", UserID: "user-1", Results: []Track{testTrack("a")}})

	now = now.Add(30 * time.Second)
	if _, ok := searches.Get("guild-1", "user-1"); !ok {
		t.Fatal("expected session to be alive")
	}

	now = now.Add(time.Minute)
	if _, ok := searches.Get("guild-1", "user-1"); ok {
		t.Fatal("expected session to expire")
	}
}

func TestSearches_IgnoresIncompleteAndPurges(t *testing.T) {
	searches := NewSearches(0)

	searches.Save(SearchSession{GuildID: "guild-1"})
	if _, ok := searches.Get("guild-1", ""); ok {
		t.Fatal("expected session without user to be ignored")
	}

	searches.Save(SearchSession{GuildID: "guild-1", UserID: "a"})
	searches.Save(SearchSession{GuildID: "guild-1", UserID: "b"})
	searches.Save(SearchSession{GuildID: "guild-2", UserID: "a"})
	searches.Purge("guild-1")

	if _, ok := searches.Get("guild-1", "a"); ok {
		t.Error("expected guild-1 sessions to be purged")
	}
	if _, ok := searches.Get("guild-2", "a"); !ok {
		t.Error("expected guild-2 session to survive")
	}
}

func TestParseSourceHintAndDetect(t *testing.T) {
	if got := detectSourceFromURL("https://soundcloud.com/artist/track"); got != TrackSourceSoundCloud {
		t.Errorf("expected soundcloud, got %q", got)
	}
	if got := detectSourceFromURL("https://youtu.be/abc"); got != TrackSourceYouTube {
		t.Errorf("expected youtube, got %q", got)
	}
	if !looksLikeURL("https://example.com/a") || looksLikeURL("never gonna give you up") {
		t.Error("unexpected url detection")
	}
}

func TestYTDLPItems(t *testing.T) {
	root := ytDLPItem{Entries: []ytDLPItem{
		{},
		{Title: "first", WebpageURL: "https://www.youtube.com/watch?v=1", Duration: 61},
		{Title: "second", URL: "https://soundcloud.com/a/b", Thumbnails: []struct {
			URL string `json:"url"`
		}{{URL: "small"}, {URL: "large"}}},
	}}

	items, err := pickYTDLPItems(root, 5)
	if err != nil {
		t.Fatalf("pickYTDLPItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 usable items, got %d", len(items))
	}

	first, ok := items[0].toTrack(TrackSourceUnknown)
	if !ok || first.Source != TrackSourceYouTube || first.Image != fallbackImage || first.Duration != 61*time.Second {
		t.Errorf("unexpected first track: %+v", first)
	}
	second, ok := items[1].toTrack(TrackSourceUnknown)
	if !ok || second.Source != TrackSourceSoundCloud || second.Image != "large" {
		t.Errorf("unexpected second track: %+v", second)
	}
	if err := ValidateTrack(&second); err != nil {
		t.Errorf("expected resolved track to be loadable: %v", err)
	}

	if _, err := pickYTDLPItems(ytDLPItem{}, 1); !errors.Is(err, ErrResolveFailed) {
		t.Errorf("expected ErrResolveFailed for empty result, got %v", err)
	}
	if got := searchPrefix(TrackSourceSoundCloud, 3); got != "scsearch3:" {
		t.Errorf("unexpected prefix %q", got)
	}
	if got := ParseSourceHint(" YT "); got != TrackSourceYouTube {
		t.Errorf("unexpected hint %q", got)
	}
}
