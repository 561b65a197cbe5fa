package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

var ErrResolveFailed = errors.New("failed to resolve track metadata")

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 10
	fallbackImage      = "https://i.ytimg.com/vi/default/hqdefault.jpg"
)

// SourceOpener yields the raw media bytes behind a track URL.
type SourceOpener interface {
	OpenStream(ctx context.Context, trackURL string) (io.ReadCloser, error)
}

type YTDLPResolver struct {
	Binary  string
	TempDir string
}

func NewYTDLPResolver(binary string) *YTDLPResolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPResolver{
		Binary:  binary,
		TempDir: os.TempDir(),
	}
}

// Resolve returns the first match for a URL or a search query.
func (r *YTDLPResolver) Resolve(ctx context.Context, input string, sourceHint TrackSource) (Track, error) {
	tracks, err := r.ResolveSearch(ctx, input, sourceHint, 1)
	if err != nil {
		return Track{}, err
	}
	return tracks[0], nil
}

func (r *YTDLPResolver) ResolveSearch(ctx context.Context, input string, sourceHint TrackSource, limit int) ([]Track, error) {
	target := strings.TrimSpace(input)
	if target == "" {
		return nil, fmt.Errorf("%w: empty input", ErrResolveFailed)
	}

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	args := []string{
		"--no-warnings",
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--paths", r.TempDir,
	}

	if looksLikeURL(target) {
		limit = 1
	} else {
		args = append(args, "--flat-playlist")
		target = searchPrefix(sourceHint, limit) + target
	}
	args = append(args, target)

	output, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var root ytDLPItem
	if err := json.Unmarshal(output, &root); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrResolveFailed, err)
	}

	items, err := pickYTDLPItems(root, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Track, 0, len(items))
	for _, item := range items {
		if track, ok := item.toTrack(sourceHint); ok {
			results = append(results, track)
		}
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
	}

	return results, nil
}

// OpenStream pipes the best audio format of trackURL out of yt-dlp. Closing
// the reader stops the process.
func (r *YTDLPResolver) OpenStream(ctx context.Context, trackURL string) (io.ReadCloser, error) {
	if strings.TrimSpace(trackURL) == "" {
		return nil, fmt.Errorf("%w: empty track url", ErrResolveFailed)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, r.Binary,
		"--no-warnings",
		"-f", "bestaudio",
		"--no-playlist",
		"--paths", r.TempDir,
		"-o", "-",
		trackURL,
	)
	cmd.Env = r.env()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create yt-dlp stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start yt-dlp: %v", ErrResolveFailed, err)
	}

	return &processStream{ReadCloser: stdout, cmd: cmd, cancel: cancel}, nil
}

func (r *YTDLPResolver) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Env = r.env()
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: yt-dlp failed: %v: %s", ErrResolveFailed, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%w: yt-dlp failed: %v", ErrResolveFailed, err)
	}
	return output, nil
}

func (r *YTDLPResolver) env() []string {
	return append(os.Environ(), "TMPDIR="+r.TempDir, "TEMP="+r.TempDir, "TMP="+r.TempDir)
}

type processStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (s *processStream) Close() error {
	s.cancel()
	err := s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return err
}

type ytDLPItem struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	WebpageURL string      `json:"webpage_url"`
	URL        string      `json:"url"`
	Duration   float64     `json:"duration"`
	Thumbnail  string      `json:"thumbnail"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
	Entries []ytDLPItem `json:"entries"`
}

func (item ytDLPItem) toTrack(sourceHint TrackSource) (Track, bool) {
	link := item.WebpageURL
	if link == "" {
		link = item.URL
	}
	if link == "" {
		return Track{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Unknown Title"
	}

	source := sourceHint
	if source == TrackSourceUnknown || source == "" {
		source = detectSourceFromURL(link)
	}

	image := item.Thumbnail
	if image == "" && len(item.Thumbnails) > 0 {
		image = item.Thumbnails[len(item.Thumbnails)-1].URL
	}
	if image == "" {
		image = fallbackImage
	}

	duration := time.Duration(item.Duration * float64(time.Second))
	if duration < 0 {
		duration = 0
	}

	return Track{
		Title:    title,
		URL:      link,
		Source:   source,
		Image:    image,
		Duration: duration,
	}, true
}

func pickYTDLPItems(root ytDLPItem, limit int) ([]ytDLPItem, error) {
	if limit <= 0 {
		limit = 1
	}

	if len(root.Entries) == 0 {
		if root.WebpageURL != "" || root.URL != "" || root.Title != "" {
			return []ytDLPItem{root}, nil
		}
		return nil, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
	}

	items := make([]ytDLPItem, 0, limit)
	for _, entry := range root.Entries {
		if entry.WebpageURL == "" && entry.URL == "" && entry.Title == "" {
			continue
		}
		items = append(items, entry)
		if len(items) >= limit {
			break
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
	}

	return items, nil
}

func searchPrefix(sourceHint TrackSource, limit int) string {
	if sourceHint == TrackSourceSoundCloud {
		return fmt.Sprintf("scsearch%d:", limit)
	}
	return fmt.Sprintf("ytsearch%d:", limit)
}

func looksLikeURL(value string) bool {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return true
	}

	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func detectSourceFromURL(raw string) TrackSource {
	u, err := url.Parse(raw)
	if err != nil {
		return TrackSourceUnknown
	}

	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, "youtube.com"), strings.Contains(host, "youtu.be"):
		return TrackSourceYouTube
	case strings.Contains(host, "soundcloud.com"):
		return TrackSourceSoundCloud
	default:
		return TrackSourceUnknown
	}
}

// ParseSourceHint maps user provided provider names onto a TrackSource.
func ParseSourceHint(provider string) TrackSource {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "youtube", "yt":
		return TrackSourceYouTube
	case "soundcloud", "sc":
		return TrackSourceSoundCloud
	default:
		return TrackSourceUnknown
	}
}
