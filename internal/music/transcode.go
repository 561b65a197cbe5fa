package music

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrTranscodeFailed = errors.New("failed to transcode audio")
	ErrTranscoderNil   = errors.New("transcoder is not configured")
)

// Transcoder turns an arbitrary media stream into an audio file.
type Transcoder interface {
	Convert(ctx context.Context, src io.Reader, dst string) error
}

type FFmpegTranscoder struct {
	Binary string
}

func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTranscoder{Binary: binary}
}

func (t *FFmpegTranscoder) Convert(ctx context.Context, src io.Reader, dst string) error {
	args := []string{
		"-y",
		"-i", "pipe:0",
		"-vn",
		"-f", "mp3",
		"-loglevel", "warning",
		dst,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	cmd.Stdin = src
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrTranscodeFailed, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ConvertToAudio transcodes stream into the guild's download slot and
// returns the written path.
func (p *Player) ConvertToAudio(ctx context.Context, guildID string, stream io.Reader) (string, error) {
	if p.transcoder == nil {
		return "", ErrTranscoderNil
	}

	dst := p.audioPath(guildID)
	if err := p.transcoder.Convert(ctx, stream, dst); err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Str("path", dst).Msg("audio conversion failed")
		return "", err
	}
	return dst, nil
}

func (p *Player) audioPath(guildID string) string {
	return filepath.Join(p.opts.DownloadDir, guildID+".mp3")
}
